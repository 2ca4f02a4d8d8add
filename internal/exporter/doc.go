// Package exporter writes pipeline tables and artifacts out of the process.
//
// WriteFrame streams a domain.Frame as CSV to any io.Writer, optionally with a
// UTF-8 BOM so spreadsheet tools detect the encoding of non-ASCII titles and
// comments. Writer persists frames and rendered artifacts under a base
// directory and is used by the batch command.
//
// Example usage:
//
//	w := exporter.NewWriter("data/exports", logger)
//	path, err := w.WriteFrame("catalog/default_cleaned.csv", frame)
package exporter
