// Package dataprocessing turns ingested payloads into the cleaned, typed
// inputs the analysis engines consume.
//
// # Architecture
//
// The package has two halves:
//
// 1. Parser: sniffs CSV, XLSX or plain text uploads and materializes a
// domain.Payload (a string Frame or a list of text lines)
// 2. Cleaners: one per domain, applying the coercion rules and reporting a
// RowOutcome per input row
//
// # Usage
//
//	payload, err := dataprocessing.ParsePayload(file, "top250.xlsx", domain.PayloadKindTable)
//	if err != nil {
//	    return err
//	}
//	catalog, err := dataprocessing.CleanCatalog(payload.Table)
//
// # Data Flow
//
//	Upload → Parser → Payload → Clean{Catalog,Region,Comments} → typed rows + CleanReport
//
// # Error Handling
//
// A value that cannot be coerced never fails the call: the row is dropped
// (Catalog) or the value is interpolated (Region) and the outcome is counted
// in the CleanReport. Structural problems such as a missing column or an
// impossible calendar date are returned as errors wrapping the sentinels in
// errors.go.
package dataprocessing
