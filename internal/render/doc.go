// Package render turns committed pipeline stages into downloadable artifacts:
// XLSX workbooks carrying native charts, built with excelize, and flat CSV
// tables. Every renderer implements pipeline.Renderer and is registered per
// domain through NewRegistry.
package render
