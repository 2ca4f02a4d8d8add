// Package domain contains the data types shared by every CinePulse layer:
// ingested payloads, cleaned rows per domain, clean reports and the analysis
// results (cluster summaries, forecasts and token tables).
package domain
