// Package http implements the HTTP handlers of the CinePulse web service.
// Handlers stay thin: they parse the path and body, call the service layer
// and hand every failure to the shared errors.ErrorHandler, which renders
// RFC 7807 problem details.
//
// # Routes
//
// PipelineHandler.Routes is mounted under /api/v1:
//
//	GET  /{domain}                              list keys
//	GET  /{domain}/{key}                        record summary
//	GET  /{domain}/{key}/result                 committed analysis result
//	POST /{domain}/{key}/load                   multipart upload or JSON payload
//	POST /{domain}/{key}/clean                  clean stage
//	POST /catalog/{key}/analyze                 clustering
//	POST /region/{key}/forecast                 ARIMA forecast
//	POST /item/{key}/tokenize                   token tally
//	POST /{domain}/{key}/render/{artifact}      render and cache an artifact
//	GET  /{domain}/{key}/artifacts/{artifact}   artifact blob with ETag
//	GET  /{domain}/{key}/export/{stage}         CSV export of a stage
//
// The catalog domain holds a single key; "default" addresses it.
package http
