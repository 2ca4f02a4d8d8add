// Package config loads CinePulse configuration.
//
// # Configuration Sources
//
// Values are layered in increasing order of precedence:
//
//  1. Default()
//  2. A YAML file named by CINE_CONFIG_FILE, or ./config.yaml when present
//  3. Environment variables
//
// # Environment Variables
//
// Every variable carries the CINE prefix followed by the section and field:
//
//	CINE_SERVER_PORT=8080
//	CINE_LOGGING_LEVEL=debug
//	CINE_PIPELINE_CLUSTER_K=5
//	CINE_PIPELINE_INVALIDATE_ON_RELOAD=true
//	CINE_RATE_LIMIT_RPS=20
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Load validates the result; Default() is always valid and is what tests use.
package config
