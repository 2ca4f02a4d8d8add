// Package app provides application initialization and lifecycle management
// for the CinePulse web service. It wires configuration, logging,
// OpenTelemetry, the pipeline store and controller, the WebSocket event hub
// and the HTTP router into one Application.
//
// # Initialization Flow
//
//  1. Load configuration from defaults, the optional YAML file and CINE_* env
//  2. Initialize logging and observability
//  3. Create the record store and pipeline controller
//  4. Initialize services, handlers and middleware
//  5. Serve until the context is cancelled, then shut down gracefully
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	return application.Run(ctx)
//
// Initialization errors are returned to the caller; the package never calls
// os.Exit.
package app
