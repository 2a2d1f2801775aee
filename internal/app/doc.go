// Package app wires the labflat web service together and manages its
// lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration (defaults, YAML, .env, environment)
//  2. Initialize the global slog logger
//  3. Initialize OpenTelemetry tracing and the Prometheus metrics bridge
//  4. Create the conversion and health services
//  5. Build the chi router and the http.Server
//
// # Middleware Order
//
//	RequestID → RealIP → CleanPath → OTel → Logger → Recoverer → SecurityHeaders
//
// Rate limiting and the per-request timeout apply to the form and the API,
// never to the /metrics scrape endpoint.
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    os.Exit(1)
//	}
//	if err := application.Run(); err != nil {
//	    os.Exit(1)
//	}
//
// Run blocks until SIGINT or SIGTERM, then drains in-flight requests within
// the configured shutdown timeout and flushes telemetry. The package never
// calls os.Exit itself.
package app
