// Package config loads labflat's configuration.
//
// Sources, lowest precedence first:
//
//  1. Default()
//  2. YAML file (LABFLAT_CONFIG_FILE, ./config.yaml or ./configs/config.yaml)
//  3. .env in the working directory (never overrides the real environment)
//  4. Environment variables, LABFLAT_<SECTION>_<FIELD>
//
// For example:
//
//	LABFLAT_SERVER_PORT=9090
//	LABFLAT_LOGGING_LEVEL=debug
//	LABFLAT_INTAKE_MAX_UPLOAD_BYTES=104857600
//	LABFLAT_EXPORT_CSV_BOM=true
//
// Load validates the result and fails on out-of-range values.
package config
