package config

import "time"

// Application constants
const (
	AppName    = "labflat"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces every environment variable, e.g. LABFLAT_SERVER_PORT.
	EnvPrefix = "LABFLAT"

	// ConfigFileEnv points Load at an explicit YAML file.
	ConfigFileEnv = "LABFLAT_CONFIG_FILE"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMaxUploadBytes  int64 = 256 << 20 // 256MB
	DefaultMaxArchiveBytes int64 = 1 << 30   // 1GB unpacked

	DefaultRequestTimeout = 5 * time.Minute

	HealthEndpoint  = "/api/health"
	MetricsEndpoint = "/metrics"
)
