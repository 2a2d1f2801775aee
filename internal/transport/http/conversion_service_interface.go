package http

import (
	"context"
	"io"

	"labflat/internal/exporter"
	"labflat/internal/services"
)

// ConversionServiceInterface defines the conversion operations used by the
// handlers
type ConversionServiceInterface interface {
	Convert(ctx context.Context, archive io.Reader, format exporter.Format) (*services.Conversion, error)
	Preview(ctx context.Context, archive io.Reader) (*services.Preview, error)
}

// HealthServiceInterface defines the health operations used by the handlers
type HealthServiceInterface interface {
	HealthCheck(ctx context.Context) services.HealthStatus
	ReadinessCheck(ctx context.Context) services.HealthStatus
	LivenessCheck(ctx context.Context) services.HealthStatus
	Version() map[string]interface{}
}
