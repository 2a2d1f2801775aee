package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"labflat/internal/infrastructure"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	workDir   string
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. workDir is where conversion
// workspaces are created; empty means os.TempDir.
func NewHealthService(version, workDir string, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &HealthService{
		version:   version,
		workDir:   workDir,
		startTime: time.Now(),
		logger:    infrastructure.WithComponent(logger, "health_service"),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck reports ready when conversions can create workspaces.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	workspace := hs.checkWorkDir()
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  map[string]interface{}{"workspace": workspace},
	}

	if workspace.Status != "ready" {
		status.Status = "not_ready"
		hs.logger.WarnContext(ctx, "readiness check failed",
			slog.String("work_dir", hs.workDir),
			slog.String("reason", workspace.Message))
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	return map[string]interface{}{
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
}

// checkWorkDir verifies the work directory exists and is writable
func (hs *HealthService) checkWorkDir() ServiceHealth {
	if err := os.MkdirAll(hs.workDir, 0o755); err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("Cannot create work directory: %v", err)}
	}

	probe, err := os.CreateTemp(hs.workDir, ".health-*")
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("Cannot write to work directory: %v", err)}
	}
	probe.Close()
	os.Remove(filepath.Clean(probe.Name()))

	return ServiceHealth{Status: "ready", Message: "Work directory is writable"}
}
