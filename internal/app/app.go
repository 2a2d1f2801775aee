package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"labflat/internal/config"
	apierrors "labflat/internal/errors"
	"labflat/internal/exporter"
	"labflat/internal/infrastructure"
	"labflat/internal/intake"
	customMiddleware "labflat/internal/middleware"
	"labflat/internal/services"
	handlers "labflat/internal/transport/http"
)

// Application represents the main application container
type Application struct {
	Config            *config.Config
	Router            *chi.Mux
	Server            *http.Server
	Logger            *slog.Logger
	OTelProviders     *infrastructure.OTelProviders
	Metrics           *infrastructure.Metrics
	ErrorHandler      *apierrors.ErrorHandler
	ConversionService *services.ConversionService
	HealthService     *services.HealthService

	mu       sync.Mutex
	listener net.Listener
}

// NewApplication loads configuration, installs the global logger and wires
// the application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	return New(cfg, logger)
}

// New wires an application from an already loaded configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		ErrorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Level == "debug"),
	}

	app.initializeServices()
	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() {
	a.ConversionService = services.NewConversionService(services.ConversionOptions{
		Intake: intake.Options{
			BaseDir:         a.Config.Intake.WorkDir,
			MaxArchiveBytes: a.Config.Intake.MaxArchiveBytes,
		},
		Export: exporter.Options{
			CSVBOM: a.Config.Export.CSVBOM,
		},
	}, a.OTelProviders.Tracer, a.Metrics, a.Logger)

	a.HealthService = services.NewHealthService(config.AppVersion, a.Config.Intake.WorkDir, a.Logger)
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// RequestID → RealIP → CleanPath → OTel → Logger → Recoverer → SecurityHeaders
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(chimiddleware.CleanPath)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.ErrorHandler))
	r.Use(customMiddleware.SecurityHeaders)

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	// Scrape endpoint stays outside rate limiting and request timeouts
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle(config.MetricsEndpoint, a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}
		if a.Config.Server.RequestTimeout > 0 {
			r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout))
		}

		a.setupHTMLRoutes(r)
		a.setupAPIRoutes(r)
	})

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)

		conversionHandler := handlers.NewConversionHandler(
			a.ConversionService,
			customMiddleware.NewValidator(),
			a.Config.Intake.MaxUploadBytes,
			a.Logger,
			a.ErrorHandler,
		)
		conversionHandler.RegisterRoutes(r)
	})
}

// setupHTMLRoutes configures the upload form
func (a *Application) setupHTMLRoutes(r chi.Router) {
	htmlHandler := handlers.NewHTMLHandler(
		a.ConversionService,
		a.Config.Intake.MaxUploadBytes,
		a.Config.Export.DefaultFormat,
		config.AppName,
		config.AppVersion,
		a.Logger,
	)
	r.Get("/", htmlHandler.Index)
	r.Post("/", htmlHandler.Submit)
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Address(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(a.Logger.Handler(), slog.LevelWarn),
	}
}

// Start binds the listen address and serves in the background. A serve
// failure after startup calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}

	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if status := a.HealthService.ReadinessCheck(ctx); status.Status != "ready" {
		a.Logger.WarnContext(ctx, "Startup readiness check failed",
			slog.Any("services", status.Services))
	}

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", ln.Addr().String()),
		slog.String("version", config.AppVersion),
		slog.Int64("max_upload_bytes", a.Config.Intake.MaxUploadBytes))

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (a *Application) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Stop drains in-flight requests and flushes telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run starts the application and blocks until SIGINT, SIGTERM or a server
// failure, then shuts down.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(ctx)
}
