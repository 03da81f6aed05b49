// Package commands implements the dashboard CLI actions.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"

	"github.com/tender-automation/dashboard/internal/api"
	"github.com/tender-automation/dashboard/internal/bootstrap"
	"github.com/tender-automation/dashboard/internal/config"
	"github.com/tender-automation/dashboard/internal/dashboard"
	"github.com/tender-automation/dashboard/internal/logger"
	"github.com/tender-automation/dashboard/internal/storage"
	"github.com/tender-automation/dashboard/internal/telemetry"
)

// AppContext holds what every command needs: configuration and a logger.
type AppContext struct {
	Config *config.AppConfig
	Logger *slog.Logger

	closers []io.Closer
}

// NewAppContext loads the env file and config named by the global flags.
// With logToFile set, logs go to logging.file so they stay off the terminal.
func NewAppContext(cmd *cli.Command, logToFile bool) (*AppContext, error) {
	if err := config.LoadEnvFile(cmd.String("env")); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logCfg := logger.Config{Level: level, Format: cfg.Logging.Format}

	app := &AppContext{Config: cfg}
	if logToFile && cfg.Logging.File != "" {
		f, err := logger.OpenFile(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, f)
		logCfg.Output = f
	} else if logToFile {
		logCfg.Output = io.Discard
	}
	app.Logger = logger.New(logCfg)
	return app, nil
}

// Close releases files opened for the command.
func (a *AppContext) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// Client returns a REST client for the configured backend.
func (a *AppContext) Client() (*api.Client, error) {
	return api.NewClient(a.Config.Backend.BaseURL, api.WithStartTimeout(a.Config.StartTimeout()))
}

// Sink builds the configured archive sink.
func (a *AppContext) Sink(ctx context.Context) (storage.Sink, error) {
	d := a.Config.Downloads
	return storage.NewSink(ctx, storage.Options{
		Backend:     storage.Backend(d.Backend),
		Dir:         d.Directory,
		S3Bucket:    d.S3Bucket,
		S3Region:    d.S3Region,
		S3Endpoint:  d.S3Endpoint,
		S3PathStyle: d.S3PathStyle,
		S3Prefix:    d.S3Prefix,
	})
}

// NewDashboard builds a dashboard from the configuration. The caller starts it.
func (a *AppContext) NewDashboard(ctx context.Context) (*dashboard.Dashboard, error) {
	sink, err := a.Sink(ctx)
	if err != nil {
		return nil, err
	}
	return dashboard.New(dashboard.Options{
		BaseURL:          a.Config.Backend.BaseURL,
		WebSocketURL:     a.Config.Backend.WebSocketURL,
		ReconnectDelay:   a.Config.ReconnectDelay(),
		HandshakeTimeout: a.Config.HandshakeTimeout(),
		StartTimeout:     a.Config.StartTimeout(),
		Bootstrap: bootstrap.Config{
			InitialDelay: a.Config.InitialDelay(),
			RetryDelay:   a.Config.RetryDelay(),
			MaxAttempts:  a.Config.Bootstrap.MaxAttempts,
		},
		Sink:   sink,
		Logger: a.Logger,
	})
}

// StartMetrics serves /metrics until ctx is cancelled. It does nothing without an address.
func (a *AppContext) StartMetrics(ctx context.Context) {
	addr := a.Config.Metrics.Address
	if addr == "" {
		return
	}
	log := a.Logger.With("component", "metrics")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(telemetry.Handler()))

	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()
}

// startDashboard builds, starts and returns a dashboard plus its shutdown func.
func (a *AppContext) startDashboard(ctx context.Context) (*dashboard.Dashboard, func(), error) {
	dash, err := a.NewDashboard(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := dash.Start(ctx); err != nil {
		return nil, nil, err
	}
	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dash.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("dashboard shutdown", "error", err)
		}
	}
	return dash, stop, nil
}
