// Package web serves the AgriSpy dashboard: server-rendered pages with htmx
// fragments for the live views.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agrispy.dev/agrispy/internal/archive"
	"agrispy.dev/agrispy/internal/fixtures"
	"agrispy.dev/agrispy/internal/guard"
	"agrispy.dev/agrispy/internal/session"
	"agrispy.dev/agrispy/internal/settings"
	"agrispy.dev/agrispy/internal/telemetry"
	"agrispy.dev/agrispy/pkg/metrics"
)

// HistorySource returns archived readings, newest first.
type HistorySource interface {
	RecentReadings(ctx context.Context, limit int) ([]archive.ArchivedReading, error)
}

// Server represents the dashboard HTTP server.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	guard      *guard.Guard
	config     *ServerConfig
	profile    fixtures.DroneProfile
	now        func() time.Time
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// HTTP server configuration
	HTTPPort int

	Session  *session.Service
	Monitor  *telemetry.Monitor
	Drone    *telemetry.Drone
	Settings *settings.Store

	// History feeds the sensor history table on the reports page. Optional.
	History HistorySource
	// HistoryLimit is how many archived readings the reports page asks for.
	HistoryLimit int

	// DroneProfile is shown on the drone page. A fake one is generated when nil.
	DroneProfile *fixtures.DroneProfile

	// Metrics is optional.
	Metrics *metrics.WebMetrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewServer creates a new dashboard Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.Session == nil {
		return nil, errors.New("session service cannot be nil")
	}

	if cfg.Monitor == nil {
		return nil, errors.New("telemetry monitor cannot be nil")
	}

	if cfg.Drone == nil {
		return nil, errors.New("drone cannot be nil")
	}

	if cfg.Settings == nil {
		return nil, errors.New("settings store cannot be nil")
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = archive.DefaultRecentLimit
	}

	s := &Server{
		logger: cfg.Logger,
		config: cfg,
		now:    cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	if cfg.DroneProfile != nil {
		s.profile = *cfg.DroneProfile
	} else {
		profile, err := fixtures.NewDroneProfile()
		if err != nil {
			return nil, err
		}
		s.profile = profile
	}

	g, err := guard.New(guard.Config{
		Identities:  cfg.Session.Identities(),
		Session:     cfg.Session,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
		Placeholder: http.HandlerFunc(s.handleLoading),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create route guard: %w", err)
	}
	s.guard = g

	return s, nil
}

// Run restores the session, starts the telemetry monitor and serves HTTP
// until a signal arrives or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting dashboard server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	// Restore the persisted session
	s.config.Session.Restore(ctx)
	if id, ok := s.config.Session.Identities().Current(); ok {
		s.logger.Info("restored session", "id", id.ID, "role", id.Role)
	}

	if err := s.config.Monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start telemetry monitor: %w", err)
	}

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	// Start HTTP server in goroutine
	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("dashboard server started successfully")

	// Wait for shutdown signal, context cancellation, or error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return errors.Join(err, s.Shutdown())
		}
	}

	return s.Shutdown()
}

// Shutdown stops the HTTP server, the telemetry monitor and the drone
// simulation.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down dashboard server")

	var shutdownErr error

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		s.logger.Info("HTTP server stopped")
	}

	// Stop simulations
	s.config.Monitor.Stop()
	s.config.Drone.Stop()

	if shutdownErr != nil {
		s.logger.Error("dashboard server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("dashboard server shutdown completed successfully")
	return nil
}
