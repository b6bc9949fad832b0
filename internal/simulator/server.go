// Package simulator runs a headless fleet of field telemetry monitors that
// publish their readings to RabbitMQ for the archive.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"agrispy.dev/agrispy/internal/fixtures"
	"agrispy.dev/agrispy/internal/telemetry"
	"agrispy.dev/agrispy/pkg/metrics"
	"agrispy.dev/agrispy/pkg/mq"
)

// ServerConfig holds the configuration for the simulator server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// RabbitMQURL is the connection string for RabbitMQ
	RabbitMQURL string
	// QueueName is the queue readings are published to
	QueueName string
	// Interval is the time between readings of one field
	Interval time.Duration
	// FieldCount is the number of simulated fields
	FieldCount int
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
	// NewClient overrides how queue clients are created. Defaults to mq.New.
	NewClient func(field string) mq.ClientInterface
}

// Field is one simulated field and its publisher.
type Field struct {
	Name    string
	Monitor *telemetry.Monitor
	client  mq.ClientInterface
}

// Server manages the simulated fields.
type Server struct {
	logger *slog.Logger
	config *ServerConfig
	fields []*Field

	stopOnce sync.Once
	stopErr  error
}

var (
	errInvalidFieldCount = errors.New("field count must be greater than 0")
	errInvalidInterval   = errors.New("interval must be greater than 0")
	errLoggerRequired    = errors.New("logger is required")
	errQueueRequired     = errors.New("queue name cannot be empty")
)

// FieldName returns the source label of the i-th field: the report
// locations first, then numbered fields.
func FieldName(i int) string {
	locations := fixtures.Locations()
	if i < len(locations) {
		return strings.ToLower(locations[i]) + "-field"
	}
	return fmt.Sprintf("field-%d", i+1)
}

// NewServer creates a simulator with one monitor and queue client per field.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	if cfg.FieldCount <= 0 {
		return nil, errInvalidFieldCount
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.QueueName == "" {
		return nil, errQueueRequired
	}

	// Default to real RabbitMQ clients
	newClient := cfg.NewClient
	if newClient == nil {
		if cfg.RabbitMQURL == "" {
			return nil, errors.New("rabbitmq URL cannot be empty")
		}
		newClient = func(field string) mq.ClientInterface {
			return mq.New(mq.Config{
				URL:     cfg.RabbitMQURL,
				Queue:   cfg.QueueName,
				Durable: true,
				Logger:  cfg.Logger.With(slog.String("component", "mq-client"), slog.String("field", field)),
				Metrics: cfg.MQMetrics,
			})
		}
	}

	s := &Server{
		logger: cfg.Logger,
		config: cfg,
		fields: make([]*Field, 0, cfg.FieldCount),
	}

	// Create one client, publisher and monitor per field
	for i := range cfg.FieldCount {
		name := FieldName(i)
		client := newClient(name)

		publisher, err := telemetry.NewMQPublisher(client, name)
		if err != nil {
			_ = client.Close()
			return nil, errors.Join(err, s.closeClients())
		}

		monitor, err := telemetry.NewMonitor(telemetry.MonitorConfig{
			Logger:    cfg.Logger.With(slog.String("field", name)),
			Publisher: publisher,
			Interval:  cfg.Interval,
		})
		if err != nil {
			_ = client.Close()
			return nil, errors.Join(err, s.closeClients())
		}

		s.fields = append(s.fields, &Field{Name: name, Monitor: monitor, client: client})
		s.logger.Info("created field simulator", "field", name, "queue", cfg.QueueName)
	}

	return s, nil
}

// Fields returns the simulated fields.
func (s *Server) Fields() []*Field {
	return s.fields
}

// Run starts every field and blocks until a signal arrives or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	// Start fields
	for _, f := range s.fields {
		if err := f.Monitor.Start(ctx); err != nil {
			return errors.Join(fmt.Errorf("failed to start field %s: %w", f.Name, err), s.Shutdown())
		}
	}

	s.logger.Info("simulator started",
		"field_count", len(s.fields),
		"interval", s.config.Interval,
	)

	// Wait for shutdown signal or context cancellation
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	return s.Shutdown()
}

// Shutdown stops every monitor, waiting for in-flight publishes, then closes
// the queue clients. It is safe to call more than once.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() {
		s.logger.Info("waiting for fields to shut down...")
		var wg sync.WaitGroup
		for _, f := range s.fields {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.Monitor.Stop()
			}()
		}
		wg.Wait()

		s.logger.Info("closing MQ clients...")
		s.stopErr = s.closeClients()
		s.logger.Info("simulator stopped")
	})
	return s.stopErr
}

// closeClients closes all MQ clients concurrently.
func (s *Server) closeClients() error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, f := range s.fields {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := f.client.Close(); err != nil {
				s.logger.Error("failed to close MQ client", "field", f.Name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("field %s: %w", f.Name, err))
				mu.Unlock()
				return
			}

			s.logger.Info("MQ client closed", "field", f.Name)
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}
