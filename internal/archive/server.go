package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"gorm.io/gorm"

	"agrispy.dev/agrispy/internal/database"
	"agrispy.dev/agrispy/pkg/metrics"
	"agrispy.dev/agrispy/pkg/mq"
)

// Server runs the archive: database, queue consumer and gRPC history service.
type Server struct {
	logger        *slog.Logger
	db            *gorm.DB
	consumer      *Consumer
	grpcServer    *grpc.Server
	metricsServer *http.Server
	config        *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// RabbitMQ configuration
	RabbitMQURL string
	QueueName   string

	// gRPC configuration
	GRPCPort int

	// MetricsPort serves /metrics when positive.
	MetricsPort int

	// Metrics is optional.
	Metrics *metrics.ArchiveMetrics
	// MQMetrics is optional.
	MQMetrics *metrics.MQMetrics
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.GRPCPort <= 0 {
		return nil, errors.New("gRPC port must be positive")
	}

	if cfg.MetricsPort < 0 {
		return nil, errors.New("metrics port cannot be negative")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the archive server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting archive server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	db, err := database.Open(&database.Config{
		Logger:   s.logger,
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
	}, &ArchivedReading{})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	repo, err := NewGormRepository(db, s.config.Metrics)
	if err != nil {
		return errors.Join(err, s.Shutdown())
	}

	client := mq.New(mq.Config{
		URL:     s.config.RabbitMQURL,
		Queue:   s.config.QueueName,
		Durable: true,
		Logger:  s.logger,
		Metrics: s.config.MQMetrics,
	})

	consumer, err := NewConsumer(&ConsumerConfig{
		Logger:     s.logger,
		Repository: repo,
		Client:     client,
		Metrics:    s.config.Metrics,
	})
	if err != nil {
		_ = client.Close()
		return errors.Join(fmt.Errorf("failed to initialize consumer: %w", err), s.Shutdown())
	}
	s.consumer = consumer

	if err := s.consumer.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("failed to start consumer: %w", err), s.Shutdown())
	}

	service, err := NewService(s.logger, repo, s.config.Metrics)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize gRPC service: %w", err), s.Shutdown())
	}

	s.grpcServer = grpc.NewServer()
	RegisterArchiveServer(s.grpcServer, service)

	grpcAddr := fmt.Sprintf(":%d", s.config.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to listen on %s: %w", grpcAddr, err), s.Shutdown())
	}

	s.logger.Info("starting gRPC server", "address", grpcAddr)

	serveErr := make(chan error, 2)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			serveErr <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	if s.config.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler())
		s.metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", s.config.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		s.logger.Info("starting metrics server", "address", s.metricsServer.Addr)
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	s.logger.Info("archive server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-serveErr:
		s.logger.Error("server error", "error", err)
		cancel()
		return errors.Join(err, s.Shutdown())
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down archive server")

	var shutdownErr error
	record := func(what string, err error) {
		s.logger.Error("failed to stop "+what, "error", err)
		if shutdownErr != nil {
			shutdownErr = fmt.Errorf("%w; %s shutdown error: %w", shutdownErr, what, err)
		} else {
			shutdownErr = fmt.Errorf("%s shutdown error: %w", what, err)
		}
	}

	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			record("metrics server", err)
		}
		cancel()
		s.metricsServer = nil
	}

	if s.grpcServer != nil {
		s.logger.Info("stopping gRPC server")
		s.grpcServer.GracefulStop()
		s.grpcServer = nil
		s.logger.Info("gRPC server stopped")
	}

	if s.consumer != nil {
		s.logger.Info("stopping consumer")
		if err := s.consumer.Stop(); err != nil {
			record("consumer", err)
		}
		s.consumer = nil
	}

	if s.db != nil {
		s.logger.Info("closing database connection")
		if err := database.Close(s.db, s.logger); err != nil {
			record("database", err)
		}
		s.db = nil
	}

	if shutdownErr != nil {
		s.logger.Error("archive server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("archive server shutdown completed successfully")
	return nil
}
