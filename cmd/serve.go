package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agrispy.dev/agrispy/internal/archive"
	"agrispy.dev/agrispy/internal/database"
	"agrispy.dev/agrispy/internal/identity"
	"agrispy.dev/agrispy/internal/session"
	"agrispy.dev/agrispy/internal/settings"
	"agrispy.dev/agrispy/internal/storage"
	"agrispy.dev/agrispy/internal/telemetry"
	"agrispy.dev/agrispy/internal/web"
	"agrispy.dev/agrispy/pkg/metrics"
	"agrispy.dev/agrispy/pkg/mq"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web dashboard",
	Long: `Run the AgriSpy dashboard that:
- Authenticates users and keeps their session in persistent storage
- Shows live field telemetry, drone controls, pesticides and reports
- Optionally publishes readings to RabbitMQ
- Optionally reads sensor history from the archive over gRPC`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("http-port", 8080, "HTTP server port")
	serveCmd.Flags().String("storage-driver", storage.DriverFile, "session storage driver (memory, file, postgres)")
	serveCmd.Flags().String("storage-path", "agrispy-session.json", "session file for the file driver")
	serveCmd.Flags().String("db-host", "localhost", "PostgreSQL host for the postgres driver")
	serveCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	serveCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	serveCmd.Flags().String("db-password", "", "PostgreSQL password")
	serveCmd.Flags().String("db-name", "agrispy", "PostgreSQL database name")
	serveCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	serveCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL; readings are published when set")
	serveCmd.Flags().String("queue-name", "telemetry-readings", "RabbitMQ queue name for readings")
	serveCmd.Flags().String("source", "dashboard", "source label attached to published readings")
	serveCmd.Flags().String("archive-addr", "", "archive gRPC address; enables sensor history when set")
	serveCmd.Flags().Int("history-limit", archive.DefaultRecentLimit, "archived readings shown on the reports page")
	serveCmd.Flags().Duration("refresh-interval", telemetry.DefaultRefreshInterval, "telemetry auto-refresh interval")

	_ = viper.BindPFlag("serve.http.port", serveCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("serve.storage.driver", serveCmd.Flags().Lookup("storage-driver"))
	_ = viper.BindPFlag("serve.storage.path", serveCmd.Flags().Lookup("storage-path"))
	_ = viper.BindPFlag("serve.db.host", serveCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("serve.db.port", serveCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("serve.db.user", serveCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("serve.db.password", serveCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("serve.db.name", serveCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("serve.db.sslmode", serveCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("serve.rabbitmq.url", serveCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("serve.rabbitmq.queue_name", serveCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("serve.rabbitmq.source", serveCmd.Flags().Lookup("source"))
	_ = viper.BindPFlag("serve.archive.addr", serveCmd.Flags().Lookup("archive-addr"))
	_ = viper.BindPFlag("serve.archive.history_limit", serveCmd.Flags().Lookup("history-limit"))
	_ = viper.BindPFlag("serve.telemetry.interval", serveCmd.Flags().Lookup("refresh-interval"))
}

// closers runs cleanup functions in reverse order.
type closers []func() error

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runServe(_ *cobra.Command, _ []string) (err error) {
	logger := GetLogger()
	logger.Info("starting dashboard service")

	var cleanup closers
	defer func() {
		if cerr := cleanup.close(); cerr != nil {
			logger.Error("cleanup failed", "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	ns := metricsNamespace()
	sessionMetrics := metrics.NewSessionMetrics(ns)
	telemetryMetrics := metrics.NewTelemetryMetrics(ns)

	backend, closeBackend, err := openStorage(logger)
	if err != nil {
		logger.Error("failed to open session storage", "error", err)
		return err
	}
	cleanup = append(cleanup, closeBackend)

	identities, err := identity.NewStore(backend, logger.With(slog.String("component", "identity")))
	if err != nil {
		return err
	}
	identities.SetMetrics(sessionMetrics)

	sessions, err := session.NewService(session.Config{
		Identities: identities,
		Logger:     logger.With(slog.String("component", "session")),
		Metrics:    sessionMetrics,
	})
	if err != nil {
		return err
	}

	prefs, err := settings.NewStore(backend, logger.With(slog.String("component", "settings")))
	if err != nil {
		return err
	}

	monitorCfg := telemetry.MonitorConfig{
		Logger:   logger.With(slog.String("component", "telemetry")),
		Metrics:  telemetryMetrics,
		Interval: viper.GetDuration("serve.telemetry.interval"),
	}

	if url := viper.GetString("serve.rabbitmq.url"); url != "" {
		client := mq.New(mq.Config{
			URL:     url,
			Queue:   viper.GetString("serve.rabbitmq.queue_name"),
			Durable: true,
			Logger:  logger.With(slog.String("component", "mq-client")),
			Metrics: metrics.NewMQMetrics(ns),
		})
		cleanup = append(cleanup, client.Close)

		publisher, err := telemetry.NewMQPublisher(client, viper.GetString("serve.rabbitmq.source"))
		if err != nil {
			return err
		}
		monitorCfg.Publisher = publisher
	}

	monitor, err := telemetry.NewMonitor(monitorCfg)
	if err != nil {
		return err
	}

	drone, err := telemetry.NewDrone(telemetry.DroneConfig{
		Logger:  logger.With(slog.String("component", "drone")),
		Metrics: telemetryMetrics,
	})
	if err != nil {
		return err
	}

	config := &web.ServerConfig{
		Logger:       logger,
		HTTPPort:     viper.GetInt("serve.http.port"),
		Session:      sessions,
		Monitor:      monitor,
		Drone:        drone,
		Settings:     prefs,
		HistoryLimit: viper.GetInt("serve.archive.history_limit"),
		Metrics:      metrics.NewWebMetrics(ns),
	}

	if addr := viper.GetString("serve.archive.addr"); addr != "" {
		history, err := archive.Dial(addr)
		if err != nil {
			logger.Error("failed to dial archive", "address", addr, "error", err)
			return err
		}
		cleanup = append(cleanup, history.Close)
		config.History = history
	}

	server, err := web.NewServer(config)
	if err != nil {
		logger.Error("failed to create dashboard server", "error", err)
		return err
	}

	logger.Info("dashboard server configuration",
		"http_port", config.HTTPPort,
		"storage_driver", viper.GetString("serve.storage.driver"),
		"publishing", monitorCfg.Publisher != nil,
		"archive_addr", viper.GetString("serve.archive.addr"),
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("dashboard server error", "error", err)
		return err
	}

	logger.Info("dashboard server stopped")
	return nil
}

// openStorage builds the configured session store and a function that
// releases it.
func openStorage(logger *slog.Logger) (storage.Store, func() error, error) {
	driver, err := storage.ParseDriver(viper.GetString("serve.storage.driver"))
	if err != nil {
		return nil, nil, err
	}

	noop := func() error { return nil }
	storeLogger := logger.With(slog.String("component", "storage"), slog.String("driver", driver))

	switch driver {
	case storage.DriverMemory:
		return storage.NewMemoryStore(), noop, nil
	case storage.DriverFile:
		store, err := storage.NewFileStore(viper.GetString("serve.storage.path"), storeLogger)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case storage.DriverPostgres:
		db, err := database.Open(&database.Config{
			Logger:   storeLogger,
			Host:     viper.GetString("serve.db.host"),
			Port:     viper.GetInt("serve.db.port"),
			User:     viper.GetString("serve.db.user"),
			Password: viper.GetString("serve.db.password"),
			DBName:   viper.GetString("serve.db.name"),
			SSLMode:  viper.GetString("serve.db.sslmode"),
		}, &storage.Entry{})
		if err != nil {
			return nil, nil, err
		}
		store, err := storage.NewGormStore(db)
		if err != nil {
			return nil, nil, errors.Join(err, database.Close(db, storeLogger))
		}
		return store, func() error { return database.Close(db, storeLogger) }, nil
	default:
		return nil, nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
}
