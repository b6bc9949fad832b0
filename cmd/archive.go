package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agrispy.dev/agrispy/internal/archive"
	"agrispy.dev/agrispy/pkg/metrics"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Run the reading archive",
	Long: `Run the archive server that:
- Consumes published sensor readings from RabbitMQ
- Persists them to PostgreSQL
- Serves recent readings over gRPC`,
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	archiveCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	archiveCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	archiveCmd.Flags().String("db-password", "", "PostgreSQL password")
	archiveCmd.Flags().String("db-name", "agrispy", "PostgreSQL database name")
	archiveCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	archiveCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	archiveCmd.Flags().String("queue-name", "telemetry-readings", "RabbitMQ queue name for readings")
	archiveCmd.Flags().Int("grpc-port", 9090, "gRPC server port")
	archiveCmd.Flags().Int("metrics-port", 9091, "Prometheus metrics port (0 disables)")

	_ = viper.BindPFlag("archive.db.host", archiveCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("archive.db.port", archiveCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("archive.db.user", archiveCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("archive.db.password", archiveCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("archive.db.name", archiveCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("archive.db.sslmode", archiveCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("archive.rabbitmq.url", archiveCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("archive.rabbitmq.queue_name", archiveCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("archive.grpc.port", archiveCmd.Flags().Lookup("grpc-port"))
	_ = viper.BindPFlag("archive.metrics.port", archiveCmd.Flags().Lookup("metrics-port"))
}

func runArchive(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting archive service")

	ns := metricsNamespace()
	config := &archive.ServerConfig{
		Logger:      logger,
		DBHost:      viper.GetString("archive.db.host"),
		DBPort:      viper.GetInt("archive.db.port"),
		DBUser:      viper.GetString("archive.db.user"),
		DBPassword:  viper.GetString("archive.db.password"),
		DBName:      viper.GetString("archive.db.name"),
		DBSSLMode:   viper.GetString("archive.db.sslmode"),
		RabbitMQURL: viper.GetString("archive.rabbitmq.url"),
		QueueName:   viper.GetString("archive.rabbitmq.queue_name"),
		GRPCPort:    viper.GetInt("archive.grpc.port"),
		MetricsPort: viper.GetInt("archive.metrics.port"),
		Metrics:     metrics.NewArchiveMetrics(ns),
		MQMetrics:   metrics.NewMQMetrics(ns),
	}

	server, err := archive.NewServer(config)
	if err != nil {
		logger.Error("failed to create archive server", "error", err)
		return err
	}

	logger.Info("archive server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"grpc_port", config.GRPCPort,
		"metrics_port", config.MetricsPort,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("archive server error", "error", err)
		return err
	}

	logger.Info("archive server stopped")
	return nil
}
