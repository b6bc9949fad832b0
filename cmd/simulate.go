package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agrispy.dev/agrispy/internal/simulator"
	"agrispy.dev/agrispy/pkg/metrics"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish simulated field readings",
	Long: `Run headless field monitors that publish a reading per field
on every interval to RabbitMQ, for feeding the archive without a dashboard.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	simulateCmd.Flags().String("queue-name", "telemetry-readings", "RabbitMQ queue name for readings")
	simulateCmd.Flags().Duration("interval", 5*time.Second, "time between readings of one field")
	simulateCmd.Flags().Int("fields", 4, "number of simulated fields")

	_ = viper.BindPFlag("simulate.rabbitmq.url", simulateCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("simulate.rabbitmq.queue_name", simulateCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("simulate.interval", simulateCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("simulate.fields", simulateCmd.Flags().Lookup("fields"))
}

func runSimulate(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting field simulator")

	config := &simulator.ServerConfig{
		Logger:      logger,
		RabbitMQURL: viper.GetString("simulate.rabbitmq.url"),
		QueueName:   viper.GetString("simulate.rabbitmq.queue_name"),
		Interval:    viper.GetDuration("simulate.interval"),
		FieldCount:  viper.GetInt("simulate.fields"),
		MQMetrics:   metrics.NewMQMetrics(metricsNamespace()),
	}

	server, err := simulator.NewServer(config)
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return err
	}

	logger.Info("simulator configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"interval", config.Interval,
		"fields", config.FieldCount,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("simulator error", "error", err)
		return err
	}

	logger.Info("simulator stopped")
	return nil
}
