package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"agrispy.dev/agrispy/pkg/logger"
	"agrispy.dev/agrispy/pkg/metrics"
)

// InitConfig initializes Viper configuration.
// It supports reading from config files (agrispy.yaml) and AGRISPY_ environment variables.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/agrispy/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("agrispy")
	}

	// AGRISPY_SERVE_HTTP_PORT overrides serve.http.port
	viper.SetEnvPrefix("AGRISPY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			// Config file not found; rely on env vars and defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger() *slog.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.ParseLevel(viper.GetString("log.level"))
	cfg.Format = logger.ParseFormat(viper.GetString("log.format"))
	return logger.New(cfg)
}

// metricsNamespace returns the configured Prometheus namespace.
func metricsNamespace() string {
	if ns := viper.GetString("metrics.namespace"); ns != "" {
		return ns
	}
	return metrics.DefaultNamespace
}
