/*
Package config handles configuration for the benefit engine server.

Settings come from environment variables with sensible defaults, so the
server runs with zero configuration in development and is fully
overridable in deployment.
*/
package config

import (
	"github.com/spf13/viper"
)

// Config holds all server configuration.
type Config struct {
	HTTPPort         string `mapstructure:"HTTP_PORT"`
	DBPath           string `mapstructure:"DB_PATH"`
	JWTSecret        string `mapstructure:"JWT_SECRET"`
	FeeJobSchedule   string `mapstructure:"FEE_JOB_SCHEDULE"`
	SchedulerEnabled bool   `mapstructure:"SCHEDULER_ENABLED"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("DB_PATH", "./benefit.db")
	viper.SetDefault("JWT_SECRET", "dev-secret-change-me")
	viper.SetDefault("FEE_JOB_SCHEDULE", "0 2 1 * *") // At 02:00 on day-of-month 1.
	viper.SetDefault("SCHEDULER_ENABLED", true)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("HTTP_PORT")
	_ = viper.BindEnv("DB_PATH")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("FEE_JOB_SCHEDULE")
	_ = viper.BindEnv("SCHEDULER_ENABLED")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
