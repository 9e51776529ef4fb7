package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/wizard-replay/internal/storage"
)

// Config holds all replay server configuration
type Config struct {
	// Listeners
	GRPCAddr  string `mapstructure:"grpc_addr"`
	AdminAddr string `mapstructure:"admin_addr"`

	// Buffer settings
	Capacity    int     `mapstructure:"capacity"`
	Alpha       float64 `mapstructure:"alpha"`
	Beta        float64 `mapstructure:"beta"`
	MinPriority float64 `mapstructure:"min_priority"`
	Seed        int64   `mapstructure:"seed"`

	// Events; an empty NATSURL disables publishing
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`

	// Shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	buffer := storage.DefaultConfig(65536)
	return &Config{
		GRPCAddr:        ":8080",
		AdminAddr:       ":8081",
		Capacity:        buffer.Capacity,
		Alpha:           buffer.Alpha,
		Beta:            buffer.Beta,
		MinPriority:     buffer.MinPriority,
		NATSSubject:     "replay.events",
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return fmt.Errorf("grpc_addr is required")
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return fmt.Errorf("nats_subject is required when nats_url is set")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return c.Buffer().Validate()
}

// Buffer returns the replay buffer settings
func (c *Config) Buffer() storage.Config {
	return storage.Config{
		Capacity:    c.Capacity,
		Alpha:       c.Alpha,
		Beta:        c.Beta,
		MinPriority: c.MinPriority,
		Seed:        c.Seed,
	}
}
