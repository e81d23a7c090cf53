package grpc

import (
	"fmt"
	"time"
)

// Config holds gRPC server configuration.
type Config struct {
	// Address is the listening address, e.g. "0.0.0.0:9090".
	Address string

	// EnableReflection enables gRPC server reflection for debugging.
	EnableReflection bool

	// EnableTracing adds the OpenTelemetry server interceptors.
	EnableTracing bool

	// HealthInterval is how often the health checker is probed. Zero
	// disables probing and reports SERVING for as long as the server runs.
	HealthInterval time.Duration

	Keepalive KeepaliveConfig
}

// KeepaliveConfig holds server keepalive settings. Zero values keep the
// grpc-go defaults.
type KeepaliveConfig struct {
	MaxConnectionIdle time.Duration
	Time              time.Duration
	Timeout           time.Duration
}

// DefaultConfig returns a default gRPC server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:        ":9090",
		HealthInterval: 15 * time.Second,
		Keepalive: KeepaliveConfig{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              time.Minute,
			Timeout:           20 * time.Second,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if c.HealthInterval < 0 {
		return fmt.Errorf("health interval cannot be negative")
	}
	return c.Keepalive.Validate()
}

// Validate validates keepalive configuration.
func (k KeepaliveConfig) Validate() error {
	if k.MaxConnectionIdle < 0 || k.Time < 0 || k.Timeout < 0 {
		return fmt.Errorf("keepalive durations cannot be negative")
	}
	if k.Time > 0 && k.Timeout >= k.Time {
		return fmt.Errorf("keepalive timeout must be less than ping interval")
	}
	return nil
}
