// Package config loads service configuration with the precedence
// ENV > config file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root service configuration.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	SSE        SSEConfig        `mapstructure:"sse"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
}

// ServiceConfig identifies the running service instance.
type ServiceConfig struct {
	Name       string `mapstructure:"name"`
	InstanceID string `mapstructure:"instance_id"`
}

// ServerConfig configures the public and management HTTP servers.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ManagementAddr    string        `mapstructure:"management_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// PublishRPS / PublishBurst bound the publish endpoint rate limiter.
	PublishRPS   float64 `mapstructure:"publish_rps"`
	PublishBurst int     `mapstructure:"publish_burst"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SSEConfig configures the streaming subsystem.
type SSEConfig struct {
	MaxConnections     int           `mapstructure:"max_connections"`
	ClientBuffer       int           `mapstructure:"client_buffer"`
	ReplayLimit        int           `mapstructure:"replay_limit"`
	DropOnBackpressure bool          `mapstructure:"drop_on_backpressure"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	DefaultRetryMS     int           `mapstructure:"default_retry_ms"`
	// Store selects the replay backend: "memory" or "redis".
	Store string `mapstructure:"store"`
	// Bus selects distributed fan-out: "none", "memory", or "redis".
	Bus   string      `mapstructure:"bus"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the Redis store/bus backends.
type RedisConfig struct {
	URL              string        `mapstructure:"url"`
	Prefix           string        `mapstructure:"prefix"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	MaxConns         int           `mapstructure:"max_conns"`
}

// ResilienceConfig configures the default retry and breaker behavior
// applied to outbound dependency calls.
type ResilienceConfig struct {
	RetryMaxAttempts        int           `mapstructure:"retry_max_attempts"`
	RetryBackoff            time.Duration `mapstructure:"retry_backoff"`
	RetryExponential        bool          `mapstructure:"retry_exponential"`
	RetryMaxBackoff         time.Duration `mapstructure:"retry_max_backoff"`
	BreakerFailureThreshold int           `mapstructure:"breaker_failure_threshold"`
	BreakerRecoveryTimeout  time.Duration `mapstructure:"breaker_recovery_timeout"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			Name:       "fluentstream",
			InstanceID: "instance-1",
		},
		Server: ServerConfig{
			Addr:              ":8080",
			ManagementAddr:    ":9090",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			PublishRPS:        50,
			PublishBurst:      100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		SSE: SSEConfig{
			MaxConnections:     10000,
			ClientBuffer:       64,
			ReplayLimit:        100,
			DropOnBackpressure: true,
			HeartbeatInterval:  20 * time.Second,
			DefaultRetryMS:     3000,
			Store:              "memory",
			Bus:                "none",
			Redis: RedisConfig{
				Prefix:           "fluentstream",
				OperationTimeout: 3 * time.Second,
			},
		},
		Resilience: ResilienceConfig{
			RetryMaxAttempts:        3,
			RetryBackoff:            time.Second,
			RetryExponential:        true,
			RetryMaxBackoff:         30 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerRecoveryTimeout:  30 * time.Second,
		},
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.Name) == "" {
		return fmt.Errorf("service.name is required")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.Addr == c.Server.ManagementAddr {
		return fmt.Errorf("server.addr and server.management_addr must differ")
	}
	if c.SSE.ReplayLimit <= 0 {
		return fmt.Errorf("sse.replay_limit must be positive")
	}
	if c.SSE.HeartbeatInterval <= 0 {
		return fmt.Errorf("sse.heartbeat_interval must be positive")
	}

	switch c.SSE.Store {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.SSE.Redis.URL) == "" {
			return fmt.Errorf("sse.redis.url is required when sse.store is redis")
		}
	default:
		return fmt.Errorf("sse.store must be memory or redis, got %q", c.SSE.Store)
	}

	switch c.SSE.Bus {
	case "none", "memory":
	case "redis":
		if strings.TrimSpace(c.SSE.Redis.URL) == "" {
			return fmt.Errorf("sse.redis.url is required when sse.bus is redis")
		}
	default:
		return fmt.Errorf("sse.bus must be none, memory, or redis, got %q", c.SSE.Bus)
	}

	if c.Resilience.RetryMaxAttempts < 1 {
		return fmt.Errorf("resilience.retry_max_attempts must be at least 1")
	}
	if c.Resilience.BreakerFailureThreshold < 1 {
		return fmt.Errorf("resilience.breaker_failure_threshold must be at least 1")
	}
	return nil
}
