package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads configuration from defaults, an optional file, and
// environment variables.
type Loader struct {
	configFile string
	envPrefix  string
}

// NewLoader creates a loader. configFile may be empty; envPrefix is the
// environment variable prefix (e.g. "FLUENTSTREAM").
func NewLoader(configFile, envPrefix string) *Loader {
	if strings.TrimSpace(envPrefix) == "" {
		envPrefix = "FLUENTSTREAM"
	}
	return &Loader{
		configFile: strings.TrimSpace(configFile),
		envPrefix:  envPrefix,
	}
}

// Load resolves the effective configuration: ENV > file > defaults.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	setDefaults(v, defaults)

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Viper only honors env overrides for keys it knows about, so every
	// nested key is bound explicitly.
	for _, key := range configKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("service.name", d.Service.Name)
	v.SetDefault("service.instance_id", d.Service.InstanceID)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.management_addr", d.Server.ManagementAddr)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.publish_rps", d.Server.PublishRPS)
	v.SetDefault("server.publish_burst", d.Server.PublishBurst)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("sse.max_connections", d.SSE.MaxConnections)
	v.SetDefault("sse.client_buffer", d.SSE.ClientBuffer)
	v.SetDefault("sse.replay_limit", d.SSE.ReplayLimit)
	v.SetDefault("sse.drop_on_backpressure", d.SSE.DropOnBackpressure)
	v.SetDefault("sse.heartbeat_interval", d.SSE.HeartbeatInterval)
	v.SetDefault("sse.default_retry_ms", d.SSE.DefaultRetryMS)
	v.SetDefault("sse.store", d.SSE.Store)
	v.SetDefault("sse.bus", d.SSE.Bus)
	v.SetDefault("sse.redis.url", d.SSE.Redis.URL)
	v.SetDefault("sse.redis.prefix", d.SSE.Redis.Prefix)
	v.SetDefault("sse.redis.operation_timeout", d.SSE.Redis.OperationTimeout)
	v.SetDefault("sse.redis.max_conns", d.SSE.Redis.MaxConns)

	v.SetDefault("resilience.retry_max_attempts", d.Resilience.RetryMaxAttempts)
	v.SetDefault("resilience.retry_backoff", d.Resilience.RetryBackoff)
	v.SetDefault("resilience.retry_exponential", d.Resilience.RetryExponential)
	v.SetDefault("resilience.retry_max_backoff", d.Resilience.RetryMaxBackoff)
	v.SetDefault("resilience.breaker_failure_threshold", d.Resilience.BreakerFailureThreshold)
	v.SetDefault("resilience.breaker_recovery_timeout", d.Resilience.BreakerRecoveryTimeout)
}

func configKeys() []string {
	return []string{
		"service.name",
		"service.instance_id",
		"server.addr",
		"server.management_addr",
		"server.read_header_timeout",
		"server.shutdown_timeout",
		"server.publish_rps",
		"server.publish_burst",
		"logging.level",
		"logging.format",
		"sse.max_connections",
		"sse.client_buffer",
		"sse.replay_limit",
		"sse.drop_on_backpressure",
		"sse.heartbeat_interval",
		"sse.default_retry_ms",
		"sse.store",
		"sse.bus",
		"sse.redis.url",
		"sse.redis.prefix",
		"sse.redis.operation_timeout",
		"sse.redis.max_conns",
		"resilience.retry_max_attempts",
		"resilience.retry_backoff",
		"resilience.retry_exponential",
		"resilience.retry_max_backoff",
		"resilience.breaker_failure_threshold",
		"resilience.breaker_recovery_timeout",
	}
}
