package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader("", "").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := DefaultConfig()
	if cfg.Service.Name != want.Service.Name {
		t.Fatalf("service.name = %q, want %q", cfg.Service.Name, want.Service.Name)
	}
	if cfg.Server.Addr != want.Server.Addr {
		t.Fatalf("server.addr = %q, want %q", cfg.Server.Addr, want.Server.Addr)
	}
	if cfg.SSE.ReplayLimit != want.SSE.ReplayLimit {
		t.Fatalf("sse.replay_limit = %d, want %d", cfg.SSE.ReplayLimit, want.SSE.ReplayLimit)
	}
	if cfg.SSE.Store != "memory" || cfg.SSE.Bus != "none" {
		t.Fatalf("unexpected backend defaults: store=%q bus=%q", cfg.SSE.Store, cfg.SSE.Bus)
	}
	if cfg.Resilience.RetryMaxAttempts != 3 {
		t.Fatalf("resilience.retry_max_attempts = %d, want 3", cfg.Resilience.RetryMaxAttempts)
	}
}

func TestLoader_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
service:
  name: lesson-stream
sse:
  replay_limit: 250
  heartbeat_interval: 5s
`)

	cfg, err := NewLoader(path, "").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.Name != "lesson-stream" {
		t.Fatalf("service.name = %q, want lesson-stream", cfg.Service.Name)
	}
	if cfg.SSE.ReplayLimit != 250 {
		t.Fatalf("sse.replay_limit = %d, want 250", cfg.SSE.ReplayLimit)
	}
	if cfg.SSE.HeartbeatInterval != 5*time.Second {
		t.Fatalf("sse.heartbeat_interval = %v, want 5s", cfg.SSE.HeartbeatInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.Addr != DefaultConfig().Server.Addr {
		t.Fatalf("server.addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
sse:
  replay_limit: 250
`)
	t.Setenv("FLUENTSTREAM_SSE_REPLAY_LIMIT", "500")
	t.Setenv("FLUENTSTREAM_LOGGING_LEVEL", "debug")

	cfg, err := NewLoader(path, "FLUENTSTREAM").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SSE.ReplayLimit != 500 {
		t.Fatalf("sse.replay_limit = %d, want env override 500", cfg.SSE.ReplayLimit)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging.level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	if _, err := NewLoader("/nonexistent/config.yaml", "").Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoader_ValidationFailure(t *testing.T) {
	path := writeConfigFile(t, `
sse:
  store: redis
`)
	if _, err := NewLoader(path, "").Load(); err == nil {
		t.Fatal("expected validation error: redis store without url")
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"empty service name", func(c *Config) { c.Service.Name = "" }, true},
		{"empty server addr", func(c *Config) { c.Server.Addr = "" }, true},
		{"same addr for both servers", func(c *Config) { c.Server.ManagementAddr = c.Server.Addr }, true},
		{"zero replay limit", func(c *Config) { c.SSE.ReplayLimit = 0 }, true},
		{"zero heartbeat", func(c *Config) { c.SSE.HeartbeatInterval = 0 }, true},
		{"unknown store", func(c *Config) { c.SSE.Store = "mysql" }, true},
		{"redis store without url", func(c *Config) { c.SSE.Store = "redis" }, true},
		{"redis store with url", func(c *Config) {
			c.SSE.Store = "redis"
			c.SSE.Redis.URL = "redis://localhost:6379/0"
		}, false},
		{"unknown bus", func(c *Config) { c.SSE.Bus = "kafka" }, true},
		{"redis bus without url", func(c *Config) { c.SSE.Bus = "redis" }, true},
		{"memory bus", func(c *Config) { c.SSE.Bus = "memory" }, false},
		{"zero retry attempts", func(c *Config) { c.Resilience.RetryMaxAttempts = 0 }, true},
		{"zero breaker threshold", func(c *Config) { c.Resilience.BreakerFailureThreshold = 0 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
