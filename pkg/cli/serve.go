package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fluentstream/fluentstream/pkg/config"
	"github.com/fluentstream/fluentstream/pkg/health"
	"github.com/fluentstream/fluentstream/pkg/observability/logger"
	"github.com/fluentstream/fluentstream/pkg/observability/metrics"
	"github.com/fluentstream/fluentstream/pkg/realtime/sse"
	"github.com/fluentstream/fluentstream/pkg/resilience"
	"github.com/fluentstream/fluentstream/pkg/server"
	"github.com/fluentstream/fluentstream/pkg/version"
)

// runServe is the composition root: it builds the store, bus, manager,
// metrics, health checks, and both HTTP servers, then runs until ctx is
// canceled.
func runServe(ctx context.Context, cfg *config.Config, log *logger.ZapLogger) error {
	log.Info("starting service", "version", version.Current(serviceName).String())

	metricsRegistry := metrics.NewRegistry()
	streamMetrics, err := metrics.NewStreamMetrics(metricsRegistry, serviceName)
	if err != nil {
		return err
	}
	resilienceMetrics, err := metrics.NewResilienceMetrics(metricsRegistry, serviceName)
	if err != nil {
		return err
	}

	breakers := resilience.NewRegistry(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Resilience.BreakerFailureThreshold,
		RecoveryTimeout:  cfg.Resilience.BreakerRecoveryTimeout,
	}, log).WithMetrics(resilienceMetrics)
	retrier := resilience.NewRetrier(resilience.RetryConfig{
		MaxAttempts: cfg.Resilience.RetryMaxAttempts,
		Backoff:     cfg.Resilience.RetryBackoff,
		Exponential: cfg.Resilience.RetryExponential,
		MaxBackoff:  cfg.Resilience.RetryMaxBackoff,
	}, log).WithMetrics(resilienceMetrics)

	checks := health.NewRegistry()

	store, bus, err := buildBackends(cfg.SSE, checks, breakers, retrier)
	if err != nil {
		return err
	}

	manager := sse.NewManager(sse.ManagerConfig{
		InstanceID:         cfg.Service.InstanceID,
		MaxConnections:     cfg.SSE.MaxConnections,
		ClientBuffer:       cfg.SSE.ClientBuffer,
		ReplayLimit:        cfg.SSE.ReplayLimit,
		DropOnBackpressure: cfg.SSE.DropOnBackpressure,
		HeartbeatInterval:  cfg.SSE.HeartbeatInterval,
		DefaultRetryMS:     cfg.SSE.DefaultRetryMS,
	}, store, bus, log, streamMetrics)
	defer func() { _ = manager.Close() }()

	registerManagerCheck(checks, func() int { return len(manager.ActiveConnections()) })

	sseHandler, err := sse.NewHandler(sse.HandlerConfig{
		Manager: manager,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	public := server.NewPublicHandler(server.PublicConfig{
		PublishRPS:   cfg.Server.PublishRPS,
		PublishBurst: cfg.Server.PublishBurst,
	}, sseHandler, log)
	management := server.NewManagementHandler(cfg.Service.Name, checks, metricsRegistry)

	srv := server.New(server.Config{
		Addr:              cfg.Server.Addr,
		ManagementAddr:    cfg.Server.ManagementAddr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, public, management, log)

	return srv.Run(ctx)
}

// buildBackends selects the replay store and fan-out bus from config and
// registers their health checks. Redis-backed adapters are wrapped with
// the circuit breaker and retry loop; in-process backends are not, as
// they cannot fail transiently.
func buildBackends(cfg config.SSEConfig, checks *health.Registry, breakers *resilience.Registry, retrier *resilience.Retrier) (sse.Store, sse.Bus, error) {
	var store sse.Store
	switch cfg.Store {
	case "redis":
		redisStore, err := sse.NewRedisStore(sse.RedisStoreConfig{
			URL:              cfg.Redis.URL,
			Prefix:           cfg.Redis.Prefix + ":history",
			MaxSize:          int64(cfg.ReplayLimit),
			OperationTimeout: cfg.Redis.OperationTimeout,
			MaxConns:         cfg.Redis.MaxConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build redis store: %w", err)
		}
		checks.Register(health.NewAdapterChecker("redis_store", redisStore, 5*time.Second))
		store, err = sse.NewResilientStore(redisStore, "redis_store", breakers, retrier)
		if err != nil {
			return nil, nil, fmt.Errorf("wrap redis store: %w", err)
		}
	default:
		store = sse.NewInMemoryStore(cfg.ReplayLimit)
	}

	var bus sse.Bus
	switch cfg.Bus {
	case "redis":
		redisBus, err := sse.NewRedisBus(sse.RedisBusConfig{
			URL:              cfg.Redis.URL,
			Prefix:           cfg.Redis.Prefix + ":bus",
			OperationTimeout: cfg.Redis.OperationTimeout,
			MaxConns:         cfg.Redis.MaxConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build redis bus: %w", err)
		}
		checks.Register(health.NewAdapterChecker("redis_bus", redisBus, 5*time.Second))
		bus, err = sse.NewResilientBus(redisBus, "redis_bus", breakers, retrier)
		if err != nil {
			return nil, nil, fmt.Errorf("wrap redis bus: %w", err)
		}
	case "memory":
		bus = sse.NewInMemoryBus()
	}

	return store, bus, nil
}
