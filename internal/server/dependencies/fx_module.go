package dependencies

import (
	"context"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	"github.com/parrotgw/parrot/internal/cache"
	"github.com/parrotgw/parrot/internal/cache/hot"
	"github.com/parrotgw/parrot/internal/cache/index"
	"github.com/parrotgw/parrot/internal/embedding"
	"github.com/parrotgw/parrot/internal/fingerprint"
	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/pkg/httpclient"
	"github.com/parrotgw/parrot/internal/pkg/xredis"
	"github.com/parrotgw/parrot/internal/resilience"
	"github.com/parrotgw/parrot/internal/upstream"
)

// Module wires the cache core's collaborators: stores, embedder, breakers,
// executors, upstream registry.
var Module = fx.Module("dependencies",
	fx.Provide(log.New),
	fx.Provide(httpclient.NewHttpClient),
	fx.Provide(NewExecutors),
	fx.Provide(resilience.NewHealth),
	fx.Provide(NewHotStore),
	fx.Provide(NewIndexStore),
	fx.Provide(NewEmbedder),
	fx.Provide(NewCanonicalizer),
	fx.Provide(cache.NewEngine),
	fx.Provide(cache.NewSweepWorker),
	fx.Provide(upstream.NewRegistry),
	fx.Invoke(func(lc fx.Lifecycle, executor executors.ScheduledExecutor) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return executor.Shutdown(ctx)
			},
		})
	}),
)

// NewHotStore builds the configured hot tier. A nil store disables the exact
// tier.
func NewHotStore(cfg cache.Config) (hot.Store, error) {
	cfg = cfg.WithDefaults()

	switch cfg.Hot.Mode {
	case "redis":
		client, err := xredis.NewClient(cfg.Hot.Redis)
		if err != nil {
			return nil, err
		}

		return hot.NewRedisStore(client, cfg.Hot.CommandTimeout), nil
	case "", "memory":
		return hot.NewMemoryStore(cfg.Hot.Memory.Expiration, cfg.Hot.Memory.CleanupInterval), nil
	case "none":
		return nil, nil
	default:
		return hot.NewMemoryStore(cfg.Hot.Memory.Expiration, cfg.Hot.Memory.CleanupInterval), nil
	}
}

// NewIndexStore builds the configured indexed tier. A nil store disables the
// template tier.
func NewIndexStore(lc fx.Lifecycle, cfg cache.Config, embedder embedding.Embedder) (index.Store, error) {
	cfg = cfg.WithDefaults()

	switch cfg.Index.Mode {
	case "postgres":
		store, err := index.NewPostgresStore(context.Background(), index.PostgresConfig{
			DSN:              cfg.Index.DSN,
			Dim:              embedder.Dim(),
			StatementTimeout: cfg.Index.StatementTimeout,
			MaxConns:         cfg.Index.MaxConns,
		})
		if err != nil {
			return nil, err
		}

		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				store.Close()
				return nil
			},
		})

		return store, nil
	case "none":
		return nil, nil
	default:
		return index.NewMemoryStore(), nil
	}
}

// NewEmbedder builds the embedding client; without a base URL the noop
// embedder keeps the gateway in structural-only template matching.
func NewEmbedder(cfg embedding.Config, hc *httpclient.HttpClient) embedding.Embedder {
	if cfg.BaseURL == "" {
		return embedding.NewNoop()
	}

	return embedding.NewClient(cfg, hc)
}

// NewCanonicalizer builds the canonicalizer with the configured digest secret.
func NewCanonicalizer(cfg cache.Config) *fingerprint.Canonicalizer {
	var secret []byte
	if cfg.HMACSecret != "" {
		secret = []byte(cfg.HMACSecret)
	}

	return fingerprint.NewCanonicalizer(secret)
}
