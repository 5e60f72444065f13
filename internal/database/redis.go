package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/glassyams/ams/internal/config"
)

// sessionClientName tags the connection in CLIENT LIST so operators can
// tell session traffic apart on a shared Redis.
const sessionClientName = "ams-sessions"

// NewRedis creates the client behind the session store and waits until
// Redis answers. Sessions are read on every request, so the pool size is
// configurable; everything else comes from REDIS_URL.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	opts.ClientName = sessionClientName
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := waitReady(ctx, "redis", cfg.ConnectRetries, ping); err != nil {
		_ = client.Close()
		return nil, err
	}

	slog.Info("redis session store ready",
		slog.String("addr", opts.Addr),
		slog.Int("db", opts.DB),
		slog.Int("pool_size", opts.PoolSize),
	)
	return client, nil
}
