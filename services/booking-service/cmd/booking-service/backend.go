package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memstore"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/postgres"
	"github.com/redis/go-redis/v9"
)

type backend struct {
	store  storage.Store
	outbox outbox.Store
	inbox  inbox.Store
	close  func()
}

// openBackend picks Postgres when DATABASE_URL is set and the in-memory store otherwise.
func openBackend(ctx context.Context, logger *slog.Logger) (backend, error) {
	lockTimeout := time.Duration(config.Int("STORE_LOCK_TIMEOUT_MS", 2000)) * time.Millisecond

	dbURL := config.String("DATABASE_URL", "")
	if dbURL == "" {
		mem := memstore.New(memstore.WithLockTimeout(lockTimeout))
		if path := config.String("SEED_FILE", ""); path != "" {
			if err := memstore.LoadFixtureFile(mem, path); err != nil {
				return backend{}, err
			}
			logger.Info("memory store seeded", "path", path)
		}
		logger.Warn("DATABASE_URL not set; using in-memory store")
		return backend{store: mem, outbox: mem, inbox: inbox.NewMemory(), close: func() {}}, nil
	}

	pool, err := db.Open(ctx, dbURL, db.PoolConfig{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		return backend{}, err
	}
	if config.Bool("DB_MIGRATE", true) {
		if err := postgres.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return backend{}, err
		}
	}
	return backend{
		store:  postgres.New(pool, lockTimeout),
		outbox: outbox.NewRepository(pool),
		inbox:  inbox.NewRepository(pool),
		close:  pool.Close,
	}, nil
}

// newRateLimiter limits requests per client. With REDIS_ADDR the window is shared across
// replicas; otherwise each replica keeps its own token buckets.
func newRateLimiter(logger *slog.Logger) (httpx.Middleware, *runtime.ReadyCheck) {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		return httpx.NewRateLimiter(perMinute, time.Minute, httpx.ClientKey).Middleware(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "booking:rl", httpx.ClientKey)
	check := runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), &check
}
