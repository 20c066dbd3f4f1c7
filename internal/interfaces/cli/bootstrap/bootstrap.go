// Package bootstrap loads configuration and opens the shared connections for
// every command.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/bookwise-inc/bookwise/internal/infrastructure/config"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/database"
	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

type Runtime struct {
	Env    string
	Config *config.Config
	Log    logger.Interface
	DB     *gorm.DB
	Redis  *redis.Client
}

// LoadConfig reads the configuration and initializes the logger and the
// business timezone.
func LoadConfig(env, configPath string) (*config.Config, logger.Interface, error) {
	cfg, err := config.Load(env, configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&cfg.Logger); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := biztime.Init(cfg.Billing.Timezone); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize business timezone: %w", err)
	}
	return cfg, logger.NewLogger(), nil
}

// Open loads the configuration and connects to the database and, when
// withRedis is set, to Redis.
func Open(env, configPath string, withRedis bool) (*Runtime, error) {
	cfg, log, err := LoadConfig(env, configPath)
	if err != nil {
		return nil, err
	}

	if err := database.Init(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rt := &Runtime{Env: env, Config: cfg, Log: log, DB: database.Get()}
	if withRedis {
		rt.Redis, err = connectRedis(cfg, log)
		if err != nil {
			_ = database.Close()
			return nil, err
		}
	}
	return rt, nil
}

// connectRedis returns nil without error when Redis is down and nothing in
// the configuration strictly needs it.
func connectRedis(cfg *config.Config, log logger.Interface) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if cfg.Billing.DistributedLock {
			return nil, fmt.Errorf("failed to connect to Redis (required by billing.distributed_lock): %w", err)
		}
		log.Warnw("Redis unavailable, continuing with in-process locks and idempotency",
			"addr", cfg.Redis.GetAddr(), "error", err)
		return nil, nil
	}
	log.Infow("Redis connection established successfully", "addr", cfg.Redis.GetAddr())
	return client, nil
}

func (r *Runtime) Close() {
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			r.Log.Warnw("failed to close redis", "error", err)
		}
	}
	if err := database.Close(); err != nil {
		r.Log.Warnw("failed to close database", "error", err)
	}
}
