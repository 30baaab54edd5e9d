package config

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/memory"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/redis"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

// Store holds CLI flags for the key/value store backend configuration
type Store struct {
	backend   string
	url       string
	password  string
	poolSize  int
	opTimeout time.Duration
}

// Flags returns CLI flags for store configuration
func (s *Store) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store-backend",
			Usage:       "Store backend type (redis or memory)",
			Value:       "redis",
			Sources:     cli.EnvVars("MNEMOSYNE_STORE_BACKEND"),
			Destination: &s.backend,
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Usage:       "Redis connection URL (required when using redis backend)",
			Value:       "redis://localhost:6379/0",
			Sources:     cli.EnvVars("MNEMOSYNE_REDIS_URL"),
			Destination: &s.url,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password (overrides the URL's credential)",
			Sources:     cli.EnvVars("MNEMOSYNE_REDIS_PASSWORD"),
			Destination: &s.password,
		},
		&cli.IntFlag{
			Name:        "redis-pool-size",
			Usage:       "Redis connection pool size",
			Sources:     cli.EnvVars("MNEMOSYNE_REDIS_POOL_SIZE"),
			Destination: &s.poolSize,
		},
		&cli.DurationFlag{
			Name:        "redis-op-timeout",
			Usage:       "Per-operation read/write timeout for the redis backend",
			Sources:     cli.EnvVars("MNEMOSYNE_REDIS_OP_TIMEOUT"),
			Destination: &s.opTimeout,
		},
	}
}

// Backend returns the configured backend type
func (s *Store) Backend() string {
	return s.backend
}

// Configure initializes and returns a store based on the configured
// backend. The caller is responsible for calling Close() on the returned
// store.
func (s *Store) Configure(ctx context.Context) (interfaces.KVStore, error) {
	backend, err := types.ParseStoreBackend(s.backend)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidStoreBackend, "unknown backend", goerr.V("backend", s.backend))
	}

	switch backend {
	case types.StoreBackendRedis:
		if s.url == "" {
			return nil, goerr.Wrap(ErrInvalidStoreBackend, "redis-url is required when using redis backend")
		}
		store, err := redis.New(ctx, redis.Config{
			URL:       s.url,
			Password:  s.password,
			PoolSize:  s.poolSize,
			OpTimeout: s.opTimeout,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize redis store")
		}
		logging.Default().Info("Using redis store")
		return store, nil

	case types.StoreBackendMemory:
		logging.Default().Info("Using in-memory store (development mode)")
		return memory.New(), nil

	default:
		return nil, goerr.Wrap(ErrInvalidStoreBackend, "unknown backend", goerr.V("backend", s.backend))
	}
}
