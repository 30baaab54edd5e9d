package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/m-mizutani/gt"

	"github.com/mnemo-lab/mnemosyne/pkg/cli/config"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/memory"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/redis"
)

func TestStore_Configure(t *testing.T) {
	t.Run("memory backend", func(t *testing.T) {
		cfg := config.NewStoreForTest("memory", "")
		store, err := cfg.Configure(context.Background())
		gt.NoError(t, err).Required()
		defer store.Close()

		_, ok := store.(*memory.Client)
		gt.Bool(t, ok).True()
	})

	t.Run("redis backend connects to the configured URL", func(t *testing.T) {
		mr := miniredis.RunT(t)

		cfg := config.NewStoreForTest("redis", "redis://"+mr.Addr())
		store, err := cfg.Configure(context.Background())
		gt.NoError(t, err).Required()
		defer store.Close()

		_, ok := store.(*redis.Client)
		gt.Bool(t, ok).True()
	})

	t.Run("redis backend requires a URL", func(t *testing.T) {
		cfg := config.NewStoreForTest("redis", "")
		_, err := cfg.Configure(context.Background())
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, config.ErrInvalidStoreBackend)).True()
	})

	t.Run("unknown backend is rejected", func(t *testing.T) {
		cfg := config.NewStoreForTest("etcd", "")
		_, err := cfg.Configure(context.Background())
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, config.ErrInvalidStoreBackend)).True()
	})
}

func TestStore_Flags(t *testing.T) {
	var cfg config.Store
	gt.Value(t, len(cfg.Flags())).Equal(5)
}
