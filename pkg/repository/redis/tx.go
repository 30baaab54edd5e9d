package redis

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
)

// compareAndDeleteScript deletes the key only when its value matches the
// expected one, atomically. Used for verified lock release.
var compareAndDeleteScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *Client) SetNX(ctx context.Context, key string, value model.Value, ttl time.Duration) (bool, error) {
	if err := c.guard(); err != nil {
		return false, err
	}
	if ttl < 0 {
		ttl = 0
	}
	ok, err := c.rdb.SetNX(ctx, key, value.Encode(), ttl).Result()
	if err != nil {
		return false, goerr.Wrap(err, "failed to set key if absent", goerr.V("key", key))
	}
	return ok, nil
}

// UpdateTx performs a single optimistic check-and-set attempt using
// WATCH/MULTI/EXEC. The commit fails with types.ErrTxConflict when
// another writer touched the key between read and commit; retry policy
// belongs to the caller (see service/concurrency).
func (c *Client) UpdateTx(ctx context.Context, key string, ttl time.Duration, fn interfaces.UpdateFn) error {
	if err := c.guard(); err != nil {
		return err
	}

	err := c.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		var current model.Value
		exists := true

		raw, err := tx.Get(ctx, key).Result()
		if err == goredis.Nil {
			exists = false
		} else if err != nil {
			return goerr.Wrap(err, "failed to read key", goerr.V("key", key))
		} else {
			current = model.DecodeWire(raw)
		}

		next, err := fn(current, exists)
		if err != nil {
			return err
		}

		expiry := time.Duration(goredis.KeepTTL)
		if ttl > 0 {
			expiry = ttl
		} else if !exists {
			expiry = 0
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, next.Encode(), expiry)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, goredis.TxFailedErr) {
		return goerr.Wrap(types.ErrTxConflict, "key changed between read and commit", goerr.V("key", key))
	}
	if err != nil {
		return err
	}
	return nil
}

func (c *Client) CompareAndDelete(ctx context.Context, key string, expected model.Value) (bool, error) {
	if err := c.guard(); err != nil {
		return false, err
	}
	n, err := compareAndDeleteScript.Run(ctx, c.rdb, []string{key}, expected.Encode()).Int()
	if err != nil {
		return false, goerr.Wrap(err, "failed to compare-and-delete key", goerr.V("key", key))
	}
	return n > 0, nil
}
