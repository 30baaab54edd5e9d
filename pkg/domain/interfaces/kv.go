package interfaces

import (
	"context"
	"time"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
)

// SubscribeHandler is invoked for each message received on a subscribed
// channel. Delivery is at-most-once and unordered across subscribers.
type SubscribeHandler func(ctx context.Context, value model.Value)

// UpdateFn computes the new value for a check-and-set update from the
// current one. exists is false when the key is absent. The function must
// be pure: it may be invoked more than once on conflict retries.
type UpdateFn func(current model.Value, exists bool) (model.Value, error)

// KVStore is a TTL-aware key/value/list/set/hash store over a remote
// in-memory database. All write paths serialize through model.Value so
// the same accessors work for structured and scalar payloads; reads that
// fail structured decoding are returned as raw text.
//
// Absence is not an error: Get and HashGet return a zero Value with
// ok=false. Transient network errors are retried at the connection layer
// only; callers retry idempotent operations themselves.
type KVStore interface {
	// Set stores a value. ttl <= 0 means the key never expires.
	Set(ctx context.Context, key string, value model.Value, ttl time.Duration) error
	Get(ctx context.Context, key string) (model.Value, bool, error)
	// Delete is a no-op if the key does not exist.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	ListPush(ctx context.Context, key string, values ...model.Value) error
	// ListRange follows Redis LRANGE semantics: start/stop are inclusive
	// and may be negative to index from the tail.
	ListRange(ctx context.Context, key string, start, stop int64) ([]model.Value, error)
	ListLen(ctx context.Context, key string) (int64, error)

	SetAdd(ctx context.Context, key string, members ...model.Value) error
	SetRemove(ctx context.Context, key string, members ...model.Value) error
	SetMembers(ctx context.Context, key string) ([]model.Value, error)

	HashSet(ctx context.Context, key, field string, value model.Value) error
	HashGet(ctx context.Context, key, field string) (model.Value, bool, error)
	HashGetAll(ctx context.Context, key string) (map[string]model.Value, error)
	HashDelete(ctx context.Context, key string, fields ...string) error

	Publish(ctx context.Context, channel string, value model.Value) error
	// Subscribe blocks in a receive loop until ctx is cancelled.
	Subscribe(ctx context.Context, channel string, handler SubscribeHandler) error

	// SetNX stores the value only if the key is absent, returning whether
	// the write happened.
	SetNX(ctx context.Context, key string, value model.Value, ttl time.Duration) (bool, error)
	// UpdateTx performs a single optimistic check-and-set attempt and
	// returns types.ErrTxConflict when another writer got in between.
	// ttl <= 0 preserves the key's existing expiry.
	UpdateTx(ctx context.Context, key string, ttl time.Duration, fn UpdateFn) error
	// CompareAndDelete removes the key only if its current value equals
	// expected, returning whether the delete happened.
	CompareAndDelete(ctx context.Context, key string, expected model.Value) (bool, error)

	Close() error
}
