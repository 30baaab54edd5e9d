package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/memory"
)

// fakeClock is a controllable wall clock for TTL tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTTLExpiry(t *testing.T) {
	t.Run("expired key is logically absent", func(t *testing.T) {
		clock := newFakeClock()
		store := memory.New(memory.WithClock(clock.Now))
		ctx := context.Background()

		gt.NoError(t, store.Set(ctx, "session", model.Text("data"), 10*time.Minute)).Required()

		clock.Advance(9 * time.Minute)
		_, ok, err := store.Get(ctx, "session")
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()

		clock.Advance(2 * time.Minute)
		_, ok, err = store.Get(ctx, "session")
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).False()
	})

	t.Run("expired keys are excluded from Keys", func(t *testing.T) {
		clock := newFakeClock()
		store := memory.New(memory.WithClock(clock.Now))
		ctx := context.Background()

		gt.NoError(t, store.Set(ctx, "a:1", model.Text("x"), time.Minute)).Required()
		gt.NoError(t, store.Set(ctx, "a:2", model.Text("y"), time.Hour)).Required()

		clock.Advance(2 * time.Minute)

		keys, err := store.Keys(ctx, "a:*")
		gt.NoError(t, err).Required()
		gt.Array(t, keys).Length(1)
		gt.Value(t, keys[0]).Equal("a:2")
	})

	t.Run("Expire with non-positive ttl removes the expiry", func(t *testing.T) {
		clock := newFakeClock()
		store := memory.New(memory.WithClock(clock.Now))
		ctx := context.Background()

		gt.NoError(t, store.Set(ctx, "k", model.Text("v"), time.Minute)).Required()

		ok, err := store.Expire(ctx, "k", 0)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()

		clock.Advance(time.Hour)
		_, ok, err = store.Get(ctx, "k")
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()
	})

	t.Run("Expire reports false when there is no expiry to remove", func(t *testing.T) {
		store := memory.New()
		ctx := context.Background()

		gt.NoError(t, store.Set(ctx, "k", model.Text("v"), 0)).Required()

		ok, err := store.Expire(ctx, "k", 0)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).False()
	})

	t.Run("SetNX can reclaim an expired key", func(t *testing.T) {
		clock := newFakeClock()
		store := memory.New(memory.WithClock(clock.Now))
		ctx := context.Background()

		ok, err := store.SetNX(ctx, "lease", model.Text("first"), time.Minute)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()

		clock.Advance(2 * time.Minute)

		ok, err = store.SetNX(ctx, "lease", model.Text("second"), time.Minute)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()
	})
}

func TestPurgeExpired(t *testing.T) {
	clock := newFakeClock()
	store := memory.New(memory.WithClock(clock.Now))
	ctx := context.Background()

	gt.NoError(t, store.Set(ctx, "short", model.Text("a"), time.Minute)).Required()
	gt.NoError(t, store.Set(ctx, "long", model.Text("b"), time.Hour)).Required()
	gt.NoError(t, store.Set(ctx, "forever", model.Text("c"), 0)).Required()

	gt.Value(t, store.PurgeExpired(ctx)).Equal(0)

	clock.Advance(30 * time.Minute)
	gt.Value(t, store.PurgeExpired(ctx)).Equal(1)

	// Purged key is gone, others remain
	_, ok, err := store.Get(ctx, "short")
	gt.NoError(t, err).Required()
	gt.Bool(t, ok).False()

	_, ok, err = store.Get(ctx, "long")
	gt.NoError(t, err).Required()
	gt.Bool(t, ok).True()
}

func TestUpdateTxConflict(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	gt.NoError(t, store.Set(ctx, "contested", model.Text("base"), 0)).Required()

	// A writer sneaking in between read and commit must surface
	// ErrTxConflict, never a silent overwrite.
	err := store.UpdateTx(ctx, "contested", 0, func(current model.Value, exists bool) (model.Value, error) {
		gt.NoError(t, store.Set(ctx, "contested", model.Text("interloper"), 0)).Required()
		return model.Text("loser"), nil
	})
	gt.Value(t, err).NotNil()
	gt.Bool(t, errors.Is(err, types.ErrTxConflict)).True()

	got, _, err := store.Get(ctx, "contested")
	gt.NoError(t, err).Required()
	gt.Value(t, got.Text()).Equal("interloper")
}

func TestUpdateTxDeleteRecreateConflict(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	gt.NoError(t, store.Set(ctx, "contested", model.Text("base"), 0)).Required()

	// Deleting and recreating the key between read and commit must also
	// conflict, even though the key exists again at commit time.
	err := store.UpdateTx(ctx, "contested", 0, func(current model.Value, exists bool) (model.Value, error) {
		gt.NoError(t, store.Delete(ctx, "contested")).Required()
		gt.NoError(t, store.Set(ctx, "contested", model.Text("recreated"), 0)).Required()
		return model.Text("loser"), nil
	})
	gt.Value(t, err).NotNil()
	gt.Bool(t, errors.Is(err, types.ErrTxConflict)).True()

	got, _, err := store.Get(ctx, "contested")
	gt.NoError(t, err).Required()
	gt.Value(t, got.Text()).Equal("recreated")
}

func TestWrongKind(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	gt.NoError(t, store.Set(ctx, "plain", model.Text("x"), 0)).Required()

	err := store.ListPush(ctx, "plain", model.Text("y"))
	gt.Value(t, err).NotNil()
	gt.Bool(t, errors.Is(err, memory.ErrWrongKind)).True()

	_, err = store.SetMembers(ctx, "plain")
	gt.Value(t, err).NotNil()
	gt.Bool(t, errors.Is(err, memory.ErrWrongKind)).True()

	gt.NoError(t, store.ListPush(ctx, "list", model.Text("a"))).Required()
	_, _, err = store.Get(ctx, "list")
	gt.Value(t, err).NotNil()
	gt.Bool(t, errors.Is(err, memory.ErrWrongKind)).True()
}

func TestPublishWithoutSubscribers(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// At-most-once delivery: publishing into the void is not an error
	gt.NoError(t, store.Publish(ctx, "nobody-listening", model.Text("ping")))
}
