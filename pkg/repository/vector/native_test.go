package vector_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/vector"
)

// Native backend tests need a server with RediSearch loaded (e.g. a
// redis-stack container); plain redis and miniredis do not support FT.*
// commands.
func newNative(t *testing.T) *vector.Native {
	t.Helper()

	url := os.Getenv("TEST_REDIS_SEARCH_URL")
	if url == "" {
		t.Skip("TEST_REDIS_SEARCH_URL not set")
	}

	opts, err := goredis.ParseURL(url)
	gt.NoError(t, err).Required()
	rdb := goredis.NewClient(opts)
	gt.NoError(t, rdb.Ping(context.Background()).Err()).Required()
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return vector.NewNative(rdb)
}

func TestNativeKNNSearch(t *testing.T) {
	backend := newNative(t)
	ctx := context.Background()

	index := fmt.Sprintf("test-idx-%d", time.Now().UnixNano())
	tag := fmt.Sprintf("ch-%d", time.Now().UnixNano())

	gt.NoError(t, backend.CreateIndex(ctx, index, 2)).Required()
	gt.NoError(t, backend.CreateIndex(ctx, index, 2)) // idempotent

	gt.NoError(t, backend.AddVector(ctx, index, &model.VectorEntry{
		Key: "exact", Vector: []float32{1, 0}, Content: "exact match", Tag: tag,
	})).Required()
	gt.NoError(t, backend.AddVector(ctx, index, &model.VectorEntry{
		Key: "orthogonal", Vector: []float32{0, 1}, Content: "unrelated", Tag: tag,
	})).Required()

	// RediSearch indexes asynchronously
	time.Sleep(500 * time.Millisecond)

	hits, err := backend.KNNSearch(ctx, index, []float32{1, 0}, 2, tag)
	gt.NoError(t, err).Required()
	gt.Array(t, hits).Length(2)

	gt.Value(t, hits[0].Key).Equal("exact")
	gt.Value(t, hits[0].Content).Equal("exact match")
	gt.Bool(t, hits[0].Score > 0.99).True()
	gt.Bool(t, hits[1].Score < 0.01).True()
}

func TestNativeCreateIndexDimensionMismatch(t *testing.T) {
	backend := newNative(t)
	ctx := context.Background()

	index := fmt.Sprintf("test-idx-%d", time.Now().UnixNano())

	gt.NoError(t, backend.CreateIndex(ctx, index, 3)).Required()
	gt.NoError(t, backend.CreateIndex(ctx, index, 3)) // same dimensionality is a no-op

	// Re-creating with a different dimensionality must be rejected and
	// must leave the recorded dimensionality untouched.
	err := backend.CreateIndex(ctx, index, 5)
	gt.Value(t, err).NotNil()
	gt.Bool(t, errors.Is(err, types.ErrInvalidVector)).True()

	err = backend.AddVector(ctx, index, &model.VectorEntry{
		Key: "still3d", Vector: []float32{1, 0, 0}, Tag: "t",
	})
	gt.NoError(t, err)
}

func TestNativeRangeSearch(t *testing.T) {
	backend := newNative(t)
	ctx := context.Background()

	index := fmt.Sprintf("test-idx-%d", time.Now().UnixNano())
	tag := fmt.Sprintf("ch-%d", time.Now().UnixNano())

	gt.NoError(t, backend.CreateIndex(ctx, index, 2)).Required()
	gt.NoError(t, backend.AddVector(ctx, index, &model.VectorEntry{
		Key: "exact", Vector: []float32{1, 0}, Tag: tag,
	})).Required()
	gt.NoError(t, backend.AddVector(ctx, index, &model.VectorEntry{
		Key: "orthogonal", Vector: []float32{0, 1}, Tag: tag,
	})).Required()

	time.Sleep(500 * time.Millisecond)

	hits, err := backend.RangeSearch(ctx, index, []float32{1, 0}, 0.9, tag)
	gt.NoError(t, err).Required()
	gt.Array(t, hits).Length(1)
	gt.Value(t, hits[0].Key).Equal("exact")
}
