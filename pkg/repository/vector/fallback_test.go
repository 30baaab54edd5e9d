package vector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/memory"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/vector"
)

const testIndex = "memories"

func newFallback(t *testing.T) interfaces.VectorBackend {
	t.Helper()
	return vector.NewFallback(memory.New())
}

func addEntry(t *testing.T, backend interfaces.VectorBackend, key string, vec []float32, content, tag string) {
	t.Helper()
	err := backend.AddVector(context.Background(), testIndex, &model.VectorEntry{
		Key:     key,
		Vector:  vec,
		Content: content,
		Tag:     tag,
	})
	gt.NoError(t, err).Required()
}

func TestCreateIndex(t *testing.T) {
	t.Run("creation is idempotent", func(t *testing.T) {
		backend := newFallback(t)
		ctx := context.Background()

		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 4)).Required()
		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 4))
	})

	t.Run("dimensionality change is rejected", func(t *testing.T) {
		backend := newFallback(t)
		ctx := context.Background()

		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 4)).Required()

		err := backend.CreateIndex(ctx, testIndex, 8)
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, types.ErrInvalidVector)).True()
	})

	t.Run("non-positive dimensions are rejected", func(t *testing.T) {
		backend := newFallback(t)

		err := backend.CreateIndex(context.Background(), testIndex, 0)
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, types.ErrInvalidVector)).True()
	})
}

func TestAddVector(t *testing.T) {
	t.Run("rejects vector with wrong dimensionality", func(t *testing.T) {
		backend := newFallback(t)
		ctx := context.Background()

		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 4)).Required()

		err := backend.AddVector(ctx, testIndex, &model.VectorEntry{
			Key:    "bad",
			Vector: []float32{1, 0},
			Tag:    "ch",
		})
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, types.ErrInvalidVector)).True()
	})

	t.Run("rejects write to missing index", func(t *testing.T) {
		backend := newFallback(t)

		err := backend.AddVector(context.Background(), "nonexistent", &model.VectorEntry{
			Key:    "k",
			Vector: []float32{1, 0},
			Tag:    "ch",
		})
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, types.ErrIndexNotFound)).True()
	})
}

func TestKNNSearch(t *testing.T) {
	t.Run("identical vector scores highest", func(t *testing.T) {
		backend := newFallback(t)
		ctx := context.Background()

		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 2)).Required()
		addEntry(t, backend, "exact", []float32{1, 0}, "exact match", "ch")
		addEntry(t, backend, "orthogonal", []float32{0, 1}, "unrelated", "ch")

		hits, err := backend.KNNSearch(ctx, testIndex, []float32{1, 0}, 2, "ch")
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(2)

		gt.Value(t, hits[0].Key).Equal("exact")
		gt.Bool(t, hits[0].Score > 0.999).True()
		gt.Bool(t, hits[1].Score < 0.001).True()
	})

	t.Run("results are ordered by descending similarity", func(t *testing.T) {
		backend := newFallback(t)
		ctx := context.Background()

		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 3)).Required()
		addEntry(t, backend, "far", []float32{0, 1, 0}, "", "ch")
		addEntry(t, backend, "near", []float32{0.9, 0.1, 0}, "", "ch")
		addEntry(t, backend, "nearest", []float32{1, 0, 0}, "", "ch")

		hits, err := backend.KNNSearch(ctx, testIndex, []float32{1, 0, 0}, 3, "ch")
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(3)
		gt.Value(t, hits[0].Key).Equal("nearest")
		gt.Value(t, hits[1].Key).Equal("near")
		gt.Value(t, hits[2].Key).Equal("far")
	})

	t.Run("tag filter scopes results to the channel", func(t *testing.T) {
		backend := newFallback(t)
		ctx := context.Background()

		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 2)).Required()
		addEntry(t, backend, "mine", []float32{1, 0}, "", "channel-a")
		addEntry(t, backend, "theirs", []float32{1, 0}, "", "channel-b")

		hits, err := backend.KNNSearch(ctx, testIndex, []float32{1, 0}, 10, "channel-a")
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1)
		gt.Value(t, hits[0].Key).Equal("mine")
	})

	t.Run("topK bounds the result set", func(t *testing.T) {
		backend := newFallback(t)
		ctx := context.Background()

		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 2)).Required()
		for _, key := range []string{"a", "b", "c", "d", "e"} {
			addEntry(t, backend, key, []float32{1, 0}, "", "ch")
		}

		hits, err := backend.KNNSearch(ctx, testIndex, []float32{1, 0}, 3, "ch")
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(3)
	})

	t.Run("query dimensionality is validated", func(t *testing.T) {
		backend := newFallback(t)
		ctx := context.Background()

		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 4)).Required()

		_, err := backend.KNNSearch(ctx, testIndex, []float32{1, 0}, 5, "ch")
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, types.ErrInvalidVector)).True()
	})

	t.Run("missing index surfaces ErrIndexNotFound", func(t *testing.T) {
		backend := newFallback(t)

		_, err := backend.KNNSearch(context.Background(), "ghost", []float32{1, 0}, 5, "ch")
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, types.ErrIndexNotFound)).True()
	})

	t.Run("updated entry keeps a single record", func(t *testing.T) {
		backend := newFallback(t)
		ctx := context.Background()

		gt.NoError(t, backend.CreateIndex(ctx, testIndex, 2)).Required()
		addEntry(t, backend, "doc", []float32{1, 0}, "first", "ch")
		addEntry(t, backend, "doc", []float32{0, 1}, "second", "ch")

		hits, err := backend.KNNSearch(ctx, testIndex, []float32{0, 1}, 10, "ch")
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1)
		gt.Value(t, hits[0].Content).Equal("second")
	})
}

func TestRangeSearch(t *testing.T) {
	backend := newFallback(t)
	ctx := context.Background()

	gt.NoError(t, backend.CreateIndex(ctx, testIndex, 2)).Required()
	addEntry(t, backend, "exact", []float32{1, 0}, "", "ch")
	addEntry(t, backend, "close", []float32{0.9, 0.1}, "", "ch")
	addEntry(t, backend, "orthogonal", []float32{0, 1}, "", "ch")

	hits, err := backend.RangeSearch(ctx, testIndex, []float32{1, 0}, 0.9, "ch")
	gt.NoError(t, err).Required()
	gt.Array(t, hits).Length(2)
	gt.Value(t, hits[0].Key).Equal("exact")
	gt.Value(t, hits[1].Key).Equal("close")

	// Only an exact match clears a radius of 1.0
	hits, err = backend.RangeSearch(ctx, testIndex, []float32{1, 0}, 0.9999, "ch")
	gt.NoError(t, err).Required()
	gt.Array(t, hits).Length(1)
	gt.Value(t, hits[0].Key).Equal("exact")
}
