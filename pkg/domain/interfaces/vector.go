package interfaces

import (
	"context"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
)

// VectorBackend stores embeddings and answers similarity queries. Scores
// are similarities (higher = more similar) in every implementation;
// backends built on distance metrics normalize at their own boundary.
type VectorBackend interface {
	// CreateIndex provisions an index with a fixed dimensionality. It is
	// idempotent: creating an existing index is a no-op.
	CreateIndex(ctx context.Context, name string, dimensions int) error

	// AddVector stores an entry. The vector must match the index's
	// declared dimensionality (types.ErrInvalidVector otherwise).
	AddVector(ctx context.Context, index string, entry *model.VectorEntry) error

	// KNNSearch returns up to topK entries sharing tag, ordered by
	// descending similarity to the query vector.
	KNNSearch(ctx context.Context, index string, query []float32, topK int, tag string) ([]model.VectorHit, error)

	// RangeSearch returns all entries sharing tag whose similarity to the
	// query is at least radius, ordered by descending similarity.
	RangeSearch(ctx context.Context, index string, query []float32, radius float64, tag string) ([]model.VectorHit, error)
}
