package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
)

// DefaultDimension is the embedding vector size used when configuration
// does not override it.
const DefaultDimension = 768

// Service wraps the LLM client's embedding endpoint. A nil client is a
// valid state meaning embeddings are not configured: calls fail with
// types.ErrNotConfigured, which callers treat as "skip vector grounding",
// never as a store outage.
type Service struct {
	client    gollem.LLMClient
	dimension int
}

// New creates an embedding service. client may be nil when no embedding
// provider is configured.
func New(client gollem.LLMClient, dimension int) *Service {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Service{client: client, dimension: dimension}
}

// Enabled reports whether an embedding provider is configured
func (s *Service) Enabled() bool {
	return s.client != nil
}

// Dimension returns the vector size this service produces
func (s *Service) Dimension() int {
	return s.dimension
}

// Embed generates a float32 embedding for the text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.client == nil {
		return nil, goerr.Wrap(types.ErrNotConfigured, "embedding provider is not configured")
	}

	embeddings, err := s.client.GenerateEmbedding(ctx, s.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, goerr.New("embedding generation returned empty result")
	}

	embedding64 := embeddings[0]
	embedding32 := make([]float32, len(embedding64))
	for i, v := range embedding64 {
		embedding32[i] = float32(v)
	}
	return embedding32, nil
}

// FuseAverage combines embeddings of a message's parts (text plus
// attachment descriptions) by element-wise averaging. This is a
// deliberate low-fidelity fusion policy kept explicit here so it can be
// swapped without touching the retrieval contract.
func FuseAverage(vectors ...[]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, goerr.New("no vectors to fuse")
	}

	dim := len(vectors[0])
	for _, v := range vectors[1:] {
		if len(v) != dim {
			return nil, goerr.Wrap(types.ErrInvalidVector, "cannot fuse vectors of differing dimensionality",
				goerr.V("expected", dim), goerr.V("got", len(v)))
		}
	}

	fused := make([]float32, dim)
	for _, v := range vectors {
		for i, f := range v {
			fused[i] += f
		}
	}
	n := float32(len(vectors))
	for i := range fused {
		fused[i] /= n
	}
	return fused, nil
}
