package usecase

import (
	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/service/concurrency"
	"github.com/mnemo-lab/mnemosyne/pkg/service/embedding"
	memsvc "github.com/mnemo-lab/mnemosyne/pkg/service/memory"
	"github.com/mnemo-lab/mnemosyne/pkg/service/shortterm"
)

// DefaultIndexName is the vector index holding conversation embeddings
const DefaultIndexName = "memories"

type UseCases struct {
	store     interfaces.KVStore
	memories  *memsvc.Service
	shortTerm *shortterm.Service
	vectors   interfaces.VectorBackend
	embedder  *embedding.Service
	locks     *concurrency.Service
	indexName string
}

type Option func(*UseCases)

// WithShortTerm replaces the default short-term memory service
func WithShortTerm(s *shortterm.Service) Option {
	return func(uc *UseCases) {
		uc.shortTerm = s
	}
}

// WithVectors enables similarity recall through the given backend
func WithVectors(backend interfaces.VectorBackend) Option {
	return func(uc *UseCases) {
		uc.vectors = backend
	}
}

// WithEmbedder sets the embedding provider
func WithEmbedder(e *embedding.Service) Option {
	return func(uc *UseCases) {
		uc.embedder = e
	}
}

// WithIndexName overrides the vector index name
func WithIndexName(name string) Option {
	return func(uc *UseCases) {
		if name != "" {
			uc.indexName = name
		}
	}
}

func New(store interfaces.KVStore, opts ...Option) *UseCases {
	uc := &UseCases{
		store:     store,
		memories:  memsvc.New(store),
		locks:     concurrency.New(store),
		indexName: DefaultIndexName,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.shortTerm == nil {
		uc.shortTerm = shortterm.New()
	}
	if uc.embedder == nil {
		uc.embedder = embedding.New(nil, 0)
	}

	return uc
}

// Store exposes the backing key/value store
func (uc *UseCases) Store() interfaces.KVStore {
	return uc.store
}

// Memories exposes the durable memory service
func (uc *UseCases) Memories() *memsvc.Service {
	return uc.memories
}

// ShortTerm exposes the short-term memory service
func (uc *UseCases) ShortTerm() *shortterm.Service {
	return uc.shortTerm
}

// Locks exposes the concurrency control service
func (uc *UseCases) Locks() *concurrency.Service {
	return uc.locks
}
