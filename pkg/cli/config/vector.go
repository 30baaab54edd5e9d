package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/redis"
	"github.com/mnemo-lab/mnemosyne/pkg/repository/vector"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

// Vector holds CLI flags for the similarity search backend configuration
type Vector struct {
	backend   string
	dimension int
	indexName string
}

// Flags returns CLI flags for vector search configuration
func (v *Vector) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vector-backend",
			Usage:       "Vector search backend (native or fallback)",
			Value:       "fallback",
			Sources:     cli.EnvVars("MNEMOSYNE_VECTOR_BACKEND"),
			Destination: &v.backend,
		},
		&cli.IntFlag{
			Name:        "vector-dimension",
			Usage:       "Embedding vector dimensionality",
			Value:       768,
			Sources:     cli.EnvVars("MNEMOSYNE_VECTOR_DIMENSION"),
			Destination: &v.dimension,
		},
		&cli.StringFlag{
			Name:        "vector-index",
			Usage:       "Vector index name",
			Value:       "memories",
			Sources:     cli.EnvVars("MNEMOSYNE_VECTOR_INDEX"),
			Destination: &v.indexName,
		},
	}
}

// Dimension returns the configured vector dimensionality
func (v *Vector) Dimension() int {
	return v.dimension
}

// IndexName returns the configured index name
func (v *Vector) IndexName() string {
	return v.indexName
}

// Configure builds the similarity search backend on top of the store.
// The native backend needs the store's raw redis client; selecting it
// with the in-memory store is a configuration error, not a silent
// downgrade.
func (v *Vector) Configure(store interfaces.KVStore) (interfaces.VectorBackend, error) {
	backend, err := types.ParseVectorBackend(v.backend)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidVectorConfig, "unknown vector backend", goerr.V("backend", v.backend))
	}
	if v.dimension <= 0 {
		return nil, goerr.Wrap(ErrInvalidVectorConfig, "vector-dimension must be positive", goerr.V("dimension", v.dimension))
	}

	switch backend {
	case types.VectorBackendNative:
		client, ok := store.(*redis.Client)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidVectorConfig, "native vector backend requires the redis store backend")
		}
		logging.Default().Info("Using native vector search", "dimension", v.dimension)
		return vector.NewNative(client.Raw()), nil

	case types.VectorBackendFallback:
		logging.Default().Info("Using fallback vector search (brute-force scan)", "dimension", v.dimension)
		return vector.NewFallback(store), nil

	default:
		return nil, goerr.Wrap(ErrInvalidVectorConfig, "unknown vector backend", goerr.V("backend", v.backend))
	}
}
