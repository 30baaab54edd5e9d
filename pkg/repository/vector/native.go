package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
)

// Native uses RediSearch FT.* commands for tag-filtered KNN and range
// queries. The engine reports cosine distance; scores returned from this
// backend are converted to similarity (1 - distance) so both backends
// rank identically.
type Native struct {
	rdb *goredis.Client
}

var _ interfaces.VectorBackend = &Native{}

// NewNative creates a backend using the store's built-in vector search
func NewNative(rdb *goredis.Client) *Native {
	return &Native{rdb: rdb}
}

func (n *Native) dimensions(ctx context.Context, index string) (int, error) {
	raw, err := n.rdb.HGet(ctx, indexMetaKey(index), dimensionsField).Result()
	if err == goredis.Nil {
		return 0, goerr.Wrap(types.ErrIndexNotFound, "index has not been created", goerr.V("index", index))
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read index metadata", goerr.V("index", index))
	}
	dims, err := strconv.Atoi(raw)
	if err != nil {
		return 0, goerr.Wrap(err, "corrupt index metadata", goerr.V("index", index))
	}
	return dims, nil
}

func (n *Native) CreateIndex(ctx context.Context, name string, dimensions int) error {
	if dimensions <= 0 {
		return goerr.Wrap(types.ErrInvalidVector, "dimensions must be positive", goerr.V("dimensions", dimensions))
	}

	// An existing index keeps its dimensionality; re-creating is a no-op
	// only when the requested dimensionality matches.
	existing, err := n.dimensions(ctx, name)
	if err == nil {
		if existing == dimensions {
			return nil
		}
		return goerr.Wrap(types.ErrInvalidVector, "index already exists with different dimensionality",
			goerr.V("index", name), goerr.V("existing", existing), goerr.V("requested", dimensions))
	}
	if !errors.Is(err, types.ErrIndexNotFound) {
		return err
	}

	err = n.rdb.FTCreate(ctx, name,
		&goredis.FTCreateOptions{
			OnHash: true,
			Prefix: []any{docKeyPrefix},
		},
		&goredis.FieldSchema{
			FieldName: "tag",
			FieldType: goredis.SearchFieldTypeTag,
		},
		&goredis.FieldSchema{
			FieldName: "content",
			FieldType: goredis.SearchFieldTypeText,
		},
		&goredis.FieldSchema{
			FieldName: "vector",
			FieldType: goredis.SearchFieldTypeVector,
			VectorArgs: &goredis.FTVectorArgs{
				FlatOptions: &goredis.FTFlatOptions{
					Type:           "FLOAT32",
					Dim:            dimensions,
					DistanceMetric: "COSINE",
				},
			},
		},
	).Err()
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return goerr.Wrap(err, "failed to create vector index", goerr.V("index", name))
	}

	if err := n.rdb.HSet(ctx, indexMetaKey(name), dimensionsField, strconv.Itoa(dimensions)).Err(); err != nil {
		return goerr.Wrap(err, "failed to write index metadata", goerr.V("index", name))
	}
	return nil
}

func (n *Native) AddVector(ctx context.Context, index string, entry *model.VectorEntry) error {
	dims, err := n.dimensions(ctx, index)
	if err != nil {
		return err
	}
	if len(entry.Vector) != dims {
		return goerr.Wrap(types.ErrInvalidVector, "vector does not match index dimensionality",
			goerr.V("index", index), goerr.V("expected", dims), goerr.V("got", len(entry.Vector)))
	}

	err = n.rdb.HSet(ctx, docKey(entry.Key),
		"tag", entry.Tag,
		"content", entry.Content,
		"vector", encodeVectorBlob(entry.Vector),
	).Err()
	if err != nil {
		return goerr.Wrap(err, "failed to store vector entry", goerr.V("key", entry.Key))
	}
	return nil
}

func (n *Native) KNNSearch(ctx context.Context, index string, query []float32, topK int, tag string) ([]model.VectorHit, error) {
	if topK <= 0 {
		return []model.VectorHit{}, nil
	}
	if _, err := n.validateQuery(ctx, index, query); err != nil {
		return nil, err
	}

	q := fmt.Sprintf("(@tag:{%s})=>[KNN %d @vector $vec AS dist]", escapeTag(tag), topK)
	return n.search(ctx, index, q, map[string]any{"vec": encodeVectorBlob(query)}, topK)
}

func (n *Native) RangeSearch(ctx context.Context, index string, query []float32, radius float64, tag string) ([]model.VectorHit, error) {
	if _, err := n.validateQuery(ctx, index, query); err != nil {
		return nil, err
	}

	// VECTOR_RANGE takes a distance bound; radius is a similarity bound
	q := fmt.Sprintf("(@tag:{%s}) @vector:[VECTOR_RANGE $r $vec]=>{$YIELD_DISTANCE_AS: dist}", escapeTag(tag))
	params := map[string]any{
		"vec": encodeVectorBlob(query),
		"r":   1.0 - radius,
	}
	return n.search(ctx, index, q, params, maxRangeResults)
}

// maxRangeResults bounds a range query's result page
const maxRangeResults = 1000

func (n *Native) validateQuery(ctx context.Context, index string, query []float32) (int, error) {
	dims, err := n.dimensions(ctx, index)
	if err != nil {
		return 0, err
	}
	if len(query) != dims {
		return 0, goerr.Wrap(types.ErrInvalidVector, "query vector does not match index dimensionality",
			goerr.V("index", index), goerr.V("expected", dims), goerr.V("got", len(query)))
	}
	return dims, nil
}

func (n *Native) search(ctx context.Context, index, query string, params map[string]any, limit int) ([]model.VectorHit, error) {
	res, err := n.rdb.FTSearchWithArgs(ctx, index, query, &goredis.FTSearchOptions{
		Params:         params,
		SortBy:         []goredis.FTSearchSortBy{{FieldName: "dist", Asc: true}},
		Return:         []goredis.FTSearchReturn{{FieldName: "content"}, {FieldName: "dist"}},
		Limit:          limit,
		DialectVersion: 2,
	}).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "vector search failed", goerr.V("index", index))
	}

	hits := make([]model.VectorHit, 0, len(res.Docs))
	for _, doc := range res.Docs {
		dist, err := strconv.ParseFloat(doc.Fields["dist"], 64)
		if err != nil {
			return nil, goerr.Wrap(err, "malformed distance in search result", goerr.V("doc", doc.ID))
		}
		hits = append(hits, model.VectorHit{
			Key:     strings.TrimPrefix(doc.ID, docKeyPrefix),
			Content: doc.Fields["content"],
			Score:   1.0 - dist,
		})
	}
	return hits, nil
}

// encodeVectorBlob serializes a vector as little-endian float32 bytes,
// the layout RediSearch expects for FLOAT32 indices.
func encodeVectorBlob(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// escapeTag escapes RediSearch TAG query metacharacters
func escapeTag(tag string) string {
	var b strings.Builder
	for _, r := range tag {
		switch r {
		case ',', '.', '<', '>', '{', '}', '[', ']', '"', '\'', ':', ';',
			'!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '-', '+',
			'=', '~', '|', '/', '\\', ' ':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
