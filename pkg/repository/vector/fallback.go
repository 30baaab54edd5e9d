package vector

import (
	"context"
	"sort"
	"strconv"

	"github.com/m-mizutani/goerr/v2"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
)

// Fallback is the brute-force backend for stores without native vector
// search. Entries live in doc:{key} hashes with a per-index key set, and
// every query linear-scans the entries sharing the query tag. Acceptable
// for the tens-of-messages working set the rest of the system assumes.
type Fallback struct {
	store interfaces.KVStore
}

var _ interfaces.VectorBackend = &Fallback{}

// NewFallback creates a brute-force backend on top of any KVStore
func NewFallback(store interfaces.KVStore) *Fallback {
	return &Fallback{store: store}
}

func (f *Fallback) dimensions(ctx context.Context, index string) (int, error) {
	v, ok, err := f.store.HashGet(ctx, indexMetaKey(index), dimensionsField)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, goerr.Wrap(types.ErrIndexNotFound, "index has not been created", goerr.V("index", index))
	}
	dims, err := strconv.Atoi(v.Text())
	if err != nil {
		return 0, goerr.Wrap(err, "corrupt index metadata", goerr.V("index", index))
	}
	return dims, nil
}

func (f *Fallback) CreateIndex(ctx context.Context, name string, dimensions int) error {
	if dimensions <= 0 {
		return goerr.Wrap(types.ErrInvalidVector, "dimensions must be positive", goerr.V("dimensions", dimensions))
	}

	existing, ok, err := f.store.HashGet(ctx, indexMetaKey(name), dimensionsField)
	if err != nil {
		return err
	}
	if ok {
		// Idempotent no-op, but a dimensionality change is a caller bug
		if existing.Text() != strconv.Itoa(dimensions) {
			return goerr.Wrap(types.ErrInvalidVector, "index exists with different dimensionality",
				goerr.V("index", name), goerr.V("existing", existing.Text()), goerr.V("requested", dimensions))
		}
		return nil
	}

	return f.store.HashSet(ctx, indexMetaKey(name), dimensionsField, model.Text(strconv.Itoa(dimensions)))
}

func (f *Fallback) AddVector(ctx context.Context, index string, entry *model.VectorEntry) error {
	dims, err := f.dimensions(ctx, index)
	if err != nil {
		return err
	}
	if len(entry.Vector) != dims {
		return goerr.Wrap(types.ErrInvalidVector, "vector does not match index dimensionality",
			goerr.V("index", index), goerr.V("expected", dims), goerr.V("got", len(entry.Vector)))
	}

	key := docKey(entry.Key)
	fields := map[string]model.Value{
		"index":   model.Text(index),
		"tag":     model.Text(entry.Tag),
		"content": model.Text(entry.Content),
		"vector":  model.Text(encodeVectorText(entry.Vector)),
	}
	for field, value := range fields {
		if err := f.store.HashSet(ctx, key, field, value); err != nil {
			return err
		}
	}

	return f.store.SetAdd(ctx, indexKeysKey(index), model.Text(entry.Key))
}

// scan loads every entry of the index sharing tag and scores it against
// the query vector.
func (f *Fallback) scan(ctx context.Context, index string, query []float32, tag string) ([]model.VectorHit, error) {
	dims, err := f.dimensions(ctx, index)
	if err != nil {
		return nil, err
	}
	if len(query) != dims {
		return nil, goerr.Wrap(types.ErrInvalidVector, "query vector does not match index dimensionality",
			goerr.V("index", index), goerr.V("expected", dims), goerr.V("got", len(query)))
	}

	members, err := f.store.SetMembers(ctx, indexKeysKey(index))
	if err != nil {
		return nil, err
	}

	hits := make([]model.VectorHit, 0, len(members))
	for _, member := range members {
		entryKey := member.Text()
		fields, err := f.store.HashGetAll(ctx, docKey(entryKey))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue // entry deleted out from under the key set
		}
		if fields["index"].Text() != index || fields["tag"].Text() != tag {
			continue
		}
		vec, ok := decodeVectorText(fields["vector"].Text())
		if !ok || len(vec) != dims {
			continue
		}
		hits = append(hits, model.VectorHit{
			Key:     entryKey,
			Content: fields["content"].Text(),
			Score:   cosineSimilarity(query, vec),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits, nil
}

func (f *Fallback) KNNSearch(ctx context.Context, index string, query []float32, topK int, tag string) ([]model.VectorHit, error) {
	hits, err := f.scan(ctx, index, query, tag)
	if err != nil {
		return nil, err
	}
	if topK < 0 {
		topK = 0
	}
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func (f *Fallback) RangeSearch(ctx context.Context, index string, query []float32, radius float64, tag string) ([]model.VectorHit, error) {
	hits, err := f.scan(ctx, index, query, tag)
	if err != nil {
		return nil, err
	}
	filtered := hits[:0]
	for _, h := range hits {
		if h.Score >= radius {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}
