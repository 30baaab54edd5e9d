package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

// ErrNotFound is returned when a memory record does not exist
var ErrNotFound = goerr.New("memory not found")

// EventsChannel carries invalidation events published on wipes
const EventsChannel = "memory:events"

// Event is an invalidation notice for consumers holding derived state
// (e.g. short-term buffers).
type Event struct {
	Event    string `json:"event"`
	Category string `json:"category,omitempty"`
}

// Event names
const (
	EventWipeCategory = "wipe_category"
	EventWipeAll      = "wipe_all"
)

// storedMemory is the wire representation of a memory record
type storedMemory struct {
	ID        string            `json:"id"`
	Category  string            `json:"category"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func toStored(m *model.Memory) *storedMemory {
	return &storedMemory{
		ID:        m.ID.String(),
		Category:  m.Category.String(),
		Content:   m.Content.Encode(),
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
}

func fromStored(d *storedMemory) *model.Memory {
	return &model.Memory{
		ID:        types.MemoryID(d.ID),
		Category:  types.Category(d.Category),
		Content:   model.DecodeWire(d.Content),
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
	}
}

// Service stores durable memory records grouped by category under
// memory:{category}:{id}. Enumeration and search are O(N) key scans per
// category: fine for the tens-of-messages working set the rest of the
// system assumes, not for unbounded categories.
type Service struct {
	store interfaces.KVStore
	clock func() time.Time
}

// Option is a functional option for Service configuration
type Option func(*Service)

// WithClock replaces the wall clock, used by tests
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// New creates a memory service
func New(store interfaces.KVStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func recordKey(category types.Category, id types.MemoryID) string {
	return "memory:" + category.String() + ":" + id.String()
}

func categoryPattern(category types.Category) string {
	return "memory:" + category.String() + ":*"
}

// Create stores a new memory record and returns its generated ID
func (s *Service) Create(ctx context.Context, category types.Category, content model.Value, metadata map[string]string) (types.MemoryID, error) {
	if err := category.Validate(); err != nil {
		return "", err
	}

	mem := &model.Memory{
		ID:        types.NewMemoryID(),
		Category:  category,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: s.clock().UTC(),
	}

	value, err := model.Object(toStored(mem))
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode memory record")
	}
	if err := s.store.Set(ctx, recordKey(category, mem.ID), value, 0); err != nil {
		return "", goerr.Wrap(err, "failed to store memory record", goerr.V("category", category))
	}
	return mem.ID, nil
}

// Get retrieves a single memory record
func (s *Service) Get(ctx context.Context, category types.Category, id types.MemoryID) (*model.Memory, error) {
	value, ok, err := s.store.Get(ctx, recordKey(category, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "no such memory", goerr.V("category", category), goerr.V("id", id))
	}
	return decodeRecord(value)
}

func decodeRecord(value model.Value) (*model.Memory, error) {
	var d storedMemory
	if err := value.Decode(&d); err != nil {
		return nil, goerr.Wrap(err, "malformed memory record")
	}
	return fromStored(&d), nil
}

// List enumerates all records in a category, newest first. O(N) in
// category size per call.
func (s *Service) List(ctx context.Context, category types.Category) ([]*model.Memory, error) {
	keys, err := s.store.Keys(ctx, categoryPattern(category))
	if err != nil {
		return nil, err
	}

	memories := make([]*model.Memory, 0, len(keys))
	for _, key := range keys {
		value, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // deleted between scan and read
		}
		mem, err := decodeRecord(value)
		if err != nil {
			logging.From(ctx).Warn("skipping malformed memory record", "key", key, "error", err.Error())
			continue
		}
		memories = append(memories, mem)
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})
	return memories, nil
}

// Last returns the newest record in a category, or ErrNotFound
func (s *Service) Last(ctx context.Context, category types.Category) (*model.Memory, error) {
	memories, err := s.List(ctx, category)
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, goerr.Wrap(ErrNotFound, "category is empty", goerr.V("category", category))
	}
	return memories[0], nil
}

// Update replaces an existing record's content and metadata, keeping its
// ID and creation time.
func (s *Service) Update(ctx context.Context, category types.Category, id types.MemoryID, content model.Value, metadata map[string]string) error {
	existing, err := s.Get(ctx, category, id)
	if err != nil {
		return err
	}

	existing.Content = content
	existing.Metadata = metadata
	value, err := model.Object(toStored(existing))
	if err != nil {
		return goerr.Wrap(err, "failed to encode memory record")
	}
	return s.store.Set(ctx, recordKey(category, id), value, 0)
}

// Delete removes a single record. Deleting a missing record is an error
// so callers can distinguish a stale ID.
func (s *Service) Delete(ctx context.Context, category types.Category, id types.MemoryID) error {
	key := recordKey(category, id)
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return goerr.Wrap(ErrNotFound, "no such memory", goerr.V("category", category), goerr.V("id", id))
	}
	return s.store.Delete(ctx, key)
}

// Search returns records whose serialized content contains term
// (case-insensitive) AND whose metadata matches every given filter
// exactly. A correctness-preserving O(N) scan, not a query engine.
func (s *Service) Search(ctx context.Context, category types.Category, term string, filters map[string]string) ([]*model.Memory, error) {
	memories, err := s.List(ctx, category)
	if err != nil {
		return nil, err
	}

	term = strings.ToLower(term)
	matched := make([]*model.Memory, 0, len(memories))
	for _, mem := range memories {
		if term != "" && !strings.Contains(strings.ToLower(mem.Content.Text()), term) {
			continue
		}
		ok := true
		for k, v := range filters {
			if mem.Metadata[k] != v {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, mem)
		}
	}
	return matched, nil
}

// Count returns the number of records in a category
func (s *Service) Count(ctx context.Context, category types.Category) (int, error) {
	keys, err := s.store.Keys(ctx, categoryPattern(category))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// WipeCategory removes every record in a category. Irreversible: no
// soft-delete, no audit trail. Returns the number of deleted records.
func (s *Service) WipeCategory(ctx context.Context, category types.Category) (int, error) {
	n, err := s.wipe(ctx, categoryPattern(category))
	if err != nil {
		return 0, err
	}
	s.notify(ctx, Event{Event: EventWipeCategory, Category: category.String()})
	return n, nil
}

// WipeAll removes every memory record in every category. Irreversible.
func (s *Service) WipeAll(ctx context.Context) (int, error) {
	n, err := s.wipe(ctx, "memory:*")
	if err != nil {
		return 0, err
	}
	s.notify(ctx, Event{Event: EventWipeAll})
	return n, nil
}

func (s *Service) wipe(ctx context.Context, pattern string) (int, error) {
	keys, err := s.store.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			return 0, goerr.Wrap(err, "failed to delete memory record", goerr.V("key", key))
		}
	}
	return len(keys), nil
}

// notify publishes an invalidation event. Failures are logged: wipes must
// not be rolled back because a notification could not be delivered.
func (s *Service) notify(ctx context.Context, event Event) {
	value, err := model.Object(event)
	if err == nil {
		err = s.store.Publish(ctx, EventsChannel, value)
	}
	if err != nil {
		logging.From(ctx).Warn("failed to publish memory event", "event", event.Event, "error", err.Error())
	}
}
