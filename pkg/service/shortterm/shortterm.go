package shortterm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

const (
	// DefaultCapacity is the per-channel ring buffer size
	DefaultCapacity = 30
	// DefaultTTL is the wall-clock lifetime of a buffered message
	DefaultTTL = 45 * time.Minute
)

// Service keeps a bounded, TTL-evicted buffer of recent messages per
// channel. Buffers are in-process; an optional write-through to
// conversation:{channel} lists survives restarts, and an optional
// HistorySource backfills cold channels from the platform's history API.
type Service struct {
	mu       sync.Mutex
	channels map[types.ChannelID]*buffer

	capacity   int
	ttl        time.Duration
	clock      func() time.Time
	store      interfaces.KVStore
	persistTTL time.Duration
	history    interfaces.HistorySource
}

// buffer holds one channel's messages, oldest first. Its own mutex
// guards against two messages arriving on the same channel
// near-simultaneously.
type buffer struct {
	mu       sync.Mutex
	messages []*model.Message
	hydrated bool
}

// Option is a functional option for Service configuration
type Option func(*Service)

// WithCapacity sets the per-channel buffer capacity
func WithCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithTTL sets the message lifetime
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces the wall clock, used by eviction tests
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithPersistence enables write-through of buffered messages to
// conversation:{channel} lists. persistTTL is applied once when the list
// is created and never extended implicitly.
func WithPersistence(store interfaces.KVStore, persistTTL time.Duration) Option {
	return func(s *Service) {
		s.store = store
		s.persistTTL = persistTTL
	}
}

// WithHistory enables cold-start backfill from the platform history API
func WithHistory(history interfaces.HistorySource) Option {
	return func(s *Service) {
		s.history = history
	}
}

// New creates a short-term memory service
func New(opts ...Option) *Service {
	s := &Service{
		channels: make(map[types.ChannelID]*buffer),
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func conversationKey(channelID types.ChannelID) string {
	return "conversation:" + channelID.String()
}

func (s *Service) buffer(channelID types.ChannelID) *buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.channels[channelID]
	if !ok {
		buf = &buffer{}
		s.channels[channelID] = buf
	}
	return buf
}

// expired applies the strict TTL boundary: a message exactly at the TTL
// boundary is treated as expired.
func (s *Service) expired(msg *model.Message, now time.Time) bool {
	return now.Sub(msg.Timestamp) > s.ttl
}

// cleanupLocked pops expired messages from the front, oldest first.
// Caller must hold buf.mu.
func (s *Service) cleanupLocked(buf *buffer) int {
	now := s.clock()
	evicted := 0
	for len(buf.messages) > 0 && s.expired(buf.messages[0], now) {
		buf.messages = buf.messages[1:]
		evicted++
	}
	return evicted
}

// hydrateLocked restores an empty buffer from the persisted conversation
// list, once. Caller must hold buf.mu.
func (s *Service) hydrateLocked(ctx context.Context, channelID types.ChannelID, buf *buffer) {
	if buf.hydrated || s.store == nil {
		return
	}
	buf.hydrated = true

	values, err := s.store.ListRange(ctx, conversationKey(channelID), int64(-s.capacity), -1)
	if err != nil {
		logging.From(ctx).Warn("failed to restore conversation buffer",
			"channel", channelID, "error", err.Error())
		return
	}

	now := s.clock()
	for _, v := range values {
		var msg model.Message
		if err := v.Decode(&msg); err != nil {
			continue
		}
		if s.expired(&msg, now) {
			continue
		}
		buf.messages = append(buf.messages, &msg)
	}
}

// AddMessage appends a message to its channel's buffer. At capacity the
// oldest message is dropped on each new append.
func (s *Service) AddMessage(ctx context.Context, msg *model.Message) error {
	if msg == nil || msg.ChannelID == "" {
		return goerr.New("message must have a channel ID")
	}

	buf := s.buffer(msg.ChannelID)
	buf.mu.Lock()
	s.hydrateLocked(ctx, msg.ChannelID, buf)
	s.cleanupLocked(buf)

	buf.messages = append(buf.messages, msg)
	for len(buf.messages) > s.capacity {
		buf.messages = buf.messages[1:]
	}
	buf.mu.Unlock()

	s.persist(ctx, msg)
	return nil
}

// persist writes the message through to the conversation list. Failures
// are logged, not returned: durable storage is MemoryService's job, the
// list only warms restarts.
func (s *Service) persist(ctx context.Context, msg *model.Message) {
	if s.store == nil {
		return
	}

	key := conversationKey(msg.ChannelID)
	value, err := model.Object(msg)
	if err != nil {
		logging.From(ctx).Warn("failed to encode message for persistence", "error", err.Error())
		return
	}

	existed, err := s.store.Exists(ctx, key)
	if err == nil {
		err = s.store.ListPush(ctx, key, value)
	}
	if err == nil && !existed && s.persistTTL > 0 {
		// TTL is set once at creation; pushes never extend it
		_, err = s.store.Expire(ctx, key, s.persistTTL)
	}
	if err != nil {
		logging.From(ctx).Warn("failed to persist conversation message",
			"channel", msg.ChannelID, "error", err.Error())
	}
}

// GetChannelContext returns the most recent limit non-expired messages in
// chronological order (oldest first). limit <= 0 returns the whole
// buffer.
func (s *Service) GetChannelContext(ctx context.Context, channelID types.ChannelID, limit int) []*model.Message {
	buf := s.buffer(channelID)
	buf.mu.Lock()
	defer buf.mu.Unlock()

	s.hydrateLocked(ctx, channelID, buf)
	s.cleanupLocked(buf)

	n := len(buf.messages)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]*model.Message, limit)
	copy(result, buf.messages[n-limit:])
	return result
}

// Len returns the number of live buffered messages, evicting any that
// have expired first.
func (s *Service) Len(channelID types.ChannelID) int {
	buf := s.buffer(channelID)
	buf.mu.Lock()
	defer buf.mu.Unlock()
	s.cleanupLocked(buf)
	return len(buf.messages)
}

// PopulateContext backfills the channel's buffer from the history source
// when it is under half capacity, so a fresh process does not answer with
// empty context. Messages already present (same timestamp and author) are
// not duplicated.
func (s *Service) PopulateContext(ctx context.Context, channelID types.ChannelID, limit int) error {
	if s.history == nil {
		return nil
	}
	if limit <= 0 {
		limit = s.capacity
	}

	buf := s.buffer(channelID)

	buf.mu.Lock()
	s.hydrateLocked(ctx, channelID, buf)
	s.cleanupLocked(buf)
	if len(buf.messages) >= s.capacity/2 {
		buf.mu.Unlock()
		return nil
	}
	buf.mu.Unlock()

	// History fetch happens outside the buffer lock; the merge below
	// re-checks for duplicates.
	history, err := s.history.History(ctx, channelID, limit)
	if err != nil {
		return goerr.Wrap(err, "failed to backfill channel history", goerr.V("channel", channelID))
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	seen := make(map[model.MessageIdentity]struct{}, len(buf.messages))
	for _, msg := range buf.messages {
		seen[msg.Identity()] = struct{}{}
	}

	now := s.clock()
	added := 0
	for _, msg := range history {
		if s.expired(msg, now) {
			continue
		}
		if _, dup := seen[msg.Identity()]; dup {
			continue
		}
		seen[msg.Identity()] = struct{}{}
		buf.messages = append(buf.messages, msg)
		added++
	}

	if added > 0 {
		sort.SliceStable(buf.messages, func(i, j int) bool {
			return buf.messages[i].Timestamp.Before(buf.messages[j].Timestamp)
		})
		for len(buf.messages) > s.capacity {
			buf.messages = buf.messages[1:]
		}
	}

	logging.From(ctx).Debug("backfilled channel context",
		"channel", channelID, "added", added)
	return nil
}

// CleanupAll evicts expired messages from every channel and returns the
// number evicted. Called by the periodic sweep worker.
func (s *Service) CleanupAll(ctx context.Context) int {
	s.mu.Lock()
	buffers := make(map[types.ChannelID]*buffer, len(s.channels))
	for ch, buf := range s.channels {
		buffers[ch] = buf
	}
	s.mu.Unlock()

	evicted := 0
	for _, buf := range buffers {
		buf.mu.Lock()
		evicted += s.cleanupLocked(buf)
		buf.mu.Unlock()
	}
	return evicted
}

// Clear drops a channel's buffer entirely. Used when the channel's
// memories are wiped.
func (s *Service) Clear(channelID types.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
}

// ClearAll drops every channel buffer
func (s *Service) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[types.ChannelID]*buffer)
}

// Forget drops a channel's buffer and its persisted conversation list
func (s *Service) Forget(ctx context.Context, channelID types.ChannelID) error {
	s.Clear(channelID)
	if s.store == nil {
		return nil
	}
	return s.store.Delete(ctx, conversationKey(channelID))
}

// ForgetAll drops every buffer and every persisted conversation list
func (s *Service) ForgetAll(ctx context.Context) error {
	s.ClearAll()
	if s.store == nil {
		return nil
	}
	keys, err := s.store.Keys(ctx, "conversation:*")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
