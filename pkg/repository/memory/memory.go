package memory

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
)

// ErrWrongKind is returned when an operation targets a key holding a
// different container kind (e.g. a list op on a plain string key).
var ErrWrongKind = goerr.New("key holds a different kind of value")

type recordKind int

const (
	kindString recordKind = iota
	kindList
	kindSet
	kindHash
)

// record is a single stored container. Values are kept in their wire
// encoding so that serialize/deserialize normalization matches the redis
// backend exactly.
type record struct {
	kind      recordKind
	str       string
	list      []string
	set       map[string]struct{}
	hash      map[string]string
	expiresAt time.Time // zero = never expires
	version   uint64
}

func (r *record) expired(now time.Time) bool {
	// An entry with expiry <= now is logically absent even before the
	// sweep removes it.
	return !r.expiresAt.IsZero() && !r.expiresAt.After(now)
}

// Client is an in-process KVStore for development and tests, mirroring
// the remote backend's contract including TTL and CAS semantics.
type Client struct {
	mu      sync.RWMutex
	records map[string]*record
	seq     uint64
	clock   func() time.Time
	closed  bool

	subMu  sync.Mutex
	subs   map[string]map[int]chan string
	subSeq int
}

var _ interfaces.KVStore = &Client{}

// Option is a functional option for Client configuration
type Option func(*Client)

// WithClock replaces the wall clock, used by TTL tests
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// New creates an in-process store
func New(opts ...Option) *Client {
	c := &Client{
		records: make(map[string]*record),
		clock:   time.Now,
		subs:    make(map[string]map[int]chan string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// bump advances the store-global write sequence. Versions come from a
// single counter rather than per record so that a delete-then-recreate
// can never reproduce a version observed before the delete. Caller must
// hold the write lock.
func (c *Client) bump() uint64 {
	c.seq++
	return c.seq
}

func (c *Client) guard() error {
	if c.closed {
		return goerr.Wrap(types.ErrNotConnected, "memory store is closed")
	}
	return nil
}

// getRecord returns the live record for key, purging it lazily when
// expired. Caller must hold at least a read lock; expired purge requires
// the write lock, so read paths treat expired records as absent without
// deleting.
func (c *Client) getRecord(key string) (*record, bool) {
	rec, ok := c.records[key]
	if !ok || rec.expired(c.clock()) {
		return nil, false
	}
	return rec, true
}

// ensureRecord returns the record for key, replacing an expired one.
// Caller must hold the write lock.
func (c *Client) ensureRecord(key string, kind recordKind) (*record, error) {
	rec, ok := c.records[key]
	if ok && rec.expired(c.clock()) {
		delete(c.records, key)
		ok = false
	}
	if !ok {
		rec = &record{kind: kind}
		switch kind {
		case kindSet:
			rec.set = make(map[string]struct{})
		case kindHash:
			rec.hash = make(map[string]string)
		}
		c.records[key] = rec
		return rec, nil
	}
	if rec.kind != kind {
		return nil, goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
	}
	return rec, nil
}

func (c *Client) Set(ctx context.Context, key string, value model.Value, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}

	rec := &record{kind: kindString, str: value.Encode(), version: c.bump()}
	if ttl > 0 {
		rec.expiresAt = c.clock().Add(ttl)
	}
	c.records[key] = rec
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (model.Value, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return model.Value{}, false, err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return model.Value{}, false, nil
	}
	if rec.kind != kindString {
		return model.Value{}, false, goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
	}
	return model.DecodeWire(rec.str), true, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	delete(c.records, key)
	return nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return false, err
	}
	_, ok := c.getRecord(key)
	return ok, nil
}

func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	now := c.clock()
	keys := make([]string, 0)
	for key, rec := range c.records {
		if rec.expired(now) {
			continue
		}
		if matched, err := path.Match(pattern, key); err == nil && matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return false, err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return false, nil
	}
	if ttl > 0 {
		rec.expiresAt = c.clock().Add(ttl)
		return true, nil
	}
	// Mirrors PERSIST: reports whether an expiry was actually removed
	if rec.expiresAt.IsZero() {
		return false, nil
	}
	rec.expiresAt = time.Time{}
	return true, nil
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return 0, err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return -2 * time.Second, nil // mirrors Redis: -2 for missing key
	}
	if rec.expiresAt.IsZero() {
		return -1 * time.Second, nil // -1 for no expiry
	}
	return rec.expiresAt.Sub(c.clock()), nil
}

func (c *Client) ListPush(ctx context.Context, key string, values ...model.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}

	rec, err := c.ensureRecord(key, kindList)
	if err != nil {
		return err
	}
	for _, v := range values {
		rec.list = append(rec.list, v.Encode())
	}
	rec.version = c.bump()
	return nil
}

func (c *Client) ListRange(ctx context.Context, key string, start, stop int64) ([]model.Value, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return []model.Value{}, nil
	}
	if rec.kind != kindList {
		return nil, goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
	}

	n := int64(len(rec.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []model.Value{}, nil
	}

	result := make([]model.Value, 0, stop-start+1)
	for _, raw := range rec.list[start : stop+1] {
		result = append(result, model.DecodeWire(raw))
	}
	return result, nil
}

func (c *Client) ListLen(ctx context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return 0, err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return 0, nil
	}
	if rec.kind != kindList {
		return 0, goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
	}
	return int64(len(rec.list)), nil
}

func (c *Client) SetAdd(ctx context.Context, key string, members ...model.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}

	rec, err := c.ensureRecord(key, kindSet)
	if err != nil {
		return err
	}
	for _, m := range members {
		rec.set[m.Encode()] = struct{}{}
	}
	rec.version = c.bump()
	return nil
}

func (c *Client) SetRemove(ctx context.Context, key string, members ...model.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return nil
	}
	if rec.kind != kindSet {
		return goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
	}
	for _, m := range members {
		delete(rec.set, m.Encode())
	}
	rec.version = c.bump()
	return nil
}

func (c *Client) SetMembers(ctx context.Context, key string) ([]model.Value, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return []model.Value{}, nil
	}
	if rec.kind != kindSet {
		return nil, goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
	}

	result := make([]model.Value, 0, len(rec.set))
	for raw := range rec.set {
		result = append(result, model.DecodeWire(raw))
	}
	return result, nil
}

func (c *Client) HashSet(ctx context.Context, key, field string, value model.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}

	rec, err := c.ensureRecord(key, kindHash)
	if err != nil {
		return err
	}
	rec.hash[field] = value.Encode()
	rec.version = c.bump()
	return nil
}

func (c *Client) HashGet(ctx context.Context, key, field string) (model.Value, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return model.Value{}, false, err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return model.Value{}, false, nil
	}
	if rec.kind != kindHash {
		return model.Value{}, false, goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
	}
	raw, ok := rec.hash[field]
	if !ok {
		return model.Value{}, false, nil
	}
	return model.DecodeWire(raw), true, nil
}

func (c *Client) HashGetAll(ctx context.Context, key string) (map[string]model.Value, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return map[string]model.Value{}, nil
	}
	if rec.kind != kindHash {
		return nil, goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
	}

	result := make(map[string]model.Value, len(rec.hash))
	for field, raw := range rec.hash {
		result[field] = model.DecodeWire(raw)
	}
	return result, nil
}

func (c *Client) HashDelete(ctx context.Context, key string, fields ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}

	rec, ok := c.getRecord(key)
	if !ok {
		return nil
	}
	if rec.kind != kindHash {
		return goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
	}
	for _, f := range fields {
		delete(rec.hash, f)
	}
	rec.version = c.bump()
	return nil
}

func (c *Client) SetNX(ctx context.Context, key string, value model.Value, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return false, err
	}

	if _, ok := c.getRecord(key); ok {
		return false, nil
	}
	rec := &record{kind: kindString, str: value.Encode(), version: c.bump()}
	if ttl > 0 {
		rec.expiresAt = c.clock().Add(ttl)
	}
	c.records[key] = rec
	return true, nil
}

func (c *Client) UpdateTx(ctx context.Context, key string, ttl time.Duration, fn interfaces.UpdateFn) error {
	c.mu.RLock()
	if err := c.guard(); err != nil {
		c.mu.RUnlock()
		return err
	}
	var current model.Value
	var version uint64
	rec, exists := c.getRecord(key)
	if exists {
		if rec.kind != kindString {
			c.mu.RUnlock()
			return goerr.Wrap(ErrWrongKind, "type mismatch", goerr.V("key", key))
		}
		current = model.DecodeWire(rec.str)
		version = rec.version
	}
	c.mu.RUnlock()

	// The update function runs without holding the lock, so a concurrent
	// writer can slip in; the version check below detects that.
	next, err := fn(current, exists)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}

	rec2, exists2 := c.getRecord(key)
	if exists2 != exists || (exists2 && rec2.version != version) {
		return goerr.Wrap(types.ErrTxConflict, "key changed between read and commit", goerr.V("key", key))
	}

	newRec := &record{kind: kindString, str: next.Encode(), version: c.bump()}
	if exists2 {
		newRec.expiresAt = rec2.expiresAt
	}
	if ttl > 0 {
		newRec.expiresAt = c.clock().Add(ttl)
	}
	c.records[key] = newRec
	return nil
}

func (c *Client) CompareAndDelete(ctx context.Context, key string, expected model.Value) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return false, err
	}

	rec, ok := c.getRecord(key)
	if !ok || rec.kind != kindString {
		return false, nil
	}
	if rec.str != expected.Encode() {
		return false, nil
	}
	delete(c.records, key)
	return true, nil
}

// PurgeExpired removes entries whose TTL has elapsed and returns the
// number of purged keys. Expired entries are already logically absent;
// this only reclaims storage. Called by the periodic sweep worker.
func (c *Client) PurgeExpired(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}

	now := c.clock()
	purged := 0
	for key, rec := range c.records {
		if rec.expired(now) {
			delete(c.records, key)
			purged++
		}
	}
	return purged
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for channel, subs := range c.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(c.subs, channel)
	}
	return nil
}
