package concurrency

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

const (
	// defaultMaxRetries bounds optimistic update attempts after the first
	defaultMaxRetries = 3
	// retryBackoffUnit is multiplied by the attempt number, plus jitter
	retryBackoffUnit = 100 * time.Millisecond
)

// Service provides read-modify-write atomicity and lease-based mutual
// exclusion on top of the key/value store. AtomicUpdate is the only
// sanctioned pattern for read-modify-write against shared remote state.
type Service struct {
	store      interfaces.KVStore
	maxRetries int
}

// Option is a functional option for Service configuration
type Option func(*Service)

// WithMaxRetries overrides the retry bound for AtomicUpdate
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		s.maxRetries = n
	}
}

// New creates a concurrency control service
func New(store interfaces.KVStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AtomicUpdate reads the current value of key, applies fn, and commits
// only if no other writer modified the key in between. Conflicts are
// retried with jittered backoff; exhausting the retries surfaces
// types.ErrContention as a caller-visible contention signal, never a
// silent overwrite. fn must be pure: it may run once per attempt.
// ttl <= 0 preserves the key's existing expiry.
func (s *Service) AtomicUpdate(ctx context.Context, key string, ttl time.Duration, fn interfaces.UpdateFn) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt)*retryBackoffUnit + rand.N(retryBackoffUnit/2)
			select {
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "atomic update cancelled", goerr.V("key", key))
			case <-time.After(backoff):
			}
		}

		lastErr = s.store.UpdateTx(ctx, key, ttl, fn)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, types.ErrTxConflict) {
			return lastErr
		}

		logging.From(ctx).Debug("atomic update conflict, retrying",
			"key", key, "attempt", attempt+1)
	}

	return goerr.Wrap(types.ErrContention, "retries exhausted",
		goerr.V("key", key), goerr.V("retries", s.maxRetries))
}

// lockKey builds the key namespace entry for a distributed lock
func lockKey(name string) string {
	return "lock:" + name
}

// AcquireLock attempts to take the named lease-based lock for timeout.
// It returns immediately with ok=false when the lock is held; callers
// implement their own retry policy. The returned token must be presented
// at release time. The lock self-expires after timeout, so a holder must
// assume it can silently lose the lock mid-critical-section if the held
// operation outlives the lease.
func (s *Service) AcquireLock(ctx context.Context, name string, timeout time.Duration) (types.LockToken, bool, error) {
	token := types.NewLockToken()
	ok, err := s.store.SetNX(ctx, lockKey(name), model.Text(token.String()), timeout)
	if err != nil {
		return "", false, goerr.Wrap(err, "failed to acquire lock", goerr.V("lock", name))
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases the named lock if and only if token matches the
// current holder. A mismatch (the lease expired and someone else
// reacquired) is a no-op: releasing another holder's lock would reopen
// the race the lock exists to prevent.
func (s *Service) ReleaseLock(ctx context.Context, name string, token types.LockToken) error {
	released, err := s.store.CompareAndDelete(ctx, lockKey(name), model.Text(token.String()))
	if err != nil {
		return goerr.Wrap(err, "failed to release lock", goerr.V("lock", name))
	}
	if !released {
		logging.From(ctx).Warn("lock not released: token mismatch or lease expired", "lock", name)
	}
	return nil
}
