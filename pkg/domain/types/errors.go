package types

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy shared across store backends and services. Callers are
// expected to branch with errors.Is so that, for example, a missing
// embedding credential (ErrNotConfigured) can be degraded gracefully
// instead of being treated as a store outage (ErrConnectionFailed).
var (
	// ErrConnectionFailed means the backing store was unreachable after
	// connect-time retries were exhausted.
	ErrConnectionFailed = goerr.New("failed to connect to backing store")

	// ErrNotConnected means an operation was attempted on a closed or
	// never-connected store. This is a programmer error.
	ErrNotConnected = goerr.New("store is not connected")

	// ErrTxConflict is returned by a single check-and-set attempt when
	// another writer modified the key between read and commit.
	ErrTxConflict = goerr.New("concurrent modification detected")

	// ErrContention is returned when an atomic update exhausted its
	// retries. Recoverable by the caller with a fresh read.
	ErrContention = goerr.New("too many concurrent updates")

	// ErrInvalidCategory means a category name is unusable as a key
	// component.
	ErrInvalidCategory = goerr.New("invalid category")

	// ErrNotConfigured means a feature requiring an unset credential was
	// invoked (e.g. embeddings without an API project).
	ErrNotConfigured = goerr.New("feature is not configured")

	// ErrInvalidVector means a vector did not match the dimensionality
	// declared at index creation time.
	ErrInvalidVector = goerr.New("invalid vector dimensionality")

	// ErrIndexNotFound means a vector operation referenced an index that
	// was never created.
	ErrIndexNotFound = goerr.New("vector index not found")
)
