package types

import "github.com/google/uuid"

// MemoryID is a UUID-based identifier for a durable memory record
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// String returns the string representation of MemoryID
func (m MemoryID) String() string {
	return string(m)
}

// LockToken is the random holder token stored in a distributed lock
// record. A lock can only be released by the holder presenting the token
// issued at acquisition time.
type LockToken string

// NewLockToken generates a fresh random token
func NewLockToken() LockToken {
	return LockToken(uuid.New().String())
}

// String returns the string representation of LockToken
func (t LockToken) String() string {
	return string(t)
}
