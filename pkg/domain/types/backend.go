package types

import "fmt"

// StoreBackend selects the KVStore implementation
type StoreBackend string

const (
	StoreBackendRedis  StoreBackend = "redis"
	StoreBackendMemory StoreBackend = "memory"
)

// AllStoreBackends returns all valid store backends
func AllStoreBackends() []StoreBackend {
	return []StoreBackend{
		StoreBackendRedis,
		StoreBackendMemory,
	}
}

// IsValid checks if the store backend is valid
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreBackendRedis, StoreBackendMemory:
		return true
	default:
		return false
	}
}

// String returns the string representation of the store backend
func (b StoreBackend) String() string {
	return string(b)
}

// ParseStoreBackend parses a string into a StoreBackend
func ParseStoreBackend(s string) (StoreBackend, error) {
	backend := StoreBackend(s)
	if !backend.IsValid() {
		return "", fmt.Errorf("invalid store backend: %s", s)
	}
	return backend, nil
}

// VectorBackend selects the similarity-search implementation. The choice
// is explicit configuration, not runtime capability probing.
type VectorBackend string

const (
	// VectorBackendNative uses the store's built-in similarity search
	// (RediSearch FT.* commands).
	VectorBackendNative VectorBackend = "native"
	// VectorBackendFallback stores vectors in plain hashes and performs
	// brute-force cosine scans.
	VectorBackendFallback VectorBackend = "fallback"
)

// AllVectorBackends returns all valid vector backends
func AllVectorBackends() []VectorBackend {
	return []VectorBackend{
		VectorBackendNative,
		VectorBackendFallback,
	}
}

// IsValid checks if the vector backend is valid
func (b VectorBackend) IsValid() bool {
	switch b {
	case VectorBackendNative, VectorBackendFallback:
		return true
	default:
		return false
	}
}

// String returns the string representation of the vector backend
func (b VectorBackend) String() string {
	return string(b)
}

// ParseVectorBackend parses a string into a VectorBackend
func ParseVectorBackend(s string) (VectorBackend, error) {
	backend := VectorBackend(s)
	if !backend.IsValid() {
		return "", fmt.Errorf("invalid vector backend: %s", s)
	}
	return backend, nil
}
