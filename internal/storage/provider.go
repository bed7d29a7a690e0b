// Package storage defines the key-value slot abstraction that holds persisted tables.
package storage

// DefaultKey is the slot the record table is persisted under.
const DefaultKey = "table-data-v1"

// Provider is a durable key-value store. Missing keys surface as errors
// wrapping apperr.ErrNotFound.
type Provider interface {
	// Get returns the raw bytes stored under key.
	Get(key string) ([]byte, error)
	// Set atomically replaces the value stored under key.
	Set(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Keys lists every stored key.
	Keys() ([]string, error)
}
