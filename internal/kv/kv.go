// Package kv defines the durable key-value port used for bearer tokens,
// cached HTTP responses, and offline sync queues, with Redis and in-memory
// adapters.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is the persistence port of the client core. Values are opaque
// bytes; list operations back the named offline sync queues.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Append pushes value onto the tail of the named list.
	Append(ctx context.Context, list string, value []byte) error
	// List returns the full contents of the named list without removing it.
	List(ctx context.Context, list string) ([][]byte, error)
	// Drain removes and returns the full contents of the named list.
	Drain(ctx context.Context, list string) ([][]byte, error)
	// Close releases any underlying resources.
	Close() error
}
