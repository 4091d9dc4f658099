// Package store defines the durable key-value byte store that backs the
// cache tiers and the offline queue.
//
// The store offers whole-value put/get only - no structured mutation. Every
// piece of state that must survive the hosting process being suspended or
// killed is committed here before the operation that produced it returns.
// Implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Store is a durable key-value byte store.
//
// Keys are arbitrary UTF-8 strings; the cache tiers and queue build
// "/"-separated prefixes on top of them. Values are opaque bytes.
type Store interface {
	// Get returns the value stored under key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any existing value.
	// The value is durable when Put returns nil.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// PutBatch stores all entries atomically: either every entry is
	// durable or none is. Used by the cache tier install phase.
	PutBatch(ctx context.Context, entries map[string][]byte) error

	// DeletePrefix removes every key with the given prefix.
	// Safe to run concurrently with reads; a read racing a delete may
	// transiently miss.
	DeletePrefix(ctx context.Context, prefix string) error

	// Healthcheck verifies the store is operational.
	Healthcheck(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
