// Package storage provides the persistence layer for Kumo.
//
// Everything is stored in an ordered key-value table. Two backends implement
// KV: an embedded SQLite file (the default, for a laptop in the field) and
// PostgreSQL (for a shared ground station). Store layers the run, sample and
// prediction records on top with a msgpack value codec.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// Entry is one key-value pair returned by a scan.
type Entry struct {
	Key   string
	Value []byte
}

// KV is an ordered key-value store. Keys compare bytewise.
// Implementations must be safe for concurrent use.
type KV interface {
	// Put writes value under key, replacing any existing value.
	Put(ctx context.Context, key string, value []byte) error
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Scan returns entries with start <= key < end in key order. A limit of
	// zero or less returns every entry in range.
	Scan(ctx context.Context, start, end string, limit int) ([]Entry, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteRange removes every key in [start, end) and reports how many
	// were removed.
	DeleteRange(ctx context.Context, start, end string) (int64, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close(ctx context.Context)
	// Backend names the implementation for health reporting.
	Backend() string
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p string) string {
	b := []byte(p)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// All 0xff: no upper bound short of infinity.
	return string(append([]byte(p), 0xff))
}
