// Package kv is a small key-value store with hierarchical keys.
//
// Keys are string segments joined with ':' when encoded, so
// Key{"profile", "alice"} is stored as "profile:alice". List scans by
// segment prefix: Key{"profile"} matches "profile:alice" but not
// "profiles:x".
//
// Badger is the on-disk implementation; Memory is for tests and
// ephemeral runs.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

const separator = ":"

// Key is a hierarchical path. Segments must not contain ':'.
type Key []string

func (k Key) String() string {
	return strings.Join(k, separator)
}

func (k Key) prefix() string {
	if len(k) == 0 {
		return ""
	}
	return k.String() + separator
}

func parseKey(s string) Key {
	return Key(strings.Split(s, separator))
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface implemented by Badger and Memory.
type Store interface {
	// Get returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error
	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Close() error
}
