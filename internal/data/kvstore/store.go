// Package kvstore is the persistence layer the workflow engine runs on: a
// plain key/value document store with secondary scans, member sets and
// counters. No multi-key transactions; every backend is last-writer-wins.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document id is absent from a collection.
var ErrNotFound = errors.New("kvstore: not found")

type Store interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Put(ctx context.Context, collection, id string, doc []byte) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) (map[string][]byte, error)

	SetAdd(ctx context.Context, key, member string) error
	// SetAddNX adds member only when absent and reports whether it was
	// newly added. Backends with a native compare-and-set (redis SADD
	// return value, sqlite ON CONFLICT) use it; the idempotency ledger
	// relies on this to narrow its check-then-mark window.
	SetAddNX(ctx context.Context, key, member string) (bool, error)
	SetRemove(ctx context.Context, key, member string) error
	SetContains(ctx context.Context, key, member string) (bool, error)
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Incr returns the next value of a monotonic counter. The event log
	// uses it to order entries within one entity-type stream.
	Incr(ctx context.Context, key string) (int64, error)

	Close() error
}
