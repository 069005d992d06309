package store

import (
	"context"
	"fmt"
	"sync"
)

// Store is the observable key-value store the lobby coordinates through.
// Paths are slash-separated (e.g. "players/G1/p42"). The store is
// linearizable per key; nothing is atomic across keys. Implementations may
// be backed by memory (this package) or NATS JetStream KV.
type Store interface {
	// Get performs a one-shot read of a path and its immediate children.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set writes a single leaf value.
	Set(ctx context.Context, path, value string) error

	// Update writes several child leaves of path in one call. Each field is
	// an independent per-key write; there is no cross-field atomicity.
	Update(ctx context.Context, path string, fields map[string]string) error

	// Remove deletes the path and everything under it. Removing an absent
	// path is not an error.
	Remove(ctx context.Context, path string) error

	// Push writes value under a newly generated collision-free child key of
	// path and returns that key.
	Push(ctx context.Context, path, value string) (string, error)

	// QueryEqualTo reads the entries of collection whose top-level key
	// exactly matches key.
	QueryEqualTo(ctx context.Context, collection, key string) (Snapshot, error)

	// Subscribe registers a continuous watch on path. The returned
	// subscription delivers the current snapshot immediately and a fresh
	// snapshot after every change under path, until closed.
	Subscribe(ctx context.Context, path string) (*Subscription, error)
}

// Snapshot is the materialized state of a path at some point in time:
// its own leaf value, if any, and its immediate leaf children.
type Snapshot struct {
	Path     string
	Value    string
	Children map[string]string
}

// Exists reports whether the snapshot holds any data at all.
func (s Snapshot) Exists() bool {
	return s.Value != "" || len(s.Children) > 0
}

// PopulatedFields returns the number of children with non-empty values.
func (s Snapshot) PopulatedFields() int {
	n := 0
	for _, v := range s.Children {
		if v != "" {
			n++
		}
	}
	return n
}

// Subscription is a handle on a continuous watch. Updates are delivered on
// the channel returned by Updates; after Close no further delivery happens
// and the channel is closed. Subscriptions coalesce: a slow consumer sees
// the latest snapshot, not every intermediate one.
type Subscription struct {
	updates chan Snapshot
	stop    func()
	once    sync.Once
}

// Updates returns the snapshot delivery channel.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Close cancels the watch. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.stop)
}

// OperationError reports an asynchronous store failure with enough context
// to identify the operation and key path. Callers log these and proceed;
// nothing in the lobby retries a store write.
type OperationError struct {
	Op   string
	Path string
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
