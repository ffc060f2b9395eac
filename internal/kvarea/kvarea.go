// Package kvarea provides the persistent key-value area backing the bookmark store.
//
// The area is an asynchronous, atomic-per-call get/set/clear store of
// top-level JSON fields plus a change-notification feed. Two backends are
// provided:
//
//   - File: one JSON file per namespace, written atomically, with an
//     fsnotify-driven change feed.
//   - SQLite: a kv table with a revision counter, with a polling change feed.
//
// Both feeds deliver events for the caller's own writes as well as writes by
// other processes sharing the same backing store. Consumers that react to
// the feed must therefore guard against reacting to their own writes.
package kvarea

import (
	"context"
	"encoding/json"
)

// Change describes one top-level field that changed between two versions of
// the persisted value. Old is nil when the key was absent before; New is nil
// when the key was removed.
type Change struct {
	Old json.RawMessage
	New json.RawMessage
}

// Event is one change-feed notification covering every top-level field that
// changed in a single observed transition.
type Event struct {
	Changes map[string]Change
}

// Area is the persistent key-value store contract.
//
// Get with nil keys returns every stored field. Set merges the given fields
// into the stored value in one atomic call; it never removes fields that are
// not named. Clear removes every field atomically.
//
// Watch starts the change feed; the returned channel is closed when ctx is
// cancelled or the area is closed. Delivery is best-effort: a burst of
// writes may be observed as a single coalesced event, and ordering across
// processes is not guaranteed beyond "delivered after the write completed".
type Area interface {
	Get(ctx context.Context, keys []string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, fields map[string]json.RawMessage) error
	Clear(ctx context.Context) error
	Watch(ctx context.Context) (<-chan Event, error)
	Close() error
}

// diffFields computes the per-key changes between two snapshots.
// Returns nil when the snapshots are identical.
func diffFields(old, new map[string]json.RawMessage) map[string]Change {
	changes := make(map[string]Change)
	for key, newVal := range new {
		oldVal, ok := old[key]
		if !ok {
			changes[key] = Change{New: newVal}
			continue
		}
		if string(oldVal) != string(newVal) {
			changes[key] = Change{Old: oldVal, New: newVal}
		}
	}
	for key, oldVal := range old {
		if _, ok := new[key]; !ok {
			changes[key] = Change{Old: oldVal}
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}
