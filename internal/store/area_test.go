package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shelfmark/shelfmark/internal/kvarea"
)

// fakeArea is an in-memory kvarea.Area with injectable failures and write
// counting, shared by the manager and propagator tests.
type fakeArea struct {
	mu     sync.Mutex
	fields map[string]json.RawMessage
	sets   int
	clears int
	gets   int

	getErr error
	setErr error

	events chan kvarea.Event
}

func newFakeArea() *fakeArea {
	return &fakeArea{
		fields: map[string]json.RawMessage{},
		events: make(chan kvarea.Event, 16),
	}
}

func (a *fakeArea) Get(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gets++
	if a.getErr != nil {
		return nil, a.getErr
	}
	out := make(map[string]json.RawMessage, len(a.fields))
	for key, val := range a.fields {
		if keys == nil || containsKey(keys, key) {
			out[key] = val
		}
	}
	return out, nil
}

func (a *fakeArea) Set(ctx context.Context, fields map[string]json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.setErr != nil {
		return a.setErr
	}
	for key, val := range fields {
		a.fields[key] = val
	}
	a.sets++
	return nil
}

func (a *fakeArea) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields = map[string]json.RawMessage{}
	a.clears++
	return nil
}

func (a *fakeArea) Watch(ctx context.Context) (<-chan kvarea.Event, error) {
	return a.events, nil
}

func (a *fakeArea) Close() error { return nil }

// setCount returns how many Set calls succeeded.
func (a *fakeArea) setCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sets
}

// putRaw seeds a raw field, bypassing the manager.
func (a *fakeArea) putRaw(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields[key] = json.RawMessage(value)
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// newTestManager builds a manager with a deterministic clock and id
// sequence over the given area.
func newTestManager(t *testing.T, area kvarea.Area, starters ...string) *Manager {
	t.Helper()

	if starters == nil {
		starters = []string{"Work", "Learning"}
	}
	ids := 0
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return NewManager(area, &Config{
		StarterTags: starters,
		Logger:      log.New(io.Discard, "", 0),
		Now:         func() time.Time { return base },
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%03d", ids)
		},
	})
}
