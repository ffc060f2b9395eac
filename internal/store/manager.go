// Package store provides the bookmark/tag store manager.
//
// The Manager is the single façade over the persistent key-value area. It
// owns an in-memory cache of the persisted Document, repairs malformed
// persisted shapes at the read chokepoint, maintains the derived tag index
// incrementally during CRUD, and fans reloaded documents out to subscribers.
//
// # Architecture
//
//   - Manager: cache + CRUD over the Document (manager.go, ops.go)
//   - decodeDocument: the one place dynamic persisted shapes are coerced
//     into the current schema (decode.go)
//   - Recount: repair-time tag count recomputation (recount.go)
//   - Propagator: reacts to the key-value area's change feed, invalidates
//     the cache, reloads without repair, and notifies subscribers
//     (propagate.go)
//
// Every mutating operation is a read-modify-write of the whole Document
// with no compare-and-swap: two managers in different processes sharing one
// backend can lose one writer's change (last write wins). That is an
// accepted limitation of the design, not a guarantee; see the package tests.
package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfmark/shelfmark/internal/kvarea"
	"github.com/shelfmark/shelfmark/internal/model"
)

// Config holds configuration for the Manager.
type Config struct {
	// StarterTags are seeded at first initialization, minus any name in the
	// suppression ledger.
	StarterTags []string

	// Logger for store activity.
	Logger *log.Logger

	// Now returns the current time. Overridable for tests.
	Now func() time.Time

	// NewID mints identifiers for bookmarks and tags. Overridable for tests.
	NewID func() string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StarterTags: model.DefaultStarterTags,
		Logger:      log.New(os.Stderr, "[store] ", log.LstdFlags),
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// Manager is the process-wide store façade.
//
// A nil cache means "must reload from storage". All exported methods are
// safe for concurrent use within one process; cross-process coordination is
// limited to the backend's change feed (see Propagator).
type Manager struct {
	area   kvarea.Area
	config *Config

	mu       sync.Mutex
	cache    *model.Document
	fallback bool // backend read failed; session runs on the in-memory document only

	subMu   sync.Mutex
	subs    []*subscriber
	nextSub int
}

type subscriber struct {
	id int
	cb func(*model.Document)
}

// NewManager creates a Manager over the given key-value area.
//
// Construction is cheap and performs no I/O; the first GetDocument call
// loads (and if necessary initializes) the persisted document.
func NewManager(area kvarea.Area, config *Config) *Manager {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.StarterTags == nil {
		config.StarterTags = def.StarterTags
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	if config.NewID == nil {
		config.NewID = def.NewID
	}
	return &Manager{area: area, config: config}
}

// GetDocument returns the current document, loading and repairing the
// persisted value if the cache is empty.
//
// Callers always receive a well-formed Document: malformed persisted shapes
// are coerced (and the correction persisted once), a missing shape triggers
// initialization, and a failing backend read degrades to an in-memory
// fallback document for the rest of the session. The returned document is a
// clone; mutating it does not affect the store.
func (m *Manager) GetDocument(ctx context.Context) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.documentLocked(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

// documentLocked returns the cached document, loading it if absent.
// The caller must hold m.mu. The returned document is the cache itself.
func (m *Manager) documentLocked(ctx context.Context) (*model.Document, error) {
	if m.cache != nil {
		return m.cache, nil
	}

	fields, err := m.area.Get(ctx, nil)
	if err != nil {
		// Reads are masked: the UI must always have something to render.
		// The session keeps working against memory but is not durable.
		m.config.Logger.Printf("Backend read failed, falling back to in-memory document: %v", err)
		doc := m.buildInitialDocument(model.Ledger{})
		if perr := m.persistLocked(ctx, doc); perr != nil {
			m.config.Logger.Printf("Failed to persist fallback document: %v", perr)
		}
		m.fallback = true
		m.cache = doc
		return doc, nil
	}

	if !isComplete(fields) {
		// Preserve an existing ledger across initialization so deleted
		// starter tags stay suppressed.
		ledger, _ := decodeLedger(fields[keyLedger])
		return m.initializeLocked(ctx, ledger), nil
	}

	doc, coercedShape := decodeDocument(fields)
	if coercedShape {
		m.config.Logger.Printf("Repaired persisted document: %v", ErrInvalidShape)
		Recount(doc, false)
		if err := m.persistLocked(ctx, doc); err != nil {
			m.config.Logger.Printf("Failed to persist repaired document: %v", err)
		}
	}
	m.cache = doc
	return doc, nil
}

// initializeLocked builds a fresh document with starter tags (minus
// suppressed names), persists it, and populates the cache.
//
// This runs only when the persisted shape is missing required top-level
// fields, never on every read: re-running it unconditionally is what
// resurrects deleted starter tags.
func (m *Manager) initializeLocked(ctx context.Context, ledger model.Ledger) *model.Document {
	doc := m.buildInitialDocument(ledger)
	if err := m.persistLocked(ctx, doc); err != nil {
		m.config.Logger.Printf("Failed to persist initialized document: %v", err)
		m.fallback = true
	}
	m.cache = doc
	return doc
}

func (m *Manager) buildInitialDocument(ledger model.Ledger) *model.Document {
	doc := model.NewDocument()
	if ledger != nil {
		doc.Deleted = ledger
	}
	now := m.config.Now()
	for _, name := range m.config.StarterTags {
		if doc.Deleted.Contains(name) {
			continue
		}
		tag := &model.Tag{
			ID:        m.config.NewID(),
			Name:      name,
			Count:     0,
			CreatedAt: now,
		}
		doc.Tags[tag.Key()] = tag
	}
	// First initialization: starter tags are deliberately at count zero and
	// must survive the recount.
	Recount(doc, true)
	return doc
}

// persistLocked writes the whole document to the backend. In fallback mode
// the write is skipped: the session is in-memory only.
func (m *Manager) persistLocked(ctx context.Context, doc *model.Document) error {
	if m.fallback {
		return nil
	}
	fields, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := m.area.Set(ctx, fields); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// mutate runs fn against a clone of the current document and persists the
// result atomically (one Set covering every top-level field). The cache is
// swapped only after a successful persist, so a rejected write leaves the
// manager's state untouched.
func (m *Manager) mutate(ctx context.Context, fn func(doc *model.Document) error) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.documentLocked(ctx)
	if err != nil {
		return nil, err
	}
	work := current.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	if err := m.persistLocked(ctx, work); err != nil {
		return nil, err
	}
	m.cache = work
	return work, nil
}

// Invalidate drops the in-memory cache so the next read hits the backend.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cache = nil
	m.mu.Unlock()
}

// ReloadDirect reloads the document from the backend without the
// repair/initialize path: it never writes, and a missing or partial shape
// decodes to whatever is there. The propagation loop uses this so reacting
// to another process's write can never resurrect deleted starter tags.
func (m *Manager) ReloadDirect(ctx context.Context) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields, err := m.area.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to reload document: %w", err)
	}
	doc, _ := decodeDocument(fields)
	m.cache = doc
	return doc.Clone(), nil
}

// AddListener registers a subscriber callback that receives the full
// reloaded document on every propagated change. Callbacks run synchronously
// in subscription order. The returned unsubscribe function is idempotent.
func (m *Manager) AddListener(cb func(*model.Document)) func() {
	m.subMu.Lock()
	sub := &subscriber{id: m.nextSub, cb: cb}
	m.nextSub++
	m.subs = append(m.subs, sub)
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			for i, s := range m.subs {
				if s.id == sub.id {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify fans the document out to every subscriber in subscription order.
// Each subscriber receives its own clone.
func (m *Manager) Notify(doc *model.Document) {
	m.subMu.Lock()
	subs := make([]*subscriber, len(m.subs))
	copy(subs, m.subs)
	m.subMu.Unlock()

	for _, sub := range subs {
		sub.cb(doc.Clone())
	}
}

// ListenerCount returns the number of registered subscribers.
func (m *Manager) ListenerCount() int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subs)
}
