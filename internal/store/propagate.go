package store

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/shelfmark/shelfmark/internal/kvarea"
)

// DefaultSettleDelay is how long the propagator keeps its reentrancy guard
// held after a reload, absorbing the trailing burst of near-simultaneous
// change events that a single logical write can produce.
const DefaultSettleDelay = 100 * time.Millisecond

// PropagatorConfig holds configuration for the Propagator.
type PropagatorConfig struct {
	// SettleDelay before the reentrancy guard is released.
	SettleDelay time.Duration

	// Logger for propagation activity.
	Logger *log.Logger
}

// DefaultPropagatorConfig returns sensible defaults.
func DefaultPropagatorConfig() *PropagatorConfig {
	return &PropagatorConfig{
		SettleDelay: DefaultSettleDelay,
		Logger:      log.New(os.Stderr, "[propagate] ", log.LstdFlags),
	}
}

// Propagator is the change propagation loop.
//
// It consumes the key-value area's change feed and, for each accepted
// event: invalidates the manager's cache before reloading (so a concurrent
// GetDocument is guaranteed to hit the backend rather than a stale cache),
// reloads the document via ReloadDirect, which bypasses the
// repair/initialize path (that path must never run in reaction to a
// change), and fans the fresh document out to subscribers synchronously.
//
// Events arriving while a cycle is in flight (including its settle window)
// are skipped, coalescing bursts rather than queueing them: overlapping
// reloads are the primary source of stale-cache bugs.
type Propagator struct {
	mgr    *Manager
	config *PropagatorConfig

	busy    atomic.Bool
	skipped atomic.Int64
	cycles  atomic.Int64
}

// NewPropagator creates a propagation loop for the given manager.
func NewPropagator(mgr *Manager, config *PropagatorConfig) *Propagator {
	def := DefaultPropagatorConfig()
	if config == nil {
		config = def
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = def.SettleDelay
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	return &Propagator{mgr: mgr, config: config}
}

// Run consumes events until ctx is cancelled or the feed channel closes.
func (p *Propagator) Run(ctx context.Context, events <-chan kvarea.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Handle(ctx, ev)
		}
	}
}

// Handle processes one change event. Exported so tests and embedders can
// drive the loop without a live feed.
func (p *Propagator) Handle(ctx context.Context, _ kvarea.Event) {
	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return
	}

	// Invalidate before reloading: a concurrent read must miss the cache.
	p.mgr.Invalidate()

	doc, err := p.mgr.ReloadDirect(ctx)
	if err != nil {
		p.config.Logger.Printf("Reload after change failed: %v", err)
	} else {
		p.mgr.Notify(doc)
		p.cycles.Add(1)
	}

	time.AfterFunc(p.config.SettleDelay, func() {
		p.busy.Store(false)
	})
}

// SkippedEvents returns how many events were coalesced away by the
// reentrancy guard.
func (p *Propagator) SkippedEvents() int64 {
	return p.skipped.Load()
}

// Cycles returns how many full invalidate-reload-notify cycles completed.
func (p *Propagator) Cycles() int64 {
	return p.cycles.Load()
}
