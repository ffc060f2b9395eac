// Package daemon composes the long-running pieces of shelfmark: the
// key-value area's change feed, the store's change propagation loop, and
// the surfaces WebSocket server.
//
// The daemon:
//  1. Warms the store cache (running repair/initialization exactly once)
//  2. Starts the backend change feed
//  3. Runs the propagation loop against the feed
//  4. Optionally serves connected UI surfaces over WebSocket
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/shelfmark/shelfmark/internal/kvarea"
	"github.com/shelfmark/shelfmark/internal/store"
	"github.com/shelfmark/shelfmark/internal/surfaces"
)

// Config holds configuration for the daemon.
type Config struct {
	// Propagator configures the change propagation loop.
	Propagator *store.PropagatorConfig

	// Surfaces configures the WebSocket server; nil disables it.
	Surfaces *surfaces.Config

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults (surfaces server disabled).
func DefaultConfig() *Config {
	return &Config{
		Propagator: store.DefaultPropagatorConfig(),
		Logger:     log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon wires the area feed, propagation loop, and surfaces server.
type Daemon struct {
	area   kvarea.Area
	mgr    *store.Manager
	config *Config

	prop *store.Propagator
	srv  *surfaces.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon over an already-constructed area and manager.
func New(area kvarea.Area, mgr *store.Manager, config *Config) (*Daemon, error) {
	if area == nil {
		return nil, fmt.Errorf("area cannot be nil")
	}
	if mgr == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	d := &Daemon{
		area:   area,
		mgr:    mgr,
		config: config,
		prop:   store.NewPropagator(mgr, config.Propagator),
	}
	if config.Surfaces != nil {
		d.srv = surfaces.NewServer(mgr, config.Surfaces)
	}
	return d, nil
}

// Start runs the daemon until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Load (and if needed repair/initialize) the document up front so the
	// propagation loop never has to.
	if _, err := d.mgr.GetDocument(runCtx); err != nil {
		cancel()
		return fmt.Errorf("initial load failed: %w", err)
	}

	events, err := d.area.Watch(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start change feed: %w", err)
	}

	if d.srv != nil {
		if err := d.srv.Start(); err != nil {
			cancel()
			return fmt.Errorf("failed to start surfaces server: %w", err)
		}
		d.config.Logger.Printf("Surfaces server on %s", d.srv.Addr())
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.prop.Run(runCtx, events)
	}()

	<-runCtx.Done()
	return d.Stop()
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	if d.srv != nil {
		if err := d.srv.Stop(); err != nil {
			d.config.Logger.Printf("Error stopping surfaces server: %v", err)
		}
	}

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// Propagator exposes the propagation loop, mainly for tests and stats.
func (d *Daemon) Propagator() *store.Propagator {
	return d.prop
}
