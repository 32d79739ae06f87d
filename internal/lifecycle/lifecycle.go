// Package lifecycle coordinates startup (load persisted profiles, start the
// heartbeat) and graceful shutdown (stop the heartbeat, flush final state).
// Persistence is best-effort in both directions: a failed load is a logged
// degraded start, a timed-out flush never blocks process exit.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"evoloop/internal/heartbeat"
	"evoloop/internal/persist"
	"evoloop/internal/profile"
)

// #region config

// Config bounds the persistence interactions.
type Config struct {
	// LoadTimeout caps the startup load. Defaults to 5s.
	LoadTimeout time.Duration
	// FlushTimeout caps the shutdown flush. Defaults to 5s.
	FlushTimeout time.Duration
}

// DefaultConfig returns the standard timeouts.
func DefaultConfig() Config {
	return Config{LoadTimeout: 5 * time.Second, FlushTimeout: 5 * time.Second}
}

// #endregion config

// #region manager

// Manager owns the startup/shutdown sequence around the scheduler.
type Manager struct {
	cfg      Config
	store    *persist.Store
	registry *profile.Registry
	sched    *heartbeat.Scheduler
}

// NewManager wires a lifecycle manager over its collaborators.
func NewManager(cfg Config, store *persist.Store, registry *profile.Registry, sched *heartbeat.Scheduler) *Manager {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultConfig().LoadTimeout
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultConfig().FlushTimeout
	}
	return &Manager{cfg: cfg, store: store, registry: registry, sched: sched}
}

// #endregion manager

// #region startup

// Startup restores persisted profiles into the registry and starts the
// scheduler. A load failure degrades to an empty registry; it never aborts
// startup.
func (m *Manager) Startup(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, m.cfg.LoadTimeout)
	defer cancel()

	restored := 0
	if m.store != nil {
		profiles, err := m.store.LoadAll(loadCtx)
		if err != nil {
			log.Printf("[LIFECYCLE] degraded start: profile load failed, continuing with zero profiles: %v", err)
		} else {
			for _, p := range profiles {
				m.registry.Restore(p)
				restored++
			}
		}
	}

	if err := m.sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	log.Printf("[LIFECYCLE] started with %d restored profiles", restored)
	return nil
}

// #endregion startup

// #region shutdown

// Shutdown stops the scheduler; the scheduler's flush hook persists final
// state before the terminal event fires. Flush errors are logged inside the
// hook and never propagate here.
func (m *Manager) Shutdown(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(ctx, m.cfg.FlushTimeout)
	defer cancel()

	if err := m.sched.Stop(flushCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	log.Printf("[LIFECYCLE] shutdown complete")
	return nil
}

// #endregion shutdown

// #region flush

// FlushAll returns the scheduler flush hook: it saves every registered
// profile, best-effort per profile, and reports the first failure.
func FlushAll(store *persist.Store, registry *profile.Registry) heartbeat.FlushFunc {
	return func(ctx context.Context) error {
		if store == nil {
			return nil
		}
		var firstErr error
		for _, id := range registry.List() {
			p, err := registry.Get(id)
			if err != nil {
				continue
			}
			if err := store.Save(ctx, p); err != nil {
				log.Printf("[LIFECYCLE] flush of profile %s failed: %v", id, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr
	}
}

// #endregion flush
