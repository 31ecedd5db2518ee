// Package sync implements the DirectGTD synchronization engine: dirty
// record push, cursor-based incremental pull, last-write-wins conflict
// resolution, dependency-ordered apply, drift detection, and tombstone
// purging against an abstract remote record store.
package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/zendegi/directgtd/internal/remote"
	"github.com/zendegi/directgtd/internal/store"
)

// DefaultRetention is how long confirmed tombstones are kept before the
// janitor may purge them.
const DefaultRetention = 30 * 24 * time.Hour

// Engine composes the sync pipelines over one local store and one remote
// service. Both are injected; the engine owns no globals and holds no
// network or disk state of its own.
//
// The engine is not safe for concurrent sync cycles; the daemon
// serializes runs.
type Engine struct {
	store  *store.Store
	remote remote.Service
	logger *log.Logger

	// now returns epoch seconds; replaceable in tests.
	now func() int64

	// Retention is the tombstone retention window.
	Retention time.Duration

	// OnProgress, if set, receives coarse fractional progress (0..1)
	// during a sync cycle. Used for initial-sync UX.
	OnProgress func(float64)
}

// Stats summarizes one sync cycle.
type Stats struct {
	Pushed        int
	Pulled        int
	Purged        int
	DriftRepaired bool
	Duration      time.Duration
}

// New creates an Engine. If logger is nil, a default logger writing to
// stderr is used.
func New(st *store.Store, svc remote.Service, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		store:     st,
		remote:    svc,
		logger:    logger,
		now:       func() int64 { return time.Now().Unix() },
		Retention: DefaultRetention,
	}
}

func (e *Engine) progress(f float64) {
	if e.OnProgress != nil {
		e.OnProgress(f)
	}
}

// SyncOnce runs one full cycle: push, pull, drift check (only when the
// pull saw nothing), then tombstone purge. Each step is transactional
// against the local store; a failure leaves dirty flags and the cursor
// where the last committed transaction put them.
func (e *Engine) SyncOnce(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}
	e.progress(0)

	pushed, err := e.PushLocalChanges(ctx)
	if err != nil {
		return stats, fmt.Errorf("push: %w", err)
	}
	stats.Pushed = pushed
	e.progress(0.4)

	pulled, err := e.PullRemoteChanges(ctx)
	if err != nil {
		return stats, fmt.Errorf("pull: %w", err)
	}
	stats.Pulled = pulled
	e.progress(0.7)

	if pulled == 0 {
		repaired, n, err := e.DriftCheck(ctx)
		if err != nil {
			return stats, fmt.Errorf("drift check: %w", err)
		}
		stats.DriftRepaired = repaired
		stats.Pulled += n
	}
	e.progress(0.9)

	purged, err := e.PurgeSyncedTombstones(ctx)
	if err != nil {
		return stats, fmt.Errorf("tombstone purge: %w", err)
	}
	stats.Purged = purged

	if err := e.store.SetMetaInt64(ctx, store.MetaLastSyncTimestamp, e.now()); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	e.progress(1)
	e.logger.Printf("sync cycle complete: pushed=%d pulled=%d purged=%d drift=%v in %v",
		stats.Pushed, stats.Pulled, stats.Purged, stats.DriftRepaired, stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// Bootstrap verifies the account, provisions the remote partition, and
// registers for change notifications (best-effort). Called once before
// the daemon starts cycling.
func (e *Engine) Bootstrap(ctx context.Context, deviceID string) error {
	if err := e.remote.CheckAccount(ctx); err != nil {
		return fmt.Errorf("account check: %w", err)
	}
	if err := e.remote.EnsureZone(ctx); err != nil {
		return fmt.Errorf("zone provisioning: %w", err)
	}
	if err := e.remote.RegisterNotifications(ctx, deviceID); err != nil {
		// Notification delivery is best-effort; the periodic fallback
		// timer covers us.
		e.logger.Printf("notification registration failed (continuing): %v", err)
	}
	return nil
}
