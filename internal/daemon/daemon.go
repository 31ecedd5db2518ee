// Package daemon runs the background sync orchestrator: it bootstraps the
// remote connection, performs the initial full download, and then keeps
// the local store converged by reacting to change requests (debounced and
// coalesced), a periodic fallback timer, and config file edits.
package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zendegi/directgtd/internal/remote"
	"github.com/zendegi/directgtd/internal/store"
	"github.com/zendegi/directgtd/internal/sync"
)

// Config holds daemon tuning knobs.
type Config struct {
	// DebounceInterval is how long to sit on a sync request before acting,
	// so a burst of local edits becomes one cycle.
	DebounceInterval time.Duration

	// PeriodicInterval is the fallback cadence when no notifications
	// arrive. Push notifications are best-effort; this timer is not.
	PeriodicInterval time.Duration

	// ErrorDisplayWindow is how long a failed cycle stays visible in
	// Status before decaying back to idle.
	ErrorDisplayWindow time.Duration

	// ConfigPath, when set, is watched for edits; the sync_enabled
	// setting is re-read on change.
	ConfigPath string

	// EnabledFn reports whether sync is enabled. When nil, the flag
	// persisted in the store is consulted instead.
	EnabledFn func() (bool, error)

	// Retry governs per-cycle retries of transient failures.
	Retry sync.RetryPolicy

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval:   2 * time.Second,
		PeriodicInterval:   5 * time.Minute,
		ErrorDisplayWindow: time.Minute,
		Retry:              sync.DefaultRetryPolicy(),
		Logger:             log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates sync cycles over one engine. At most one cycle runs
// at a time; requests arriving mid-cycle coalesce into a single follow-up.
type Daemon struct {
	store  *store.Store
	engine *sync.Engine
	config *Config

	status   *statusTracker
	requests chan struct{}
	reenable chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a Daemon around an existing store and engine.
func New(st *store.Store, engine *sync.Engine, config *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		store:    st,
		engine:   engine,
		config:   config,
		status:   newStatusTracker(config.ErrorDisplayWindow),
		requests: make(chan struct{}, 1),
		reenable: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Status returns a snapshot of the daemon's current state.
func (d *Daemon) Status() Status {
	return d.status.snapshot(time.Now())
}

// RequestSync asks for a sync cycle soon. Safe to call from any
// goroutine; requests raised while one is already pending coalesce.
func (d *Daemon) RequestSync() {
	select {
	case d.requests <- struct{}{}:
	default:
	}
}

// Run starts the daemon and blocks until ctx is cancelled or Stop is
// called. Bootstraps the remote connection, runs the initial full
// download if it never completed, then services debounced requests and
// the periodic timer.
func (d *Daemon) Run(ctx context.Context) error {
	d.config.Logger.Println("starting sync daemon")

	enabled, err := d.syncEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		d.config.Logger.Println("sync disabled in settings")
		d.status.set(StateDisabled)
	} else if err := d.bootstrap(ctx); err != nil {
		return err
	}

	if d.config.ConfigPath != "" {
		if err := d.watchConfig(); err != nil {
			d.config.Logger.Printf("config watch unavailable: %v", err)
		}
	}

	ticker := time.NewTicker(d.config.PeriodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("shutdown signal received")
			return d.Stop()
		case <-d.ctx.Done():
			return nil

		case <-d.requests:
			d.debounce(ctx)
			d.runCycle(ctx)

		case <-ticker.C:
			d.runCycle(ctx)

		case <-d.reenable:
			// Bootstrapping here, on the loop goroutine, keeps the
			// single-cycle guarantee: the watcher only signals.
			if d.Status().State != StateDisabled {
				continue
			}
			d.config.Logger.Println("sync enabled")
			d.status.set(StateIdle)
			if err := d.bootstrap(ctx); err != nil {
				d.config.Logger.Printf("re-enable bootstrap failed: %v", err)
				d.status.setError(err, time.Now())
			}
		}
	}
}

// Stop shuts the daemon down and waits for background goroutines.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("stopping sync daemon")
	d.cancel()
	d.wg.Wait()
	d.config.Logger.Println("daemon stopped")
	return nil
}

// bootstrap verifies the account, provisions the zone, and runs the
// initial full download if it has never completed. Account-level refusals
// park the daemon in the disabled state instead of failing Run.
func (d *Daemon) bootstrap(ctx context.Context) error {
	deviceID, err := d.ensureDeviceID(ctx)
	if err != nil {
		return err
	}

	if err := d.engine.Bootstrap(ctx, deviceID); err != nil {
		if errors.Is(err, remote.ErrNoAccount) || errors.Is(err, remote.ErrRestricted) {
			d.config.Logger.Printf("sync unavailable: %v", err)
			d.status.set(StateDisabled)
			return nil
		}
		return fmt.Errorf("bootstrap: %w", err)
	}

	done, err := d.store.GetMetaBool(ctx, store.MetaInitialSyncComplete)
	if err != nil {
		return err
	}
	if done {
		d.status.set(StateIdle)
		d.RequestSync()
		return nil
	}

	d.config.Logger.Println("running initial sync")
	d.status.set(StateInitialSync)
	d.engine.OnProgress = d.status.setProgress
	err = d.config.Retry.Run(ctx, d.config.Logger, func(ctx context.Context) error {
		_, err := d.engine.SyncOnce(ctx)
		return err
	})
	d.engine.OnProgress = nil
	if err != nil {
		d.status.setError(err, time.Now())
		return fmt.Errorf("initial sync: %w", err)
	}

	if err := d.store.SetMetaBool(ctx, store.MetaInitialSyncComplete, true); err != nil {
		return err
	}
	d.status.setSynced(time.Now())
	d.config.Logger.Println("initial sync complete")
	return nil
}

// syncEnabled consults the configured source for the sync toggle.
func (d *Daemon) syncEnabled(ctx context.Context) (bool, error) {
	if d.config.EnabledFn != nil {
		return d.config.EnabledFn()
	}
	return d.store.GetMetaBool(ctx, store.MetaSyncEnabled)
}

// DeviceID returns this installation's stable device identity, minting
// and persisting one on first use. Callers that need the id before Run
// has bootstrapped (the notification listener does) get the same value
// bootstrap will later read back.
func (d *Daemon) DeviceID(ctx context.Context) (string, error) {
	return d.ensureDeviceID(ctx)
}

// ensureDeviceID returns the stable device identity, minting one on first
// run.
func (d *Daemon) ensureDeviceID(ctx context.Context) (string, error) {
	raw, err := d.store.GetMeta(ctx, store.MetaDeviceID)
	if err != nil {
		return "", err
	}
	if len(raw) > 0 {
		return string(raw), nil
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate device id: %w", err)
	}
	id := hex.EncodeToString(buf)
	if err := d.store.SetMeta(ctx, store.MetaDeviceID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

// debounce waits out the debounce window, absorbing any further requests
// that land during it.
func (d *Daemon) debounce(ctx context.Context) {
	timer := time.NewTimer(d.config.DebounceInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return
		case <-d.requests:
			// Coalesced into this cycle.
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		}
	}
}

// runCycle executes one sync cycle under the retry policy and updates the
// visible status.
func (d *Daemon) runCycle(ctx context.Context) {
	if d.Status().State == StateDisabled {
		return
	}

	d.status.set(StateSyncing)
	err := d.config.Retry.Run(ctx, d.config.Logger, func(ctx context.Context) error {
		_, err := d.engine.SyncOnce(ctx)
		return err
	})
	if err != nil {
		d.config.Logger.Printf("sync cycle failed: %v", err)
		d.status.setError(err, time.Now())
		return
	}
	d.status.setSynced(time.Now())
}

// watchConfig watches the config file and re-reads the sync_enabled
// setting on edits, flipping the daemon between disabled and idle.
func (d *Daemon) watchConfig() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: editors replace the file, which would drop a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(d.config.ConfigPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer watcher.Close()

		for {
			select {
			case <-d.ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(d.config.ConfigPath) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				d.config.Logger.Printf("config changed: %s", event.Name)
				d.reloadEnabled()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.config.Logger.Printf("config watcher error: %v", err)
			}
		}
	}()
	return nil
}

// reloadEnabled re-reads the persisted sync_enabled flag and moves the
// daemon in or out of the disabled state. Runs on the watcher goroutine,
// so re-enabling only signals the Run loop; every sync cycle, bootstrap
// included, stays on that one goroutine.
func (d *Daemon) reloadEnabled() {
	ctx, cancelCtx := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancelCtx()

	enabled, err := d.syncEnabled(ctx)
	if err != nil {
		d.config.Logger.Printf("failed to re-read sync setting: %v", err)
		return
	}

	current := d.Status().State
	switch {
	case enabled && current == StateDisabled:
		select {
		case d.reenable <- struct{}{}:
		default:
		}
	case !enabled && current != StateDisabled:
		d.config.Logger.Println("sync disabled")
		d.status.set(StateDisabled)
	}
}
