package daemon

import (
	"sync"
	"time"
)

// State is the daemon's externally visible sync state.
type State string

const (
	// StateDisabled means sync is off: no account, a restricted account,
	// or the user turned it off in config.
	StateDisabled State = "disabled"
	// StateIdle means the daemon is waiting for changes or the periodic
	// timer.
	StateIdle State = "idle"
	// StateSyncing means a cycle is in flight.
	StateSyncing State = "syncing"
	// StateInitialSync means the first full download is in flight;
	// Progress carries its fraction.
	StateInitialSync State = "initial-sync"
	// StateError means the last cycle failed. The error is surfaced for
	// a bounded window, then the state reads as idle again.
	StateError State = "error"
)

// Status is a point-in-time snapshot of the daemon.
type Status struct {
	State      State
	Progress   float64
	LastError  string
	LastSyncAt time.Time
}

// statusTracker holds the mutable state machine behind Status snapshots.
// An error state decays back to idle after the display window, without
// anyone having to clear it.
type statusTracker struct {
	mu          sync.Mutex
	state       State
	progress    float64
	lastError   string
	lastErrorAt time.Time
	lastSyncAt  time.Time
	errorWindow time.Duration
}

func newStatusTracker(errorWindow time.Duration) *statusTracker {
	return &statusTracker{state: StateIdle, errorWindow: errorWindow}
}

func (st *statusTracker) set(s State) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = s
	if s != StateInitialSync {
		st.progress = 0
	}
}

func (st *statusTracker) setProgress(f float64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.progress = f
}

func (st *statusTracker) setError(err error, now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = StateError
	st.lastError = err.Error()
	st.lastErrorAt = now
}

func (st *statusTracker) setSynced(now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = StateIdle
	st.lastError = ""
	st.lastSyncAt = now
}

// snapshot returns the current status, decaying a stale error to idle.
func (st *statusTracker) snapshot(now time.Time) Status {
	st.mu.Lock()
	defer st.mu.Unlock()

	state := st.state
	if state == StateError && now.Sub(st.lastErrorAt) > st.errorWindow {
		state = StateIdle
	}
	return Status{
		State:      state,
		Progress:   st.progress,
		LastError:  st.lastError,
		LastSyncAt: st.lastSyncAt,
	}
}
