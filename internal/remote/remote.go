// Package remote defines the contract the sync engine holds against the
// remote record store, plus an HTTP client and a websocket notification
// listener implementing it.
//
// The engine never talks to a concrete transport: everything flows through
// the Service interface so tests can substitute an in-memory fake.
package remote

import "context"

// BatchLimit is the hard cap on records per batch write call. The pipelines
// chunk at this size; the client rejects oversized batches outright.
const BatchLimit = 400

// WireRecord is the transport representation of one syncable record.
//
// ChangeTag and SystemFields are opaque server tokens: the client stores
// and replays them verbatim for optimistic-concurrency writes but never
// interprets their contents.
type WireRecord struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	ModifiedAt   int64          `json:"modified_at"`
	Fields       map[string]any `json:"fields"`
	ChangeTag    []byte         `json:"change_tag,omitempty"`
	SystemFields []byte         `json:"system_fields,omitempty"`
}

// ChangePage is one page of incremental changes from the remote store.
type ChangePage struct {
	Changed []WireRecord `json:"changed"`
	// Deleted lists remote record names deleted since the cursor.
	Deleted []string `json:"deleted"`
	// Cursor is the opaque resume token covering everything up to and
	// including this page.
	Cursor []byte `json:"cursor"`
	// More signals that further pages are pending.
	More bool `json:"more"`
}

// Outcome is the per-record result of a batch write.
type Outcome string

const (
	// OutcomeSaved means the record was accepted; ChangeTag and
	// SystemFields carry the new tokens.
	OutcomeSaved Outcome = "saved"
	// OutcomeDeleted means the delete was accepted, or the record was
	// already absent remotely.
	OutcomeDeleted Outcome = "deleted"
	// OutcomeConflict means the write lost an optimistic-concurrency
	// check; ServerRecord carries the remote's current version if the
	// server could include it.
	OutcomeConflict Outcome = "conflict"
	// OutcomeFailed means a per-record failure that is neither a conflict
	// nor fatal to the batch. The record stays dirty for the next cycle.
	OutcomeFailed Outcome = "failed"
)

// WriteResult is the per-record outcome of a non-atomic batch write.
type WriteResult struct {
	Name         string      `json:"name"`
	Outcome      Outcome     `json:"outcome"`
	ChangeTag    []byte      `json:"change_tag,omitempty"`
	SystemFields []byte      `json:"system_fields,omitempty"`
	ServerRecord *WireRecord `json:"server_record,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Service is the abstract remote record store.
type Service interface {
	// CheckAccount verifies the account is usable. Returns ErrNoAccount or
	// ErrRestricted when sync must stay disabled.
	CheckAccount(ctx context.Context) error

	// EnsureZone provisions the remote partition holding this user's
	// records. Idempotent.
	EnsureZone(ctx context.Context) error

	// FetchChanges returns one page of changes since cursor. A nil cursor
	// requests everything from the beginning. Returns ErrCursorExpired
	// when the cursor is no longer valid and ErrZoneNotFound when the
	// partition is gone.
	FetchChanges(ctx context.Context, cursor []byte) (*ChangePage, error)

	// BatchWrite saves and deletes records in one non-atomic call.
	// len(saves)+len(deletes) must not exceed BatchLimit. Partial success
	// is normal; per-record results are returned in unspecified order.
	BatchWrite(ctx context.Context, saves []WireRecord, deletes []string) ([]WriteResult, error)

	// RegisterNotifications subscribes this device to change pings.
	// Best-effort: delivery is not guaranteed and failure is not fatal.
	RegisterNotifications(ctx context.Context, deviceID string) error
}
