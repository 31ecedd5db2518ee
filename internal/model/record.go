// Package model defines the five syncable record variants of DirectGTD
// (items, tags, item-tag links, time entries, saved searches) and the
// sync bookkeeping they share.
package model

import (
	"fmt"
	"strings"
)

// Variant identifies one of the five syncable record kinds. The value is
// also the type prefix used when deriving remote record names.
type Variant string

const (
	VariantItem        Variant = "Item"
	VariantTag         Variant = "Tag"
	VariantItemTag     Variant = "ItemTag"
	VariantTimeEntry   Variant = "TimeEntry"
	VariantSavedSearch Variant = "SavedSearch"
)

// Variants returns all record variants in the canonical iteration order
// used by the pipelines: hierarchical records first, then the records
// that reference them.
func Variants() []Variant {
	return []Variant{VariantItem, VariantTag, VariantItemTag, VariantTimeEntry, VariantSavedSearch}
}

// IsValid reports whether v is one of the known variants.
func (v Variant) IsValid() bool {
	switch v {
	case VariantItem, VariantTag, VariantItemTag, VariantTimeEntry, VariantSavedSearch:
		return true
	}
	return false
}

// RemoteName derives the deterministic remote record name for a local id.
// The scheme "{Variant}_{localID}" makes the first upload of a record
// idempotent: retrying a failed first push targets the same remote record.
func (v Variant) RemoteName(localID string) string {
	return fmt.Sprintf("%s_%s", v, localID)
}

// ParseRemoteName splits a remote record name into variant and local id.
func ParseRemoteName(name string) (Variant, string, error) {
	i := strings.Index(name, "_")
	if i <= 0 || i == len(name)-1 {
		return "", "", fmt.Errorf("malformed remote record name: %q", name)
	}
	v := Variant(name[:i])
	if !v.IsValid() {
		return "", "", fmt.Errorf("unknown variant in remote record name: %q", name)
	}
	return v, name[i+1:], nil
}

// SyncMeta carries the per-record sync state shared by every variant.
//
// ChangeTag and SystemFields are opaque tokens issued by the remote store.
// They are stored and replayed verbatim; the engine never inspects them.
type SyncMeta struct {
	// ModifiedAt is the conflict-resolution clock (epoch seconds).
	ModifiedAt int64
	// RemoteName is the stable remote identity, empty until first assigned.
	RemoteName string
	// ChangeTag is the last-known remote version stamp.
	ChangeTag []byte
	// SystemFields is remote-internal bookkeeping needed for update requests.
	SystemFields []byte
	// NeedsPush marks the record dirty: local state not yet confirmed remote.
	NeedsPush bool
	// DeletedAt, when set, marks the record as a tombstone (epoch seconds).
	DeletedAt *int64
}

// Tombstone reports whether the record is soft-deleted.
func (m *SyncMeta) Tombstone() bool {
	return m.DeletedAt != nil
}

// ClearRemote drops the remote version tokens. Used when the remote copy is
// gone so that a local recreation is treated as a brand-new record.
func (m *SyncMeta) ClearRemote() {
	m.ChangeTag = nil
	m.SystemFields = nil
}

// Record is the single dispatch point the sync pipelines operate on.
// Each variant implements it; the pipelines never branch per type beyond
// identity lookup.
type Record interface {
	// LocalID is the stable local identifier. For the association variant
	// this is the composite "{itemID}:{tagID}".
	LocalID() string
	Variant() Variant
	Meta() *SyncMeta
	// ParentRef returns the local id of the record that must be applied
	// before this one (an item's parent), or "" when ordering is free.
	ParentRef() string
}

// EnsureRemoteName assigns the deterministic remote name if the record has
// never been pushed. Returns the name in either case.
func EnsureRemoteName(r Record) string {
	m := r.Meta()
	if m.RemoteName == "" {
		m.RemoteName = r.Variant().RemoteName(r.LocalID())
	}
	return m.RemoteName
}
