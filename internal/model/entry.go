package model

import "fmt"

// TimeEntry records a span of time spent on an item. An entry with a nil
// EndedAt is still running.
type TimeEntry struct {
	ID        string
	ItemID    string
	StartedAt int64
	EndedAt   *int64
	Note      string

	SyncMeta
}

func (e *TimeEntry) LocalID() string   { return e.ID }
func (e *TimeEntry) Variant() Variant  { return VariantTimeEntry }
func (e *TimeEntry) Meta() *SyncMeta   { return &e.SyncMeta }
func (e *TimeEntry) ParentRef() string { return "" }

// Validate checks the fields required for a well-formed time entry.
func (e *TimeEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("time entry id is required")
	}
	if e.ItemID == "" {
		return fmt.Errorf("time entry item id is required")
	}
	if e.EndedAt != nil && *e.EndedAt < e.StartedAt {
		return fmt.Errorf("time entry %s ends before it starts", e.ID)
	}
	return nil
}

// SavedSearch is a stored query, the replacement for smart folders.
type SavedSearch struct {
	ID        string
	Name      string
	Query     string
	SortOrder int64
	CreatedAt int64

	SyncMeta
}

func (s *SavedSearch) LocalID() string   { return s.ID }
func (s *SavedSearch) Variant() Variant  { return VariantSavedSearch }
func (s *SavedSearch) Meta() *SyncMeta   { return &s.SyncMeta }
func (s *SavedSearch) ParentRef() string { return "" }

// Validate checks the fields required for a well-formed saved search.
func (s *SavedSearch) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("saved search id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("saved search name is required")
	}
	return nil
}
