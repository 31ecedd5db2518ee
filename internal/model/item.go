package model

import "fmt"

// Item types carried over from the desktop app. Anything outside this set
// is rejected at validation time.
const (
	ItemTypeTask     = "Task"
	ItemTypeNote     = "Note"
	ItemTypeFolder   = "Folder"
	ItemTypeTemplate = "Template"
	ItemTypeProject  = "Project"
	ItemTypeHeading  = "Heading"
	ItemTypeLink     = "Link"
)

// ValidItemType reports whether t is a known item type.
func ValidItemType(t string) bool {
	switch t {
	case ItemTypeTask, ItemTypeNote, ItemTypeFolder, ItemTypeTemplate,
		ItemTypeProject, ItemTypeHeading, ItemTypeLink:
		return true
	}
	return false
}

// Item is a node in the outline: a task, note, folder, or any other
// ItemType. Items form a directed forest via ParentID.
type Item struct {
	ID                string
	Title             string
	ItemType          string
	Notes             string
	ParentID          string // local id of the parent item, "" = root
	SortOrder         int64
	CreatedAt         int64
	CompletedAt       *int64
	DueDate           *int64
	EarliestStartTime *int64

	SyncMeta
}

func (i *Item) LocalID() string   { return i.ID }
func (i *Item) Variant() Variant  { return VariantItem }
func (i *Item) Meta() *SyncMeta   { return &i.SyncMeta }
func (i *Item) ParentRef() string { return i.ParentID }

// Validate checks the fields required for a well-formed item.
func (i *Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("item id is required")
	}
	if i.Title == "" {
		return fmt.Errorf("item title is required")
	}
	if !ValidItemType(i.ItemType) {
		return fmt.Errorf("invalid item type: %q", i.ItemType)
	}
	if i.ParentID == i.ID {
		return fmt.Errorf("item %s cannot be its own parent", i.ID)
	}
	return nil
}
