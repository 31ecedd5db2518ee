package model

import (
	"fmt"
	"strings"
)

// Tag is a flat label that can be attached to any number of items.
type Tag struct {
	ID        string
	Name      string
	Color     string
	CreatedAt int64

	SyncMeta
}

func (t *Tag) LocalID() string   { return t.ID }
func (t *Tag) Variant() Variant  { return VariantTag }
func (t *Tag) Meta() *SyncMeta   { return &t.SyncMeta }
func (t *Tag) ParentRef() string { return "" }

// Validate checks the fields required for a well-formed tag.
func (t *Tag) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("tag id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("tag name is required")
	}
	return nil
}

// ItemTagLink associates one item with one tag. Its local identity is the
// composite "{itemID}:{tagID}"; there is no surrogate key.
type ItemTagLink struct {
	ItemID    string
	TagID     string
	CreatedAt int64

	SyncMeta
}

// LinkID builds the composite local id for an item-tag association.
func LinkID(itemID, tagID string) string {
	return itemID + ":" + tagID
}

// SplitLinkID splits a composite association id back into its parts.
func SplitLinkID(id string) (itemID, tagID string, err error) {
	i := strings.Index(id, ":")
	if i <= 0 || i == len(id)-1 {
		return "", "", fmt.Errorf("malformed item-tag link id: %q", id)
	}
	return id[:i], id[i+1:], nil
}

func (l *ItemTagLink) LocalID() string   { return LinkID(l.ItemID, l.TagID) }
func (l *ItemTagLink) Variant() Variant  { return VariantItemTag }
func (l *ItemTagLink) Meta() *SyncMeta   { return &l.SyncMeta }
func (l *ItemTagLink) ParentRef() string { return "" }

// Validate checks the fields required for a well-formed association.
func (l *ItemTagLink) Validate() error {
	if l.ItemID == "" || l.TagID == "" {
		return fmt.Errorf("item-tag link requires both item id and tag id")
	}
	return nil
}
