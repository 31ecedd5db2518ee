package sync

import (
	"encoding/json"
	"fmt"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/remote"
)

// ToWire converts a local record to its remote wire representation.
//
// The record's stored system fields are carried along as the base of the
// update request so the remote side keeps its internal identity; the
// remote name is assigned deterministically on first conversion.
func ToWire(r model.Record) remote.WireRecord {
	m := r.Meta()
	w := remote.WireRecord{
		Name:         model.EnsureRemoteName(r),
		Type:         string(r.Variant()),
		ModifiedAt:   m.ModifiedAt,
		ChangeTag:    m.ChangeTag,
		SystemFields: m.SystemFields,
	}

	switch rec := r.(type) {
	case *model.Item:
		w.Fields = map[string]any{
			"title":      rec.Title,
			"item_type":  rec.ItemType,
			"notes":      rec.Notes,
			"sort_order": rec.SortOrder,
			"created_at": rec.CreatedAt,
		}
		putOpt(w.Fields, "parent_id", rec.ParentID)
		putOptInt(w.Fields, "completed_at", rec.CompletedAt)
		putOptInt(w.Fields, "due_date", rec.DueDate)
		putOptInt(w.Fields, "earliest_start_time", rec.EarliestStartTime)
	case *model.Tag:
		w.Fields = map[string]any{
			"name":       rec.Name,
			"color":      rec.Color,
			"created_at": rec.CreatedAt,
		}
	case *model.ItemTagLink:
		w.Fields = map[string]any{
			"item_id":    rec.ItemID,
			"tag_id":     rec.TagID,
			"created_at": rec.CreatedAt,
		}
	case *model.TimeEntry:
		w.Fields = map[string]any{
			"item_id":    rec.ItemID,
			"started_at": rec.StartedAt,
			"note":       rec.Note,
		}
		putOptInt(w.Fields, "ended_at", rec.EndedAt)
	case *model.SavedSearch:
		w.Fields = map[string]any{
			"name":       rec.Name,
			"query":      rec.Query,
			"sort_order": rec.SortOrder,
			"created_at": rec.CreatedAt,
		}
	}
	return w
}

// FromWire converts a remote wire record back to a local record. The
// record arrives with needs_push clear: its content is, by definition,
// what the remote already holds.
func FromWire(w *remote.WireRecord) (model.Record, error) {
	variant, localID, err := model.ParseRemoteName(w.Name)
	if err != nil {
		return nil, err
	}
	if string(variant) != w.Type {
		return nil, fmt.Errorf("wire record %s declares type %q", w.Name, w.Type)
	}

	meta := model.SyncMeta{
		ModifiedAt:   w.ModifiedAt,
		RemoteName:   w.Name,
		ChangeTag:    w.ChangeTag,
		SystemFields: w.SystemFields,
		NeedsPush:    false,
	}

	switch variant {
	case model.VariantItem:
		it := &model.Item{
			ID:                localID,
			Title:             fieldStr(w.Fields, "title"),
			ItemType:          fieldStr(w.Fields, "item_type"),
			Notes:             fieldStr(w.Fields, "notes"),
			ParentID:          fieldStr(w.Fields, "parent_id"),
			SortOrder:         fieldInt(w.Fields, "sort_order"),
			CreatedAt:         fieldInt(w.Fields, "created_at"),
			CompletedAt:       fieldIntPtr(w.Fields, "completed_at"),
			DueDate:           fieldIntPtr(w.Fields, "due_date"),
			EarliestStartTime: fieldIntPtr(w.Fields, "earliest_start_time"),
			SyncMeta:          meta,
		}
		if it.ItemType == "" {
			it.ItemType = model.ItemTypeTask
		}
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("malformed wire item %s: %w", w.Name, err)
		}
		return it, nil

	case model.VariantTag:
		tg := &model.Tag{
			ID:        localID,
			Name:      fieldStr(w.Fields, "name"),
			Color:     fieldStr(w.Fields, "color"),
			CreatedAt: fieldInt(w.Fields, "created_at"),
			SyncMeta:  meta,
		}
		if err := tg.Validate(); err != nil {
			return nil, fmt.Errorf("malformed wire tag %s: %w", w.Name, err)
		}
		return tg, nil

	case model.VariantItemTag:
		ln := &model.ItemTagLink{
			ItemID:    fieldStr(w.Fields, "item_id"),
			TagID:     fieldStr(w.Fields, "tag_id"),
			CreatedAt: fieldInt(w.Fields, "created_at"),
			SyncMeta:  meta,
		}
		if err := ln.Validate(); err != nil {
			return nil, fmt.Errorf("malformed wire item-tag link %s: %w", w.Name, err)
		}
		if ln.LocalID() != localID {
			return nil, fmt.Errorf("wire link %s fields disagree with its name", w.Name)
		}
		return ln, nil

	case model.VariantTimeEntry:
		te := &model.TimeEntry{
			ID:        localID,
			ItemID:    fieldStr(w.Fields, "item_id"),
			StartedAt: fieldInt(w.Fields, "started_at"),
			EndedAt:   fieldIntPtr(w.Fields, "ended_at"),
			Note:      fieldStr(w.Fields, "note"),
			SyncMeta:  meta,
		}
		if err := te.Validate(); err != nil {
			return nil, fmt.Errorf("malformed wire time entry %s: %w", w.Name, err)
		}
		return te, nil

	case model.VariantSavedSearch:
		ss := &model.SavedSearch{
			ID:        localID,
			Name:      fieldStr(w.Fields, "name"),
			Query:     fieldStr(w.Fields, "query"),
			SortOrder: fieldInt(w.Fields, "sort_order"),
			CreatedAt: fieldInt(w.Fields, "created_at"),
			SyncMeta:  meta,
		}
		if err := ss.Validate(); err != nil {
			return nil, fmt.Errorf("malformed wire saved search %s: %w", w.Name, err)
		}
		return ss, nil
	}
	return nil, fmt.Errorf("unknown wire record type %q", w.Type)
}

func putOpt(fields map[string]any, key, val string) {
	if val != "" {
		fields[key] = val
	}
}

func putOptInt(fields map[string]any, key string, val *int64) {
	if val != nil {
		fields[key] = *val
	}
}

func fieldStr(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// fieldInt reads an integer field. JSON decoding delivers numbers as
// float64, so both representations are accepted.
func fieldInt(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func fieldIntPtr(fields map[string]any, key string) *int64 {
	if _, ok := fields[key]; !ok {
		return nil
	}
	n := fieldInt(fields, key)
	return &n
}
