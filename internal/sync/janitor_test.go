package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/store"
)

// tombstone seeds a confirmed (pushed) tombstone deleted at the given
// time.
func tombstone(t *testing.T, st *store.Store, rec model.Record, deletedAt int64) {
	t.Helper()
	m := rec.Meta()
	m.DeletedAt = &deletedAt
	m.NeedsPush = false
	model.EnsureRemoteName(rec)
	if err := st.SaveRecord(context.Background(), rec); err != nil {
		t.Fatalf("failed to seed tombstone %s: %v", rec.LocalID(), err)
	}
}

func TestPurge_RemovesExpiredTombstones(t *testing.T) {
	engine, _, st := newTestEngine(t)
	ctx := context.Background()

	// Clock at 1_000_000 with a 1000s retention window.
	engine.Retention = 1000 * time.Second

	tombstone(t, st, &model.Item{ID: "old", Title: "x", ItemType: model.ItemTypeTask}, 998_000)
	tombstone(t, st, &model.Item{ID: "fresh", Title: "x", ItemType: model.ItemTypeTask}, 999_900)

	purged, err := engine.PurgeSyncedTombstones(ctx)
	if err != nil {
		t.Fatalf("PurgeSyncedTombstones() failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	if _, err := st.GetRecord(ctx, model.VariantItem, "old"); !errors.Is(err, store.ErrNotFound) {
		t.Error("expired tombstone survived the purge")
	}
	if _, err := st.GetRecord(ctx, model.VariantItem, "fresh"); err != nil {
		t.Errorf("tombstone inside the retention window was purged: %v", err)
	}
}

func TestPurge_NeverTouchesUnpushedTombstones(t *testing.T) {
	engine, _, st := newTestEngine(t)
	ctx := context.Background()
	engine.Retention = 0

	deletedAt := int64(1)
	item := &model.Item{
		ID: "pending", Title: "x", ItemType: model.ItemTypeTask,
		SyncMeta: model.SyncMeta{ModifiedAt: 1, NeedsPush: true, DeletedAt: &deletedAt},
	}
	if err := st.SaveRecord(ctx, item); err != nil {
		t.Fatalf("SaveRecord() failed: %v", err)
	}

	purged, err := engine.PurgeSyncedTombstones(ctx)
	if err != nil {
		t.Fatalf("PurgeSyncedTombstones() failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, unpushed deletions must never be purged", purged)
	}
	if _, err := st.GetRecord(ctx, model.VariantItem, "pending"); err != nil {
		t.Errorf("unpushed tombstone gone: %v", err)
	}
}

func TestPurge_RespectsReferences(t *testing.T) {
	engine, _, st := newTestEngine(t)
	ctx := context.Background()
	engine.Retention = 0

	// A dead item still referenced by a live link and a live child.
	tombstone(t, st, &model.Item{ID: "dead", Title: "x", ItemType: model.ItemTypeTask}, 1)
	live := &model.Item{
		ID: "kid", Title: "x", ItemType: model.ItemTypeTask, ParentID: "dead",
		SyncMeta: model.SyncMeta{ModifiedAt: 1},
	}
	if err := st.SaveRecord(ctx, live); err != nil {
		t.Fatalf("SaveRecord() failed: %v", err)
	}

	purged, err := engine.PurgeSyncedTombstones(ctx)
	if err != nil {
		t.Fatalf("PurgeSyncedTombstones() failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, referenced tombstones must be kept", purged)
	}
	if _, err := st.GetRecord(ctx, model.VariantItem, "dead"); err != nil {
		t.Errorf("referenced tombstone purged: %v", err)
	}
}

func TestPurge_ChainedItemsGoLeafFirst(t *testing.T) {
	engine, _, st := newTestEngine(t)
	ctx := context.Background()
	engine.Retention = 0

	// Dead parent with a dead child: the first pass can only purge the
	// leaf, the next pass frees the parent.
	tombstone(t, st, &model.Item{ID: "parent", Title: "x", ItemType: model.ItemTypeFolder}, 1)
	child := &model.Item{ID: "child", Title: "x", ItemType: model.ItemTypeTask, ParentID: "parent"}
	tombstone(t, st, child, 1)

	purged, err := engine.PurgeSyncedTombstones(ctx)
	if err != nil {
		t.Fatalf("PurgeSyncedTombstones() failed: %v", err)
	}
	if purged != 2 {
		t.Errorf("purged = %d, want the whole dead chain gone", purged)
	}
}

func TestPurge_DependentsBeforeTheirTargets(t *testing.T) {
	engine, _, st := newTestEngine(t)
	ctx := context.Background()
	engine.Retention = 0

	// Everything referencing the item is dead too: one run clears it all,
	// links and entries first.
	tombstone(t, st, &model.Item{ID: "i1", Title: "x", ItemType: model.ItemTypeTask}, 1)
	tombstone(t, st, &model.Tag{ID: "t1", Name: "home"}, 1)
	tombstone(t, st, &model.ItemTagLink{ItemID: "i1", TagID: "t1"}, 1)
	tombstone(t, st, &model.TimeEntry{ID: "e1", ItemID: "i1", StartedAt: 1}, 1)
	tombstone(t, st, &model.SavedSearch{ID: "s1", Name: "today", Query: "due:today"}, 1)

	purged, err := engine.PurgeSyncedTombstones(ctx)
	if err != nil {
		t.Fatalf("PurgeSyncedTombstones() failed: %v", err)
	}
	if purged != 5 {
		t.Errorf("purged = %d, want all 5", purged)
	}

	for _, v := range model.Variants() {
		stones, err := st.Tombstones(ctx, v)
		if err != nil {
			t.Fatalf("Tombstones(%s) failed: %v", v, err)
		}
		if len(stones) != 0 {
			t.Errorf("%s still holds %d tombstones", v, len(stones))
		}
	}
}
