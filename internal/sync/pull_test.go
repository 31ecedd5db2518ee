package sync

import (
	"context"
	"testing"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/remote"
	"github.com/zendegi/directgtd/internal/store"
)

func wireItem(id, title string, modifiedAt int64, parentID string) remote.WireRecord {
	return ToWire(&model.Item{
		ID: id, Title: title, ItemType: model.ItemTypeTask, ParentID: parentID,
		CreatedAt: modifiedAt, SyncMeta: model.SyncMeta{ModifiedAt: modifiedAt},
	})
}

func TestPull_AppliesChangesAndPersistsCursor(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	fake.put(wireItem("r1", "Remote one", 100, ""))
	fake.put(wireItem("r2", "Remote two", 101, ""))

	pulled, err := engine.PullRemoteChanges(ctx)
	if err != nil {
		t.Fatalf("PullRemoteChanges() failed: %v", err)
	}
	if pulled != 2 {
		t.Errorf("pulled = %d, want 2", pulled)
	}

	cursor, err := st.GetMeta(ctx, store.MetaPullCursor)
	if err != nil || len(cursor) == 0 {
		t.Fatalf("cursor not persisted: (%q, %v)", cursor, err)
	}

	// Nothing new: the saved cursor skips what was already applied.
	pulled, err = engine.PullRemoteChanges(ctx)
	if err != nil {
		t.Fatalf("second pull failed: %v", err)
	}
	if pulled != 0 {
		t.Errorf("second pull = %d, want 0", pulled)
	}
}

func TestPull_PagesCommitIndividually(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	for _, rec := range []remote.WireRecord{
		wireItem("p1", "One", 100, ""),
		wireItem("p2", "Two", 101, ""),
		wireItem("p3", "Three", 102, ""),
	} {
		fake.put(rec)
	}
	fake.pageSize = 2

	pulled, err := engine.PullRemoteChanges(ctx)
	if err != nil {
		t.Fatalf("PullRemoteChanges() failed: %v", err)
	}
	if pulled != 3 {
		t.Errorf("pulled = %d, want 3", pulled)
	}

	for _, id := range []string{"p1", "p2", "p3"} {
		if _, err := st.GetRecord(ctx, model.VariantItem, id); err != nil {
			t.Errorf("record %s missing after paged pull: %v", id, err)
		}
	}
}

func TestPull_RemoteDeleteBecomesTombstone(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	fake.put(wireItem("r1", "Short-lived", 100, ""))
	if _, err := engine.PullRemoteChanges(ctx); err != nil {
		t.Fatalf("first pull failed: %v", err)
	}

	fake.remove("Item_r1")
	if _, err := engine.PullRemoteChanges(ctx); err != nil {
		t.Fatalf("second pull failed: %v", err)
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "r1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	m := rec.Meta()
	if !m.Tombstone() {
		t.Fatal("remote delete must tombstone the local record")
	}
	if m.NeedsPush {
		t.Error("remote-origin tombstone must not be pushed back")
	}
}

func TestPull_AlreadyPurgedDeletesCountNothing(t *testing.T) {
	engine, fake, _ := newTestEngine(t)
	ctx := context.Background()

	// The server reports deletes for records this device never held (or
	// already purged). Counting them as pulled would wrongly suppress the
	// drift check for the cycle.
	fake.remove("Item_ghost1")
	fake.remove("Item_ghost2")

	pulled, err := engine.PullRemoteChanges(ctx)
	if err != nil {
		t.Fatalf("PullRemoteChanges() failed: %v", err)
	}
	if pulled != 0 {
		t.Errorf("pulled = %d, deletes that touch no local row must count 0", pulled)
	}
}

func TestPull_KeepsNewerLocalVersion(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	local := dirtyItem(t, st, "a1", "Newer local", 900)
	local.RemoteName = "Item_a1"
	if err := st.SaveRecord(ctx, local); err != nil {
		t.Fatalf("SaveRecord() failed: %v", err)
	}

	fake.put(wireItem("a1", "Older remote", 500, ""))

	if _, err := engine.PullRemoteChanges(ctx); err != nil {
		t.Fatalf("PullRemoteChanges() failed: %v", err)
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "a1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	got := rec.(*model.Item)
	if got.Title != "Newer local" {
		t.Errorf("Title = %q, newer local version must survive the pull", got.Title)
	}
	if !got.NeedsPush {
		t.Error("local version must stay dirty to win on the next push")
	}
}

func TestPull_CursorExpiredTriggersFullResync(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	// Local state that is stale: one record the server no longer has.
	stale := dirtyItem(t, st, "stale", "Should disappear", 100)
	stale.NeedsPush = false
	if err := st.UpdateSyncMeta(ctx, stale); err != nil {
		t.Fatalf("UpdateSyncMeta() failed: %v", err)
	}
	if err := st.SetMeta(ctx, store.MetaPullCursor, []byte("bogus")); err != nil {
		t.Fatalf("SetMeta() failed: %v", err)
	}

	fake.put(wireItem("truth", "Server truth", 200, ""))
	fake.fetchErrs = []error{remote.ErrCursorExpired}

	pulled, err := engine.PullRemoteChanges(ctx)
	if err != nil {
		t.Fatalf("PullRemoteChanges() failed: %v", err)
	}
	if pulled != 1 {
		t.Errorf("pulled = %d, want 1", pulled)
	}

	if _, err := st.GetRecord(ctx, model.VariantItem, "stale"); err == nil {
		t.Error("stale record survived the full replace")
	}
	if _, err := st.GetRecord(ctx, model.VariantItem, "truth"); err != nil {
		t.Errorf("server truth missing after resync: %v", err)
	}

	cursor, err := st.GetMeta(ctx, store.MetaPullCursor)
	if err != nil || string(cursor) == "bogus" {
		t.Errorf("cursor not replaced: (%q, %v)", cursor, err)
	}
}

func TestPull_FullResyncFetchesBeforeReplacing(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	keep := dirtyItem(t, st, "keep", "Must survive a failed resync", 100)
	keep.NeedsPush = false
	if err := st.UpdateSyncMeta(ctx, keep); err != nil {
		t.Fatalf("UpdateSyncMeta() failed: %v", err)
	}

	// The cursor is rejected and the follow-up full fetch dies too: the
	// local mirror must remain untouched.
	fake.fetchErrs = []error{remote.ErrCursorExpired, remote.ErrUnavailable}

	if _, err := engine.PullRemoteChanges(ctx); err == nil {
		t.Fatal("pull should fail when the full fetch fails")
	}
	if _, err := st.GetRecord(ctx, model.VariantItem, "keep"); err != nil {
		t.Errorf("local data lost despite the fetch never completing: %v", err)
	}
}

func TestPull_ZoneMissingReprovisionsAndResyncs(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	fake.put(wireItem("r1", "After reprovision", 100, ""))
	fake.fetchErrs = []error{remote.ErrZoneNotFound}

	pulled, err := engine.PullRemoteChanges(ctx)
	if err != nil {
		t.Fatalf("PullRemoteChanges() failed: %v", err)
	}
	if pulled != 1 {
		t.Errorf("pulled = %d, want 1", pulled)
	}
	if fake.zoneCalls != 1 {
		t.Errorf("zoneCalls = %d, want 1", fake.zoneCalls)
	}
	if _, err := st.GetRecord(ctx, model.VariantItem, "r1"); err != nil {
		t.Errorf("record missing after zone resync: %v", err)
	}
}

func TestPull_ParentAppliedBeforeChild(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	// Arrival order is child first; the orderer must flip them.
	fake.put(wireItem("child", "Child", 101, "parent"))
	fake.put(wireItem("parent", "Parent", 100, ""))

	if _, err := engine.PullRemoteChanges(ctx); err != nil {
		t.Fatalf("PullRemoteChanges() failed: %v", err)
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "child")
	if err != nil {
		t.Fatalf("GetRecord(child) failed: %v", err)
	}
	if got := rec.(*model.Item); got.ParentID != "parent" {
		t.Errorf("child.ParentID = %q, want parent", got.ParentID)
	}
}

func TestPull_OrphanReparentedToRoot(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	fake.put(wireItem("orphan", "Orphan", 100, "nowhere"))

	if _, err := engine.PullRemoteChanges(ctx); err != nil {
		t.Fatalf("PullRemoteChanges() failed: %v", err)
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "orphan")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if got := rec.(*model.Item); got.ParentID != "" {
		t.Errorf("ParentID = %q, orphans must attach to the root", got.ParentID)
	}
}

func TestDriftCheck_RepairsSilentDivergence(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	fake.put(wireItem("r1", "One", 100, ""))
	fake.put(wireItem("r2", "Two", 101, ""))
	if _, err := engine.PullRemoteChanges(ctx); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	// Lose a record locally without the cursor noticing.
	if err := st.HardDelete(ctx, model.VariantItem, "r2"); err != nil {
		t.Fatalf("HardDelete() failed: %v", err)
	}

	repaired, n, err := engine.DriftCheck(ctx)
	if err != nil {
		t.Fatalf("DriftCheck() failed: %v", err)
	}
	if !repaired {
		t.Fatal("drift not detected")
	}
	if n != 2 {
		t.Errorf("repair applied %d records, want 2", n)
	}
	if _, err := st.GetRecord(ctx, model.VariantItem, "r2"); err != nil {
		t.Errorf("record still missing after repair: %v", err)
	}
}

func TestDriftCheck_NoDriftIsNoop(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	fake.put(wireItem("r1", "One", 100, ""))
	if _, err := engine.PullRemoteChanges(ctx); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	repaired, n, err := engine.DriftCheck(ctx)
	if err != nil {
		t.Fatalf("DriftCheck() failed: %v", err)
	}
	if repaired || n != 0 {
		t.Errorf("DriftCheck() = (%v, %d), want no repair", repaired, n)
	}

	// Counts agree and nothing was rewritten.
	if count, err := st.LiveCount(ctx, model.VariantItem); err != nil || count != 1 {
		t.Errorf("LiveCount = (%d, %v), want 1", count, err)
	}
}

func TestDriftCheck_SkipsWhileDirty(t *testing.T) {
	engine, _, st := newTestEngine(t)
	ctx := context.Background()

	dirtyItem(t, st, "a1", "Unpushed", 100)

	repaired, _, err := engine.DriftCheck(ctx)
	if err != nil {
		t.Fatalf("DriftCheck() failed: %v", err)
	}
	if repaired {
		t.Error("drift repair must not run while records await push")
	}
}
