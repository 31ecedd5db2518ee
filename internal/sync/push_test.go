package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/remote"
)

func TestPush_ClearsDirtyAndStoresTokens(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	dirtyItem(t, st, "a1", "Task one", 100)

	pushed, err := engine.PushLocalChanges(ctx)
	if err != nil {
		t.Fatalf("PushLocalChanges() failed: %v", err)
	}
	if pushed != 1 {
		t.Errorf("pushed = %d, want 1", pushed)
	}

	if _, ok := fake.get("Item_a1"); !ok {
		t.Fatal("record not uploaded under its derived remote name")
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "a1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	m := rec.Meta()
	if m.NeedsPush {
		t.Error("record still dirty after confirmed save")
	}
	if m.RemoteName != "Item_a1" {
		t.Errorf("RemoteName = %q, want Item_a1", m.RemoteName)
	}
	if len(m.ChangeTag) == 0 {
		t.Error("server change tag not stored")
	}
}

func TestPush_Idempotent(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	dirtyItem(t, st, "a1", "Task one", 100)

	if _, err := engine.PushLocalChanges(ctx); err != nil {
		t.Fatalf("first push failed: %v", err)
	}
	calls := len(fake.batchSizes)

	pushed, err := engine.PushLocalChanges(ctx)
	if err != nil {
		t.Fatalf("second push failed: %v", err)
	}
	if pushed != 0 {
		t.Errorf("second push confirmed %d records, want 0", pushed)
	}
	if len(fake.batchSizes) != calls {
		t.Error("second push should not call the remote at all")
	}
}

func TestPush_ChunksAtBatchLimit(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		dirtyItem(t, st, fmt.Sprintf("bulk-%04d", i), "Bulk", 100)
	}

	pushed, err := engine.PushLocalChanges(ctx)
	if err != nil {
		t.Fatalf("PushLocalChanges() failed: %v", err)
	}
	if pushed != 1000 {
		t.Errorf("pushed = %d, want 1000", pushed)
	}

	if len(fake.batchSizes) != 3 {
		t.Fatalf("batch calls = %d, want 3", len(fake.batchSizes))
	}
	for i, size := range fake.batchSizes {
		if size > remote.BatchLimit {
			t.Errorf("batch %d carried %d records, limit is %d", i, size, remote.BatchLimit)
		}
	}
	if fake.batchSizes[0] != 400 || fake.batchSizes[1] != 400 || fake.batchSizes[2] != 200 {
		t.Errorf("batch sizes = %v, want [400 400 200]", fake.batchSizes)
	}
}

func TestPush_TombstoneBecomesDelete(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	// Simulate a record that synced once and was then deleted locally.
	dirtyItem(t, st, "a1", "Doomed", 100)
	if _, err := engine.PushLocalChanges(ctx); err != nil {
		t.Fatalf("initial push failed: %v", err)
	}

	synced, err := st.GetRecord(ctx, model.VariantItem, "a1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	item := synced.(*model.Item)
	deletedAt := int64(200)
	item.DeletedAt = &deletedAt
	item.NeedsPush = true
	if err := st.UpdateSyncMeta(ctx, item); err != nil {
		t.Fatalf("UpdateSyncMeta() failed: %v", err)
	}

	pushed, err := engine.PushLocalChanges(ctx)
	if err != nil {
		t.Fatalf("delete push failed: %v", err)
	}
	if pushed != 1 {
		t.Errorf("pushed = %d, want 1", pushed)
	}
	if _, ok := fake.get("Item_a1"); ok {
		t.Error("record still present remotely after delete push")
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "a1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	m := rec.Meta()
	if m.NeedsPush {
		t.Error("tombstone still dirty after confirmed delete")
	}
	if len(m.ChangeTag) != 0 || len(m.SystemFields) != 0 {
		t.Error("remote tokens must be cleared once the remote copy is gone")
	}
}

func TestPush_ConflictRemoteWins(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	dirtyItem(t, st, "a1", "Stale local edit", 100)

	server := &model.Item{
		ID: "a1", Title: "Newer on server", ItemType: model.ItemTypeTask,
		CreatedAt: 100, SyncMeta: model.SyncMeta{ModifiedAt: 500},
	}
	wire := ToWire(server)
	wire.ChangeTag = []byte("server-tag")
	fake.conflicts["Item_a1"] = &wire

	if _, err := engine.PushLocalChanges(ctx); err != nil {
		t.Fatalf("PushLocalChanges() failed: %v", err)
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "a1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	got := rec.(*model.Item)
	if got.Title != "Newer on server" {
		t.Errorf("Title = %q, the newer server version must win", got.Title)
	}
	if got.NeedsPush {
		t.Error("record must be clean after adopting the server version")
	}
}

func TestPush_ConflictLocalWins(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	dirtyItem(t, st, "a1", "Fresh local edit", 900)

	server := &model.Item{
		ID: "a1", Title: "Older on server", ItemType: model.ItemTypeTask,
		CreatedAt: 100, SyncMeta: model.SyncMeta{ModifiedAt: 500},
	}
	wire := ToWire(server)
	wire.ChangeTag = []byte("server-tag")
	fake.conflicts["Item_a1"] = &wire

	if _, err := engine.PushLocalChanges(ctx); err != nil {
		t.Fatalf("first push failed: %v", err)
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "a1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	got := rec.(*model.Item)
	if got.Title != "Fresh local edit" {
		t.Errorf("Title = %q, the newer local version must survive", got.Title)
	}
	if !got.NeedsPush {
		t.Fatal("record must stay dirty so the local version re-pushes")
	}
	if string(got.ChangeTag) != "server-tag" {
		t.Errorf("ChangeTag = %q, must adopt the server token for the retry", got.ChangeTag)
	}

	// The retry now carries the server's token and goes through.
	pushed, err := engine.PushLocalChanges(ctx)
	if err != nil {
		t.Fatalf("retry push failed: %v", err)
	}
	if pushed != 1 {
		t.Errorf("retry pushed = %d, want 1", pushed)
	}
	if uploaded, ok := fake.get("Item_a1"); !ok || uploaded.Fields["title"] != "Fresh local edit" {
		t.Error("local version did not reach the server on retry")
	}
}

func TestPush_FailedOutcomeStaysDirty(t *testing.T) {
	engine, fake, st := newTestEngine(t)
	ctx := context.Background()

	dirtyItem(t, st, "a1", "Unlucky", 100)
	dirtyItem(t, st, "a2", "Lucky", 100)
	fake.failSaves["Item_a1"] = true

	pushed, err := engine.PushLocalChanges(ctx)
	if err != nil {
		t.Fatalf("PushLocalChanges() failed: %v", err)
	}
	if pushed != 1 {
		t.Errorf("pushed = %d, want 1 (only the record that succeeded)", pushed)
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "a1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if !rec.Meta().NeedsPush {
		t.Error("failed record must stay dirty for the next cycle")
	}
}

func TestPush_BatchErrorPropagates(t *testing.T) {
	engine, _, st := newTestEngine(t)
	ctx := context.Background()

	dirtyItem(t, st, "a1", "Task", 100)
	engine.remote = failingRemote{}

	if _, err := engine.PushLocalChanges(ctx); err == nil {
		t.Fatal("batch-level failure must propagate")
	}

	rec, err := st.GetRecord(ctx, model.VariantItem, "a1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if !rec.Meta().NeedsPush {
		t.Error("record must stay dirty when the batch call fails")
	}
}

// failingRemote errors on every call.
type failingRemote struct{}

func (failingRemote) CheckAccount(context.Context) error { return remote.ErrUnavailable }
func (failingRemote) EnsureZone(context.Context) error   { return remote.ErrUnavailable }
func (failingRemote) FetchChanges(context.Context, []byte) (*remote.ChangePage, error) {
	return nil, remote.ErrUnavailable
}
func (failingRemote) BatchWrite(context.Context, []remote.WireRecord, []string) ([]remote.WriteResult, error) {
	return nil, remote.ErrUnavailable
}
func (failingRemote) RegisterNotifications(context.Context, string) error {
	return remote.ErrUnavailable
}
