package store

import (
	"context"

	"github.com/zendegi/directgtd/internal/model"
)

// Store and Tx expose the same record operations; the Tx variants run
// inside the surrounding transaction.

func (s *Store) SaveRecord(ctx context.Context, r model.Record) error {
	return SaveRecord(ctx, s.conn, r)
}

func (s *Store) UpdateSyncMeta(ctx context.Context, r model.Record) error {
	return UpdateSyncMeta(ctx, s.conn, r)
}

func (s *Store) GetRecord(ctx context.Context, v model.Variant, localID string) (model.Record, error) {
	return GetRecord(ctx, s.conn, v, localID)
}

func (s *Store) DirtyRecords(ctx context.Context) ([]model.Record, error) {
	return DirtyRecords(ctx, s.conn)
}

func (s *Store) LiveRecords(ctx context.Context, v model.Variant) ([]model.Record, error) {
	return LiveRecords(ctx, s.conn, v)
}

func (s *Store) Tombstones(ctx context.Context, v model.Variant) ([]model.Record, error) {
	return Tombstones(ctx, s.conn, v)
}

func (s *Store) LiveCount(ctx context.Context, v model.Variant) (int, error) {
	return LiveCount(ctx, s.conn, v)
}

func (s *Store) SoftDeleteByRemoteName(ctx context.Context, name string, deletedAt int64) (bool, error) {
	return SoftDeleteByRemoteName(ctx, s.conn, name, deletedAt)
}

func (s *Store) HardDelete(ctx context.Context, v model.Variant, localID string) error {
	return HardDelete(ctx, s.conn, v, localID)
}

func (s *Store) ItemHasLiveChildren(ctx context.Context, itemID string) (bool, error) {
	return ItemHasLiveChildren(ctx, s.conn, itemID)
}

func (s *Store) ItemReferenced(ctx context.Context, itemID string) (bool, error) {
	return ItemReferenced(ctx, s.conn, itemID)
}

func (s *Store) TagReferenced(ctx context.Context, tagID string) (bool, error) {
	return TagReferenced(ctx, s.conn, tagID)
}

func (t *Tx) SaveRecord(ctx context.Context, r model.Record) error {
	return SaveRecord(ctx, t.tx, r)
}

func (t *Tx) UpdateSyncMeta(ctx context.Context, r model.Record) error {
	return UpdateSyncMeta(ctx, t.tx, r)
}

func (t *Tx) GetRecord(ctx context.Context, v model.Variant, localID string) (model.Record, error) {
	return GetRecord(ctx, t.tx, v, localID)
}

func (t *Tx) DirtyRecords(ctx context.Context) ([]model.Record, error) {
	return DirtyRecords(ctx, t.tx)
}

func (t *Tx) LiveRecords(ctx context.Context, v model.Variant) ([]model.Record, error) {
	return LiveRecords(ctx, t.tx, v)
}

func (t *Tx) Tombstones(ctx context.Context, v model.Variant) ([]model.Record, error) {
	return Tombstones(ctx, t.tx, v)
}

func (t *Tx) LiveCount(ctx context.Context, v model.Variant) (int, error) {
	return LiveCount(ctx, t.tx, v)
}

func (t *Tx) SoftDeleteByRemoteName(ctx context.Context, name string, deletedAt int64) (bool, error) {
	return SoftDeleteByRemoteName(ctx, t.tx, name, deletedAt)
}

func (t *Tx) HardDelete(ctx context.Context, v model.Variant, localID string) error {
	return HardDelete(ctx, t.tx, v, localID)
}

func (t *Tx) ClearAllRecords(ctx context.Context) error {
	return ClearAllRecords(ctx, t.tx)
}

func (t *Tx) ItemHasLiveChildren(ctx context.Context, itemID string) (bool, error) {
	return ItemHasLiveChildren(ctx, t.tx, itemID)
}

func (t *Tx) ItemReferenced(ctx context.Context, itemID string) (bool, error) {
	return ItemReferenced(ctx, t.tx, itemID)
}

func (t *Tx) TagReferenced(ctx context.Context, tagID string) (bool, error) {
	return TagReferenced(ctx, t.tx, tagID)
}
