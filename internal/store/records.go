package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zendegi/directgtd/internal/model"
)

// tableFor maps a record variant to its table name.
func tableFor(v model.Variant) (string, error) {
	switch v {
	case model.VariantItem:
		return "items", nil
	case model.VariantTag:
		return "tags", nil
	case model.VariantItemTag:
		return "item_tags", nil
	case model.VariantTimeEntry:
		return "time_entries", nil
	case model.VariantSavedSearch:
		return "saved_searches", nil
	}
	return "", fmt.Errorf("unknown variant: %q", v)
}

// syncCols is the column list shared by every record table, in the order
// the scan helpers expect.
const syncCols = "modified_at, remote_name, change_tag, system_fields, needs_push, deleted_at"

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// metaArgs flattens SyncMeta into SQL arguments matching syncCols.
func metaArgs(m *model.SyncMeta) []any {
	return []any{
		m.ModifiedAt,
		nullStr(m.RemoteName),
		m.ChangeTag,
		m.SystemFields,
		boolInt(m.NeedsPush),
		nullInt(m.DeletedAt),
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metaScan is the scratch space for scanning syncCols.
type metaScan struct {
	modifiedAt   int64
	remoteName   sql.NullString
	changeTag    []byte
	systemFields []byte
	needsPush    int
	deletedAt    sql.NullInt64
}

func (ms *metaScan) dests() []any {
	return []any{&ms.modifiedAt, &ms.remoteName, &ms.changeTag, &ms.systemFields, &ms.needsPush, &ms.deletedAt}
}

func (ms *metaScan) fill(m *model.SyncMeta) {
	m.ModifiedAt = ms.modifiedAt
	m.RemoteName = ms.remoteName.String
	m.ChangeTag = ms.changeTag
	m.SystemFields = ms.systemFields
	m.NeedsPush = ms.needsPush != 0
	m.DeletedAt = intPtr(ms.deletedAt)
}

// SaveRecord upserts the full record row, sync columns included.
func SaveRecord(ctx context.Context, q dbtx, r model.Record) error {
	switch rec := r.(type) {
	case *model.Item:
		_, err := q.ExecContext(ctx, `
			INSERT INTO items (
				id, title, item_type, notes, parent_id, sort_order,
				created_at, completed_at, due_date, earliest_start_time,
				`+syncCols+`
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				item_type = excluded.item_type,
				notes = excluded.notes,
				parent_id = excluded.parent_id,
				sort_order = excluded.sort_order,
				created_at = excluded.created_at,
				completed_at = excluded.completed_at,
				due_date = excluded.due_date,
				earliest_start_time = excluded.earliest_start_time,
				modified_at = excluded.modified_at,
				remote_name = excluded.remote_name,
				change_tag = excluded.change_tag,
				system_fields = excluded.system_fields,
				needs_push = excluded.needs_push,
				deleted_at = excluded.deleted_at
		`, append([]any{
			rec.ID, rec.Title, rec.ItemType, rec.Notes, nullStr(rec.ParentID), rec.SortOrder,
			rec.CreatedAt, nullInt(rec.CompletedAt), nullInt(rec.DueDate), nullInt(rec.EarliestStartTime),
		}, metaArgs(&rec.SyncMeta)...)...)
		if err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", rec.ID, err)
		}
		return nil

	case *model.Tag:
		_, err := q.ExecContext(ctx, `
			INSERT INTO tags (id, name, color, created_at, `+syncCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				color = excluded.color,
				created_at = excluded.created_at,
				modified_at = excluded.modified_at,
				remote_name = excluded.remote_name,
				change_tag = excluded.change_tag,
				system_fields = excluded.system_fields,
				needs_push = excluded.needs_push,
				deleted_at = excluded.deleted_at
		`, append([]any{rec.ID, rec.Name, rec.Color, rec.CreatedAt}, metaArgs(&rec.SyncMeta)...)...)
		if err != nil {
			return fmt.Errorf("failed to upsert tag %s: %w", rec.ID, err)
		}
		return nil

	case *model.ItemTagLink:
		_, err := q.ExecContext(ctx, `
			INSERT INTO item_tags (item_id, tag_id, created_at, `+syncCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(item_id, tag_id) DO UPDATE SET
				created_at = excluded.created_at,
				modified_at = excluded.modified_at,
				remote_name = excluded.remote_name,
				change_tag = excluded.change_tag,
				system_fields = excluded.system_fields,
				needs_push = excluded.needs_push,
				deleted_at = excluded.deleted_at
		`, append([]any{rec.ItemID, rec.TagID, rec.CreatedAt}, metaArgs(&rec.SyncMeta)...)...)
		if err != nil {
			return fmt.Errorf("failed to upsert item-tag link %s: %w", rec.LocalID(), err)
		}
		return nil

	case *model.TimeEntry:
		_, err := q.ExecContext(ctx, `
			INSERT INTO time_entries (id, item_id, started_at, ended_at, note, `+syncCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				item_id = excluded.item_id,
				started_at = excluded.started_at,
				ended_at = excluded.ended_at,
				note = excluded.note,
				modified_at = excluded.modified_at,
				remote_name = excluded.remote_name,
				change_tag = excluded.change_tag,
				system_fields = excluded.system_fields,
				needs_push = excluded.needs_push,
				deleted_at = excluded.deleted_at
		`, append([]any{rec.ID, rec.ItemID, rec.StartedAt, nullInt(rec.EndedAt), rec.Note}, metaArgs(&rec.SyncMeta)...)...)
		if err != nil {
			return fmt.Errorf("failed to upsert time entry %s: %w", rec.ID, err)
		}
		return nil

	case *model.SavedSearch:
		_, err := q.ExecContext(ctx, `
			INSERT INTO saved_searches (id, name, query, sort_order, created_at, `+syncCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				query = excluded.query,
				sort_order = excluded.sort_order,
				created_at = excluded.created_at,
				modified_at = excluded.modified_at,
				remote_name = excluded.remote_name,
				change_tag = excluded.change_tag,
				system_fields = excluded.system_fields,
				needs_push = excluded.needs_push,
				deleted_at = excluded.deleted_at
		`, append([]any{rec.ID, rec.Name, rec.Query, rec.SortOrder, rec.CreatedAt}, metaArgs(&rec.SyncMeta)...)...)
		if err != nil {
			return fmt.Errorf("failed to upsert saved search %s: %w", rec.ID, err)
		}
		return nil
	}
	return fmt.Errorf("unknown record type %T", r)
}

// UpdateSyncMeta rewrites only the sync columns of an existing row. Used
// when a push outcome or conflict resolution changes bookkeeping without
// touching domain fields.
func UpdateSyncMeta(ctx context.Context, q dbtx, r model.Record) error {
	table, err := tableFor(r.Variant())
	if err != nil {
		return err
	}
	m := r.Meta()

	var query string
	var args []any
	common := []any{
		m.ModifiedAt, nullStr(m.RemoteName), m.ChangeTag, m.SystemFields,
		boolInt(m.NeedsPush), nullInt(m.DeletedAt),
	}

	if link, ok := r.(*model.ItemTagLink); ok {
		query = `UPDATE item_tags SET
			modified_at = ?, remote_name = ?, change_tag = ?, system_fields = ?,
			needs_push = ?, deleted_at = ?
			WHERE item_id = ? AND tag_id = ?`
		args = append(common, link.ItemID, link.TagID)
	} else {
		query = `UPDATE ` + table + ` SET
			modified_at = ?, remote_name = ?, change_tag = ?, system_fields = ?,
			needs_push = ?, deleted_at = ?
			WHERE id = ?`
		args = append(common, r.LocalID())
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sync meta for %s %s: %w", r.Variant(), r.LocalID(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRecord loads one record by variant and local id.
func GetRecord(ctx context.Context, q dbtx, v model.Variant, localID string) (model.Record, error) {
	switch v {
	case model.VariantItem:
		rec, err := scanItemRow(q.QueryRowContext(ctx, `
			SELECT id, title, item_type, notes, parent_id, sort_order,
			       created_at, completed_at, due_date, earliest_start_time, `+syncCols+`
			FROM items WHERE id = ?`, localID))
		if err != nil {
			return nil, err
		}
		return rec, nil
	case model.VariantTag:
		rec, err := scanTagRow(q.QueryRowContext(ctx, `
			SELECT id, name, color, created_at, `+syncCols+`
			FROM tags WHERE id = ?`, localID))
		if err != nil {
			return nil, err
		}
		return rec, nil
	case model.VariantItemTag:
		itemID, tagID, err := model.SplitLinkID(localID)
		if err != nil {
			return nil, err
		}
		rec, err := scanLinkRow(q.QueryRowContext(ctx, `
			SELECT item_id, tag_id, created_at, `+syncCols+`
			FROM item_tags WHERE item_id = ? AND tag_id = ?`, itemID, tagID))
		if err != nil {
			return nil, err
		}
		return rec, nil
	case model.VariantTimeEntry:
		rec, err := scanEntryRow(q.QueryRowContext(ctx, `
			SELECT id, item_id, started_at, ended_at, note, `+syncCols+`
			FROM time_entries WHERE id = ?`, localID))
		if err != nil {
			return nil, err
		}
		return rec, nil
	case model.VariantSavedSearch:
		rec, err := scanSearchRow(q.QueryRowContext(ctx, `
			SELECT id, name, query, sort_order, created_at, `+syncCols+`
			FROM saved_searches WHERE id = ?`, localID))
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, fmt.Errorf("unknown variant: %q", v)
}

// row abstracts *sql.Row and *sql.Rows for the scan helpers.
type row interface {
	Scan(dest ...any) error
}

func scanItemRow(r row) (*model.Item, error) {
	var it model.Item
	var parentID sql.NullString
	var completedAt, dueDate, earliest sql.NullInt64
	var ms metaScan

	err := r.Scan(append([]any{
		&it.ID, &it.Title, &it.ItemType, &it.Notes, &parentID, &it.SortOrder,
		&it.CreatedAt, &completedAt, &dueDate, &earliest,
	}, ms.dests()...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	it.ParentID = parentID.String
	it.CompletedAt = intPtr(completedAt)
	it.DueDate = intPtr(dueDate)
	it.EarliestStartTime = intPtr(earliest)
	ms.fill(&it.SyncMeta)
	return &it, nil
}

func scanTagRow(r row) (*model.Tag, error) {
	var tg model.Tag
	var ms metaScan

	err := r.Scan(append([]any{&tg.ID, &tg.Name, &tg.Color, &tg.CreatedAt}, ms.dests()...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tag: %w", err)
	}
	ms.fill(&tg.SyncMeta)
	return &tg, nil
}

func scanLinkRow(r row) (*model.ItemTagLink, error) {
	var ln model.ItemTagLink
	var ms metaScan

	err := r.Scan(append([]any{&ln.ItemID, &ln.TagID, &ln.CreatedAt}, ms.dests()...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item-tag link: %w", err)
	}
	ms.fill(&ln.SyncMeta)
	return &ln, nil
}

func scanEntryRow(r row) (*model.TimeEntry, error) {
	var te model.TimeEntry
	var endedAt sql.NullInt64
	var ms metaScan

	err := r.Scan(append([]any{&te.ID, &te.ItemID, &te.StartedAt, &endedAt, &te.Note}, ms.dests()...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan time entry: %w", err)
	}
	te.EndedAt = intPtr(endedAt)
	ms.fill(&te.SyncMeta)
	return &te, nil
}

func scanSearchRow(r row) (*model.SavedSearch, error) {
	var ss model.SavedSearch
	var ms metaScan

	err := r.Scan(append([]any{&ss.ID, &ss.Name, &ss.Query, &ss.SortOrder, &ss.CreatedAt}, ms.dests()...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan saved search: %w", err)
	}
	ms.fill(&ss.SyncMeta)
	return &ss, nil
}

// queryRecords runs query and scans every row with the given per-variant
// scanner.
func queryRecords[T model.Record](ctx context.Context, q dbtx, scan func(row) (T, error), query string, args ...any) ([]model.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// listWhere fetches all records of one variant matching the condition.
func listWhere(ctx context.Context, q dbtx, v model.Variant, cond string) ([]model.Record, error) {
	switch v {
	case model.VariantItem:
		return queryRecords(ctx, q, scanItemRow, `
			SELECT id, title, item_type, notes, parent_id, sort_order,
			       created_at, completed_at, due_date, earliest_start_time, `+syncCols+`
			FROM items WHERE `+cond+` ORDER BY sort_order, id`)
	case model.VariantTag:
		return queryRecords(ctx, q, scanTagRow, `
			SELECT id, name, color, created_at, `+syncCols+`
			FROM tags WHERE `+cond+` ORDER BY name, id`)
	case model.VariantItemTag:
		return queryRecords(ctx, q, scanLinkRow, `
			SELECT item_id, tag_id, created_at, `+syncCols+`
			FROM item_tags WHERE `+cond+` ORDER BY item_id, tag_id`)
	case model.VariantTimeEntry:
		return queryRecords(ctx, q, scanEntryRow, `
			SELECT id, item_id, started_at, ended_at, note, `+syncCols+`
			FROM time_entries WHERE `+cond+` ORDER BY started_at, id`)
	case model.VariantSavedSearch:
		return queryRecords(ctx, q, scanSearchRow, `
			SELECT id, name, query, sort_order, created_at, `+syncCols+`
			FROM saved_searches WHERE `+cond+` ORDER BY sort_order, id`)
	}
	return nil, fmt.Errorf("unknown variant: %q", v)
}

// DirtyRecords returns every record with needs_push set, across all
// variants, in canonical variant order.
func DirtyRecords(ctx context.Context, q dbtx) ([]model.Record, error) {
	var out []model.Record
	for _, v := range model.Variants() {
		recs, err := listWhere(ctx, q, v, "needs_push = 1")
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// LiveRecords returns every non-tombstone record of the variant.
func LiveRecords(ctx context.Context, q dbtx, v model.Variant) ([]model.Record, error) {
	return listWhere(ctx, q, v, "deleted_at IS NULL")
}

// Tombstones returns every soft-deleted record of the variant.
func Tombstones(ctx context.Context, q dbtx, v model.Variant) ([]model.Record, error) {
	return listWhere(ctx, q, v, "deleted_at IS NOT NULL")
}

// LiveCount counts non-tombstone rows of the variant.
func LiveCount(ctx context.Context, q dbtx, v model.Variant) (int, error) {
	table, err := tableFor(v)
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE deleted_at IS NULL").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// SoftDeleteByRemoteName marks the record with the given remote identity as
// deleted and reports whether a row was actually affected. The deletion
// originated remotely, so needs_push stays clear. Unknown names are not an
// error (the record may already be purged) but return false.
func SoftDeleteByRemoteName(ctx context.Context, q dbtx, name string, deletedAt int64) (bool, error) {
	v, _, err := model.ParseRemoteName(name)
	if err != nil {
		return false, err
	}
	table, err := tableFor(v)
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE `+table+` SET deleted_at = ?, needs_push = 0
		WHERE remote_name = ? AND deleted_at IS NULL
	`, deletedAt, name)
	if err != nil {
		return false, fmt.Errorf("failed to soft-delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to soft-delete %s: %w", name, err)
	}
	return n > 0, nil
}

// HardDelete permanently removes one row. Used only by the tombstone
// janitor and full-replace resync.
func HardDelete(ctx context.Context, q dbtx, v model.Variant, localID string) error {
	switch v {
	case model.VariantItemTag:
		itemID, tagID, err := model.SplitLinkID(localID)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM item_tags WHERE item_id = ? AND tag_id = ?", itemID, tagID); err != nil {
			return fmt.Errorf("failed to delete item-tag link %s: %w", localID, err)
		}
		return nil
	default:
		table, err := tableFor(v)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", localID); err != nil {
			return fmt.Errorf("failed to delete %s %s: %w", v, localID, err)
		}
		return nil
	}
}

// ClearAllRecords empties every record table. Used by full-replace resync
// after a complete remote fetch succeeded.
func ClearAllRecords(ctx context.Context, q dbtx) error {
	for _, table := range []string{"item_tags", "time_entries", "saved_searches", "tags", "items"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// ItemHasLiveChildren reports whether any non-purged item still points at
// itemID as its parent. Tombstoned children count: they must outlive the
// parent until purged themselves.
func ItemHasLiveChildren(ctx context.Context, q dbtx, itemID string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE parent_id = ?", itemID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count children of %s: %w", itemID, err)
	}
	return n > 0, nil
}

// ItemReferenced reports whether any non-purged link or time entry still
// references itemID.
func ItemReferenced(ctx context.Context, q dbtx, itemID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM item_tags WHERE item_id = ?)
		     + (SELECT COUNT(*) FROM time_entries WHERE item_id = ?)
	`, itemID, itemID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count references to item %s: %w", itemID, err)
	}
	return n > 0, nil
}

// TagReferenced reports whether any non-purged link still references tagID.
func TagReferenced(ctx context.Context, q dbtx, tagID string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM item_tags WHERE tag_id = ?", tagID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count references to tag %s: %w", tagID, err)
	}
	return n > 0, nil
}
