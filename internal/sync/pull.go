package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/remote"
	"github.com/zendegi/directgtd/internal/store"
)

// maxApplyPasses bounds the referential retry loop when applying a page:
// a link or time entry whose item has not landed yet is deferred and
// retried, up to this many passes, before being applied as-is.
const maxApplyPasses = 3

// PullRemoteChanges fetches incremental changes from the saved cursor and
// applies them page by page. Each page is one local transaction, and the
// advanced cursor commits with the page it covers, so a crash mid-pull
// resumes exactly where the last committed page left off.
//
// A cursor the server no longer honors, or a missing zone, escalates to a
// full fetch-then-replace resync. Returns the number of records applied
// or soft-deleted.
func (e *Engine) PullRemoteChanges(ctx context.Context) (int, error) {
	cursor, err := e.store.GetMeta(ctx, store.MetaPullCursor)
	if err != nil {
		return 0, err
	}

	pulled := 0
	for {
		page, err := e.remote.FetchChanges(ctx, cursor)
		if errors.Is(err, remote.ErrCursorExpired) {
			e.logger.Printf("pull cursor expired, falling back to full resync")
			n, err := e.fullResync(ctx)
			return pulled + n, err
		}
		if errors.Is(err, remote.ErrZoneNotFound) {
			e.logger.Printf("remote zone missing, re-provisioning and resyncing")
			if err := e.remote.EnsureZone(ctx); err != nil {
				return pulled, fmt.Errorf("zone re-provisioning: %w", err)
			}
			n, err := e.fullResync(ctx)
			return pulled + n, err
		}
		if err != nil {
			return pulled, fmt.Errorf("fetch changes: %w", err)
		}

		err = e.store.WithTx(ctx, func(tx *store.Tx) error {
			n, err := e.applyPage(ctx, tx, page)
			if err != nil {
				return err
			}
			pulled += n
			return tx.SetMeta(ctx, store.MetaPullCursor, page.Cursor)
		})
		if err != nil {
			return pulled, fmt.Errorf("applying change page: %w", err)
		}

		cursor = page.Cursor
		if !page.More {
			return pulled, nil
		}
	}
}

// applyPage applies one page's saves and deletes inside tx. Returns how
// many records changed locally.
func (e *Engine) applyPage(ctx context.Context, tx *store.Tx, page *remote.ChangePage) (int, error) {
	applied, err := e.applyChanged(ctx, tx, page.Changed)
	if err != nil {
		return applied, err
	}
	for _, name := range page.Deleted {
		deleted, err := tx.SoftDeleteByRemoteName(ctx, name, e.now())
		if err != nil {
			e.logger.Printf("skipping remote delete %s: %v", name, err)
			continue
		}
		// Already-purged names count for nothing; inflating the pull count
		// would suppress this cycle's drift check.
		if deleted {
			applied++
		}
	}
	return applied, nil
}

// applyChanged converts and applies incoming records in dependency order.
//
// Per-record conversion failures are logged and skipped; one malformed
// record must not sink the page. A record is also skipped when the local
// version is strictly newer (last-write-wins, ties go to the remote).
// Links and time entries whose item has not been applied yet are deferred
// across passes; whatever is still unplaceable after the last pass is
// applied as-is, and an item pointing at a parent nobody knows is
// reparented to the root.
func (e *Engine) applyChanged(ctx context.Context, tx *store.Tx, changed []remote.WireRecord) (int, error) {
	var recs []model.Record
	for i := range changed {
		rec, err := FromWire(&changed[i])
		if err != nil {
			e.logger.Printf("skipping unusable wire record: %v", err)
			continue
		}
		recs = append(recs, rec)
	}
	recs = OrderForApply(recs, e.logger)

	applied := 0
	pending := recs
	for pass := 1; len(pending) > 0; pass++ {
		force := pass >= maxApplyPasses
		var deferred []model.Record
		for _, rec := range pending {
			missing, err := e.missingRef(ctx, tx, rec)
			if err != nil {
				return applied, err
			}
			if missing != "" && !force {
				deferred = append(deferred, rec)
				continue
			}
			if missing != "" {
				if it, ok := rec.(*model.Item); ok && it.ParentID == missing {
					e.logger.Printf("item %s references unknown parent %s, moving to root", it.ID, missing)
					it.ParentID = ""
				} else {
					e.logger.Printf("record %s/%s references unknown item %s, applying as-is",
						rec.Variant(), rec.LocalID(), missing)
				}
			}

			ok, err := e.applyOne(ctx, tx, rec)
			if err != nil {
				return applied, err
			}
			if ok {
				applied++
			}
		}
		if len(deferred) == len(pending) {
			// No progress this pass; force the remainder through next time.
			pass = maxApplyPasses
		}
		pending = deferred
	}
	return applied, nil
}

// applyOne saves one incoming record unless the local copy is strictly
// newer or already holds the same remote version (our own push echoed
// back through the change feed). Returns whether the record was written.
func (e *Engine) applyOne(ctx context.Context, tx *store.Tx, rec model.Record) (bool, error) {
	existing, err := tx.GetRecord(ctx, rec.Variant(), rec.LocalID())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if existing != nil && len(rec.Meta().ChangeTag) > 0 &&
		bytes.Equal(existing.Meta().ChangeTag, rec.Meta().ChangeTag) {
		return false, nil
	}
	if existing != nil && existing.Meta().ModifiedAt > rec.Meta().ModifiedAt {
		e.logger.Printf("keeping local %s/%s: newer than incoming (%d > %d)",
			rec.Variant(), rec.LocalID(), existing.Meta().ModifiedAt, rec.Meta().ModifiedAt)
		return false, nil
	}
	if err := tx.SaveRecord(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// missingRef returns the id of a referenced item that does not exist
// locally yet, or "" when the record is placeable.
func (e *Engine) missingRef(ctx context.Context, tx *store.Tx, rec model.Record) (string, error) {
	check := func(itemID string) (string, error) {
		if itemID == "" {
			return "", nil
		}
		_, err := tx.GetRecord(ctx, model.VariantItem, itemID)
		if errors.Is(err, store.ErrNotFound) {
			return itemID, nil
		}
		if err != nil {
			return "", err
		}
		return "", nil
	}

	switch r := rec.(type) {
	case *model.Item:
		return check(r.ParentID)
	case *model.ItemTagLink:
		return check(r.ItemID)
	case *model.TimeEntry:
		return check(r.ItemID)
	}
	return "", nil
}

// fullResync rebuilds the local mirror from a complete remote listing.
//
// Every page is fetched into memory before anything local is touched:
// if the fetch dies halfway, the existing mirror survives untouched. Only
// once the listing is complete does one transaction clear the tables,
// apply the listing, and commit the fresh cursor.
func (e *Engine) fullResync(ctx context.Context) (int, error) {
	changed, cursor, err := e.fetchFullListing(ctx)
	if err != nil {
		return 0, err
	}
	applied, err := e.replaceAll(ctx, changed, cursor)
	if err != nil {
		return 0, fmt.Errorf("full resync: %w", err)
	}
	e.logger.Printf("full resync complete: %d records", applied)
	return applied, nil
}

// replaceAll swaps the local mirror for the given complete listing in one
// transaction and commits the accompanying cursor.
func (e *Engine) replaceAll(ctx context.Context, changed []remote.WireRecord, cursor []byte) (int, error) {
	applied := 0
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.ClearAllRecords(ctx); err != nil {
			return err
		}
		n, err := e.applyChanged(ctx, tx, changed)
		if err != nil {
			return err
		}
		applied = n
		return tx.SetMeta(ctx, store.MetaPullCursor, cursor)
	})
	return applied, err
}

// fetchFullListing pages through everything from a nil cursor and returns
// the complete record set plus the final cursor.
func (e *Engine) fetchFullListing(ctx context.Context) ([]remote.WireRecord, []byte, error) {
	var all []remote.WireRecord
	var cursor []byte
	for {
		page, err := e.remote.FetchChanges(ctx, cursor)
		if err != nil {
			return nil, nil, fmt.Errorf("full listing fetch: %w", err)
		}
		all = append(all, page.Changed...)
		cursor = page.Cursor
		if !page.More {
			return all, cursor, nil
		}
	}
}
