package sync

import (
	"context"
	"fmt"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/store"
)

// PurgeSyncedTombstones permanently removes tombstones whose deletion has
// been confirmed remotely and whose retention window has elapsed.
//
// A tombstone still flagged for push is never touched: purging it would
// orphan the remote copy forever. Purge order follows the reference
// graph so a row is never removed while something still points at it:
// item-tag links and time entries go first, then items (leaf-first, in
// repeated passes, since a child item can reference a parent tombstone),
// then tags and saved searches. Everything happens in one transaction.
func (e *Engine) PurgeSyncedTombstones(ctx context.Context) (int, error) {
	cutoff := e.now() - int64(e.Retention.Seconds())

	purged := 0
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, v := range []model.Variant{model.VariantItemTag, model.VariantTimeEntry} {
			n, err := e.purgeVariant(ctx, tx, v, cutoff, nil)
			if err != nil {
				return err
			}
			purged += n
		}

		// Items can chain: purging a leaf tombstone may free its parent
		// tombstone for the next pass. Loop until a pass removes nothing.
		for {
			n, err := e.purgeVariant(ctx, tx, model.VariantItem, cutoff, func(r model.Record) (bool, error) {
				if has, err := tx.ItemHasLiveChildren(ctx, r.LocalID()); err != nil || has {
					return false, err
				}
				if ref, err := tx.ItemReferenced(ctx, r.LocalID()); err != nil || ref {
					return false, err
				}
				return true, nil
			})
			if err != nil {
				return err
			}
			purged += n
			if n == 0 {
				break
			}
		}

		n, err := e.purgeVariant(ctx, tx, model.VariantTag, cutoff, func(r model.Record) (bool, error) {
			ref, err := tx.TagReferenced(ctx, r.LocalID())
			return !ref, err
		})
		if err != nil {
			return err
		}
		purged += n

		n, err = e.purgeVariant(ctx, tx, model.VariantSavedSearch, cutoff, nil)
		if err != nil {
			return err
		}
		purged += n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("tombstone purge: %w", err)
	}

	if purged > 0 {
		e.logger.Printf("purged %d expired tombstones", purged)
	}
	return purged, nil
}

// purgeVariant hard-deletes every eligible tombstone of one variant. The
// optional safe predicate vetoes individual rows that are still referenced.
func (e *Engine) purgeVariant(ctx context.Context, tx *store.Tx, v model.Variant, cutoff int64, safe func(model.Record) (bool, error)) (int, error) {
	stones, err := tx.Tombstones(ctx, v)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, r := range stones {
		m := r.Meta()
		if m.NeedsPush || m.DeletedAt == nil || *m.DeletedAt > cutoff {
			continue
		}
		if safe != nil {
			ok, err := safe(r)
			if err != nil {
				return purged, err
			}
			if !ok {
				continue
			}
		}
		if err := tx.HardDelete(ctx, v, r.LocalID()); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
