package sync

import (
	"context"
	"fmt"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/remote"
	"github.com/zendegi/directgtd/internal/store"
)

// pushBatch is one chunk of outgoing work, capped at remote.BatchLimit.
type pushBatch struct {
	saves   []remote.WireRecord
	deletes []string
	// byName maps remote names back to the local records in this batch.
	byName map[string]model.Record
}

// PushLocalChanges uploads every dirty record. Tombstones become remote
// deletes; everything else becomes a save. The combined set is chunked
// under the remote batch limit, and each chunk's per-record outcomes are
// applied in one local transaction. Returns the number of records whose
// dirty flag was confirmed cleared.
//
// A batch-level failure (not a partial-failure signal) aborts the cycle
// and propagates to the orchestrator's retry logic; per-record failures
// leave the record dirty for the next cycle.
func (e *Engine) PushLocalChanges(ctx context.Context) (int, error) {
	dirty, err := e.store.DirtyRecords(ctx)
	if err != nil {
		return 0, err
	}
	if len(dirty) == 0 {
		return 0, nil
	}
	e.logger.Printf("pushing %d dirty records", len(dirty))

	confirmed := 0
	for _, batch := range chunkDirty(dirty, remote.BatchLimit) {
		results, err := e.remote.BatchWrite(ctx, batch.saves, batch.deletes)
		if err != nil {
			return confirmed, fmt.Errorf("batch write: %w", err)
		}

		n, err := e.applyWriteResults(ctx, batch, results)
		if err != nil {
			return confirmed, err
		}
		confirmed += n
	}
	return confirmed, nil
}

// chunkDirty partitions dirty records into batches no larger than limit.
func chunkDirty(dirty []model.Record, limit int) []pushBatch {
	var batches []pushBatch
	current := pushBatch{byName: make(map[string]model.Record)}
	size := 0

	flush := func() {
		if size > 0 {
			batches = append(batches, current)
			current = pushBatch{byName: make(map[string]model.Record)}
			size = 0
		}
	}

	for _, r := range dirty {
		if size == limit {
			flush()
		}
		name := model.EnsureRemoteName(r)
		if r.Meta().Tombstone() {
			current.deletes = append(current.deletes, name)
		} else {
			current.saves = append(current.saves, ToWire(r))
		}
		current.byName[name] = r
		size++
	}
	flush()
	return batches
}

// applyWriteResults applies one chunk's per-record outcomes inside a
// single transaction. Returns how many records were confirmed (saved or
// deleted remotely).
func (e *Engine) applyWriteResults(ctx context.Context, batch pushBatch, results []remote.WriteResult) (int, error) {
	confirmed := 0
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, res := range results {
			local := batch.byName[res.Name]
			if local == nil {
				e.logger.Printf("ignoring result for unknown record %s", res.Name)
				continue
			}
			m := local.Meta()

			switch res.Outcome {
			case remote.OutcomeSaved:
				m.NeedsPush = false
				m.ChangeTag = res.ChangeTag
				m.SystemFields = res.SystemFields
				if err := tx.UpdateSyncMeta(ctx, local); err != nil {
					return err
				}
				confirmed++

			case remote.OutcomeDeleted:
				// Covers "already absent" too. Clearing the tokens
				// means a local recreation is treated as brand-new.
				m.NeedsPush = false
				m.ClearRemote()
				if err := tx.UpdateSyncMeta(ctx, local); err != nil {
					return err
				}
				confirmed++

			case remote.OutcomeConflict:
				if err := resolveConflict(ctx, tx, local, res.ServerRecord, e.logger); err != nil {
					return err
				}

			case remote.OutcomeFailed:
				// Stays dirty; next cycle retries it.
				e.logger.Printf("record %s failed to push: %s", res.Name, res.Error)

			default:
				e.logger.Printf("record %s returned unknown outcome %q, leaving dirty", res.Name, res.Outcome)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("applying write results: %w", err)
	}
	return confirmed, nil
}
