package sync

import (
	"context"
	"fmt"
	"log"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/remote"
	"github.com/zendegi/directgtd/internal/store"
)

// resolveConflict settles a save conflict for one record using
// last-write-wins on the modification timestamp. The logic is identical
// for every variant; only the identity lookup differs, and that is
// already behind Record.LocalID.
//
// Rules:
//   - no server version available: drop our stale remote tokens and stay
//     dirty, so the next push starts clean;
//   - local strictly newer: local wins — adopt the server's current
//     tokens (so the retry write is accepted) and stay dirty to force the
//     re-push;
//   - otherwise remote wins: overwrite the local record with the server
//     version and clear the dirty flag.
func resolveConflict(ctx context.Context, tx *store.Tx, local model.Record, server *remote.WireRecord, logger *log.Logger) error {
	m := local.Meta()

	if server == nil {
		m.ClearRemote()
		m.NeedsPush = true
		if err := tx.UpdateSyncMeta(ctx, local); err != nil {
			return fmt.Errorf("conflict on %s: failed to reset for clean retry: %w", m.RemoteName, err)
		}
		logger.Printf("conflict on %s: no server version, cleared tokens for clean retry", m.RemoteName)
		return nil
	}

	if m.ModifiedAt > server.ModifiedAt {
		// Local wins. Adopting the server tokens makes the forced
		// re-push pass its optimistic-concurrency check.
		m.ChangeTag = server.ChangeTag
		m.SystemFields = server.SystemFields
		m.NeedsPush = true
		if err := tx.UpdateSyncMeta(ctx, local); err != nil {
			return fmt.Errorf("conflict on %s: failed to adopt server tokens: %w", m.RemoteName, err)
		}
		logger.Printf("conflict on %s: local wins (local %d > remote %d), re-push scheduled",
			m.RemoteName, m.ModifiedAt, server.ModifiedAt)
		return nil
	}

	rec, err := FromWire(server)
	if err != nil {
		return fmt.Errorf("conflict on %s: server version unusable: %w", m.RemoteName, err)
	}
	if err := tx.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("conflict on %s: failed to apply server version: %w", m.RemoteName, err)
	}
	logger.Printf("conflict on %s: remote wins (local %d <= remote %d)",
		m.RemoteName, m.ModifiedAt, server.ModifiedAt)
	return nil
}
