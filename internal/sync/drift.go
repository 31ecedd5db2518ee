package sync

import (
	"context"
	"fmt"

	"github.com/zendegi/directgtd/internal/model"
)

// DriftCheck compares local live record counts against a full remote
// listing and repairs the mirror when they disagree.
//
// Drift means the cursor stream silently missed something: the cursor is
// valid, the pull reported nothing new, yet the two sides hold different
// data. The orchestrator runs this only on quiet cycles, so it never
// races a real pull. Records still awaiting push make the comparison
// meaningless, so the check bails out if any exist.
//
// Returns whether a repair ran and how many records it applied.
func (e *Engine) DriftCheck(ctx context.Context) (bool, int, error) {
	dirty, err := e.store.DirtyRecords(ctx)
	if err != nil {
		return false, 0, err
	}
	if len(dirty) > 0 {
		e.logger.Printf("drift check skipped: %d records still dirty", len(dirty))
		return false, 0, nil
	}

	listing, cursor, err := e.fetchFullListing(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("drift listing: %w", err)
	}

	remoteCounts := make(map[model.Variant]int)
	for i := range listing {
		remoteCounts[model.Variant(listing[i].Type)]++
	}

	drifted := false
	for _, v := range model.Variants() {
		local, err := e.store.LiveCount(ctx, v)
		if err != nil {
			return false, 0, err
		}
		if local != remoteCounts[v] {
			e.logger.Printf("drift detected for %s: local=%d remote=%d", v, local, remoteCounts[v])
			drifted = true
		}
	}
	if !drifted {
		return false, 0, nil
	}

	applied, err := e.replaceAll(ctx, listing, cursor)
	if err != nil {
		return false, 0, fmt.Errorf("drift repair: %w", err)
	}
	e.logger.Printf("drift repaired: mirror rebuilt with %d records", applied)
	return true, applied, nil
}
