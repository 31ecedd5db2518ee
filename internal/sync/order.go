package sync

import (
	"log"

	"github.com/zendegi/directgtd/internal/model"
)

// OrderForApply sorts a batch of incoming records so that hierarchical
// parents are applied before their children.
//
// Ordering only concerns records with a parent reference (items). The
// adjacency is restricted to ids present in the batch: a record whose
// parent is absent from the batch is a root for ordering purposes. The
// traversal is breadth-first from the roots; records it cannot reach
// (cycles, or a broken link partway up a chain) are never dropped — they
// are appended in their original arrival order with a diagnostic.
// Non-hierarchical records follow in arrival order.
func OrderForApply(recs []model.Record, logger *log.Logger) []model.Record {
	var hierarchical []model.Record
	var rest []model.Record
	byID := make(map[string]model.Record)

	for _, r := range recs {
		if r.Variant() == model.VariantItem {
			hierarchical = append(hierarchical, r)
			byID[r.LocalID()] = r
		} else {
			rest = append(rest, r)
		}
	}

	if len(hierarchical) == 0 {
		return recs
	}

	// Parent -> children, restricted to the batch.
	children := make(map[string][]model.Record)
	var roots []model.Record
	for _, r := range hierarchical {
		parent := r.ParentRef()
		if parent == "" || byID[parent] == nil {
			roots = append(roots, r)
			continue
		}
		children[parent] = append(children[parent], r)
	}

	ordered := make([]model.Record, 0, len(recs))
	visited := make(map[string]bool)

	queue := roots
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if visited[r.LocalID()] {
			continue
		}
		visited[r.LocalID()] = true
		ordered = append(ordered, r)
		queue = append(queue, children[r.LocalID()]...)
	}

	// Anything unreachable sits on a cycle or behind one. Apply anyway,
	// in arrival order.
	for _, r := range hierarchical {
		if !visited[r.LocalID()] {
			if logger != nil {
				logger.Printf("record %s unreachable in dependency order (cycle or broken chain), applying as-is", r.LocalID())
			}
			ordered = append(ordered, r)
		}
	}

	return append(ordered, rest...)
}
