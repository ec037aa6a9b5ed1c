package inventory

import "sort"

// ReconciliationResult holds the set differences between a source and a
// destination inventory. Derived, stateless, recomputed per pair.
type ReconciliationResult struct {
	MissingInDest    []string `json:"missing_in_dest"`
	ExtraInDest      []string `json:"extra_in_dest"`
	NewerInDestCount int      `json:"newer_in_dest_count"`
	CommonCount      int      `json:"common_count"`
}

// Reconcile diffs two inventories by file name alone; size and path are not
// considered. This is a presence/freshness check, not a content-equality
// check. A file in both inventories counts as newer-in-dest only when the
// destination timestamp is strictly greater; equal timestamps are in sync.
// Name lists are sorted for deterministic reports.
func Reconcile(source, dest *FileInventory) ReconciliationResult {
	var result ReconciliationResult

	for name, src := range source.Files {
		dst, ok := dest.Files[name]
		if !ok {
			result.MissingInDest = append(result.MissingInDest, name)
			continue
		}
		result.CommonCount++
		if dst.ModifiedAt.After(src.ModifiedAt) {
			result.NewerInDestCount++
		}
	}

	for name := range dest.Files {
		if _, ok := source.Files[name]; !ok {
			result.ExtraInDest = append(result.ExtraInDest, name)
		}
	}

	sort.Strings(result.MissingInDest)
	sort.Strings(result.ExtraInDest)

	return result
}
