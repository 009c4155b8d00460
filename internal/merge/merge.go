// Package merge folds a harvested batch into the historical corpus.
package merge

import "github.com/ppiankov/factharvest/internal/model"

// Result is the outcome of merging a batch into history
type Result struct {
	// Combined is history in its original order followed by Appended
	Combined []model.Row
	// Appended holds the new records in harvest order
	Appended []model.Record
	// Duplicates counts batch records already present in history or
	// earlier in the batch
	Duplicates int
}

// Merge returns history extended by the records of batch whose
// (statement, source URL) identity is not yet present. Identity is exact
// string equality. History rows are never modified, removed, or reordered.
func Merge(batch model.Batch, history []model.Row) Result {
	seen := make(map[model.IdentityKey]struct{}, len(history)+len(batch))
	for _, row := range history {
		seen[row.Key()] = struct{}{}
	}

	appended := make([]model.Record, 0, len(batch))
	duplicates := 0
	for _, record := range batch {
		key := record.Key()
		if _, ok := seen[key]; ok {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		appended = append(appended, record)
	}

	combined := make([]model.Row, 0, len(history)+len(appended))
	combined = append(combined, history...)
	for _, record := range appended {
		combined = append(combined, record.Row())
	}

	return Result{
		Combined:   combined,
		Appended:   appended,
		Duplicates: duplicates,
	}
}
