package data

import (
	"context"
	"time"

	"github.com/pashagolub/prefrank/pkg/rating"
)

// ImportSummary reports what an import changed
type ImportSummary struct {
	Added     []string `json:"added"`
	Unchanged []string `json:"unchanged"` // Already in the library; model state is kept
}

// ImportEntries adds new entries to storage. Entries already present keep
// their model state. With markRated the new entries join the comparison
// corpus immediately, which is how an existing list of ratings is brought in.
func ImportEntries(ctx context.Context, storage Storage, entries []Entry, markRated bool) (*ImportSummary, error) {
	lib, err := storage.Load(ctx)
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{Added: []string{}, Unchanged: []string{}}
	var fresh []Entry
	now := time.Now()
	for _, e := range entries {
		if _, err := lib.Get(e.ID()); err == nil {
			summary.Unchanged = append(summary.Unchanged, e.ID())
			continue
		}
		e.Version = 0
		if markRated {
			at := now
			e.RatedAt = &at
		}
		fresh = append(fresh, e)
		summary.Added = append(summary.Added, e.ID())
	}

	if len(fresh) == 0 {
		return summary, nil
	}
	if _, err := storage.Put(ctx, fresh...); err != nil {
		return nil, err
	}
	return summary, nil
}

// MigrateLibrary converts every Elo-only entry to Bradley-Terry state and
// returns the ids that changed.
func MigrateLibrary(ctx context.Context, storage Storage, engine rating.Config) ([]string, error) {
	lib, err := storage.Load(ctx)
	if err != nil {
		return nil, err
	}

	var changed []Entry
	for _, e := range lib.Entries() {
		if !rating.NeedsMigration(e.Item) {
			continue
		}
		item, err := rating.MigrateFromElo(e.Item, engine.EloScale)
		if err != nil {
			return nil, err
		}
		e.Item = item
		changed = append(changed, e)
	}

	ids := make([]string, 0, len(changed))
	if len(changed) == 0 {
		return ids, nil
	}
	written, err := storage.Put(ctx, changed...)
	if err != nil {
		return nil, err
	}
	for _, e := range written {
		ids = append(ids, e.ID())
	}
	return ids, nil
}
