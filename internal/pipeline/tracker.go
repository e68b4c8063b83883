package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
)

// RunTracker derives the runs that still have to be ingested from what the
// field tables already hold.
type RunTracker struct {
	store  FieldStore
	window domain.RunWindow
}

// NewRunTracker creates a RunTracker over the five field tables of store.
func NewRunTracker(store FieldStore, window domain.RunWindow) *RunTracker {
	return &RunTracker{store: store, window: window}
}

// LatestRun returns the newest run reference time across all field tables.
func (t *RunTracker) LatestRun(ctx context.Context) (time.Time, bool, error) {
	var (
		latest time.Time
		found  bool
	)
	for _, g := range domain.Groups() {
		run, ok, err := t.store.MaxRunTime(ctx, g.Table())
		if err != nil {
			return time.Time{}, false, fmt.Errorf("max run time of %s: %w", g.Table(), err)
		}
		if ok && (!found || run.After(latest)) {
			latest, found = run, true
		}
	}
	return latest, found, nil
}

// MissingRuns lists, in ascending order, the runs published at or before now
// that are newer than anything stored, bounded by the cold-start lookback.
func (t *RunTracker) MissingRuns(ctx context.Context, now time.Time) ([]time.Time, error) {
	since, ok, err := t.LatestRun(ctx)
	if err != nil {
		return nil, err
	}
	return t.window.Missing(now, since, ok), nil
}
