package domain

import "time"

const (
	// DefaultRunCadence is the initialisation interval of the ALADIN model.
	DefaultRunCadence = 6 * time.Hour

	// DefaultColdStartLookback bounds how far back an empty store reaches:
	// five runs at the default cadence.
	DefaultColdStartLookback = 30 * time.Hour
)

// RunWindow describes the publication schedule used to derive missing runs.
type RunWindow struct {
	Cadence  time.Duration
	Lookback time.Duration
}

// DefaultRunWindow returns the ALADIN publication schedule.
func DefaultRunWindow() RunWindow {
	return RunWindow{Cadence: DefaultRunCadence, Lookback: DefaultColdStartLookback}
}

// Floor truncates t to the most recent cadence boundary of its UTC day.
func (w RunWindow) Floor(t time.Time) time.Time {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(t.Sub(midnight) / w.Cadence * w.Cadence)
}

// Missing lists the cadence-aligned runs strictly after the lower bound and up to
// the latest possible run at now, in ascending order.
//
// The lower bound is latest-Lookback, raised to since when hasSince is set and
// since is later. The result is empty when nothing new can have been published.
func (w RunWindow) Missing(now, since time.Time, hasSince bool) []time.Time {
	latest := w.Floor(now)
	lower := latest.Add(-w.Lookback)
	if hasSince && since.UTC().After(lower) {
		lower = since.UTC()
	}

	var runs []time.Time
	for run := w.Floor(lower).Add(w.Cadence); !run.After(latest); run = run.Add(w.Cadence) {
		runs = append(runs, run)
	}
	return runs
}
