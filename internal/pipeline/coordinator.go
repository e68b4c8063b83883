package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
	"github.com/couchcryptid/nwp-ingest-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Stages are the collaborators a Coordinator drives through one cycle.
type Stages struct {
	Registry   *Registry
	Tracker    *RunTracker
	Archive    ArchiveSource
	Normalizer *Normalizer
	Store      FieldStore
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock used to stamp reports.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithPublisher publishes every finished cycle report.
func WithPublisher(p ReportPublisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithStorePing makes readiness also require a reachable store.
func WithStorePing(p Pinger) Option {
	return func(c *Coordinator) { c.pinger = p }
}

// Coordinator runs ingestion cycles for a fixed set of monitored locations.
type Coordinator struct {
	locations []string
	stages    Stages
	publisher ReportPublisher
	pinger    Pinger
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	ready atomic.Bool
	last  atomic.Pointer[domain.CycleReport]
}

// NewCoordinator creates a Coordinator for the given location identifiers.
func NewCoordinator(locations []string, stages Stages, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Coordinator {
	c := &Coordinator{
		locations: locations,
		stages:    stages,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckReadiness returns nil once a cycle has completed without error and the
// store, when configured, answers a ping.
func (c *Coordinator) CheckReadiness(ctx context.Context) error {
	if !c.ready.Load() {
		return errors.New("no ingestion cycle has completed yet")
	}
	if c.pinger != nil {
		if err := c.pinger.Ping(ctx); err != nil {
			return fmt.Errorf("store unreachable: %w", err)
		}
	}
	return nil
}

// LastReport returns the report of the most recent cycle, if any.
func (c *Coordinator) LastReport() (domain.CycleReport, bool) {
	r := c.last.Load()
	if r == nil {
		return domain.CycleReport{}, false
	}
	return *r, true
}

// RunOnce runs a cycle at the current clock time.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	_, err := c.RunCycle(ctx, c.clock.Now())
	return err
}

// RunCycle resolves locations, ingests every missing run up to now and appends
// the new rows of each field table. Unavailable or undecodable runs are skipped.
// Persistence is attempted for every table; their failures are joined.
func (c *Coordinator) RunCycle(ctx context.Context, now time.Time) (domain.CycleReport, error) {
	report := domain.NewCycleReport(c.clock.Now())
	log := c.logger.With("cycle_id", report.CycleID)

	c.metrics.CycleRunning.Set(1)
	defer c.metrics.CycleRunning.Set(0)

	locations, err := c.stages.Registry.EnsureResolved(ctx, c.locations)
	if err != nil {
		return c.finish(ctx, log, report, fmt.Errorf("resolve locations: %w", err))
	}
	report.Locations = len(locations)
	index := c.buildIndex(log, locations)

	runs, err := c.stages.Tracker.MissingRuns(ctx, now)
	if err != nil {
		return c.finish(ctx, log, report, fmt.Errorf("missing runs: %w", err))
	}
	if len(runs) == 0 {
		log.Info("no missing runs")
		return c.finish(ctx, log, report, nil)
	}
	log.Info("ingesting runs", "count", len(runs), "first", runs[0], "last", runs[len(runs)-1])

	acc := domain.NewTableSet()
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return c.finish(ctx, log, report, err)
		}
		var ok bool
		acc, ok = c.ingestRun(ctx, log, acc, run)
		if ok {
			report.RunsFetched = append(report.RunsFetched, run)
		} else {
			report.RunsSkipped = append(report.RunsSkipped, run)
		}
	}

	if err := ctx.Err(); err != nil {
		return c.finish(ctx, log, report, err)
	}
	if acc.Empty() {
		log.Info("no new data in missing runs")
		return c.finish(ctx, log, report, nil)
	}

	report.Inserted, err = c.persist(ctx, log, index, acc)
	return c.finish(ctx, log, report, err)
}

func (c *Coordinator) buildIndex(log *slog.Logger, locations map[string]domain.Location) *domain.LocationIndex {
	index := domain.NewLocationIndex(locations)
	dropped := 0
	for _, col := range index.Collisions() {
		dropped += len(col.Dropped)
		log.Warn("locations share a grid cell, keeping owner",
			"owner", col.Owner, "dropped", col.Dropped, "lat", col.Lat, "lon", col.Lon)
	}
	c.metrics.LocationsMonitored.Set(float64(index.Len()))
	c.metrics.LocationCollisions.Set(float64(dropped))
	return index
}

// ingestRun fetches and normalizes one run and merges it into acc.
// On any failure acc is returned unchanged and ok is false.
func (c *Coordinator) ingestRun(ctx context.Context, log *slog.Logger, acc domain.TableSet, run time.Time) (next domain.TableSet, ok bool) {
	log = log.With("run", run.Format(time.RFC3339))

	members, err := c.stages.Archive.FetchRun(ctx, run)
	if errors.Is(err, domain.ErrRunUnavailable) {
		c.metrics.Runs.WithLabelValues("unavailable").Inc()
		log.Info("run not published yet, skipping")
		return acc, false
	}
	if err != nil {
		c.metrics.Runs.WithLabelValues("failed").Inc()
		log.Warn("fetch run failed, skipping", "error", err)
		return acc, false
	}

	start := c.clock.Now()
	set, err := c.stages.Normalizer.NormalizeRun(ctx, members)
	c.metrics.DecodeDuration.Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.metrics.Runs.WithLabelValues("failed").Inc()
		log.Warn("normalize run failed, skipping", "error", err)
		return acc, false
	}

	next, err = acc.Merge(set)
	if err != nil {
		c.metrics.Runs.WithLabelValues("failed").Inc()
		log.Warn("run schema differs from earlier runs, skipping", "error", err)
		return acc, false
	}

	c.metrics.Runs.WithLabelValues("fetched").Inc()
	c.metrics.ArchiveMembers.Add(float64(len(members)))
	log.Info("run normalized", "members", len(members))
	return next, true
}

// persist matches, deduplicates and appends each group independently.
func (c *Coordinator) persist(ctx context.Context, log *slog.Logger, index *domain.LocationIndex, acc domain.TableSet) ([domain.GroupCount]int, error) {
	var (
		inserted [domain.GroupCount]int
		errs     []error
	)
	for _, g := range domain.Groups() {
		name := g.Table()
		if acc[g].Len() == 0 {
			continue
		}

		matched := index.Match(acc[g])
		cutoff, hasCutoff, err := c.stages.Store.MaxValidTime(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", name, err))
			log.Error("read max validity time failed", "table", name, "error", err)
			continue
		}
		fresh := domain.Deduplicate(matched, cutoff, hasCutoff)
		c.metrics.RowsDeduplicated.WithLabelValues(name).Add(float64(matched.Len() - fresh.Len()))
		if fresh.Len() == 0 {
			log.Debug("no new rows", "table", name, "matched", matched.Len())
			continue
		}

		n, err := c.stages.Store.AppendRows(ctx, fresh)
		if err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", name, err))
			log.Error("append rows failed", "table", name, "error", err)
			continue
		}
		inserted[g] = n
		c.metrics.RowsInserted.WithLabelValues(name).Add(float64(n))
		log.Info("rows appended", "table", name, "rows", n, "matched", matched.Len())
	}
	return inserted, errors.Join(errs...)
}

func (c *Coordinator) finish(ctx context.Context, log *slog.Logger, report domain.CycleReport, err error) (domain.CycleReport, error) {
	report.CompletedAt = c.clock.Now().UTC()
	duration := report.CompletedAt.Sub(report.StartedAt)
	c.metrics.CycleDuration.Observe(duration.Seconds())

	if err != nil {
		report.Err = err.Error()
		c.metrics.CyclesTotal.WithLabelValues("error").Inc()
		log.Error("ingestion cycle failed", "error", err, "duration", duration)
	} else {
		c.ready.Store(true)
		c.metrics.CyclesTotal.WithLabelValues("success").Inc()
		c.metrics.LastSuccess.Set(float64(report.CompletedAt.Unix()))
		log.Info("ingestion cycle complete",
			"inserted", report.TotalInserted(),
			"runs_fetched", len(report.RunsFetched),
			"runs_skipped", len(report.RunsSkipped),
			"duration", duration)
	}
	c.last.Store(&report)

	if c.publisher != nil && ctx.Err() == nil {
		if perr := c.publisher.Publish(ctx, report); perr != nil {
			log.Warn("publish cycle report failed", "error", perr)
		}
	}
	return report, err
}
