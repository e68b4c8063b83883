package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
	"github.com/couchcryptid/nwp-ingest-service/internal/observability"
)

// --- grid fixtures ---

// gridPoints holds two points in Kranj's cell (the first nearest), one in
// Vogel's cell and one outside every monitored cell.
var gridPoints = [][2]float64{{46.24, 14.36}, {46.21, 14.39}, {46.26, 13.84}, {45.0, 15.0}}

var forecastSteps = []time.Duration{0, 3 * time.Hour, 6 * time.Hour, 9 * time.Hour}

var pressureLevels = []float64{850, 500}

func makeDataset(run time.Time, levelType, levelColumn string, levels []float64, vars ...domain.Variable) domain.Dataset {
	ds := domain.Dataset{LevelType: levelType, LevelColumn: levelColumn, Variables: vars}
	for _, step := range forecastSteps {
		for _, level := range levels {
			for _, p := range gridPoints {
				values := make(map[string]float64, len(vars))
				for i, v := range vars {
					values[v.ShortName] = float64(i) + p[0] + level/1000
				}
				ds.Rows = append(ds.Rows, domain.DecodedRow{
					Lat: p[0], Lon: p[1],
					RunTime: run, Step: step, ValidTime: run.Add(step),
					Level: level, Values: values,
				})
			}
		}
	}
	return ds
}

func makeDatasets(run time.Time) []domain.Dataset {
	return []domain.Dataset{
		makeDataset(run, "heightAboveGround", "", []float64{2},
			domain.Variable{ShortName: "r", CanonicalName: "relative_humidity"},
			domain.Variable{ShortName: "t2m", CanonicalName: "air_temperature"}),
		makeDataset(run, "heightAboveGround", "", []float64{10},
			domain.Variable{ShortName: "u10", CanonicalName: "eastward_wind"},
			domain.Variable{ShortName: "v10", CanonicalName: "northward_wind"}),
		makeDataset(run, "isobaricInhPa", "isobaricInhPa", pressureLevels,
			domain.Variable{ShortName: "z", CanonicalName: "geopotential"},
			domain.Variable{ShortName: "t", CanonicalName: "air_temperature"},
			domain.Variable{ShortName: "u", CanonicalName: "eastward_wind"},
			domain.Variable{ShortName: "v", CanonicalName: "northward_wind"},
			domain.Variable{ShortName: "r", CanonicalName: "relative_humidity"}),
		makeDataset(run, "meanSea", "", []float64{0},
			domain.Variable{ShortName: "msl", CanonicalName: "air_pressure_at_mean_sea_level"}),
		makeDataset(run, "surface", "", []float64{0},
			domain.Variable{ShortName: "sp", CanonicalName: "surface_air_pressure"},
			domain.Variable{ShortName: "tcc", CanonicalName: "unknown"},
			domain.Variable{ShortName: "tp", CanonicalName: "unknown"}),
	}
}

func runKey(run time.Time) string { return run.UTC().Format(time.RFC3339) }

// --- archive ---

type fakeArchive struct {
	mu          sync.Mutex
	unavailable map[string]bool
	errs        map[string]error
	onFetch     func(run time.Time)
	calls       []time.Time
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{unavailable: map[string]bool{}, errs: map[string]error{}}
}

func (a *fakeArchive) FetchRun(_ context.Context, run time.Time) ([]domain.Member, error) {
	a.mu.Lock()
	a.calls = append(a.calls, run)
	hook := a.onFetch
	unavailable := a.unavailable[runKey(run)]
	err := a.errs[runKey(run)]
	a.mu.Unlock()

	if hook != nil {
		hook(run)
	}
	if unavailable {
		return nil, fmt.Errorf("fetch %s: %w", runKey(run), domain.ErrRunUnavailable)
	}
	if err != nil {
		return nil, err
	}
	return []domain.Member{{Name: "aladin.grib", Data: []byte(runKey(run))}}, nil
}

// --- decoder ---

// fakeDecoder decodes members whose data is an RFC 3339 run time.
type fakeDecoder struct {
	shape map[string]int // run key -> dataset count override
	errs  map[string]error
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{shape: map[string]int{}, errs: map[string]error{}}
}

func (d *fakeDecoder) Decode(_ context.Context, data []byte) ([]domain.Dataset, error) {
	key := string(data)
	if err := d.errs[key]; err != nil {
		return nil, err
	}
	run, err := time.Parse(time.RFC3339, key)
	if err != nil {
		return nil, err
	}
	datasets := makeDatasets(run.UTC())
	if n, ok := d.shape[key]; ok {
		datasets = datasets[:n]
	}
	return datasets, nil
}

// --- resolver ---

type fakeResolver struct {
	mu     sync.Mutex
	coords map[string]domain.Coordinate
	fail   map[string]bool
	calls  map[string]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		coords: map[string]domain.Coordinate{
			"KRANJ": {Lat: 46.2384, Lon: 14.3556},
			"VOGEL": {Lat: 46.2631, Lon: 13.8357},
		},
		fail:  map[string]bool{},
		calls: map[string]int{},
	}
}

func (r *fakeResolver) Resolve(_ context.Context, name string) (domain.Coordinate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
	if r.fail[name] {
		return domain.Coordinate{}, fmt.Errorf("%w: %s: status 503", domain.ErrResolve, name)
	}
	c, ok := r.coords[name]
	if !ok {
		return domain.Coordinate{}, fmt.Errorf("%w: %s: status 404", domain.ErrResolve, name)
	}
	return c, nil
}

// --- store ---

type memStore struct {
	mu        sync.Mutex
	locations []domain.Location
	tables    map[string]*domain.FieldTable
	listErr   error
	appendErr map[string]error
	appends   int
}

func newMemStore() *memStore {
	return &memStore{tables: map[string]*domain.FieldTable{}, appendErr: map[string]error{}}
}

func (s *memStore) ListLocations(context.Context) ([]domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return slices.Clone(s.locations), nil
}

func (s *memStore) InsertLocation(_ context.Context, loc domain.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.locations {
		if l.Name == loc.Name {
			return errors.New("duplicate location " + loc.Name)
		}
	}
	s.locations = append(s.locations, loc)
	return nil
}

func (s *memStore) maxOf(table string, pick func(domain.Row) time.Time) (time.Time, bool) {
	t, ok := s.tables[table]
	if !ok || len(t.Rows) == 0 {
		return time.Time{}, false
	}
	var maxT time.Time
	for _, r := range t.Rows {
		if v := pick(r); v.After(maxT) {
			maxT = v
		}
	}
	return maxT, true
}

func (s *memStore) MaxRunTime(_ context.Context, table string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.maxOf(table, func(r domain.Row) time.Time { return r.RunTime })
	return v, ok, nil
}

func (s *memStore) MaxValidTime(_ context.Context, table string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.maxOf(table, func(r domain.Row) time.Time { return r.ValidTime })
	return v, ok, nil
}

func (s *memStore) AppendRows(_ context.Context, table domain.FieldTable) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := table.Group.Table()
	if err := s.appendErr[name]; err != nil {
		return 0, err
	}
	s.appends++
	t, ok := s.tables[name]
	if !ok {
		t = &domain.FieldTable{Group: table.Group, LevelColumn: table.LevelColumn, Columns: table.Columns}
		s.tables[name] = t
	}
	t.Rows = append(t.Rows, table.Rows...)
	return len(table.Rows), nil
}

func (s *memStore) rows(table string) []domain.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[table]; ok {
		return slices.Clone(t.Rows)
	}
	return nil
}

// duplicateKeys counts rows sharing (location, validity time, level) with an earlier row.
func (s *memStore) duplicateKeys(table string) int {
	type key struct {
		location string
		valid    time.Time
		level    float64
	}
	seen := map[key]bool{}
	dups := 0
	for _, r := range s.rows(table) {
		k := key{r.Location, r.ValidTime, r.Level}
		if seen[k] {
			dups++
		}
		seen[k] = true
	}
	return dups
}

// --- publisher ---

type fakePublisher struct {
	mu      sync.Mutex
	reports []domain.CycleReport
}

func (p *fakePublisher) Publish(_ context.Context, r domain.CycleReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}
