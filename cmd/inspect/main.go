// Command inspect downloads one ALADIN run, normalizes it the way the service
// does and prints each field group's columns and row counts. With -locations it
// also resolves the given stations and reports how many rows match each one.
//
// Usage:
//
//	go run ./cmd/inspect -run 2024-01-02T06:00:00Z -locations Kranj,Vogel -json out/run.json
//
// Endpoints and tools come from the same environment variables as the service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/adapter/arso"
	"github.com/couchcryptid/nwp-ingest-service/internal/adapter/grib"
	"github.com/couchcryptid/nwp-ingest-service/internal/config"
	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
	"github.com/couchcryptid/nwp-ingest-service/internal/observability"
	"github.com/couchcryptid/nwp-ingest-service/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

// groupSummary describes one normalized field table.
type groupSummary struct {
	Table       string         `json:"table"`
	Group       string         `json:"group"`
	LevelColumn string         `json:"level_column,omitempty"`
	Columns     []string       `json:"columns"`
	Rows        int            `json:"rows"`
	ValidTimes  int            `json:"valid_times"`
	Matched     map[string]int `json:"matched,omitempty"`
}

// runSummary is the inspect output for one run.
type runSummary struct {
	Run     time.Time      `json:"run"`
	Members []string       `json:"members"`
	Groups  []groupSummary `json:"groups"`
}

func main() {
	_ = godotenv.Load()
	if err := run(clockwork.NewRealClock()); err != nil {
		log.Fatal(err)
	}
}

func run(clock clockwork.Clock) error {
	runFlag := flag.String("run", "", "run reference time (RFC3339); defaults to the latest cadence boundary")
	locFlag := flag.String("locations", "", "comma-separated station identifiers to match")
	jsonOut := flag.String("json", "", "optional path for a JSON summary")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	window := domain.RunWindow{Cadence: cfg.RunCadence, Lookback: cfg.ColdStartLookback}
	runTime, err := parseRun(*runFlag, window, clock.Now())
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	client := arso.NewClient(arso.Config{
		ArchiveBaseURL:     cfg.ArchiveBaseURL,
		ObservationBaseURL: cfg.ObservationBaseURL,
		WorkDir:            cfg.WorkDir,
		DownloadTimeout:    cfg.DownloadTimeout,
		ResolveTimeout:     cfg.ResolveTimeout,
	}, logger, metrics)
	normalizer := pipeline.NewNormalizer(grib.NewDecoder(cfg.GribDumpCommand, cfg.WorkDir, logger))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DownloadTimeout+5*time.Minute)
	defer cancel()

	members, err := client.FetchRun(ctx, runTime)
	if err != nil {
		return fmt.Errorf("fetch run %s: %w", runTime.Format(time.RFC3339), err)
	}
	log.Printf("fetched %d members from %s", len(members), client.ArchiveURL(runTime))

	set, err := normalizer.NormalizeRun(ctx, members)
	if err != nil {
		return fmt.Errorf("normalize run: %w", err)
	}

	var index *domain.LocationIndex
	if ids := splitList(*locFlag); len(ids) > 0 {
		index, err = resolveIndex(ctx, client, ids)
		if err != nil {
			return err
		}
	}

	summary := summarize(runTime, members, set, index)
	printSummary(summary)

	if *jsonOut != "" {
		if err := writeJSON(*jsonOut, summary); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
		log.Printf("wrote summary: %s", *jsonOut)
	}
	return nil
}

func parseRun(value string, window domain.RunWindow, now time.Time) (time.Time, error) {
	if value == "" {
		return window.Floor(now), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -run %q: %w", value, err)
	}
	if !window.Floor(t).Equal(t.UTC()) {
		return time.Time{}, fmt.Errorf("invalid -run %q: not aligned to %s cadence", value, window.Cadence)
	}
	return t.UTC(), nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func resolveIndex(ctx context.Context, resolver domain.Resolver, ids []string) (*domain.LocationIndex, error) {
	locations := make(map[string]domain.Location, len(ids))
	for _, id := range ids {
		name := domain.NormalizeName(id)
		c, err := resolver.Resolve(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", name, err)
		}
		locations[name] = domain.Location{Name: name, Lat: c.Lat, Lon: c.Lon}
		log.Printf("%s: %.4f, %.4f", name, c.Lat, c.Lon)
	}
	index := domain.NewLocationIndex(locations)
	for _, c := range index.Collisions() {
		log.Printf("warning: %v share cell (%.1f, %.1f) with %s", c.Dropped, c.Lat, c.Lon, c.Owner)
	}
	return index, nil
}

func summarize(runTime time.Time, members []domain.Member, set domain.TableSet, index *domain.LocationIndex) runSummary {
	s := runSummary{Run: runTime}
	for _, m := range members {
		s.Members = append(s.Members, m.Name)
	}

	for _, g := range domain.Groups() {
		table := set[g]
		valid := make(map[time.Time]struct{})
		for _, r := range table.Rows {
			valid[r.ValidTime] = struct{}{}
		}
		gs := groupSummary{
			Table:       g.Table(),
			Group:       g.String(),
			LevelColumn: table.LevelColumn,
			Columns:     table.Columns,
			Rows:        table.Len(),
			ValidTimes:  len(valid),
		}
		if index != nil {
			gs.Matched = make(map[string]int)
			for _, r := range index.Match(table).Rows {
				gs.Matched[r.Location]++
			}
		}
		s.Groups = append(s.Groups, gs)
	}
	return s
}

func printSummary(s runSummary) {
	fmt.Printf("\n=== Run %s (%d members) ===\n", s.Run.Format(time.RFC3339), len(s.Members))
	for _, g := range s.Groups {
		fmt.Printf("\n%s (%s)\n", g.Table, g.Group)
		if g.LevelColumn != "" {
			fmt.Printf("  level column: %s\n", g.LevelColumn)
		}
		fmt.Printf("  columns:      %s\n", strings.Join(g.Columns, ", "))
		fmt.Printf("  rows:         %d over %d validity times\n", g.Rows, g.ValidTimes)

		names := make([]string, 0, len(g.Matched))
		for name := range g.Matched {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-14s %d rows\n", name+":", g.Matched[name])
		}
	}
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
