// Command validate checks the integrity of an ingestion store: location names
// are unique, field rows reference registered locations, no (location, validity
// time, level) key is stored twice, and the field tables agree on the latest run.
//
// Usage:
//
//	go run ./cmd/validate
//
// Database settings come from the same environment variables as the service.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/nwp-ingest-service/internal/config"
	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
	"github.com/joho/godotenv"
)

// store is the subset of sqlstore.Store the checks read from.
type store interface {
	ListLocations(ctx context.Context) ([]domain.Location, error)
	CountDuplicateLocations(ctx context.Context) (int, error)
	CountDuplicateKeys(ctx context.Context, table, levelColumn string) (int, error)
	CountOrphanRows(ctx context.Context, table string) (int, error)
	MaxRunTime(ctx context.Context, table string) (time.Time, bool, error)
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	_ = godotenv.Load()
	if code := start(); code != 0 {
		os.Exit(code)
	}
}

func start() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store: %v\n", err)
		return 1
	}
	defer db.Close()

	return run(ctx, db, cfg.MonitoredLocations)
}

func run(ctx context.Context, s store, monitored []string) int {
	fmt.Println("=== NWP Store Integrity Validation ===")
	fmt.Println()

	phases := []*phase{
		validateLocations(ctx, s, monitored),
		validateFieldTables(ctx, s),
		validateRunCoverage(ctx, s),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateLocations(ctx context.Context, s store, monitored []string) *phase {
	p := &phase{name: "Phase 1: Location registry"}

	dups, err := s.CountDuplicateLocations(ctx)
	if err != nil {
		p.errorf("count duplicate names: %v", err)
	} else if dups > 0 {
		p.errorf("%d location name(s) registered more than once", dups)
	}

	locs, err := s.ListLocations(ctx)
	if err != nil {
		p.errorf("list locations: %v", err)
		return p
	}
	registered := make(map[string]bool, len(locs))
	for _, loc := range locs {
		registered[loc.Name] = true
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
			p.errorf("%s: coordinates (%g, %g) out of range", loc.Name, loc.Lat, loc.Lon)
		}
	}
	for _, id := range monitored {
		if name := domain.NormalizeName(id); !registered[name] {
			p.errorf("%s: monitored but not registered", name)
		}
	}
	return p
}

func validateFieldTables(ctx context.Context, s store) *phase {
	p := &phase{name: "Phase 2: Field tables (keys and references)"}

	for _, g := range domain.Groups() {
		table := g.Table()
		level := ""
		if g == domain.GroupPressureLevel {
			level = g.LevelType()
		}

		dups, err := s.CountDuplicateKeys(ctx, table, level)
		if err != nil {
			p.errorf("%s: count duplicate keys: %v", table, err)
		} else if dups > 0 {
			p.errorf("%s: %d key(s) stored more than once", table, dups)
		}

		orphans, err := s.CountOrphanRows(ctx, table)
		if err != nil {
			p.errorf("%s: count orphan rows: %v", table, err)
		} else if orphans > 0 {
			p.errorf("%s: %d row(s) reference unregistered locations", table, orphans)
		}
	}
	return p
}

func validateRunCoverage(ctx context.Context, s store) *phase {
	p := &phase{name: "Phase 3: Run coverage (tables agree)"}

	latest := make(map[domain.Group]time.Time)
	for _, g := range domain.Groups() {
		run, ok, err := s.MaxRunTime(ctx, g.Table())
		if err != nil {
			p.errorf("%s: latest run: %v", g.Table(), err)
			continue
		}
		if ok {
			latest[g] = run
		}
	}
	if len(latest) == 0 {
		fmt.Println("  Note: no field table holds data yet")
		return p
	}

	var newest time.Time
	for _, run := range latest {
		if run.After(newest) {
			newest = run
		}
	}
	for _, g := range domain.Groups() {
		run, ok := latest[g]
		switch {
		case !ok:
			p.errorf("%s: empty while other tables hold data", g.Table())
		case run.Before(newest):
			p.errorf("%s: latest run %s is behind %s", g.Table(),
				run.Format(time.RFC3339), newest.Format(time.RFC3339))
		}
	}
	return p
}
