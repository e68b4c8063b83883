package sqlstore

import (
	"context"
	"fmt"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
)

const locationTable = "location"

// ListLocations returns every persisted location ordered by name.
func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT location_name, latitude, longitude FROM "+locationTable+" ORDER BY location_name")
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locs []domain.Location
	for rows.Next() {
		var loc domain.Location
		if err := rows.Scan(&loc.Name, &loc.Lat, &loc.Lon); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locs = append(locs, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locs, nil
}

// InsertLocation persists a newly resolved location. Inserting a name twice
// fails on the unique constraint.
func (s *Store) InsertLocation(ctx context.Context, loc domain.Location) error {
	query := s.dialect.rebind("INSERT INTO " + locationTable + " (latitude, longitude, location_name) VALUES (?, ?, ?)")
	if _, err := s.db.ExecContext(ctx, query, loc.Lat, loc.Lon, loc.Name); err != nil {
		return fmt.Errorf("insert location %s: %w", loc.Name, err)
	}
	return nil
}

// CountDuplicateLocations returns how many names appear more than once.
func (s *Store) CountDuplicateLocations(ctx context.Context) (int, error) {
	query := "SELECT COUNT(*) FROM (SELECT location_name FROM " + locationTable +
		" GROUP BY location_name HAVING COUNT(*) > 1) dup"
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count duplicate locations: %w", err)
	}
	return n, nil
}
