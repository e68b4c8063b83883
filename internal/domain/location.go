package domain

import (
	"context"
	"strings"
)

// Location is a monitored station with its first-resolved coordinates.
type Location struct {
	Name string  `json:"location_name"`
	Lat  float64 `json:"latitude"`
	Lon  float64 `json:"longitude"`
}

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Resolver looks up the coordinates of a station identifier.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Coordinate, error)
}

// NormalizeName returns the registry form of a station identifier.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
