package domain

import (
	"math"
	"sort"
	"time"
)

// cell is a grid position rounded to one decimal place, stored in tenths of a
// degree so that equal cells compare equal regardless of float representation.
type cell struct {
	lat int64
	lon int64
}

func cellOf(lat, lon float64) cell {
	return cell{lat: int64(math.Round(lat * 10)), lon: int64(math.Round(lon * 10))}
}

// Collision records monitored locations that round to the same cell.
type Collision struct {
	Lat     float64
	Lon     float64
	Owner   string
	Dropped []string
}

// LocationIndex joins grid rows to monitored locations by rounded coordinates.
//
// When several locations share a cell, the lexicographically smallest name owns
// it and the others are reported by Collisions and never matched.
type LocationIndex struct {
	cells      map[cell]Location
	collisions []Collision
}

// NewLocationIndex builds an index over the given locations.
func NewLocationIndex(locations map[string]Location) *LocationIndex {
	names := make([]string, 0, len(locations))
	for name := range locations {
		names = append(names, name)
	}
	sort.Strings(names)

	ix := &LocationIndex{cells: make(map[cell]Location, len(names))}
	dropped := make(map[cell][]string)
	for _, name := range names {
		loc := locations[name]
		if loc.Name == "" {
			loc.Name = name
		}
		c := cellOf(loc.Lat, loc.Lon)
		if _, taken := ix.cells[c]; taken {
			dropped[c] = append(dropped[c], loc.Name)
			continue
		}
		ix.cells[c] = loc
	}

	for c, names := range dropped {
		ix.collisions = append(ix.collisions, Collision{
			Lat:     float64(c.lat) / 10,
			Lon:     float64(c.lon) / 10,
			Owner:   ix.cells[c].Name,
			Dropped: names,
		})
	}
	sort.Slice(ix.collisions, func(i, j int) bool {
		return ix.collisions[i].Owner < ix.collisions[j].Owner
	})
	return ix
}

// Collisions returns the locations that could not be indexed, ordered by owner.
func (ix *LocationIndex) Collisions() []Collision {
	return ix.collisions
}

// Len returns the number of indexed locations.
func (ix *LocationIndex) Len() int {
	return len(ix.cells)
}

// Lookup returns the location whose rounded coordinates equal those of (lat, lon).
func (ix *LocationIndex) Lookup(lat, lon float64) (Location, bool) {
	loc, ok := ix.cells[cellOf(lat, lon)]
	return loc, ok
}

// rowKey identifies one persisted observation of a location.
type rowKey struct {
	location  string
	runTime   time.Time
	validTime time.Time
	level     float64
}

// Match annotates rows with their location and drops rows outside every
// monitored cell. When several grid points of the same run, validity time and
// level fall into a location's cell, the one nearest the location is kept.
func (ix *LocationIndex) Match(t FieldTable) FieldTable {
	out := t
	out.Rows = nil

	type pick struct {
		index int
		dist  float64
	}
	picked := make(map[rowKey]pick)

	for _, r := range t.Rows {
		loc, ok := ix.Lookup(r.Lat, r.Lon)
		if !ok {
			continue
		}
		r.Location = loc.Name
		dist := (r.Lat-loc.Lat)*(r.Lat-loc.Lat) + (r.Lon-loc.Lon)*(r.Lon-loc.Lon)
		key := rowKey{location: loc.Name, runTime: r.RunTime, validTime: r.ValidTime, level: r.Level}

		if prev, seen := picked[key]; seen {
			if dist < prev.dist {
				out.Rows[prev.index] = r
				picked[key] = pick{index: prev.index, dist: dist}
			}
			continue
		}
		picked[key] = pick{index: len(out.Rows), dist: dist}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// Deduplicate keeps rows whose validity time is strictly after cutoff (when
// hasCutoff is set) and drops later repeats of the same location, validity time
// and level, so the earliest run's row wins.
func Deduplicate(t FieldTable, cutoff time.Time, hasCutoff bool) FieldTable {
	out := t
	out.Rows = nil

	seen := make(map[rowKey]struct{})
	for _, r := range t.Rows {
		if hasCutoff && !r.ValidTime.After(cutoff) {
			continue
		}
		key := rowKey{location: r.Location, validTime: r.ValidTime, level: r.Level}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Rows = append(out.Rows, r)
	}
	return out
}
