package domain

import (
	"fmt"
	"slices"
	"time"
)

// Member is one raw entry of a run archive.
type Member struct {
	Name string
	Data []byte
}

// Variable is a decoded variable with the decoder's naming metadata.
type Variable struct {
	ShortName     string // decoder-internal code, e.g. "t2m"
	CanonicalName string // CF standard name, e.g. "air_temperature"; may be "unknown"
}

// Dataset is one hypercube produced by the decoder for a single member.
type Dataset struct {
	// LevelType is the GRIB typeOfLevel shared by every message in the dataset.
	LevelType string
	// LevelColumn names the vertical coordinate when the dataset spans several
	// levels (e.g. "isobaricInhPa"); empty for single-level datasets.
	LevelColumn string
	Variables   []Variable
	Rows        []DecodedRow
}

// DecodedRow is one grid point at one step (and level) of a dataset.
type DecodedRow struct {
	Lat       float64
	Lon       float64
	RunTime   time.Time
	Step      time.Duration
	ValidTime time.Time
	Level     float64
	Values    map[string]float64 // keyed by short name; NaN marks a missing value
}

// Group identifies one of the five fixed field groups.
type Group int

const (
	GroupNearSurface Group = iota
	GroupWind
	GroupPressureLevel
	GroupMeanSeaLevel
	GroupSurfaceFlux
)

// GroupCount is the number of datasets every member must decode into.
const GroupCount = 5

// Groups lists every group in decoder order.
func Groups() [GroupCount]Group {
	return [GroupCount]Group{GroupNearSurface, GroupWind, GroupPressureLevel, GroupMeanSeaLevel, GroupSurfaceFlux}
}

// Table returns the store table the group is persisted to.
func (g Group) Table() string {
	return fmt.Sprintf("data%d", int(g))
}

func (g Group) String() string {
	switch g {
	case GroupNearSurface:
		return "near_surface"
	case GroupWind:
		return "wind_10m"
	case GroupPressureLevel:
		return "pressure_level"
	case GroupMeanSeaLevel:
		return "mean_sea_level"
	case GroupSurfaceFlux:
		return "surface_flux"
	default:
		return fmt.Sprintf("group_%d", int(g))
	}
}

// Row is a normalized field row. Values align with the owning table's Columns.
type Row struct {
	Lat       float64
	Lon       float64
	RunTime   time.Time
	ValidTime time.Time
	Level     float64
	Values    []float64
	Location  string // set by LocationIndex.Match
}

// FieldTable is the normalized, canonically named table of one group.
type FieldTable struct {
	Group       Group
	LevelColumn string
	Columns     []string
	Rows        []Row
}

// Len returns the number of rows.
func (t FieldTable) Len() int { return len(t.Rows) }

// sameSchema reports whether two tables can be concatenated.
func (t FieldTable) sameSchema(o FieldTable) bool {
	return t.Group == o.Group && t.LevelColumn == o.LevelColumn && slices.Equal(t.Columns, o.Columns)
}

// Concat appends o's rows after t's. A table without columns adopts o's schema.
func (t FieldTable) Concat(o FieldTable) (FieldTable, error) {
	if t.Columns == nil {
		o.Rows = slices.Clone(o.Rows)
		return o, nil
	}
	if o.Columns == nil {
		return t, nil
	}
	if !t.sameSchema(o) {
		return FieldTable{}, fmt.Errorf("%w: %s columns %v vs %v", ErrSchemaDrift, t.Group, t.Columns, o.Columns)
	}
	rows := make([]Row, 0, len(t.Rows)+len(o.Rows))
	rows = append(rows, t.Rows...)
	rows = append(rows, o.Rows...)
	t.Rows = rows
	return t, nil
}

// TableSet holds one table per group. The zero value is not usable; start
// from NewTableSet.
type TableSet [GroupCount]FieldTable

// NewTableSet returns an empty set with each table bound to its group.
func NewTableSet() TableSet {
	var s TableSet
	for _, g := range Groups() {
		s[g] = FieldTable{Group: g}
	}
	return s
}

// Empty reports whether no table holds any row.
func (s TableSet) Empty() bool {
	for _, t := range s {
		if len(t.Rows) > 0 {
			return false
		}
	}
	return true
}

// Merge returns a new set with next's rows appended after s's rows, group by group.
// The receiver is left untouched, so a failed merge keeps the accumulator intact.
func (s TableSet) Merge(next TableSet) (TableSet, error) {
	var out TableSet
	for _, g := range Groups() {
		merged, err := s[g].Concat(next[g])
		if err != nil {
			return s, err
		}
		out[g] = merged
	}
	return out, nil
}
