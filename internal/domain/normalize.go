package domain

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Column names every field table carries besides its variables.
const (
	ColumnRunTime   = "time"
	ColumnValidTime = "valid_time"
	ColumnLatitude  = "latitude"
	ColumnLongitude = "longitude"
	ColumnLocation  = "location_name"
)

// identifierRe limits column names to what every supported SQL dialect accepts unquoted.
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// groupSchema is the output schema of one group: the short names it must
// contain, in column order, and the variables whose names are fixed.
type groupSchema struct {
	levelType string
	required  []string
	fixed     map[string]string
}

var groupSchemas = [GroupCount]groupSchema{
	GroupNearSurface:   {levelType: "heightAboveGround", required: []string{"r", "t2m"}},
	GroupWind:          {levelType: "heightAboveGround", required: []string{"u10", "v10"}},
	GroupPressureLevel: {levelType: "isobaricInhPa", required: []string{"z", "t", "u", "v", "r"}},
	GroupMeanSeaLevel:  {levelType: "meanSea", required: []string{"msl"}},
	GroupSurfaceFlux: {
		levelType: "surface",
		required:  []string{"sp", "tcc", "tp"},
		// The decoder has no CF name for cloud cover and precipitation.
		fixed: map[string]string{"tcc": "tcc", "tp": "tp"},
	},
}

// LevelType returns the GRIB level type shared by every dataset of the group.
func (g Group) LevelType() string {
	return groupSchemas[g].levelType
}

// NormalizeMember converts the datasets decoded from one archive member into a
// TableSet. The member must decode into exactly GroupCount datasets.
func NormalizeMember(datasets []Dataset) (TableSet, error) {
	if len(datasets) != GroupCount {
		return TableSet{}, fmt.Errorf("%w: got %d datasets, want %d", ErrDecodeShape, len(datasets), GroupCount)
	}
	set := NewTableSet()
	for _, g := range Groups() {
		table, err := NormalizeGroup(g, datasets[g])
		if err != nil {
			return TableSet{}, err
		}
		set[g] = table
	}
	return set, nil
}

// NormalizeGroup renames a dataset's variables to canonical names, drops the
// forecast step and projects rows onto the group's output schema.
func NormalizeGroup(g Group, ds Dataset) (FieldTable, error) {
	schema := groupSchemas[g]
	if ds.LevelType != "" && ds.LevelType != schema.levelType {
		return FieldTable{}, fmt.Errorf("%w: %s dataset has level type %q, want %q", ErrDecodeShape, g, ds.LevelType, schema.levelType)
	}

	columns, err := resolveColumns(g, schema, ds)
	if err != nil {
		return FieldTable{}, err
	}

	rows := make([]Row, len(ds.Rows))
	for i, dr := range ds.Rows {
		values := make([]float64, len(schema.required))
		for j, short := range schema.required {
			v, ok := dr.Values[short]
			if !ok {
				v = math.NaN()
			}
			values[j] = v
		}
		rows[i] = Row{
			Lat:       dr.Lat,
			Lon:       dr.Lon,
			RunTime:   dr.RunTime.UTC(),
			ValidTime: dr.ValidTime.UTC(),
			Level:     dr.Level,
			Values:    values,
		}
	}

	return FieldTable{
		Group:       g,
		LevelColumn: ds.LevelColumn,
		Columns:     columns,
		Rows:        rows,
	}, nil
}

func resolveColumns(g Group, schema groupSchema, ds Dataset) ([]string, error) {
	byShort := make(map[string]Variable, len(ds.Variables))
	for _, v := range ds.Variables {
		byShort[v.ShortName] = v
	}

	reserved := map[string]bool{
		ColumnRunTime: true, ColumnValidTime: true, ColumnLatitude: true,
		ColumnLongitude: true, ColumnLocation: true,
	}
	if ds.LevelColumn != "" {
		if !identifierRe.MatchString(ds.LevelColumn) {
			return nil, fmt.Errorf("%w: %s level column %q is not a valid identifier", ErrDecodeShape, g, ds.LevelColumn)
		}
		reserved[strings.ToLower(ds.LevelColumn)] = true
	}

	columns := make([]string, 0, len(schema.required))
	for _, short := range schema.required {
		v, ok := byShort[short]
		if !ok {
			return nil, fmt.Errorf("%w: %s dataset lacks variable %q", ErrDecodeShape, g, short)
		}

		name, fixed := schema.fixed[short]
		if !fixed {
			name = v.CanonicalName
			if name == "" || name == "unknown" {
				return nil, fmt.Errorf("%w: %s variable %q has no canonical name", ErrDecodeShape, g, short)
			}
		}
		if !identifierRe.MatchString(name) {
			return nil, fmt.Errorf("%w: %s column %q is not a valid identifier", ErrDecodeShape, g, name)
		}
		key := strings.ToLower(name)
		if reserved[key] {
			return nil, fmt.Errorf("%w: %s column %q is used twice", ErrDecodeShape, g, name)
		}
		reserved[key] = true
		columns = append(columns, name)
	}
	return columns, nil
}
