package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRun   = time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)
	testValid = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
)

// testDatasets returns the five datasets a well-formed member decodes into,
// each with a single grid point at (46.24, 14.36).
func testDatasets() []Dataset {
	point := func(level float64, values map[string]float64) []DecodedRow {
		return []DecodedRow{{
			Lat: 46.24, Lon: 14.36,
			RunTime: testRun, Step: 3 * time.Hour, ValidTime: testValid,
			Level: level, Values: values,
		}}
	}
	return []Dataset{
		{
			LevelType: "heightAboveGround",
			Variables: []Variable{{"t2m", "air_temperature"}, {"r", "relative_humidity"}},
			Rows:      point(2, map[string]float64{"t2m": 271.5, "r": 88}),
		},
		{
			LevelType: "heightAboveGround",
			Variables: []Variable{{"u10", "eastward_wind"}, {"v10", "northward_wind"}},
			Rows:      point(10, map[string]float64{"u10": 1.5, "v10": -2}),
		},
		{
			LevelType:   "isobaricInhPa",
			LevelColumn: "isobaricInhPa",
			Variables: []Variable{
				{"z", "geopotential"}, {"t", "air_temperature"}, {"u", "eastward_wind"},
				{"v", "northward_wind"}, {"r", "relative_humidity"},
			},
			Rows: point(850, map[string]float64{"z": 14000, "t": 265, "u": 4, "v": 3, "r": 70}),
		},
		{
			LevelType: "meanSea",
			Variables: []Variable{{"msl", "air_pressure_at_mean_sea_level"}},
			Rows:      point(0, map[string]float64{"msl": 102300}),
		},
		{
			LevelType: "surface",
			Variables: []Variable{{"sp", "surface_air_pressure"}, {"tcc", "unknown"}, {"tp", "unknown"}},
			Rows:      point(0, map[string]float64{"sp": 95000, "tcc": 0.4, "tp": 1.2}),
		},
	}
}

func TestNormalizeMember(t *testing.T) {
	t.Run("well formed member", func(t *testing.T) {
		set, err := NormalizeMember(testDatasets())
		require.NoError(t, err)

		assert.Equal(t, []string{"relative_humidity", "air_temperature"}, set[GroupNearSurface].Columns)
		assert.Equal(t, []string{"eastward_wind", "northward_wind"}, set[GroupWind].Columns)
		assert.Equal(t, []string{"geopotential", "air_temperature", "eastward_wind", "northward_wind", "relative_humidity"}, set[GroupPressureLevel].Columns)
		assert.Equal(t, "isobaricInhPa", set[GroupPressureLevel].LevelColumn)
		assert.Equal(t, []string{"air_pressure_at_mean_sea_level"}, set[GroupMeanSeaLevel].Columns)
		assert.Equal(t, []string{"surface_air_pressure", "tcc", "tp"}, set[GroupSurfaceFlux].Columns)

		for _, g := range Groups() {
			assert.Equal(t, g, set[g].Group)
			require.Len(t, set[g].Rows, 1)
			row := set[g].Rows[0]
			assert.Equal(t, testRun, row.RunTime)
			assert.Equal(t, testValid, row.ValidTime)
			assert.Len(t, row.Values, len(set[g].Columns))
		}
		assert.Equal(t, []float64{88, 271.5}, set[GroupNearSurface].Rows[0].Values)
		assert.Equal(t, 850.0, set[GroupPressureLevel].Rows[0].Level)
	})

	t.Run("too few datasets", func(t *testing.T) {
		_, err := NormalizeMember(testDatasets()[:4])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDecodeShape))
	})

	t.Run("too many datasets", func(t *testing.T) {
		ds := append(testDatasets(), Dataset{LevelType: "depthBelowLand"})
		_, err := NormalizeMember(ds)
		assert.ErrorIs(t, err, ErrDecodeShape)
	})

	t.Run("missing required variable", func(t *testing.T) {
		ds := testDatasets()
		ds[GroupWind].Variables = ds[GroupWind].Variables[:1]
		_, err := NormalizeMember(ds)
		require.ErrorIs(t, err, ErrDecodeShape)
		assert.Contains(t, err.Error(), "v10")
	})

	t.Run("level type out of place", func(t *testing.T) {
		ds := testDatasets()
		ds[GroupMeanSeaLevel], ds[GroupSurfaceFlux] = ds[GroupSurfaceFlux], ds[GroupMeanSeaLevel]
		_, err := NormalizeMember(ds)
		assert.ErrorIs(t, err, ErrDecodeShape)
	})
}

func TestNormalizeGroup(t *testing.T) {
	t.Run("unknown canonical name rejected", func(t *testing.T) {
		ds := testDatasets()[GroupMeanSeaLevel]
		ds.Variables = []Variable{{"msl", "unknown"}}
		_, err := NormalizeGroup(GroupMeanSeaLevel, ds)
		assert.ErrorIs(t, err, ErrDecodeShape)
	})

	t.Run("empty canonical name rejected", func(t *testing.T) {
		ds := testDatasets()[GroupMeanSeaLevel]
		ds.Variables = []Variable{{"msl", ""}}
		_, err := NormalizeGroup(GroupMeanSeaLevel, ds)
		assert.ErrorIs(t, err, ErrDecodeShape)
	})

	t.Run("duplicate canonical name rejected", func(t *testing.T) {
		ds := testDatasets()[GroupWind]
		ds.Variables = []Variable{{"u10", "wind"}, {"v10", "wind"}}
		_, err := NormalizeGroup(GroupWind, ds)
		assert.ErrorIs(t, err, ErrDecodeShape)
	})

	t.Run("reserved column rejected", func(t *testing.T) {
		ds := testDatasets()[GroupMeanSeaLevel]
		ds.Variables = []Variable{{"msl", "valid_time"}}
		_, err := NormalizeGroup(GroupMeanSeaLevel, ds)
		assert.ErrorIs(t, err, ErrDecodeShape)
	})

	t.Run("invalid identifier rejected", func(t *testing.T) {
		ds := testDatasets()[GroupMeanSeaLevel]
		ds.Variables = []Variable{{"msl", "pressure; DROP TABLE data3"}}
		_, err := NormalizeGroup(GroupMeanSeaLevel, ds)
		assert.ErrorIs(t, err, ErrDecodeShape)
	})

	t.Run("missing value becomes NaN", func(t *testing.T) {
		ds := testDatasets()[GroupWind]
		ds.Rows[0].Values = map[string]float64{"u10": 1}
		table, err := NormalizeGroup(GroupWind, ds)
		require.NoError(t, err)
		assert.Equal(t, 1.0, table.Rows[0].Values[0])
		assert.True(t, math.IsNaN(table.Rows[0].Values[1]))
	})

	t.Run("times converted to UTC", func(t *testing.T) {
		ds := testDatasets()[GroupMeanSeaLevel]
		cet := time.FixedZone("CET", 3600)
		ds.Rows[0].RunTime = testRun.In(cet)
		ds.Rows[0].ValidTime = testValid.In(cet)
		table, err := NormalizeGroup(GroupMeanSeaLevel, ds)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, table.Rows[0].RunTime.Location())
		assert.Equal(t, time.UTC, table.Rows[0].ValidTime.Location())
	})

	t.Run("extra variables ignored", func(t *testing.T) {
		ds := testDatasets()[GroupMeanSeaLevel]
		ds.Variables = append(ds.Variables, Variable{"prmsl", "air_pressure"})
		table, err := NormalizeGroup(GroupMeanSeaLevel, ds)
		require.NoError(t, err)
		assert.Equal(t, []string{"air_pressure_at_mean_sea_level"}, table.Columns)
	})
}
