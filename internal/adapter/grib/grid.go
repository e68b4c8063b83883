package grib

import (
	"errors"
	"fmt"
	"math"
)

// gridPoints returns the coordinates of the n points of a message. Explicit
// latitudes/longitudes arrays win; otherwise a regular_ll grid is expanded
// from its geometry keys.
func gridPoints(m message, n int) ([]float64, []float64, error) {
	if m.has("latitudes") && m.has("longitudes") {
		lats, err := m.floats("latitudes")
		if err != nil {
			return nil, nil, err
		}
		lons, err := m.floats("longitudes")
		if err != nil {
			return nil, nil, err
		}
		if len(lats) != n || len(lons) != n {
			return nil, nil, fmt.Errorf("coordinate arrays have %d/%d points, want %d", len(lats), len(lons), n)
		}
		for i := range lons {
			lats[i] = roundCoord(lats[i])
			lons[i] = roundCoord(normalizeLon(lons[i]))
		}
		return lats, lons, nil
	}

	if gt := m.str("gridType"); gt != "" && gt != "regular_ll" {
		return nil, nil, fmt.Errorf("unsupported gridType %q without coordinate arrays", gt)
	}
	g, err := parseRegularGrid(m)
	if err != nil {
		return nil, nil, err
	}
	if g.ni*g.nj != n {
		return nil, nil, fmt.Errorf("grid %dx%d does not match %d values", g.ni, g.nj, n)
	}
	lats, lons := g.points()
	return lats, lons, nil
}

// regularGrid is a regular latitude/longitude grid as described by GRIB section 3.
type regularGrid struct {
	ni, nj       int
	lat1, lon1   float64
	di, dj       float64
	iNegative    bool
	jPositive    bool
	jConsecutive bool
}

func parseRegularGrid(m message) (regularGrid, error) {
	var g regularGrid
	var ok bool
	if g.ni, ok = m.integer("Ni"); !ok || g.ni <= 0 {
		return g, errors.New("missing Ni")
	}
	if g.nj, ok = m.integer("Nj"); !ok || g.nj <= 0 {
		return g, errors.New("missing Nj")
	}
	if g.lat1, ok = m.num("latitudeOfFirstGridPointInDegrees"); !ok {
		return g, errors.New("missing latitudeOfFirstGridPointInDegrees")
	}
	if g.lon1, ok = m.num("longitudeOfFirstGridPointInDegrees"); !ok {
		return g, errors.New("missing longitudeOfFirstGridPointInDegrees")
	}

	flag := func(key string) bool {
		v, _ := m.integer(key)
		return v != 0
	}
	g.iNegative = flag("iScansNegatively")
	g.jPositive = flag("jScansPositively")
	g.jConsecutive = flag("jPointsAreConsecutive")

	g.di = increment(m, "iDirectionIncrementInDegrees", "longitudeOfLastGridPointInDegrees", g.lon1, g.ni)
	g.dj = increment(m, "jDirectionIncrementInDegrees", "latitudeOfLastGridPointInDegrees", g.lat1, g.nj)
	return g, nil
}

// increment reads a direction increment, deriving it from the last grid point
// when the increment key is absent or flagged missing.
func increment(m message, incKey, lastKey string, first float64, count int) float64 {
	if d, ok := m.num(incKey); ok && d > 0 && d < 360 {
		return d
	}
	last, ok := m.num(lastKey)
	if !ok || count < 2 {
		return 0
	}
	return math.Abs(last-first) / float64(count-1)
}

func (g regularGrid) points() ([]float64, []float64) {
	n := g.ni * g.nj
	lats := make([]float64, n)
	lons := make([]float64, n)

	iSign, jSign := 1.0, -1.0
	if g.iNegative {
		iSign = -1
	}
	if g.jPositive {
		jSign = 1
	}

	for k := 0; k < n; k++ {
		i, j := k%g.ni, k/g.ni
		if g.jConsecutive {
			i, j = k/g.nj, k%g.nj
		}
		lats[k] = roundCoord(g.lat1 + jSign*float64(j)*g.dj)
		lons[k] = roundCoord(normalizeLon(g.lon1 + iSign*float64(i)*g.di))
	}
	return lats, lons
}

func normalizeLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	return lon
}

// roundCoord removes accumulated floating point error from computed coordinates.
func roundCoord(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
