package grib

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
)

// multiLevelTypes are level types whose messages share one dataset with a
// level dimension. Every other type gets one dataset per level value.
var multiLevelTypes = map[string]bool{
	"isobaricInhPa": true,
	"isobaricInPa":  true,
	"hybrid":        true,
}

// slotOrder fixes the position of the known datasets in the output.
var slotOrder = map[string]int{
	"heightAboveGround/2":  0,
	"heightAboveGround/10": 1,
	"isobaricInhPa":        2,
	"meanSea/0":            3,
	"surface/0":            4,
}

// shortNameAliases maps ecCodes short names to the variable names used downstream
// when the dump carries no cfVarName.
var shortNameAliases = map[string]string{
	"2t":  "t2m",
	"2r":  "r",
	"10u": "u10",
	"10v": "v10",
}

// stepUnits converts ecCodes stepUnits codes to durations.
var stepUnits = map[int]time.Duration{
	0:  time.Minute,
	1:  time.Hour,
	2:  24 * time.Hour,
	10: 3 * time.Hour,
	11: 6 * time.Hour,
	12: 12 * time.Hour,
	13: time.Second,
}

type dump struct {
	Messages [][]keyValue `json:"messages"`
}

type keyValue struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// message is one GRIB message with its keys indexed by name.
type message map[string]json.RawMessage

func (m message) has(key string) bool {
	_, ok := m[key]
	return ok
}

func (m message) str(key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func (m message) num(key string) (float64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	f, err := strconv.ParseFloat(m.str(key), 64)
	return f, err == nil
}

func (m message) integer(key string) (int, bool) {
	f, ok := m.num(key)
	return int(f), ok
}

func (m message) floats(key string) ([]float64, error) {
	raw, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("missing %s", key)
	}
	var vals []*float64
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out, nil
}

// field is a decoded message: one variable at one step and level.
type field struct {
	variable  domain.Variable
	levelType string
	level     float64
	runTime   time.Time
	step      time.Duration
	validTime time.Time
	lats      []float64
	lons      []float64
	values    []float64
}

func (f field) datasetKey() string {
	if multiLevelTypes[f.levelType] {
		return f.levelType
	}
	return f.levelType + "/" + strconv.FormatFloat(f.level, 'f', -1, 64)
}

// ParseDump converts `grib_dump -j` output into datasets. Known datasets come
// first in fixed order; any other level type follows, sorted by key.
func ParseDump(data []byte) ([]domain.Dataset, error) {
	var d dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode grib dump: %w", err)
	}
	if len(d.Messages) == 0 {
		return nil, errors.New("grib dump has no messages")
	}

	type bucket struct {
		key    string
		fields []field
	}
	var buckets []*bucket
	byKey := make(map[string]*bucket)

	for i, kvs := range d.Messages {
		m := make(message, len(kvs))
		for _, kv := range kvs {
			m[kv.Key] = kv.Value
		}
		f, err := parseField(m)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i+1, err)
		}
		key := f.datasetKey()
		b, ok := byKey[key]
		if !ok {
			b = &bucket{key: key}
			byKey[key] = b
			buckets = append(buckets, b)
		}
		b.fields = append(b.fields, f)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		si, iKnown := slotOrder[buckets[i].key]
		sj, jKnown := slotOrder[buckets[j].key]
		switch {
		case iKnown && jKnown:
			return si < sj
		case iKnown != jKnown:
			return iKnown
		default:
			return buckets[i].key < buckets[j].key
		}
	})

	datasets := make([]domain.Dataset, 0, len(buckets))
	for _, b := range buckets {
		ds, err := buildDataset(b.fields)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", b.key, err)
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func parseField(m message) (field, error) {
	f := field{
		levelType: m.str("typeOfLevel"),
		variable: domain.Variable{
			ShortName:     variableName(m),
			CanonicalName: m.str("cfName"),
		},
	}
	if f.levelType == "" {
		return field{}, errors.New("missing typeOfLevel")
	}
	if f.variable.ShortName == "" {
		return field{}, errors.New("missing shortName")
	}
	f.level, _ = m.num("level")

	var err error
	if f.runTime, err = parseDateTime(m, "dataDate", "dataTime"); err != nil {
		return field{}, err
	}
	f.step = parseStep(m)
	f.validTime = f.runTime.Add(f.step)
	if m.has("validityDate") {
		if vt, err := parseDateTime(m, "validityDate", "validityTime"); err == nil {
			f.validTime = vt
		}
	}

	if f.values, err = m.floats("values"); err != nil {
		return field{}, err
	}
	if missing, ok := m.num("missingValue"); ok {
		for i, v := range f.values {
			if v == missing {
				f.values[i] = math.NaN()
			}
		}
	}

	if f.lats, f.lons, err = gridPoints(m, len(f.values)); err != nil {
		return field{}, err
	}
	return f, nil
}

func variableName(m message) string {
	if name := m.str("cfVarName"); name != "" && name != "unknown" {
		return name
	}
	short := m.str("shortName")
	if alias, ok := shortNameAliases[short]; ok {
		return alias
	}
	return short
}

func parseDateTime(m message, dateKey, timeKey string) (time.Time, error) {
	date, ok := m.integer(dateKey)
	if !ok {
		return time.Time{}, fmt.Errorf("missing %s", dateKey)
	}
	hhmm, _ := m.integer(timeKey)
	t := time.Date(date/10000, time.Month(date/100%100), date%100, hhmm/100, hhmm%100, 0, 0, time.UTC)
	if t.Year() != date/10000 || int(t.Month()) != date/100%100 || t.Day() != date%100 {
		return time.Time{}, fmt.Errorf("invalid %s %d", dateKey, date)
	}
	return t, nil
}

func parseStep(m message) time.Duration {
	unit := time.Hour
	if code, ok := m.integer("stepUnits"); ok {
		if d, known := stepUnits[code]; known {
			unit = d
		}
	}
	for _, key := range []string{"endStep", "step"} {
		if n, ok := m.num(key); ok {
			return time.Duration(n * float64(unit))
		}
	}
	if r := m.str("stepRange"); r != "" {
		if i := strings.LastIndex(r, "-"); i >= 0 {
			r = r[i+1:]
		}
		if n, err := strconv.ParseFloat(r, 64); err == nil {
			return time.Duration(n * float64(unit))
		}
	}
	return 0
}

// buildDataset joins the fields of one dataset into rows keyed by step, level
// and grid point. Row order follows the first appearance of each (step, level).
func buildDataset(fields []field) (domain.Dataset, error) {
	first := fields[0]
	ds := domain.Dataset{LevelType: first.levelType}
	if multiLevelTypes[first.levelType] {
		ds.LevelColumn = first.levelType
	}

	type sliceKey struct {
		step  time.Duration
		level float64
	}
	grids := make(map[sliceKey][]domain.DecodedRow)
	var order []sliceKey
	seenVar := make(map[string]bool)

	for _, f := range fields {
		if len(f.values) != len(first.values) {
			return domain.Dataset{}, fmt.Errorf("%s has %d points, want %d", f.variable.ShortName, len(f.values), len(first.values))
		}
		if !f.runTime.Equal(first.runTime) {
			return domain.Dataset{}, fmt.Errorf("%s run %s differs from %s", f.variable.ShortName, f.runTime, first.runTime)
		}
		if !seenVar[f.variable.ShortName] {
			seenVar[f.variable.ShortName] = true
			ds.Variables = append(ds.Variables, f.variable)
		}

		key := sliceKey{step: f.step, level: f.level}
		rows, ok := grids[key]
		if !ok {
			rows = make([]domain.DecodedRow, len(f.values))
			for i := range rows {
				rows[i] = domain.DecodedRow{
					Lat:       f.lats[i],
					Lon:       f.lons[i],
					RunTime:   f.runTime,
					Step:      f.step,
					ValidTime: f.validTime,
					Level:     f.level,
					Values:    make(map[string]float64, 4),
				}
			}
			grids[key] = rows
			order = append(order, key)
		}
		for i, v := range f.values {
			rows[i].Values[f.variable.ShortName] = v
		}
	}

	for _, key := range order {
		ds.Rows = append(ds.Rows, grids[key]...)
	}
	return ds, nil
}
