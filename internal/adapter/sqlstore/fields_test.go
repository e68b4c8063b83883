package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a database/sql connector that logs every prepared and executed
// statement and answers single-row queries through row.
type recorder struct {
	mu       sync.Mutex
	prepared []string
	execs    []execCall
	commits  int
	row      func(query string) []driver.Value
}

type execCall struct {
	query string
	args  int
}

func (r *recorder) Connect(context.Context) (driver.Conn, error) { return &recConn{r: r}, nil }
func (r *recorder) Driver() driver.Driver { return recDriver{} }

func (r *recorder) inserts() []execCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []execCall
	for _, e := range r.execs {
		if strings.HasPrefix(e.query, "INSERT") {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) preparedInserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, q := range r.prepared {
		if strings.HasPrefix(q, "INSERT") {
			n++
		}
	}
	return n
}

type recDriver struct{}

func (recDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

type recConn struct{ r *recorder }

func (c *recConn) Prepare(query string) (driver.Stmt, error) {
	c.r.mu.Lock()
	c.r.prepared = append(c.r.prepared, query)
	c.r.mu.Unlock()
	return &recStmt{r: c.r, query: query}, nil
}

func (c *recConn) Close() error { return nil }
func (c *recConn) Begin() (driver.Tx, error) { return &recTx{r: c.r}, nil }

type recTx struct{ r *recorder }

func (t *recTx) Commit() error {
	t.r.mu.Lock()
	t.r.commits++
	t.r.mu.Unlock()
	return nil
}

func (t *recTx) Rollback() error { return nil }

type recStmt struct {
	r     *recorder
	query string
}

func (s *recStmt) Close() error { return nil }
func (s *recStmt) NumInput() int { return -1 }

func (s *recStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.r.mu.Lock()
	s.r.execs = append(s.r.execs, execCall{query: s.query, args: len(args)})
	s.r.mu.Unlock()
	return driver.RowsAffected(0), nil
}

func (s *recStmt) Query([]driver.Value) (driver.Rows, error) {
	var row []driver.Value
	if s.r.row != nil {
		row = s.r.row(s.query)
	}
	return &recRows{row: row}, nil
}

type recRows struct {
	row  []driver.Value
	done bool
}

func (r *recRows) Columns() []string {
	cols := make([]string, len(r.row))
	for i := range cols {
		cols[i] = "c"
	}
	return cols
}

func (r *recRows) Close() error { return nil }

func (r *recRows) Next(dest []driver.Value) error {
	if r.done || r.row == nil {
		return io.EOF
	}
	r.done = true
	copy(dest, r.row)
	return nil
}

func newRecordedStore(t *testing.T, rec *recorder) *Store {
	t.Helper()
	db := sql.OpenDB(rec)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db, DriverMySQL, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func rowsOf(n int) domain.FieldTable {
	run := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	t := domain.FieldTable{Group: domain.GroupMeanSeaLevel, Columns: []string{"air_pressure_at_mean_sea_level"}}
	for i := range n {
		t.Rows = append(t.Rows, domain.Row{
			Lat: 46.2, Lon: 14.4, RunTime: run, ValidTime: run.Add(time.Duration(i) * time.Hour),
			Values: []float64{101325}, Location: "KRANJ",
		})
	}
	return t
}

func TestAppendRows_BatchSplitting(t *testing.T) {
	cols := len(insertColumns(rowsOf(0)))

	tests := []struct {
		name     string
		rows     int
		batches  []int
		prepared int
	}{
		{"just under a batch", insertBatchSize - 1, []int{insertBatchSize - 1}, 0},
		{"exactly one batch", insertBatchSize, []int{insertBatchSize}, 1},
		{"one past a batch", insertBatchSize + 1, []int{insertBatchSize, 1}, 1},
		{"two full batches", 2 * insertBatchSize, []int{insertBatchSize, insertBatchSize}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			s := newRecordedStore(t, rec)

			n, err := s.AppendRows(context.Background(), rowsOf(tt.rows))
			require.NoError(t, err)
			assert.Equal(t, tt.rows, n)

			inserts := rec.inserts()
			require.Len(t, inserts, len(tt.batches))
			for i, rows := range tt.batches {
				assert.Equal(t, rows*cols, inserts[i].args, "batch %d", i)
				assert.Equal(t, insertSQL(mysqlDialect, rowsOf(0), rows), inserts[i].query, "batch %d", i)
			}
			assert.Equal(t, 1, rec.commits)

			// Every partial batch is prepared implicitly, the full batch statement once.
			partial := 0
			for _, rows := range tt.batches {
				if rows < insertBatchSize {
					partial++
				}
			}
			assert.Equal(t, tt.prepared+partial, rec.preparedInserts())
		})
	}
}

func TestAppendRows_EmptyTableIsNoop(t *testing.T) {
	rec := &recorder{}
	s := newRecordedStore(t, rec)

	n, err := s.AppendRows(context.Background(), rowsOf(0))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rec.execs)
	assert.Zero(t, rec.commits)
}

func TestAppendRows_CreatesTableFirst(t *testing.T) {
	rec := &recorder{}
	s := newRecordedStore(t, rec)

	_, err := s.AppendRows(context.Background(), rowsOf(3))
	require.NoError(t, err)

	require.NotEmpty(t, rec.execs)
	assert.Equal(t, createTableSQL(mysqlDialect, rowsOf(0)), rec.execs[0].query)
}

func TestMaxTimes(t *testing.T) {
	latest := time.Date(2024, 1, 2, 6, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name   string
		exists int64
		max    driver.Value
		ok     bool
	}{
		{"absent table", 0, nil, false},
		{"empty table", 1, nil, false},
		{"populated table", 1, latest, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{row: func(query string) []driver.Value {
				if strings.HasPrefix(query, "SELECT MAX") {
					return []driver.Value{tt.max}
				}
				return []driver.Value{tt.exists}
			}}
			s := newRecordedStore(t, rec)

			got, ok, err := s.MaxRunTime(context.Background(), "data0")
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, latest.UTC(), got)
				assert.Equal(t, time.UTC, got.Location())
			}

			_, ok, err = s.MaxValidTime(context.Background(), "data0")
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestTableExists(t *testing.T) {
	rec := &recorder{row: func(string) []driver.Value { return []driver.Value{int64(1)} }}
	s := newRecordedStore(t, rec)

	ok, err := s.TableExists(context.Background(), "data4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, s.Ping(context.Background()))
}
