package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
)

// insertBatchSize bounds the rows of one INSERT statement.
const insertBatchSize = 500

// TableExists reports whether the named table is present in the current schema.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.tableExists, table).Scan(&n); err != nil {
		return false, fmt.Errorf("look up table %s: %w", table, err)
	}
	return n > 0, nil
}

// MaxRunTime returns the latest run reference time stored in table.
func (s *Store) MaxRunTime(ctx context.Context, table string) (time.Time, bool, error) {
	return s.maxTime(ctx, table, domain.ColumnRunTime)
}

// MaxValidTime returns the latest validity time stored in table.
func (s *Store) MaxValidTime(ctx context.Context, table string) (time.Time, bool, error) {
	return s.maxTime(ctx, table, domain.ColumnValidTime)
}

func (s *Store) maxTime(ctx context.Context, table, column string) (time.Time, bool, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil || !exists {
		return time.Time{}, false, err
	}

	var latest sql.NullTime
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", s.dialect.quote(column), s.dialect.quote(table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("max %s of %s: %w", column, table, err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}

// AppendRows creates the group's table when absent and appends every row in a
// single transaction. Missing values are stored as NULL.
func (s *Store) AppendRows(ctx context.Context, t domain.FieldTable) (int, error) {
	if len(t.Rows) == 0 {
		return 0, nil
	}
	table := t.Group.Table()

	if _, err := s.db.ExecContext(ctx, createTableSQL(s.dialect, t)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	var full *sql.Stmt
	for start := 0; start < len(t.Rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(t.Rows))
		batch := t.Rows[start:end]

		args := make([]any, 0, len(batch)*len(insertColumns(t)))
		for _, r := range batch {
			args = append(args, rowArgs(t, r)...)
		}

		if len(batch) < insertBatchSize {
			if _, err := tx.ExecContext(ctx, insertSQL(s.dialect, t, len(batch)), args...); err != nil {
				return 0, fmt.Errorf("insert into %s: %w", table, err)
			}
			continue
		}
		if full == nil {
			if full, err = tx.PrepareContext(ctx, insertSQL(s.dialect, t, insertBatchSize)); err != nil {
				return 0, fmt.Errorf("prepare insert into %s: %w", table, err)
			}
			defer full.Close()
		}
		if _, err := full.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	return len(t.Rows), nil
}

// CountDuplicateKeys returns how many (location, validity time[, level]) keys
// of table occur more than once. An absent table has none.
func (s *Store) CountDuplicateKeys(ctx context.Context, table, levelColumn string) (int, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil || !exists {
		return 0, err
	}

	keys := []string{s.dialect.quote(domain.ColumnLocation), s.dialect.quote(domain.ColumnValidTime)}
	if levelColumn != "" {
		keys = append(keys, s.dialect.quote(levelColumn))
	}
	key := strings.Join(keys, ", ")
	query := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1) dup",
		key, s.dialect.quote(table), key)

	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count duplicate keys of %s: %w", table, err)
	}
	return n, nil
}

// CountOrphanRows returns the rows of table whose location is not registered.
func (s *Store) CountOrphanRows(ctx context.Context, table string) (int, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil || !exists {
		return 0, err
	}

	loc := s.dialect.quote(domain.ColumnLocation)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s d WHERE NOT EXISTS (SELECT 1 FROM %s l WHERE l.%s = d.%s)",
		s.dialect.quote(table), locationTable, loc, loc)

	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orphan rows of %s: %w", table, err)
	}
	return n, nil
}

// insertColumns lists the persisted columns of t in table order.
func insertColumns(t domain.FieldTable) []string {
	cols := []string{domain.ColumnRunTime, domain.ColumnValidTime, domain.ColumnLatitude, domain.ColumnLongitude}
	if t.LevelColumn != "" {
		cols = append(cols, t.LevelColumn)
	}
	cols = append(cols, t.Columns...)
	return append(cols, domain.ColumnLocation)
}

func rowArgs(t domain.FieldTable, r domain.Row) []any {
	args := []any{r.RunTime.UTC(), r.ValidTime.UTC(), r.Lat, r.Lon}
	if t.LevelColumn != "" {
		args = append(args, r.Level)
	}
	for _, v := range r.Values {
		args = append(args, sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)})
	}
	return append(args, r.Location)
}

func createTableSQL(d dialect, t domain.FieldTable) string {
	defs := []string{
		d.quote(domain.ColumnRunTime) + " " + d.timestampType + " NOT NULL",
		d.quote(domain.ColumnValidTime) + " " + d.timestampType + " NOT NULL",
		d.quote(domain.ColumnLatitude) + " " + d.floatType + " NOT NULL",
		d.quote(domain.ColumnLongitude) + " " + d.floatType + " NOT NULL",
	}
	if t.LevelColumn != "" {
		defs = append(defs, d.quote(t.LevelColumn)+" "+d.floatType+" NOT NULL")
	}
	for _, c := range t.Columns {
		defs = append(defs, d.quote(c)+" "+d.floatType+" NULL")
	}
	defs = append(defs, d.quote(domain.ColumnLocation)+" "+d.textType+" NOT NULL")

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.quote(t.Group.Table()), strings.Join(defs, ", "))
}

func insertSQL(d dialect, t domain.FieldTable, rows int) string {
	cols := insertColumns(t)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.quote(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", d.quote(t.Group.Table()), strings.Join(quoted, ", "))
	n := 0
	for r := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(d.placeholder(n))
		}
		b.WriteByte(')')
	}
	return b.String()
}
