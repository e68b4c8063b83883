package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	name          string
	timestampType string
	floatType     string
	textType      string
	identQuote    string
	numbered      bool
	tableExists   string
}

var (
	mysqlDialect = dialect{
		name:          DriverMySQL,
		timestampType: "DATETIME",
		floatType:     "DOUBLE",
		textType:      "VARCHAR(100)",
		identQuote:    "`",
		tableExists:   "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
	}
	postgresDialect = dialect{
		name:          DriverPostgres,
		timestampType: "TIMESTAMP",
		floatType:     "DOUBLE PRECISION",
		textType:      "VARCHAR(100)",
		identQuote:    `"`,
		numbered:      true,
		tableExists:   "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1",
	}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverMySQL:
		return mysqlDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// quote returns name as a quoted identifier.
func (d dialect) quote(name string) string {
	return d.identQuote + strings.ReplaceAll(name, d.identQuote, d.identQuote+d.identQuote) + d.identQuote
}

// placeholder returns the bind marker of the i-th argument, counted from 1.
func (d dialect) placeholder(i int) string {
	if d.numbered {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// rebind rewrites ?-style markers into the dialect's form.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
