package database

import (
	"fmt"
	"strings"
)

// SelectBuilder constructs the small, parameterized SELECT statements
// askdb issues on its own behalf (sample rows for schema descriptions).
// Values are never interpolated into the SQL string; they are always passed as args.
//
// Usage:
//
//	sql, args := Select("album", DriverSQLite).Limit(3).Build()
type SelectBuilder struct {
	table   string
	driver  Driver
	columns []string
	limit   *int
}

// Select starts a new SelectBuilder for the given table and engine.
func Select(table string, d Driver) *SelectBuilder {
	return &SelectBuilder{table: table, driver: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Build produces the final SQL string and argument slice.
func (b *SelectBuilder) Build() (string, []any) {
	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = QuoteIdent(b.driver, c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(QuoteIdent(b.driver, b.table))

	var args []any
	if b.limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.placeholder(1))
		args = append(args, *b.limit)
	}
	return sb.String(), args
}

// placeholder returns the correct parameter placeholder for the engine.
// Postgres and DuckDB: $1, $2, …   MySQL and SQLite: ?
func (b *SelectBuilder) placeholder(idx int) string {
	switch b.driver {
	case DriverPostgres, DriverDuckDB:
		return fmt.Sprintf("$%d", idx)
	default:
		return "?"
	}
}

// QuoteIdent quotes a SQL identifier for the engine: backticks for MySQL,
// ANSI double quotes everywhere else.
func QuoteIdent(d Driver, name string) string {
	if d == DriverMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
