package database

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSampleValueLen truncates long sample values so one wide text column
// cannot dominate the prompt.
const maxSampleValueLen = 100

// DescribeOptions controls DescribeSchema.
type DescribeOptions struct {
	// SampleRows is how many rows per table to append after each CREATE
	// TABLE statement. 0 disables sampling.
	SampleRows int
}

// DescribeSchema renders the schema of db as text for a model prompt: one
// CREATE TABLE statement per table followed by a comment block with a few
// sample rows. Sample failures are not fatal; the table is described
// without rows.
func DescribeSchema(ctx context.Context, db DB, opts DescribeOptions) (string, error) {
	schema, err := db.InspectSchema(ctx)
	if err != nil {
		return "", err
	}

	blocks := make([]string, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		var sb strings.Builder
		writeCreateTable(&sb, db.Driver(), table)
		if opts.SampleRows > 0 {
			if sample, err := sampleRows(ctx, db, table.Name, opts.SampleRows); err == nil {
				writeSample(&sb, table.Name, sample)
			}
		}
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n\n"), nil
}

func writeCreateTable(sb *strings.Builder, d Driver, t *TableInfo) {
	fmt.Fprintf(sb, "CREATE TABLE %s (\n", QuoteIdent(d, t.Name))

	lines := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+1)
	for _, col := range t.Columns {
		line := "\t" + QuoteIdent(d, col.Name) + " " + col.DataType
		if !col.Nullable {
			line += " NOT NULL"
		}
		if col.IsUnique && !col.IsPrimary {
			line += " UNIQUE"
		}
		if col.Default != nil {
			line += " DEFAULT " + *col.Default
		}
		lines = append(lines, line)
	}
	if len(t.PrimaryKey) > 0 {
		quoted := make([]string, len(t.PrimaryKey))
		for i, k := range t.PrimaryKey {
			quoted[i] = QuoteIdent(d, k)
		}
		lines = append(lines, "\tPRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, fmt.Sprintf("\tFOREIGN KEY(%s) REFERENCES %s (%s)",
			QuoteIdent(d, fk.Column), QuoteIdent(d, fk.RefTable), QuoteIdent(d, fk.RefColumn)))
	}

	sb.WriteString(strings.Join(lines, ",\n"))
	sb.WriteString("\n)")
}

func sampleRows(ctx context.Context, db DB, table string, n int) (*Result, error) {
	q, args := Select(table, db.Driver()).Limit(n).Build()
	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return ScanResult(rows, n)
}

func writeSample(sb *strings.Builder, table string, r *Result) {
	fmt.Fprintf(sb, "\n\n/*\n%d rows from %s table:\n", len(r.Rows), table)
	sb.WriteString(strings.Join(r.Columns, "\t"))
	sb.WriteByte('\n')
	for _, row := range r.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			s := "None"
			if v != nil {
				s = fmt.Sprint(v)
			}
			cells[i] = truncate(s, maxSampleValueLen)
		}
		sb.WriteString(strings.Join(cells, "\t"))
		sb.WriteByte('\n')
	}
	sb.WriteString("*/")
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
