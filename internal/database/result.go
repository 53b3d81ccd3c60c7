package database

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/askdb/internal/errs"
)

// Result is the outcome of a successful query: column names plus rows,
// each row an ordered sequence of scalar values.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Empty reports whether the result is falsy: no rows, or every value of
// every row is NULL (e.g. SELECT MAX(x) over an empty table).
func (r *Result) Empty() bool {
	if r == nil || len(r.Rows) == 0 {
		return true
	}
	for _, row := range r.Rows {
		for _, v := range row {
			if v != nil {
				return false
			}
		}
	}
	return true
}

// String renders the rows as a list of tuples, e.g. [(34,)] or
// [(1, 'AC/DC'), (2, 'Accept')]. This is the format the answer prompt's
// worked examples use.
func (r *Result) String() string {
	if r == nil {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, row := range r.Rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(formatValue(v))
		}
		if len(row) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
	}
	sb.WriteByte(']')
	return sb.String()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(t, "'", `\'`) + "'"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

// ScanResult reads all rows from the result set into a Result, keeping at
// most maxRows rows (0 means unlimited) and marking the result truncated
// when more were available.
//
// ScanResult always closes the Rows; callers do not need to call Close().
func ScanResult(rows Rows, maxRows int) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errQuery("failed to read column names", err)
	}

	result := &Result{Columns: columns, Rows: make([][]any, 0)}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}

		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errQuery("failed to scan row", err)
		}
		for i := range dest {
			dest[i] = normalize(dest[i])
		}
		result.Rows = append(result.Rows, dest)
	}

	if err := rows.Err(); err != nil {
		if errs.KindOf(err) != errs.ErrKindUnknown {
			return nil, err
		}
		return nil, errQuery("error during row iteration", err)
	}

	return result, nil
}

// normalize turns driver-specific values into plain Go scalars so results
// compare and serialise the same way across engines.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint32:
		return int64(t)
	case driver.Valuer:
		val, err := t.Value()
		if err != nil {
			return fmt.Sprint(t)
		}
		if _, again := val.(driver.Valuer); again {
			return fmt.Sprint(val)
		}
		return normalize(val)
	default:
		return v
	}
}
