package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/koustreak/askdb/internal/database"
	"golang.org/x/term"
)

// maxRenderWidth caps markdown wrapping on wide terminals.
const maxRenderWidth = 120

// renderer prints answers, as terminal markdown when out is a terminal.
type renderer struct {
	out      io.Writer
	markdown *glamour.TermRenderer
}

func newRenderer(out *os.File) *renderer {
	r := &renderer{out: out}
	fd := int(out.Fd())
	if !term.IsTerminal(fd) {
		return r
	}
	width := 80
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		width = min(w, maxRenderWidth)
	}
	md, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err == nil {
		r.markdown = md
	}
	return r
}

// interactive reports whether answers are rendered rather than streamed.
func (r *renderer) interactive() bool { return r.markdown != nil }

func (r *renderer) answer(text string) {
	if r.markdown != nil {
		if out, err := r.markdown.Render(text); err == nil {
			fmt.Fprint(r.out, out)
			return
		}
	}
	fmt.Fprintln(r.out, text)
}

func (r *renderer) query(sql string, res *database.Result) {
	fmt.Fprintln(r.out, sql)
	if res != nil {
		fmt.Fprint(r.out, formatTable(res))
	}
}

// formatTable renders res as an ASCII table followed by a row count.
func formatTable(res *database.Result) string {
	if len(res.Columns) == 0 {
		return "(0 rows)\n"
	}

	cells := make([][]string, len(res.Rows))
	widths := make([]int, len(res.Columns))
	for i, c := range res.Columns {
		widths[i] = len(c)
	}
	for i, row := range res.Rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			s := "NULL"
			if v != nil {
				s = fmt.Sprint(v)
			}
			cells[i][j] = s
			if j < len(widths) && len(s) > widths[j] {
				widths[j] = len(s)
			}
		}
	}

	var b strings.Builder
	sep := separator(widths)
	b.WriteString(sep)
	b.WriteByte('|')
	for i, c := range res.Columns {
		fmt.Fprintf(&b, " %-*s |", widths[i], c)
	}
	b.WriteByte('\n')
	b.WriteString(sep)
	for _, row := range cells {
		b.WriteByte('|')
		for i, cell := range row {
			fmt.Fprintf(&b, " %-*s |", widths[i], cell)
		}
		b.WriteByte('\n')
	}
	b.WriteString(sep)

	switch n := len(res.Rows); {
	case res.Truncated:
		fmt.Fprintf(&b, "(%d rows, truncated)\n", n)
	case n == 1:
		b.WriteString("(1 row)\n")
	default:
		fmt.Fprintf(&b, "(%d rows)\n", n)
	}
	return b.String()
}

func separator(widths []int) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteByte('+')
	}
	b.WriteByte('\n')
	return b.String()
}
