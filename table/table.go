// Package table implements a small rectangular row container with named
// columns. Probe results and tabular alarm contents are carried as Tables;
// they render to aligned plain text (with a row display limit) and to HTML.
package table

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Table holds rows under a fixed, ordered column list. The zero value is an
// empty table with no columns.
type Table struct {
	Cols []string
	Rows [][]any
}

// Row is one record of a Table, keeping the column order of its table.
type Row struct {
	Cols []string
	Vals []any
}

// New returns an empty table with the given columns.
func New(cols ...string) *Table {
	return &Table{Cols: cols}
}

// Append adds one row. The value count must match the column count.
func (t *Table) Append(vals ...any) error {
	if len(vals) != len(t.Cols) {
		return fmt.Errorf("table: row has %d values, table has %d columns", len(vals), len(t.Cols))
	}
	t.Rows = append(t.Rows, vals)
	return nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// Row returns the i-th row.
func (t *Table) Row(i int) Row {
	return Row{Cols: t.Cols, Vals: t.Rows[i]}
}

// Head returns a table with at most n rows, sharing the underlying slices.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.Rows) {
		return t
	}
	return &Table{Cols: t.Cols, Rows: t.Rows[:n]}
}

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.Cols {
		if c == name {
			return r.Vals[i], true
		}
	}
	return nil, false
}

func (r Row) String() string {
	parts := make([]string, len(r.Cols))
	for i, c := range r.Cols {
		parts[i] = fmt.Sprintf("%s=%s", c, Cell(r.Vals[i]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Cell formats a single value the way it should appear in a rendered table.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	case []byte:
		return string(x)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", x), "0"), ".")
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Text renders the table as aligned plain text showing at most maxRows rows.
// When rows are cut off a one-line overflow indicator is appended.
func (t *Table) Text(maxRows int) string {
	widths := make([]int, len(t.Cols))
	for i, c := range t.Cols {
		widths[i] = len(c)
	}
	shown := t.Rows
	if maxRows >= 0 && len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	cells := make([][]string, len(shown))
	for ri, row := range shown {
		cells[ri] = make([]string, len(row))
		for ci, v := range row {
			s := Cell(v)
			cells[ri][ci] = s
			if ci < len(widths) && len(s) > widths[ci] {
				widths[ci] = len(s)
			}
		}
	}

	var b strings.Builder
	writeLine := func(vals []string) {
		for i, s := range vals {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(s)
			if pad := widths[i] - len(s); pad > 0 && i < len(vals)-1 {
				b.WriteString(strings.Repeat(" ", pad))
			}
		}
		b.WriteByte('\n')
	}
	writeLine(t.Cols)
	for _, row := range cells {
		writeLine(row)
	}
	if len(shown) < len(t.Rows) {
		fmt.Fprintf(&b, "... (%d rows total)\n", len(t.Rows))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (t *Table) String() string {
	return t.Text(10)
}

// HTML renders the full table as an HTML <table> with a header row. All cell
// contents are escaped.
func (t *Table) HTML() string {
	var b strings.Builder
	b.WriteString(`<table border="1"><thead><tr>`)
	for _, c := range t.Cols {
		b.WriteString("<th>")
		b.WriteString(html.EscapeString(c))
		b.WriteString("</th>")
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range t.Rows {
		b.WriteString("<tr>")
		for _, v := range row {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(Cell(v)))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}
