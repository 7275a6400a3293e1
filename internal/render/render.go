// Package render prints aligned text tables for terminal output.
package render

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	columnGap = "  "
	ellipsis  = "…"
)

// Table is a list of rows under a header. Cells are padded by display
// width so wide runes line up.
type Table struct {
	Header []string
	Rows   [][]string
	// MaxCell truncates cells wider than this many columns. Zero disables.
	MaxCell int
}

// Append adds a row.
func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table to w. Trailing whitespace is trimmed from each
// line.
func (t *Table) Render(w io.Writer) error {
	cols := len(t.Header)
	for _, row := range t.Rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return nil
	}
	widths := make([]int, cols)
	measure := func(row []string) {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(t.cell(cell)))
		}
	}
	measure(t.Header)
	for _, row := range t.Rows {
		measure(row)
	}

	var b strings.Builder
	line := func(row []string) {
		b.Reset()
		for i := 0; i < cols; i++ {
			if i > 0 {
				b.WriteString(columnGap)
			}
			var cell string
			if i < len(row) {
				cell = t.cell(row[i])
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		b.WriteString("\n")
	}
	if len(t.Header) > 0 {
		line(upper(t.Header))
		if _, err := io.WriteString(w, strings.TrimRight(b.String(), " \n")+"\n"); err != nil {
			return err
		}
	}
	for _, row := range t.Rows {
		line(row)
		if _, err := io.WriteString(w, strings.TrimRight(b.String(), " \n")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if t.MaxCell > 0 && runewidth.StringWidth(s) > t.MaxCell {
		return runewidth.Truncate(s, t.MaxCell, ellipsis)
	}
	return s
}

func upper(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ToUpper(c)
	}
	return out
}

// KeyValues renders pairs as a two column list with aligned values.
func KeyValues(w io.Writer, pairs ...[2]string) error {
	width := 0
	for _, p := range pairs {
		width = max(width, runewidth.StringWidth(p[0]))
	}
	for _, p := range pairs {
		if _, err := io.WriteString(w, runewidth.FillRight(p[0]+":", width+1)+" "+p[1]+"\n"); err != nil {
			return err
		}
	}
	return nil
}
