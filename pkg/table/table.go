// Package table renders aligned text tables with lipgloss styling for scan
// and extraction reports.
package table

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Width returns the terminal width, with a sane fallback for pipes.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		return w
	}
	return 120
}

// Style is the visual styling of one table.
type Style struct {
	Header    lipgloss.Style
	Cell      lipgloss.Style
	Separator string
}

// Plain is an uncolored style for pipes and --no-color.
func Plain() Style {
	return Style{
		Header:    lipgloss.NewStyle().Bold(true).PaddingLeft(1).PaddingRight(1),
		Cell:      lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1),
		Separator: "|",
	}
}

// Styled is the colorful default for terminals.
func Styled() Style {
	return Style{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(1).
			PaddingRight(1),
		Cell:      lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1),
		Separator: "|",
	}
}

// Table accumulates rows and renders them column-aligned.
type Table struct {
	headers []string
	rows    [][]string
	style   Style
	widths  []int
}

// New creates a table; styled selects colors.
func New(styled bool) *Table {
	t := &Table{style: Plain()}
	if styled {
		t.style = Styled()
	}
	return t
}

// SetHeaders sets the column titles.
func (t *Table) SetHeaders(headers ...string) { t.headers = headers }

// AppendRow adds one data row.
func (t *Table) AppendRow(row ...string) { t.rows = append(t.rows, row) }

func (t *Table) measure() {
	t.widths = make([]int, len(t.headers))
	for i, h := range t.headers {
		t.widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(t.widths) && len(cell) > t.widths[i] {
				t.widths[i] = len(cell)
			}
		}
	}
	for i := range t.widths {
		t.widths[i] += 2
	}
}

func (t *Table) renderRow(row []string, style lipgloss.Style) string {
	cells := make([]string, 0, len(row))
	for i, cell := range row {
		width := 0
		if i < len(t.widths) {
			width = t.widths[i]
		}
		cells = append(cells, style.Width(width).Render(cell))
	}
	return strings.Join(cells, t.style.Separator)
}

// Render produces the full table as a string.
func (t *Table) Render() string {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return ""
	}
	t.measure()

	var out strings.Builder
	if len(t.headers) > 0 {
		out.WriteString(t.renderRow(t.headers, t.style.Header))
		out.WriteString("\n")
		seps := make([]string, 0, len(t.widths))
		for _, w := range t.widths {
			seps = append(seps, strings.Repeat("-", w))
		}
		out.WriteString(strings.Join(seps, "+"))
		out.WriteString("\n")
	}
	for _, row := range t.rows {
		out.WriteString(t.renderRow(row, t.style.Cell))
		out.WriteString("\n")
	}
	return strings.TrimRight(out.String(), "\n")
}
