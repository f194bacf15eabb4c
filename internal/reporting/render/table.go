package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const columnGap = "  "

// table is a plain column-aligned table. Cells are padded by display width
// before styling so that ANSI sequences never shift a column.
type table struct {
	headers []string
	rows    [][]cell
}

type cell struct {
	text  string
	style *lipgloss.Style
}

func plain(text string) cell {
	return cell{text: text}
}

func styled(text string, style lipgloss.Style) cell {
	return cell{text: text, style: &style}
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) add(cells ...cell) {
	t.rows = append(t.rows, cells)
}

func (t *table) widths() []int {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i >= len(widths) {
				break
			}
			if w := runewidth.StringWidth(c.text); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

func (t *table) render(header lipgloss.Style) string {
	widths := t.widths()
	var b strings.Builder

	last := len(t.headers) - 1
	for i, h := range t.headers {
		text := h
		if i < last {
			text = runewidth.FillRight(h, widths[i]) + columnGap
		}
		b.WriteString(header.Render(text))
	}
	b.WriteString("\n")

	for _, row := range t.rows {
		for i, c := range row {
			if i > last {
				break
			}
			text := c.text
			if i < last {
				text = runewidth.FillRight(c.text, widths[i])
			}
			if c.style != nil {
				text = c.style.Render(text)
			}
			b.WriteString(text)
			if i < last {
				b.WriteString(columnGap)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
