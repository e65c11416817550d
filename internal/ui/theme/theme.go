// Package theme holds the lipgloss styles used by CLI reports.
package theme

import (
	"fmt"
	"image/color"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

// Color palette
var (
	Primary   = lipgloss.Color("#8B5CF6") // Vivid Purple
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F97316") // Orange
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// levelColors runs from struggling (1) to mastery (5).
var levelColors = [...]color.Color{
	lipgloss.Color("#F43F5E"),
	lipgloss.Color("#F97316"),
	lipgloss.Color("#EAB308"),
	lipgloss.Color("#14B8A6"),
	lipgloss.Color("#22C55E"),
}

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Subtitle = lipgloss.NewStyle().
			Foreground(Secondary)

	Label = lipgloss.NewStyle().
		Foreground(TextDim)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Warning = lipgloss.NewStyle().
		Foreground(Accent)
)

// States
var (
	Correct = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	Incorrect = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)
)

// Table cells
var (
	tableHeader = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true).
			Padding(0, 1)

	tableCell = lipgloss.NewStyle().
			Padding(0, 1)

	tableBorder = lipgloss.NewStyle().
			Foreground(Border)
)

// Level renders a 1-5 level in its band color. Out-of-range values are
// shown unstyled.
func Level(level int) string {
	text := fmt.Sprintf("L%d", level)
	if level < 1 || level > len(levelColors) {
		return text
	}
	return lipgloss.NewStyle().Foreground(levelColors[level-1]).Bold(true).Render(text)
}

// Check renders a success or failure mark.
func Check(ok bool) string {
	if ok {
		return Correct.Render("✓")
	}
	return Incorrect.Render("✗")
}

// KV renders an aligned "label: value" line.
func KV(label, value string) string {
	return Label.Render(fmt.Sprintf("%-12s", label+":")) + " " + value
}

// Rule renders a horizontal separator.
func Rule(width int) string {
	return tableBorder.Render(strings.Repeat("─", width))
}

// Table renders rows under bold headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorder).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeader
			}
			return tableCell
		}).
		String()
}
