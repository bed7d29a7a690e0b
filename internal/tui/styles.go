package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used by the browser.
type Styles struct {
	Header   lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Status   lipgloss.Style
	Label    lipgloss.Style
	Box      lipgloss.Style
	BoxFocus lipgloss.Style
	Grid     table.Styles
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	primary := lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#9D8CFF"}
	border := lipgloss.AdaptiveColor{Light: "#C8C8C8", Dark: "#444444"}

	grid := table.DefaultStyles()
	grid.Header = grid.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(border).
		BorderBottom(true).
		Bold(true)
	grid.Selected = grid.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(primary).
		Bold(false)

	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(primary),
		Muted:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#888888", Dark: "#777777"}),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E5484D")),
		Status: lipgloss.NewStyle().Italic(true),
		Label:  lipgloss.NewStyle().Width(7),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		BoxFocus: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 1),
		Grid: grid,
	}
}
