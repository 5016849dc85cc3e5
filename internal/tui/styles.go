package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Theme selects a palette.
type Theme int

const (
	ThemeDark Theme = iota
	ThemeLight
)

// ParseTheme maps "light" to ThemeLight and anything else to ThemeDark.
func ParseTheme(s string) Theme {
	if strings.EqualFold(strings.TrimSpace(s), "light") {
		return ThemeLight
	}
	return ThemeDark
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

func (t Theme) String() string {
	if t == ThemeLight {
		return "light"
	}
	return "dark"
}

type palette struct {
	accent, muted, text, up, down, warn, selectFg lipgloss.Color
}

var (
	darkPalette = palette{
		accent:   "63",  // purple
		muted:    "241", // gray
		text:     "252",
		up:       "46",  // green
		down:     "196", // red
		warn:     "226", // yellow
		selectFg: "230",
	}
	lightPalette = palette{
		accent:   "26",
		muted:    "245",
		text:     "235",
		up:       "28",
		down:     "160",
		warn:     "130",
		selectFg: "255",
	}
)

// Styles contains lipgloss styles for the dashboard
type Styles struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Status      lipgloss.Style
	Error       lipgloss.Style
	Up          lipgloss.Style
	Down        lipgloss.Style
	Warning     lipgloss.Style
	Muted       lipgloss.Style
	Border      lipgloss.Style
	Highlighted lipgloss.Style
	Nav         lipgloss.Style
	NavActive   lipgloss.Style
	Help        lipgloss.Style

	Table table.Styles
	Form  *huh.Theme
}

// NewStyles returns the styles for theme.
func NewStyles(theme Theme) Styles {
	p := darkPalette
	form := huh.ThemeCharm()
	if theme == ThemeLight {
		p = lightPalette
		form = huh.ThemeBase()
	}

	ts := table.DefaultStyles()
	ts.Header = ts.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(p.muted).
		BorderBottom(true).
		Bold(true)
	ts.Selected = ts.Selected.
		Foreground(p.selectFg).
		Background(p.accent).
		Bold(false)
	ts.Cell = ts.Cell.Foreground(p.text)

	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.accent).
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(p.muted).
			MarginBottom(1),
		Status: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.accent),
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.down),
		Up: lipgloss.NewStyle().
			Foreground(p.up),
		Down: lipgloss.NewStyle().
			Foreground(p.down),
		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.warn),
		Muted: lipgloss.NewStyle().
			Foreground(p.muted),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.accent).
			Padding(0, 1),
		Highlighted: lipgloss.NewStyle().
			Background(p.accent).
			Foreground(p.selectFg).
			Bold(true).
			Padding(0, 1),
		Nav: lipgloss.NewStyle().
			Foreground(p.muted).
			Padding(0, 1),
		NavActive: lipgloss.NewStyle().
			Background(p.accent).
			Foreground(p.selectFg).
			Bold(true).
			Padding(0, 1),
		Help: lipgloss.NewStyle().
			Foreground(p.muted).
			MarginTop(1),
		Table: ts,
		Form:  form,
	}
}

// Change renders a percentage change in the up or down color.
func (s Styles) Change(pct float64) string {
	text := formatPercent(pct)
	if pct >= 0 {
		return s.Up.Render(text)
	}
	return s.Down.Render(text)
}
