package main

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used by status, history and watch output.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultTheme returns the default msgbridge theme.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("12"),  // Blue
		Success: lipgloss.Color("10"),  // Green
		Warning: lipgloss.Color("11"),  // Yellow
		Error:   lipgloss.Color("9"),   // Red
		Muted:   lipgloss.Color("240"), // Gray
	}
}

// styles are the lipgloss styles derived from a Theme.
type styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Good  lipgloss.Style
	Warn  lipgloss.Style
	Bad   lipgloss.Style
	Muted lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label: lipgloss.NewStyle().Width(14).Foreground(t.Muted),
		Good:  lipgloss.NewStyle().Foreground(t.Success),
		Warn:  lipgloss.NewStyle().Foreground(t.Warning),
		Bad:   lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		Muted: lipgloss.NewStyle().Foreground(t.Muted),
	}
}

// outcomeStyle picks the style for a journal outcome cell.
func (s styles) outcomeStyle(failed bool, outcome string) lipgloss.Style {
	switch {
	case failed:
		return s.Bad
	case outcome == "" || outcome == "action_performed":
		return s.Good
	default:
		return s.Warn
	}
}
