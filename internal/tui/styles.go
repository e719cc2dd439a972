package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorBlue   = lipgloss.Color("39")
	ColorGreen  = lipgloss.Color("42")
	ColorYellow = lipgloss.Color("220")
	ColorRed    = lipgloss.Color("196")
	ColorGray   = lipgloss.Color("240")
	ColorWhite  = lipgloss.Color("252")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorBlue)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorGray)
	errorStyle = lipgloss.NewStyle().Foreground(ColorRed)
	pauseStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorYellow)
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorWhite)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)
)
