package console

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Surface0 = lipgloss.Color("#313244")

	Red    = lipgloss.Color("#f38ba8")
	Peach  = lipgloss.Color("#fab387")
	Yellow = lipgloss.Color("#f9e2af")
	Green  = lipgloss.Color("#a6e3a1")
	Teal   = lipgloss.Color("#94e2d5")
	Blue   = lipgloss.Color("#89b4fa")
)

var (
	ProgressBarEmptyStyle = lipgloss.NewStyle().Foreground(Surface0)

	LabelStyle  = lipgloss.NewStyle().Foreground(Subtext0)
	ValueStyle  = lipgloss.NewStyle().Foreground(Text)
	HeaderStyle = lipgloss.NewStyle().Foreground(Blue).Bold(true)

	StatusActive    = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	StatusIdle      = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	StatusSucceeded = lipgloss.NewStyle().Foreground(Green).Bold(true)
	StatusFailed    = lipgloss.NewStyle().Foreground(Red).Bold(true)
	StatusHalted    = lipgloss.NewStyle().Foreground(Peach).Bold(true)
)
