package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/NamanBalaji/otad/internal/status"
)

// ProgressBar returns a styled progress bar.
func ProgressBar(width int, percent float64, s status.Status) string {
	if width <= 0 {
		return ""
	}

	if percent < 0 {
		percent = 0
	}

	if percent > 1.0 {
		percent = 1.0
	}

	filledWidth := int(float64(width) * percent)
	emptyWidth := width - filledWidth

	filledStr := strings.Repeat("█", filledWidth)
	emptyStr := strings.Repeat("░", emptyWidth)

	bar := StatusStyle(s).UnsetBold().Render(filledStr) + ProgressBarEmptyStyle.Render(emptyStr)

	return bar
}

// StatusStyle picks the colour for a pipeline status.
func StatusStyle(s status.Status) lipgloss.Style {
	switch s {
	case status.Succeeded:
		return StatusSucceeded
	case status.Failed:
		return StatusFailed
	case status.Halted:
		return StatusHalted
	case status.Idle:
		return StatusIdle
	default:
		return StatusActive
	}
}
