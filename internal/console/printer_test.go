package console_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/otad/internal/console"
	"github.com/NamanBalaji/otad/internal/progress"
	"github.com/NamanBalaji/otad/internal/status"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		percent float64
		filled  int
	}{
		{"zero_width", 0, 0.5, 0},
		{"empty", 10, 0, 0},
		{"half", 10, 0.5, 5},
		{"full", 10, 1, 10},
		{"clamped_high", 10, 1.7, 10},
		{"clamped_low", 10, -0.2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := console.ProgressBar(tt.width, tt.percent, status.Streaming)

			assert.Equal(t, tt.width, lipgloss.Width(bar))
			assert.Equal(t, tt.filled, strings.Count(bar, "█"))
		})
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := console.NewPrinter(&buf)

	require.NoError(t, p.AckProgress(progress.CodeOK, "", 100*1024, 200*1024))
	require.NoError(t, p.AckResult(progress.CodeOK, "", "1.2.3"))
	require.NoError(t, p.AckResult(progress.CodeFail, "recv failed", "1.2.4"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	assert.Contains(t, lines[0], "50.0%")
	assert.Contains(t, lines[0], "100 KiB / 200 KiB")
	assert.Contains(t, lines[1], "UPDATED")
	assert.Contains(t, lines[1], "1.2.3")
	assert.Contains(t, lines[2], "FAILED")
	assert.Contains(t, lines[2], "recv failed")
}

func TestField(t *testing.T) {
	assert.Contains(t, console.Field("boot", "ota_1"), "ota_1")
}
