package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/NamanBalaji/otad/internal/progress"
	"github.com/NamanBalaji/otad/internal/status"
)

const barWidth = 30

// Printer is a progress.Acker that renders acknowledgements to a terminal.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

var _ progress.Acker = (*Printer)(nil)

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) AckProgress(_ int32, _ string, downloaded, total int64) error {
	pct := 0.0
	if total > 0 {
		pct = float64(downloaded) / float64(total)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := fmt.Fprintf(p.out, "%s %5.1f%%  %s / %s\n",
		ProgressBar(barWidth, pct, status.Streaming),
		pct*100,
		humanize.IBytes(uint64(max(downloaded, 0))),
		humanize.IBytes(uint64(max(total, 0))),
	)

	return err
}

func (p *Printer) AckResult(code int32, msg, version string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if code == progress.CodeOK {
		_, err := fmt.Fprintf(p.out, "%s version %s\n", StatusSucceeded.Render("UPDATED"), version)
		return err
	}

	_, err := fmt.Fprintf(p.out, "%s version %s: %s\n", StatusFailed.Render("FAILED"), version, msg)

	return err
}

// Field renders a "label: value" line.
func Field(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value)
}
