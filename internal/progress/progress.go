package progress

import (
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Result codes sent upstream.
const (
	CodeOK   int32 = 0
	CodeFail int32 = 1
)

var ErrResultAlreadyReported = errors.New("result already reported for this attempt")

// Acker is the upstream acknowledgement channel.
type Acker interface {
	AckProgress(code int32, msg string, downloaded, total int64) error
	AckResult(code int32, msg, version string) error
}

type Progress interface {
	GetTotalSize() int64
	GetDownloaded() int64
	GetPercentage() float64
}

// Snapshot is the download progress of one attempt.
type Snapshot struct {
	BytesWritten int64
	TotalBytes   int64
	LastReport   time.Time
}

func (s Snapshot) GetTotalSize() int64 {
	return s.TotalBytes
}

func (s Snapshot) GetDownloaded() int64 {
	return s.BytesWritten
}

func (s Snapshot) GetPercentage() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}

	return float64(s.BytesWritten) / float64(s.TotalBytes) * 100
}

// Reporter throttles progress acknowledgements for a single attempt and
// guarantees at most one result. The throttle window opens when the
// reporter is created.
type Reporter struct {
	mu       sync.Mutex
	acker    Acker
	clock    clock.Clock
	interval time.Duration
	snap     Snapshot
	reported bool
}

func NewReporter(acker Acker, clk clock.Clock, interval time.Duration) *Reporter {
	if clk == nil {
		clk = clock.WallClock
	}

	return &Reporter{
		acker:    acker,
		clock:    clk,
		interval: interval,
		snap:     Snapshot{LastReport: clk.Now()},
	}
}

// Progress records the written count and sends it upstream when a full
// interval has passed since the previous report. It returns whether a report
// was sent.
func (r *Reporter) Progress(written, total int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snap.BytesWritten = written
	r.snap.TotalBytes = total

	now := r.clock.Now()
	if now.Sub(r.snap.LastReport) < r.interval {
		return false, nil
	}

	r.snap.LastReport = now

	return true, r.acker.AckProgress(CodeOK, "", written, total)
}

// Finish sends the closing progress report once the body is complete. It is
// subject to the same window as Progress.
func (r *Reporter) Finish(written, total int64) (bool, error) {
	return r.Progress(written, total)
}

// Result sends the attempt outcome. Only the first call reaches the acker.
// A failed send still consumes the result.
func (r *Reporter) Result(ok bool, message, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reported {
		return ErrResultAlreadyReported
	}

	r.reported = true

	code := CodeFail
	if ok {
		code = CodeOK
	}

	return r.acker.AckResult(code, message, version)
}

// Reported reports whether Result has been called.
func (r *Reporter) Reported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.reported
}

func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snap
}
