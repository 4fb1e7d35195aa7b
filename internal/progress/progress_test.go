package progress_test

import (
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/otad/internal/progress"
)

type ack struct {
	code       int32
	msg        string
	downloaded int64
	total      int64
	version    string
}

type recordingAcker struct {
	progress  []ack
	results   []ack
	resultErr error
}

func (a *recordingAcker) AckProgress(code int32, msg string, downloaded, total int64) error {
	a.progress = append(a.progress, ack{code: code, msg: msg, downloaded: downloaded, total: total})
	return nil
}

func (a *recordingAcker) AckResult(code int32, msg, version string) error {
	a.results = append(a.results, ack{code: code, msg: msg, version: version})
	return a.resultErr
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestReporterThrottle(t *testing.T) {
	clk := testclock.NewClock(epoch)
	acker := &recordingAcker{}
	r := progress.NewReporter(acker, clk, 3*time.Second)

	steps := []struct {
		advance time.Duration
		written int64
		sent    bool
	}{
		{0, 100, false},
		{time.Second, 200, false},
		{1999 * time.Millisecond, 300, false},
		{time.Millisecond, 400, true},
		{time.Second, 500, false},
		{2 * time.Second, 600, true},
		{10 * time.Second, 700, true},
		{0, 800, false},
	}

	for i, s := range steps {
		clk.Advance(s.advance)

		sent, err := r.Progress(s.written, 1000)
		require.NoError(t, err)
		assert.Equal(t, s.sent, sent, "step %d", i)
	}

	require.Len(t, acker.progress, 3)
	assert.Equal(t, int64(400), acker.progress[0].downloaded)
	assert.Equal(t, int64(600), acker.progress[1].downloaded)
	assert.Equal(t, int64(700), acker.progress[2].downloaded)
	for _, p := range acker.progress {
		assert.Equal(t, progress.CodeOK, p.code)
		assert.Equal(t, int64(1000), p.total)
	}

	snap := r.Snapshot()
	assert.Equal(t, int64(800), snap.GetDownloaded())
	assert.Equal(t, int64(1000), snap.GetTotalSize())
	assert.InDelta(t, 80.0, snap.GetPercentage(), 0.001)
	assert.Equal(t, epoch.Add(16*time.Second), snap.LastReport)
}

func TestReporterNeverTwiceWithinWindow(t *testing.T) {
	clk := testclock.NewClock(epoch)
	acker := &recordingAcker{}
	r := progress.NewReporter(acker, clk, 3*time.Second)

	var last time.Time
	for i := 0; i < 200; i++ {
		clk.Advance(100 * time.Millisecond)

		sent, err := r.Progress(int64(i), 200)
		require.NoError(t, err)

		if sent {
			now := clk.Now()
			if !last.IsZero() {
				assert.GreaterOrEqual(t, now.Sub(last), 3*time.Second)
			}
			last = now
		}
	}

	assert.NotEmpty(t, acker.progress, "attempt longer than the interval reports at least once")
}

func TestReporterFinishRespectsWindow(t *testing.T) {
	clk := testclock.NewClock(epoch)
	acker := &recordingAcker{}
	r := progress.NewReporter(acker, clk, 3*time.Second)

	sent, err := r.Finish(10, 10)
	require.NoError(t, err)
	assert.False(t, sent)

	clk.Advance(3 * time.Second)

	sent, err = r.Finish(10, 10)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Len(t, acker.progress, 1)
}

func TestReporterResultExactlyOnce(t *testing.T) {
	acker := &recordingAcker{resultErr: errors.New("send queue full")}
	r := progress.NewReporter(acker, testclock.NewClock(epoch), 3*time.Second)

	assert.False(t, r.Reported())

	err := r.Result(false, "recv failed", "1.2.0")
	assert.EqualError(t, err, "send queue full")
	assert.True(t, r.Reported())

	assert.ErrorIs(t, r.Result(true, "", "1.2.0"), progress.ErrResultAlreadyReported)

	require.Len(t, acker.results, 1)
	assert.Equal(t, progress.CodeFail, acker.results[0].code)
	assert.Equal(t, "recv failed", acker.results[0].msg)
	assert.Equal(t, "1.2.0", acker.results[0].version)
}

func TestReporterResultOK(t *testing.T) {
	acker := &recordingAcker{}
	r := progress.NewReporter(acker, nil, time.Second)

	require.NoError(t, r.Result(true, "", "2.0.0"))
	require.Len(t, acker.results, 1)
	assert.Equal(t, progress.CodeOK, acker.results[0].code)
}

func TestSnapshotZeroTotal(t *testing.T) {
	assert.Zero(t, progress.Snapshot{BytesWritten: 5}.GetPercentage())
}
