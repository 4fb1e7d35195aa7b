package engine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/otad/internal/engine"
	"github.com/NamanBalaji/otad/internal/errors"
	"github.com/NamanBalaji/otad/internal/ota"
	"github.com/NamanBalaji/otad/internal/status"
)

// gatedRunner blocks every attempt until released and records concurrency.
type gatedRunner struct {
	release  chan struct{}
	started  chan ota.Offer
	outcome  func(ota.Offer) ota.Outcome
	active   atomic.Int32
	maxSeen  atomic.Int32
	mu       sync.Mutex
	versions []string
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{
		release: make(chan struct{}),
		started: make(chan ota.Offer, 16),
		outcome: func(ota.Offer) ota.Outcome { return ota.Outcome{State: status.Succeeded} },
	}
}

func (r *gatedRunner) Run(ctx context.Context, offer ota.Offer) ota.Outcome {
	n := r.active.Add(1)
	defer r.active.Add(-1)

	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	r.mu.Lock()
	r.versions = append(r.versions, offer.TargetVersion)
	r.mu.Unlock()

	r.started <- offer

	select {
	case <-r.release:
	case <-ctx.Done():
	}

	return r.outcome(offer)
}

func (r *gatedRunner) State() status.Status {
	return status.Streaming
}

func offer(version string) ota.Offer {
	return ota.Offer{
		TargetVersion: version,
		Checksum:      "0123456789abcdef0123456789abcdef",
		URL:           "http://fw.example.com/" + version + ".bin",
	}
}

func waitStarted(t *testing.T, r *gatedRunner) ota.Offer {
	t.Helper()

	select {
	case o := <-r.started:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for attempt to start")
		return ota.Offer{}
	}
}

func runEngine(t *testing.T, e *engine.Engine) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- e.Run(ctx) }()

	t.Cleanup(cancel)

	return cancel, done
}

func TestOfferRefusesInvalid(t *testing.T) {
	e := engine.New(newGatedRunner())

	bad := offer("1.0.0")
	bad.Checksum = ""

	assert.False(t, e.Offer(bad))
	assert.True(t, e.Offer(offer("1.0.0")))
}

func TestOfferSingleSlot(t *testing.T) {
	e := engine.New(newGatedRunner())

	assert.True(t, e.Offer(offer("1.0.0")))
	assert.False(t, e.Offer(offer("1.0.1")), "second offer is refused while one is pending")
}

func TestRunSerialisesAttempts(t *testing.T) {
	r := newGatedRunner()
	e := engine.New(r)
	cancel, done := runEngine(t, e)

	require.True(t, e.Offer(offer("1.0.0")))
	assert.Equal(t, "1.0.0", waitStarted(t, r).TargetVersion)
	assert.Equal(t, status.Streaming, e.State())

	assert.True(t, e.Offer(offer("1.0.1")), "one offer may wait during an attempt")
	assert.False(t, e.Offer(offer("1.0.2")))

	r.release <- struct{}{}
	assert.Equal(t, "1.0.1", waitStarted(t, r).TargetVersion)
	r.release <- struct{}{}

	require.Eventually(t, func() bool { return e.State() == status.Idle }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), r.maxSeen.Load(), "attempts never overlap")
	assert.Equal(t, []string{"1.0.0", "1.0.1"}, r.versions)
}

func TestRunAbortKeepsAccepting(t *testing.T) {
	r := newGatedRunner()
	r.outcome = func(o ota.Offer) ota.Outcome {
		return ota.Outcome{
			State: status.Failed,
			Err:   errors.NewError(errors.KindBodyLengthMismatch, "recv body", o.URL, errors.New("short")),
		}
	}

	var outcomes atomic.Int32
	e := engine.New(r, engine.WithOutcomeHook(func(ota.Outcome) { outcomes.Add(1) }))
	runEngine(t, e)

	require.True(t, e.Offer(offer("1.0.0")))
	waitStarted(t, r)
	r.release <- struct{}{}

	require.Eventually(t, func() bool { return outcomes.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return e.State() == status.Idle }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, e.Offer(offer("1.0.1")))
	waitStarted(t, r)
	r.release <- struct{}{}
}

func TestRunHaltsOnFlashFailure(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cause := errors.NewError(errors.KindFlashCommitFailure, "commit", "ota_1", errors.New("bad image"))

	r := newGatedRunner()
	r.outcome = func(ota.Offer) ota.Outcome {
		return ota.Outcome{State: status.Failed, Err: cause}
	}

	e := engine.New(r, engine.WithClock(clk), engine.WithHaltDelay(3*time.Second))
	cancel, done := runEngine(t, e)

	require.True(t, e.Offer(offer("1.0.0")))
	waitStarted(t, r)
	require.True(t, e.Offer(offer("1.0.1")))
	r.release <- struct{}{}

	require.NoError(t, clk.WaitAdvance(3*time.Second, 2*time.Second, 1))
	require.NoError(t, clk.WaitAdvance(3*time.Second, 2*time.Second, 1), "alarm repeats")

	assert.Equal(t, status.Halted, e.State())
	assert.False(t, e.Offer(offer("1.0.2")), "halted engine refuses offers")
	assert.Equal(t, cause, e.HaltCause())

	cancel()

	err := <-done
	assert.ErrorIs(t, err, engine.ErrHalted)
	assert.True(t, errors.IsKind(err, errors.KindFlashCommitFailure))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []string{"1.0.0"}, r.versions, "pending offer is discarded on halt")
}

func TestRunTwice(t *testing.T) {
	r := newGatedRunner()
	e := engine.New(r)
	runEngine(t, e)

	require.True(t, e.Offer(offer("1.0.0")))
	waitStarted(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Run(ctx), engine.ErrAlreadyRunning)

	r.release <- struct{}{}
}
