package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/NamanBalaji/otad/internal/errors"
	"github.com/NamanBalaji/otad/internal/logger"
	"github.com/NamanBalaji/otad/internal/ota"
	"github.com/NamanBalaji/otad/internal/status"
)

var (
	// ErrHalted is returned by Run after a flash failure stopped the engine
	ErrHalted = errors.New("engine halted after flash failure")

	// ErrAlreadyRunning is returned when Run is called twice
	ErrAlreadyRunning = errors.New("engine is already running")
)

// Runner performs one download attempt.
type Runner interface {
	Run(ctx context.Context, offer ota.Offer) ota.Outcome
}

type stater interface {
	State() status.Status
}

type Option func(*Engine)

func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clock = clk
		}
	}
}

// WithHaltDelay sets the interval of the halt alarm.
func WithHaltDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.haltDelay = d
		}
	}
}

// WithOutcomeHook registers a function called on the worker after every attempt.
func WithOutcomeHook(fn func(ota.Outcome)) Option {
	return func(e *Engine) {
		e.onOutcome = fn
	}
}

// Engine accepts update offers and runs them one at a time on a single
// worker. At most one offer waits while an attempt is in progress.
type Engine struct {
	runner    Runner
	clock     clock.Clock
	haltDelay time.Duration
	onOutcome func(ota.Outcome)

	slot    *slot
	running atomic.Bool
	busy    atomic.Bool
	halted  atomic.Bool

	mu      sync.Mutex
	haltErr error
}

func New(runner Runner, opts ...Option) *Engine {
	e := &Engine{
		runner:    runner,
		clock:     clock.WallClock,
		haltDelay: 3 * time.Second,
		slot:      newSlot(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Offer validates offer and queues it without blocking. It returns false
// when the offer is invalid, another offer is already pending, or the engine
// has halted.
func (e *Engine) Offer(offer ota.Offer) bool {
	if err := offer.Validate(); err != nil {
		logger.Warnf("Refusing offer: %v", err)
		return false
	}

	// Serialized with halt so an offer can't land in the slot after it was drained.
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted.Load() {
		logger.Warnf("Refusing offer for %s: engine halted", offer.TargetVersion)
		return false
	}

	if !e.slot.put(offer) {
		logger.Warnf("Refusing offer for %s: an update is already pending", offer.TargetVersion)
		return false
	}

	logger.Infof("Accepted offer for version %s", offer.TargetVersion)

	return true
}

// Run is the worker loop. It returns nil when ctx is done, or an error
// wrapping ErrHalted once a halting failure occurred and ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case offer := <-e.slot.ch:
			out := e.attempt(ctx, offer)

			if out.Halting() {
				return e.halt(ctx, out)
			}
		}
	}
}

func (e *Engine) attempt(ctx context.Context, offer ota.Offer) ota.Outcome {
	e.busy.Store(true)
	defer e.busy.Store(false)

	out := e.runner.Run(ctx, offer)

	if e.onOutcome != nil {
		e.onOutcome(out)
	}

	return out
}

// halt refuses further offers and raises an alarm every haltDelay until ctx is done.
func (e *Engine) halt(ctx context.Context, out ota.Outcome) error {
	e.mu.Lock()
	e.haltErr = out.Err
	e.halted.Store(true)
	pending, discarded := e.slot.drain()
	e.mu.Unlock()

	if discarded {
		logger.Warnf("Discarding pending offer for %s: engine halted", pending.TargetVersion)
	}

	for {
		logger.Errorf("OTA halted: %v; flash state unknown, manual recovery required", out.Err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrHalted, out.Err)
		case <-e.clock.After(e.haltDelay):
		}
	}
}

// State reports Halted, Idle, or the step of the running attempt.
func (e *Engine) State() status.Status {
	if e.halted.Load() {
		return status.Halted
	}

	if !e.busy.Load() {
		return status.Idle
	}

	if s, ok := e.runner.(stater); ok {
		return s.State()
	}

	return status.Streaming
}

// HaltCause returns the failure that halted the engine, or nil.
func (e *Engine) HaltCause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.haltErr
}
