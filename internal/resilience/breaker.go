package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/parrotgw/parrot/internal/log"
)

// State represents the state of a circuit breaker.
type State string

const (
	// StateClosed: calls flow through to the dependency.
	StateClosed State = "closed"

	// StateHalfOpen: a limited number of trial calls probe the dependency.
	StateHalfOpen State = "half_open"

	// StateOpen: calls are rejected without touching the dependency.
	StateOpen State = "open"
)

// ErrOpen is returned when the breaker rejects a call.
var ErrOpen = errors.New("circuit breaker is open")

// Settings tune a breaker.
type Settings struct {
	// Name identifies the protected dependency in logs and health output.
	Name string

	// FailureRateThreshold opens the breaker when the failure rate over the
	// window reaches it, given at least MinimumSamples observations.
	FailureRateThreshold float64

	// SlowCallDuration classifies a call as slow.
	SlowCallDuration time.Duration

	// SlowCallRateThreshold opens the breaker when the slow-call rate over
	// the window reaches it.
	SlowCallRateThreshold float64

	// MinimumSamples gates rate evaluation.
	MinimumSamples int

	// WindowSize is the sliding count window length.
	WindowSize int

	// OpenInterval is the wait before the breaker probes again.
	OpenInterval time.Duration

	// HalfOpenMaxCalls is the number of trial calls admitted half-open.
	HalfOpenMaxCalls int
}

func (s Settings) withDefaults() Settings {
	if s.FailureRateThreshold == 0 {
		s.FailureRateThreshold = 0.5
	}

	if s.SlowCallDuration == 0 {
		s.SlowCallDuration = 2 * time.Second
	}

	if s.SlowCallRateThreshold == 0 {
		s.SlowCallRateThreshold = 0.5
	}

	if s.MinimumSamples == 0 {
		s.MinimumSamples = 10
	}

	if s.WindowSize == 0 {
		s.WindowSize = 20
	}

	if s.OpenInterval == 0 {
		s.OpenInterval = 30 * time.Second
	}

	if s.HalfOpenMaxCalls == 0 {
		s.HalfOpenMaxCalls = 5
	}

	return s
}

type outcome struct {
	failed bool
	slow   bool
}

// Breaker is a three-state circuit breaker with a sliding count window.
type Breaker struct {
	settings Settings

	mu               sync.Mutex
	state            State
	window           []outcome
	windowPos        int
	windowFilled     int
	openedAt         time.Time
	halfOpenAdmitted int
	halfOpenSuccess  int

	now func() time.Time
}

// NewBreaker builds a breaker in the closed state.
func NewBreaker(settings Settings) *Breaker {
	settings = settings.withDefaults()

	return &Breaker{
		settings: settings,
		state:    StateClosed,
		window:   make([]outcome, settings.WindowSize),
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed. Callers must pair every
// successful Allow with a Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.settings.OpenInterval {
			b.transition(StateHalfOpen)
			b.halfOpenAdmitted = 1

			return nil
		}

		return ErrOpen
	case StateHalfOpen:
		if b.halfOpenAdmitted >= b.settings.HalfOpenMaxCalls {
			return ErrOpen
		}

		b.halfOpenAdmitted++

		return nil
	}

	return nil
}

// Record observes the outcome of a call admitted by Allow.
func (b *Breaker) Record(duration time.Duration, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && !errors.Is(err, context.Canceled)
	slow := duration > b.settings.SlowCallDuration

	switch b.state {
	case StateHalfOpen:
		if failed {
			b.open()
			return
		}

		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.settings.HalfOpenMaxCalls {
			b.transition(StateClosed)
			b.resetWindow()
		}

		return
	case StateOpen:
		// Late results from before the transition are dropped.
		return
	case StateClosed:
	}

	b.window[b.windowPos] = outcome{failed: failed, slow: slow}
	b.windowPos = (b.windowPos + 1) % len(b.window)

	if b.windowFilled < len(b.window) {
		b.windowFilled++
	}

	if b.windowFilled < b.settings.MinimumSamples {
		return
	}

	var failures, slows int

	for i := range b.windowFilled {
		if b.window[i].failed {
			failures++
		}

		if b.window[i].slow {
			slows++
		}
	}

	total := float64(b.windowFilled)
	if float64(failures)/total >= b.settings.FailureRateThreshold ||
		float64(slows)/total >= b.settings.SlowCallRateThreshold {
		b.open()
	}
}

// Do runs fn under the breaker, recording its duration and outcome.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	start := b.now()
	err := fn(ctx)
	b.Record(b.now().Sub(start), err)

	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Name returns the protected dependency's name.
func (b *Breaker) Name() string {
	return b.settings.Name
}

func (b *Breaker) open() {
	b.transition(StateOpen)
	b.openedAt = b.now()
	b.resetWindow()
}

func (b *Breaker) resetWindow() {
	b.windowPos = 0
	b.windowFilled = 0
	b.halfOpenAdmitted = 0
	b.halfOpenSuccess = 0
}

func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}

	log.Info(context.Background(), "circuit breaker transition",
		log.String("breaker", b.settings.Name),
		log.String("from", string(b.state)),
		log.String("to", string(next)),
	)

	b.state = next
}
