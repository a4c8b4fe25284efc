package remote

// #region imports
import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// #endregion imports

// #region states

// BreakerState is the observable circuit breaker state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// AllBreakerStates lists every state, for gauges.
var AllBreakerStates = []string{string(StateClosed), string(StateOpen), string(StateHalfOpen)}

const (
	eventTrip  = "trip"
	eventProbe = "probe"
	eventReset = "reset"
)

// #endregion states

// #region breaker

// Breaker stops remote calls after repeated failures. It opens after
// threshold consecutive failures (or immediately on Trip), lets a single
// probe through once cooldown has elapsed, and closes again when that probe
// succeeds.
type Breaker struct {
	mu        sync.Mutex
	machine   *fsm.FSM
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(BreakerState)

	failures int
	openedAt time.Time
	probing  bool
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock injects the time source.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithStateListener is called with the new state after every transition.
func WithStateListener(fn func(BreakerState)) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration, opts ...BreakerOption) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	b := &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	b.machine = fsm.NewFSM(
		string(StateClosed),
		fsm.Events{
			{Name: eventTrip, Src: []string{string(StateClosed), string(StateHalfOpen)}, Dst: string(StateOpen)},
			{Name: eventProbe, Src: []string{string(StateOpen)}, Dst: string(StateHalfOpen)},
			{Name: eventReset, Src: []string{string(StateHalfOpen)}, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if b.onChange != nil {
					b.onChange(BreakerState(e.Dst))
				}
			},
		},
	)
	return b
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState(b.machine.Current())
}

// Allow reports whether a call may proceed. An open breaker whose cooldown
// has elapsed moves to half-open and admits exactly one probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch BreakerState(b.machine.Current()) {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.fire(eventProbe)
		b.probing = true
		return true
	default: // half-open
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// RecordSuccess closes a half-open breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	if BreakerState(b.machine.Current()) == StateHalfOpen {
		b.fire(eventReset)
	}
}

// RecordFailure counts a failure; a failed probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	switch BreakerState(b.machine.Current()) {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
	}
}

// Trip opens the breaker regardless of the failure count.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if BreakerState(b.machine.Current()) == StateOpen {
		b.openedAt = b.now()
		return
	}
	b.open()
}

func (b *Breaker) open() {
	b.fire(eventTrip)
	b.openedAt = b.now()
	b.failures = 0
}

// fire runs an event whose source state the caller has already checked.
func (b *Breaker) fire(event string) {
	_ = b.machine.Event(context.Background(), event)
}

// #endregion breaker
