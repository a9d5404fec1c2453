package providers

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle of one provider fetch.
type State string

const (
	StatePending          State = "pending"
	StateInFlight         State = "in_flight"
	StateSuccess          State = "success"
	StateRetryableFailure State = "retryable_failure"
	StatePermanentFailure State = "permanent_failure"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StatePermanentFailure
}

var (
	errNilFailure        = errors.New("provider failed without an error")
	ErrInvalidTransition = errors.New("invalid attempt state transition")
)

var transitions = map[State][]State{
	StatePending:          {StateInFlight},
	StateInFlight:         {StateSuccess, StateRetryableFailure, StatePermanentFailure},
	StateRetryableFailure: {StateInFlight, StatePermanentFailure},
}

// Attempt tracks Pending -> InFlight -> {Success, RetryableFailure ->
// InFlight, PermanentFailure}.
type Attempt struct {
	mu      sync.Mutex
	state   State
	count   int
	history []State
}

func NewAttempt() *Attempt {
	return &Attempt{state: StatePending, history: []State{StatePending}}
}

func (a *Attempt) move(to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, allowed := range transitions[a.state] {
		if allowed == to {
			a.state = to
			a.history = append(a.history, to)
			if to == StateInFlight {
				a.count++
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.state, to)
}

// Start enters InFlight from Pending or RetryableFailure.
func (a *Attempt) Start() error { return a.move(StateInFlight) }

func (a *Attempt) Succeed() error { return a.move(StateSuccess) }

// Fail records a failed InFlight attempt. retryable selects between
// RetryableFailure and PermanentFailure.
func (a *Attempt) Fail(retryable bool) error {
	if retryable {
		return a.move(StateRetryableFailure)
	}
	return a.move(StatePermanentFailure)
}

// Exhaust ends an attempt that will not be retried again. An attempt that
// never started (its context was already done) is also closed.
func (a *Attempt) Exhaust() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Terminal() {
		return
	}
	a.state = StatePermanentFailure
	a.history = append(a.history, StatePermanentFailure)
}

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Count is the number of times the attempt entered InFlight.
func (a *Attempt) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func (a *Attempt) History() []State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]State(nil), a.history...)
}
