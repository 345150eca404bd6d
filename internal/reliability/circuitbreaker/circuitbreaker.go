// Package circuitbreaker fails calls to a dependency fast after it has
// failed repeatedly, and tries it again once a cool-down has passed.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the circuit rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the position of the breaker. The numeric values are exported
// as a gauge, so their order is fixed.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Settings configures a Breaker. Zero thresholds default to 1.
type Settings struct {
	Name string
	// FailureThreshold consecutive failures open a closed circuit.
	FailureThreshold int
	// SuccessThreshold consecutive successes close a half-open circuit.
	SuccessThreshold int
	// OpenTimeout is how long an open circuit rejects calls after the last failure.
	OpenTimeout   time.Duration
	OnStateChange func(name string, from, to State)
}

// Breaker guards calls to one dependency.
type Breaker struct {
	settings Settings
	now      func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

func New(s Settings) *Breaker {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 1
	}
	if s.SuccessThreshold < 1 {
		s.SuccessThreshold = 1
	}
	return &Breaker{settings: s, now: time.Now}
}

func (b *Breaker) Name() string {
	return b.settings.Name
}

// Execute runs fn when the circuit allows it and records the outcome. A
// rejected call returns ErrOpen without running fn.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn()
	b.record(err == nil)
	return err
}

// State returns the current state, moving an open circuit to half-open
// when its timeout has passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coolDownLocked()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coolDownLocked()
	return b.state != StateOpen
}

func (b *Breaker) coolDownLocked() {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) > b.settings.OpenTimeout {
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !ok {
		b.lastFailure = b.now()
		b.successes = 0
		switch b.state {
		case StateHalfOpen:
			b.transitionLocked(StateOpen)
		case StateClosed:
			b.failures++
			if b.failures >= b.settings.FailureThreshold {
				b.transitionLocked(StateOpen)
			}
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures, b.successes = 0, 0
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}
