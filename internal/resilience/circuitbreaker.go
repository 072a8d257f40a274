// Package resilience holds the circuit breaker placed in front of the LLM.
//
// When the backend fails repeatedly the breaker opens and further calls fail
// fast with ErrCircuitOpen instead of making the user wait for another
// timeout. After ResetTimeout a limited number of trials are let through.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	Name string

	// MaxFailures consecutive failures open the breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax successful trials close it again. Default: 1.
	HalfOpenMax int

	Logger *slog.Logger
	now    func() time.Time
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	trials    int
	trialWins int
}

func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure(trial)
	} else {
		cb.onSuccess(trial)
	}
	return err
}

func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.cfg.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trials, cb.trialWins = 0, 0
		cb.cfg.Logger.Info("circuit breaker half-open", "name", cb.cfg.Name)
		fallthrough

	case StateHalfOpen:
		if cb.trials >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.trials++
		return true, nil
	}

	return false, nil
}

func (cb *CircuitBreaker) onFailure(trial bool) {
	if trial || cb.state == StateHalfOpen {
		cb.trip()
		return
	}

	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		cb.trip()
	}
}

func (cb *CircuitBreaker) onSuccess(trial bool) {
	if !trial {
		cb.failures = 0
		return
	}

	cb.trialWins++
	if cb.trialWins >= cb.cfg.HalfOpenMax {
		cb.state = StateClosed
		cb.failures = 0
		cb.cfg.Logger.Info("circuit breaker closed", "name", cb.cfg.Name)
	}
}

func (cb *CircuitBreaker) trip() {
	if cb.state != StateOpen {
		cb.cfg.Logger.Warn("circuit breaker opened", "name", cb.cfg.Name, "failures", cb.failures)
	}
	cb.state = StateOpen
	cb.openedAt = cb.cfg.now()
	cb.failures = 0
}

// State reports the current state; an open breaker whose timeout elapsed is
// reported as half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.cfg.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.trials, cb.trialWins = 0, 0
}
