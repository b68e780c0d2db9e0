package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrOpen = errors.New("circuit breaker open")

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
	}
	return "unknown"
}

// Config tunes a breaker. Zero values take the defaults below.
type Config struct {
	// FailureThreshold opens the breaker after this many consecutive failures.
	FailureThreshold int
	// SuccessThreshold closes a half-open breaker after this many consecutive
	// successes.
	SuccessThreshold int
	// Cooldown is how long an open breaker rejects before probing.
	Cooldown time.Duration
	// MaxProbes bounds in-flight calls while half-open.
	MaxProbes int
	Logger    *zap.Logger
}

// CircuitBreaker rejects calls to a collaborator that keeps failing, so a
// down upstream costs a fast error instead of a timeout per request.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

func New(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &CircuitBreaker{name: name, cfg: cfg}
}

// Execute runs fn if the breaker admits the call. A context error from fn
// counts as a failure like any other.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		cb.record(false)
		return err
	}

	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeProbe(time.Now())
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeProbe(time.Now())

	switch cb.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if cb.probes >= cb.cfg.MaxProbes {
			return ErrOpen
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}

	if success {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.successes = 0
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// maybeProbe moves an open breaker to half-open once the cooldown elapsed.
// Callers hold cb.mu.
func (cb *CircuitBreaker) maybeProbe(now time.Time) {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.transition(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) transition(next State) {
	prev := cb.state
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	cb.probes = 0
	if next == StateOpen {
		cb.openedAt = time.Now()
	}
	cb.cfg.Logger.Info("circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}
