package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	StateClosed   BreakerState = iota // calls pass through
	StateOpen                         // calls fail immediately
	StateHalfOpen                     // one trial call allowed
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call without
// invoking the wrapped operation.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker trips after FailureThreshold consecutive failures and
// rejects calls until OpenTimeout has elapsed, then allows exactly one
// trial call. Trial success closes the circuit and zeroes the counter;
// trial failure reopens it.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openTimeout      time.Duration

	state         BreakerState
	failures      int
	lastFailure   time.Time
	trialInFlight bool

	logger *slog.Logger
}

// NewCircuitBreaker creates a breaker. threshold <= 0 defaults to 5,
// timeout <= 0 defaults to 30s.
func NewCircuitBreaker(threshold int, timeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		failureThreshold: threshold,
		openTimeout:      timeout,
		state:            StateClosed,
		logger:           logger,
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs op under the breaker's admission policy.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := op(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastFailure) < cb.openTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trialInFlight = true
		cb.logger.Info("circuit breaker half-open, allowing trial call")
		return nil

	case StateHalfOpen:
		if cb.trialInFlight {
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
		return nil
	}

	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state != StateClosed {
			cb.logger.Info("circuit breaker closed after successful trial")
		}
		cb.state = StateClosed
		cb.failures = 0
		cb.trialInFlight = false
		return
	}

	cb.lastFailure = time.Now()
	cb.trialInFlight = false

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.logger.Warn("circuit breaker reopened after failed trial", "error", err)

	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			cb.logger.Warn("circuit breaker opened",
				"failures", cb.failures,
				"threshold", cb.failureThreshold,
			)
		}
	}
}
