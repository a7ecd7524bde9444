// Package resilience guards calls to flaky upstream services.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"dwiju-assistant/backend/pkg/logger"
)

// State is the current position of a circuit breaker.
type State string

const (
	// StateClosed lets every call through.
	StateClosed State = "closed"
	// StateOpen short-circuits calls until the cooldown has passed.
	StateOpen State = "open"
	// StateHalfOpen lets probe calls through to decide whether to close.
	StateHalfOpen State = "half-open"
)

// ErrOpen is returned without calling the upstream while the circuit is open.
var ErrOpen = errors.New("circuit open")

// Config holds configuration for a circuit breaker
type Config struct {
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint
	// SuccessThreshold probe successes in half-open close it again.
	SuccessThreshold uint
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// IsFailure decides which errors count against the upstream. Nil counts
	// every non-nil error.
	IsFailure func(error) bool
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         60 * time.Second,
	}
}

// Stats is a snapshot of a breaker's counters.
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	TotalRequests    uint64    `json:"totalRequests"`
	TotalFailures    uint64    `json:"totalFailures"`
	TotalSuccesses   uint64    `json:"totalSuccesses"`
	Rejected         uint64    `json:"rejected"`
	OpenCount        uint64    `json:"openCount"`
	LastFailure      time.Time `json:"lastFailure,omitempty"`
	NextAttempt      time.Time `json:"nextAttempt,omitempty"`
	ConsecutiveFails uint      `json:"consecutiveFailures"`
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu           sync.Mutex
	state        State
	failureCount uint
	successCount uint
	probing      uint
	stats        Stats
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	def := DefaultConfig(cfg.Name)
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CircuitBreaker{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		state: StateClosed,
		stats: Stats{Name: cfg.Name},
	}
}

// Execute runs fn through the breaker. Errors for which IsFailure is false
// are returned without affecting the circuit.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		cb.log.Warn("circuit breaker rejected call", "name", cb.cfg.Name)
		return ErrOpen
	}

	err := fn(ctx)
	if cb.cfg.IsFailure(err) {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.stats.NextAttempt) {
			cb.stats.Rejected++
			return false
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.probing = 0
		cb.log.Info("circuit breaker half-open", "name", cb.cfg.Name)
		fallthrough
	case StateHalfOpen:
		if cb.probing >= cb.cfg.SuccessThreshold {
			cb.stats.Rejected++
			return false
		}
		cb.probing++
	}
	cb.stats.TotalRequests++
	return true
}

// recordSuccess also releases a half-open probe slot for calls that failed
// for reasons unrelated to the upstream.
func (cb *CircuitBreaker) recordSuccess(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if ok {
		cb.stats.TotalSuccesses++
	}
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		if !ok {
			cb.probing--
			return
		}
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.probing = 0
			cb.log.Info("circuit breaker closed", "name", cb.cfg.Name)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalFailures++
	cb.stats.LastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.open()
		}
	case StateHalfOpen:
		cb.open()
	}
}

// open must be called with mu held.
func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.stats.OpenCount++
	cb.stats.NextAttempt = cb.now().Add(cb.cfg.Cooldown)

	cb.log.Warn("circuit breaker opened",
		"name", cb.cfg.Name,
		"failures", cb.failureCount,
		"nextAttempt", cb.stats.NextAttempt.Format(time.RFC3339),
	)
}

// State returns the current state. An open circuit whose cooldown has
// passed still reports open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.State = cb.state
	s.ConsecutiveFails = cb.failureCount
	return s
}
