package bentengo

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name for logging and labels.
func (s CircuitState) String() string {
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

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// circuitRecord is the per-endpoint state. probing is true while the single
// half-open trial call is in flight.
type circuitRecord struct {
	state       CircuitState
	failures    int
	lastFailure time.Time
	probing     bool
}

// CircuitBreaker tracks consecutive failures per endpoint key and
// short-circuits calls to an endpoint that keeps failing. Once the recovery
// timeout elapses the circuit admits exactly one trial call (half-open);
// the trial's outcome decides whether the circuit closes or re-opens.
type CircuitBreaker struct {
	mu      sync.Mutex
	config  CircuitBreakerConfig
	records map[string]*circuitRecord
	now     func() time.Time
}

// NewCircuitBreaker creates a new per-endpoint circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}

	return &CircuitBreaker{
		config:  config,
		records: make(map[string]*circuitRecord),
		now:     time.Now,
	}
}

// Allow reports whether a request for the endpoint key may proceed. While
// open it returns false until the recovery timeout elapses; it then admits a
// single trial call and holds further callers back until the trial settles.
func (cb *CircuitBreaker) Allow(key string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rec, ok := cb.records[key]
	if !ok {
		return true
	}

	switch rec.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(rec.lastFailure) >= cb.config.RecoveryTimeout {
			rec.state = StateHalfOpen
			rec.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if rec.probing {
			return false
		}
		rec.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the endpoint's failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rec, ok := cb.records[key]
	if !ok {
		return
	}
	rec.state = StateClosed
	rec.failures = 0
	rec.probing = false
}

// RecordFailure increments the endpoint's consecutive failure count, opening
// the circuit at the threshold. A half-open trial failure re-opens immediately
// with a fresh failure time.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rec, ok := cb.records[key]
	if !ok {
		rec = &circuitRecord{}
		cb.records[key] = rec
	}

	rec.failures++
	rec.lastFailure = cb.now()

	switch rec.state {
	case StateClosed:
		if rec.failures >= cb.config.FailureThreshold {
			rec.state = StateOpen
		}
	case StateHalfOpen:
		rec.state = StateOpen
		rec.probing = false
	}
}

// State returns the current state for the endpoint key. An open circuit whose
// recovery timeout elapsed reports half-open.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rec, ok := cb.records[key]
	if !ok {
		return StateClosed
	}
	if rec.state == StateOpen && cb.now().Sub(rec.lastFailure) >= cb.config.RecoveryTimeout {
		return StateHalfOpen
	}
	return rec.state
}

// CircuitStatus is a point-in-time view of one endpoint's circuit.
type CircuitStatus struct {
	State       CircuitState
	Failures    int
	LastFailure time.Time
}

// Snapshot returns a copy of all per-endpoint circuit records.
func (cb *CircuitBreaker) Snapshot() map[string]CircuitStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	out := make(map[string]CircuitStatus, len(cb.records))
	for key, rec := range cb.records {
		out[key] = CircuitStatus{
			State:       rec.state,
			Failures:    rec.failures,
			LastFailure: rec.lastFailure,
		}
	}
	return out
}
