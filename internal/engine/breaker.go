package engine

import (
	"sync"
	"time"

	"github.com/campaignforge/forge/pkg/schema"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // normal operation
	CircuitOpen                         // failing, rejecting calls
	CircuitHalfOpen                     // testing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Capability names the breakers are keyed by.
const (
	CapabilityPlan  = "plan"
	CapabilityImage = "image"
	CapabilityText  = "text"
	CapabilityVideo = "video"
)

// CircuitBreakerConfig configures the per-capability circuit breakers that
// sit between the engine and the generative service.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before transitioning to half-open.
	Cooldown time.Duration
	// HalfOpenMax is the number of test requests allowed in half-open state.
	HalfOpenMax int
}

// DefaultCircuitBreakerConfig returns a sensible default configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

// circuitBreaker tracks failure state for a single capability.
type circuitBreaker struct {
	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenAttempts    int
	config              CircuitBreakerConfig
}

// CircuitBreakerRegistry manages per-capability circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*circuitBreaker
	config   CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a new registry with the given config.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*circuitBreaker),
		config:   config,
	}
}

// AllowRequest checks whether a call to the given capability is allowed.
// Returns nil if allowed, or a TRANSPORT_ERROR if the circuit is open,
// so callers treat a rejected call like any other transient service
// failure.
func (r *CircuitBreakerRegistry) AllowRequest(capability string) error {
	cb := r.getOrCreate(capability)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.Cooldown {
			cb.state = CircuitHalfOpen
			cb.halfOpenAttempts = 1 // this request counts as the first test request
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeTransport,
			"circuit breaker open for capability %q: %d consecutive failures",
			capability, cb.consecutiveFailures).
			WithDetails(map[string]any{
				"capability":           capability,
				"consecutive_failures": cb.consecutiveFailures,
				"state":                cb.state.String(),
				"cooldown_remaining":   (cb.config.Cooldown - time.Since(cb.lastFailureTime)).String(),
			})

	case CircuitHalfOpen:
		if cb.halfOpenAttempts >= cb.config.HalfOpenMax {
			return schema.NewErrorf(schema.ErrCodeTransport,
				"circuit breaker half-open for capability %q: max test requests reached", capability)
		}
		cb.halfOpenAttempts++
		return nil
	}
	return nil
}

// RecordSuccess resets the breaker for the capability.
func (r *CircuitBreakerRegistry) RecordSuccess(capability string) {
	cb := r.getOrCreate(capability)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.consecutiveFailures = 0
	cb.halfOpenAttempts = 0
}

// RecordFailure counts a failure and opens the circuit at the threshold.
func (r *CircuitBreakerRegistry) RecordFailure(capability string) {
	cb := r.getOrCreate(capability)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFailures >= cb.config.FailureThreshold {
		cb.state = CircuitOpen
		cb.halfOpenAttempts = 0
	}
}

// State returns the current state of a capability's breaker.
func (r *CircuitBreakerRegistry) State(capability string) CircuitState {
	cb := r.getOrCreate(capability)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (r *CircuitBreakerRegistry) getOrCreate(capability string) *circuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[capability]
	if !ok {
		cb = &circuitBreaker{config: r.config}
		r.breakers[capability] = cb
	}
	return cb
}
