package orchestrator

import (
	"sync"
	"time"

	"layeredquery/internal/logging"
)

// breakerState is one of the three states a per-layer circuit breaker
// can occupy. Grounded on the ShardPhase enum style in
// internal/core/api_scheduler.go: a small closed int enum with a
// String method for log lines, rather than a string-typed state.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker tracks one layer's recent failure history and decides
// whether new work may be admitted to it. Closed admits freely; N
// consecutive failures trips it to Open, which rejects everything
// until cooldown elapses; a HalfOpen probe then admits exactly one
// request, closing again on success or re-opening on failure.
type circuitBreaker struct {
	mu sync.Mutex

	name      string
	threshold int
	cooldown  time.Duration

	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenProbeInFlight bool
}

func newCircuitBreaker(name string, threshold int, cooldown time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &circuitBreaker{name: name, threshold: threshold, cooldown: cooldown, state: stateClosed}
}

// Allow reports whether a request may currently be dispatched to the
// layer this breaker guards, transitioning Open -> HalfOpen once the
// cooldown has elapsed. Only one HalfOpen probe is admitted at a time;
// concurrent callers during the probe window are rejected until it
// resolves.
func (b *circuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.state = stateHalfOpen
		b.halfOpenProbeInFlight = true
		logging.OrchestratorDebug("circuit breaker %s: open -> half-open probe", b.name)
		return true
	case stateHalfOpen:
		return !b.halfOpenProbeInFlight
	default:
		return true
	}
}

// RecordSuccess closes the breaker (from Closed or a successful
// HalfOpen probe) and resets the failure streak.
func (b *circuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != stateClosed {
		logging.OrchestratorDebug("circuit breaker %s: %s -> closed", b.name, b.state)
	}
	b.state = stateClosed
	b.consecutiveFailures = 0
	b.halfOpenProbeInFlight = false
}

// RecordFailure counts a failure. From Closed it trips to Open once
// threshold consecutive failures accrue; from HalfOpen a single
// failed probe re-opens immediately.
func (b *circuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.openedAt = time.Now()
		b.halfOpenProbeInFlight = false
		logging.OrchestratorWarn("circuit breaker %s: half-open probe failed, re-opening", b.name)
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.threshold {
		b.state = stateOpen
		b.openedAt = time.Now()
		logging.OrchestratorWarn("circuit breaker %s: tripped open after %d consecutive failures", b.name, b.consecutiveFailures)
	}
}

// State reports the current state for diagnostics.
func (b *circuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
