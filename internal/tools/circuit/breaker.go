// Package circuit implements the per-base-URL circuit breaker spec §4.7
// requires for both the OpenAPI and MCP tool factories: "5 failures → open
// for 60s, half-open on trial". Grounded on internal/router.providerHealth
// (failures counter, circuitOpen/circuitOpenAt gate) generalised from a
// provider-name key to an arbitrary string key (base URL or allowlisted
// host) and moved into its own package since two independent tool
// factories need the same behaviour.
package circuit

import (
	"sync"
	"time"
)

const (
	// DefaultThreshold is the failure count that opens the breaker.
	DefaultThreshold = 5
	// DefaultRecovery is how long the breaker stays open before a
	// half-open trial is allowed.
	DefaultRecovery = 60 * time.Second
)

type state struct {
	mu        sync.Mutex
	failures  int
	open      bool
	openedAt  time.Time
	threshold int
	recovery  time.Duration
}

func (s *state) available(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return true
	}
	return now.Sub(s.openedAt) > s.recovery
}

func (s *state) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	s.open = false
}

func (s *state) recordFailure(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.failures >= s.threshold {
		s.open = true
		s.openedAt = now
	}
}

// Registry is a set of independent breakers keyed by string (base URL or
// hostname); one per base URL, unbounded-but-tiny per spec §5.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*state
	threshold int
	recovery  time.Duration
	now       func() time.Time
}

// Options configures threshold/recovery; zero values fall back to the
// spec defaults (5 failures / 60s).
type Options struct {
	Threshold int
	Recovery  time.Duration
}

func NewRegistry(opts Options) *Registry {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	recovery := opts.Recovery
	if recovery <= 0 {
		recovery = DefaultRecovery
	}
	return &Registry{
		breakers:  make(map[string]*state),
		threshold: threshold,
		recovery:  recovery,
		now:       time.Now,
	}
}

func (r *Registry) get(key string) *state {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.breakers[key]
	if !ok {
		s = &state{threshold: r.threshold, recovery: r.recovery}
		r.breakers[key] = s
	}
	return s
}

// Allow reports whether a call against key may proceed (closed, or
// open-but-past-recovery for a half-open trial).
func (r *Registry) Allow(key string) bool {
	return r.get(key).available(r.now())
}

func (r *Registry) RecordSuccess(key string) {
	r.get(key).recordSuccess()
}

func (r *Registry) RecordFailure(key string) {
	r.get(key).recordFailure(r.now())
}
