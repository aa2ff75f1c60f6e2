package spec

import (
	"fmt"
	"sync"
	"time"

	"github.com/akashi-ai/noema/internal/clock"
)

// LimitExceeded reports that a named limit has been crossed.
type LimitExceeded struct {
	Name    string
	Count   int
	Cap     int
}

func (e *LimitExceeded) Error() string {
	return fmt.Sprintf("spec: limit %q exceeded: %d > %d", e.Name, e.Count, e.Cap)
}

// LimitEnforcer tracks per-run limit counters against an AgentSpecification's
// LIMITS block ("Limit enforcer").
type LimitEnforcer struct {
	mu       sync.Mutex
	limits   map[string]int
	counters map[string]int
	clock    clock.Clock
	started  time.Time
}

// NewLimitEnforcer builds an enforcer from a spec's limits. Call Reset
// before each execution to zero counters and mark the start time.
func NewLimitEnforcer(limits map[string]int, cl clock.Clock) *LimitEnforcer {
	if cl == nil {
		cl = clock.Real{}
	}
	return &LimitEnforcer{limits: limits, counters: make(map[string]int), clock: cl}
}

// Reset zeroes all counters and records the execution start time.
func (e *LimitEnforcer) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters = make(map[string]int)
	e.started = e.clock.Now()
}

// CheckLimit increments the named counter by inc and returns LimitExceeded
// if it now exceeds the configured cap. Limits with no configured cap are
// unbounded.
func (e *LimitEnforcer) CheckLimit(name string, inc int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters[name] += inc
	cap, ok := e.limits[name]
	if !ok {
		return nil
	}
	if e.counters[name] > cap {
		return &LimitExceeded{Name: name, Count: e.counters[name], Cap: cap}
	}
	return nil
}

// CheckTimeout compares elapsed wall-clock time since Reset against the
// spec's timeout_seconds limit, if configured.
func (e *LimitEnforcer) CheckTimeout() error {
	e.mu.Lock()
	cap, ok := e.limits["timeout_seconds"]
	started := e.started
	e.mu.Unlock()
	if !ok {
		return nil
	}
	elapsed := e.clock.Now().Sub(started)
	if elapsed > time.Duration(cap)*time.Second {
		return &LimitExceeded{Name: "timeout_seconds", Count: int(elapsed.Seconds()), Cap: cap}
	}
	return nil
}

// Count returns the current value of a named counter.
func (e *LimitEnforcer) Count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters[name]
}
