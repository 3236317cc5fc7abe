// Package budget implements the per-session/per-task token budget from spec
// §4.4, grounded on the teacher's internal/usage.Tracker (same
// map-of-additive-records shape, generalised to gate requests rather than
// only record history).
package budget

import (
	"fmt"
	"sync"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

// DefaultMaxTokensPerSession is the default ceiling a session may accumulate
// before completions are refused (spec §4.4).
const DefaultMaxTokensPerSession = 100000

// ErrBudgetExceeded is returned by Check when a session has no headroom
// left. The caller must fail the request before contacting any provider.
type ErrBudgetExceeded struct {
	SessionID string
	Used      int
	Limit     int
}

func (e *ErrBudgetExceeded) Error() string {
	return fmt.Sprintf("session token budget exceeded: session=%s used=%d limit=%d", e.SessionID, e.Used, e.Limit)
}

// Ledger tracks cumulative TokenUsage per session and per task. Safe for
// concurrent callers; session ledger updates are monotonic but not
// required to be totally ordered across different sessions (spec §5).
type Ledger struct {
	mu       sync.Mutex
	bySession map[string]gwtypes.TokenUsage
	byTask    map[string]gwtypes.TokenUsage
}

func NewLedger() *Ledger {
	return &Ledger{
		bySession: make(map[string]gwtypes.TokenUsage),
		byTask:    make(map[string]gwtypes.TokenUsage),
	}
}

// Check enforces the pre-flight budget rule: cumulative.total_tokens <
// max_tokens_per_session, where maxTokensPerSession is the request's
// override if positive, else DefaultMaxTokensPerSession. No provider call
// must happen until Check succeeds.
func (l *Ledger) Check(sessionID string, maxTokensPerSession int) error {
	if sessionID == "" {
		return nil
	}
	limit := maxTokensPerSession
	if limit <= 0 {
		limit = DefaultMaxTokensPerSession
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	used := l.bySession[sessionID].TotalTokens
	if used >= limit {
		return &ErrBudgetExceeded{SessionID: sessionID, Used: used, Limit: limit}
	}
	return nil
}

// Record credits usage to the session and task ledgers after a successful
// completion. Never call this before the provider call has succeeded.
func (l *Ledger) Record(sessionID, taskID string, usage gwtypes.TokenUsage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sessionID != "" {
		l.bySession[sessionID] = l.bySession[sessionID].Add(usage)
	}
	if taskID != "" {
		l.byTask[taskID] = l.byTask[taskID].Add(usage)
	}
}

// SessionUsage returns a snapshot of a session's cumulative usage.
func (l *Ledger) SessionUsage(sessionID string) gwtypes.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bySession[sessionID]
}

// TaskUsage returns a snapshot of a task's cumulative usage.
func (l *Ledger) TaskUsage(taskID string) gwtypes.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byTask[taskID]
}
