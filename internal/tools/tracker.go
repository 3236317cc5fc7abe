package tools

import (
	"sync"
	"time"
)

// maxTrackedSessions bounds the execution tracker to the last 100 sessions
// (spec §3 ToolExecutionTracker, §5 bounded memory), evicting the
// least-recently-seen session when a new one would exceed it.
const maxTrackedSessions = 100

// executionTracker records, per tool, the last-execution timestamp per
// session (or thread-id fallback), enforcing the "minimum interval =
// 60/rate_limit seconds" rule from spec §4.7 step 3.
type executionTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func newExecutionTracker() *executionTracker {
	return &executionTracker{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// allow reports whether key (session_id, or a fallback thread identifier)
// may execute now given minInterval, and records the attempt if so.
func (t *executionTracker) allow(key string, minInterval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[key]; ok {
		if now.Sub(last) < minInterval {
			return false
		}
	}
	if len(t.last) >= maxTrackedSessions {
		t.evictOldest()
	}
	t.last[key] = now
	return true
}

func (t *executionTracker) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, v := range t.last {
		if first || v.Before(oldestTime) {
			oldestKey, oldestTime, first = k, v, false
		}
	}
	if !first {
		delete(t.last, oldestKey)
	}
}
