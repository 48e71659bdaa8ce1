package sync

import (
	"sync"
	"time"
)

// Coordinator collapses concurrent sync requests for the same workspace into
// a single in-flight operation and throttles back-to-back runs. It replaces
// hidden module-level dedup flags with explicit injected state: construct
// one and share it by reference.
type Coordinator struct {
	mu          sync.Mutex
	minInterval time.Duration
	inflight    map[string]*flight
	lastDone    map[string]time.Time
	lastResult  map[string]*Result
	lastErr     map[string]error
}

type flight struct {
	done   chan struct{}
	result *Result
	err    error
}

// NewCoordinator creates a coordinator with the given throttle interval.
func NewCoordinator(minInterval time.Duration) *Coordinator {
	return &Coordinator{
		minInterval: minInterval,
		inflight:    make(map[string]*flight),
		lastDone:    make(map[string]time.Time),
		lastResult:  make(map[string]*Result),
		lastErr:     make(map[string]error),
	}
}

// Do runs fn for the workspace unless one is already in flight, in which
// case the caller blocks and receives the in-flight call's result. A call
// landing within the throttle window receives the previous result instead
// of triggering a new sync.
func (c *Coordinator) Do(workspaceID string, fn func() (*Result, error)) (*Result, error) {
	c.mu.Lock()

	if f, ok := c.inflight[workspaceID]; ok {
		c.mu.Unlock()
		<-f.done
		if f.result == nil {
			return nil, f.err
		}
		shared := *f.result
		shared.Shared = true
		return &shared, f.err
	}

	if c.minInterval > 0 && time.Since(c.lastDone[workspaceID]) < c.minInterval {
		result, err := c.lastResult[workspaceID], c.lastErr[workspaceID]
		c.mu.Unlock()
		if result == nil {
			return nil, err
		}
		throttled := *result
		throttled.Throttled = true
		return &throttled, err
	}

	f := &flight{done: make(chan struct{})}
	c.inflight[workspaceID] = f
	c.mu.Unlock()

	f.result, f.err = fn()

	c.mu.Lock()
	delete(c.inflight, workspaceID)
	c.lastDone[workspaceID] = time.Now()
	c.lastResult[workspaceID] = f.result
	c.lastErr[workspaceID] = f.err
	c.mu.Unlock()

	close(f.done)
	return f.result, f.err
}
