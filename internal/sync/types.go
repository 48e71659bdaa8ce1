package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/syncclient"
)

// RemoteAPI is the slice of the remote authority the engine consumes. The
// production implementation is *syncclient.Client; tests substitute a fake.
type RemoteAPI interface {
	Pull(ctx context.Context, workspaceID, kind string, modifiedAfter *time.Time) ([]syncclient.RemoteRecord, error)
	Create(ctx context.Context, workspaceID, kind string, payload json.RawMessage) (*syncclient.CreateResponse, error)
	Update(ctx context.Context, workspaceID, kind, id string, payload json.RawMessage) error
	Delete(ctx context.Context, workspaceID, kind, id string) error
}

// Config holds the engine's retry and throttle knobs. The backoff values are
// deliberately conservative; callers may tighten them.
type Config struct {
	// BackoffBase is the delay after the first failed attempt.
	BackoffBase time.Duration
	// BackoffMax caps the exponential growth.
	BackoffMax time.Duration
	// MaxAttempts is how many times an action is submitted before it is
	// surfaced as failed instead of retried.
	MaxAttempts int
	// MinInterval suppresses back-to-back syncs for one workspace.
	MinInterval time.Duration
	// CallTimeout bounds each individual remote call.
	CallTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		BackoffBase: 2 * time.Second,
		BackoffMax:  2 * time.Minute,
		MaxAttempts: 5,
		MinInterval: 2 * time.Second,
		CallTimeout: 15 * time.Second,
	}
}

// Result summarises one sync pass for a workspace.
type Result struct {
	WorkspaceID    string `json:"workspace_id"`
	Pushed         int    `json:"pushed"`
	PushFailures   int    `json:"push_failures"`
	Pulled         int    `json:"pulled"`
	Conflicts      int    `json:"conflicts"`
	Reenqueued     int    `json:"reenqueued"`
	CursorAdvanced bool   `json:"cursor_advanced"`
	FullPull       bool   `json:"full_pull"`
	// Shared is true when this caller received another caller's in-flight
	// result instead of starting a new sync.
	Shared bool `json:"shared,omitempty"`
	// Throttled is true when the minimum-interval throttle returned the
	// previous result.
	Throttled bool `json:"throttled,omitempty"`
}

// Counts is the reactive queue state surfaced to status indicators.
type Counts struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
}
