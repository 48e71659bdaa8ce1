// Package reset is the teardown and verification control plane. Every
// persistence surface the agent owns sits behind a Layer; a Plane walks the
// layers in a fixed order, bounds each step with its own timeout, and
// aggregates failures into a partial-success result instead of aborting.
// The whole plane is gated on the runtime environment so a production
// device can never wipe itself by accident.
package reset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// EnvVar names the environment variable the gate inspects.
const EnvVar = "TBD_ENV"

// DefaultStepTimeout bounds a single teardown step.
const DefaultStepTimeout = 10 * time.Second

// ErrNotPermitted is returned when the environment gate rejects a
// control-plane operation.
var ErrNotPermitted = errors.New("reset not permitted in this environment")

// Layer is one persistence surface the control plane can tear down.
// Implementations must be safe to call in any state: clearing an already
// empty layer succeeds.
type Layer interface {
	// Name identifies the layer in results and logs.
	Name() string
	// Clear removes everything the application owns in this layer.
	Clear(ctx context.Context) error
	// ClearWorkspace removes only data belonging to one workspace.
	// Layers with no workspace-scoped data treat this as a no-op.
	ClearWorkspace(ctx context.Context, workspaceID string) error
	// Remaining counts application-owned residue still present, for
	// post-teardown verification.
	Remaining(ctx context.Context) (int64, error)
}

// Gate decides whether control-plane operations may run at all.
type Gate struct {
	// Env is the runtime environment, normally read from TBD_ENV.
	Env string
	// OperatorOverride force-enables the plane outside development
	// environments. It must be set deliberately per invocation.
	OperatorOverride bool
}

// GateFromEnv builds a gate from the process environment.
func GateFromEnv(override bool) Gate {
	return Gate{Env: os.Getenv(EnvVar), OperatorOverride: override}
}

// Check returns ErrNotPermitted unless the environment is development/local
// or the operator override is set.
func (g Gate) Check() error {
	if g.OperatorOverride {
		return nil
	}
	switch g.Env {
	case "development", "local":
		return nil
	}
	return fmt.Errorf("%w: environment %q (set %s=development or pass the override flag)",
		ErrNotPermitted, g.Env, EnvVar)
}

// StepResult records the outcome of one layer's teardown.
type StepResult struct {
	Layer    string        `json:"layer"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result aggregates a full control-plane run. A run with failures is a
// partial success: later layers still ran.
type Result struct {
	WorkspaceID string       `json:"workspace_id,omitempty"`
	Steps       []StepResult `json:"steps"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
}

// OK reports whether every step succeeded.
func (r *Result) OK() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return false
		}
	}
	return true
}

// Failures returns the steps that failed.
func (r *Result) Failures() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Residue is one layer's audit result: how much application-owned data
// remains, or the error that kept the layer from being counted.
type Residue struct {
	Layer     string `json:"layer"`
	Remaining int64  `json:"remaining"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// Verification is the post-teardown audit across every layer.
type Verification struct {
	Residues []Residue `json:"residues"`
}

// Clean reports whether no application-owned data remains anywhere. A layer
// whose audit failed is not clean: its state is unknown.
func (v *Verification) Clean() bool {
	for _, r := range v.Residues {
		if r.Err != nil || r.Remaining > 0 {
			return false
		}
	}
	return true
}

// Plane runs ordered teardown across its layers.
type Plane struct {
	gate        Gate
	layers      []Layer
	stepTimeout time.Duration
}

// NewPlane builds a control plane over the given layers. Order matters:
// callers list connection-holding layers before the layers that delete the
// files those connections point at.
func NewPlane(gate Gate, layers ...Layer) *Plane {
	return &Plane{gate: gate, layers: layers, stepTimeout: DefaultStepTimeout}
}

// SetStepTimeout overrides the per-step timeout.
func (p *Plane) SetStepTimeout(d time.Duration) {
	if d > 0 {
		p.stepTimeout = d
	}
}

// ResetAll tears down every layer in order and then verifies. Failures are
// collected, never fatal; every layer gets its chance to clear.
func (p *Plane) ResetAll(ctx context.Context) (*Result, error) {
	if err := p.gate.Check(); err != nil {
		return nil, err
	}
	return p.run(ctx, "", func(ctx context.Context, l Layer) error {
		return l.Clear(ctx)
	}), nil
}

// ResetWorkspace tears down one workspace's data in every layer, leaving
// other workspaces untouched.
func (p *Plane) ResetWorkspace(ctx context.Context, workspaceID string) (*Result, error) {
	if err := p.gate.Check(); err != nil {
		return nil, err
	}
	if workspaceID == "" {
		return nil, fmt.Errorf("reset workspace: empty workspace id")
	}
	return p.run(ctx, workspaceID, func(ctx context.Context, l Layer) error {
		return l.ClearWorkspace(ctx, workspaceID)
	}), nil
}

func (p *Plane) run(ctx context.Context, workspaceID string, step func(context.Context, Layer) error) *Result {
	result := &Result{WorkspaceID: workspaceID, StartedAt: time.Now().UTC()}

	for _, layer := range p.layers {
		stepCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
		start := time.Now()
		err := step(stepCtx, layer)
		cancel()

		sr := StepResult{Layer: layer.Name(), Duration: time.Since(start)}
		if err != nil {
			sr.Err = err
			sr.Error = err.Error()
			slog.Error("reset step failed", "layer", layer.Name(), "workspace", workspaceID, "err", err)
		} else {
			slog.Info("reset step done", "layer", layer.Name(), "workspace", workspaceID, "duration", sr.Duration)
		}
		result.Steps = append(result.Steps, sr)
	}

	result.FinishedAt = time.Now().UTC()
	return result
}

// Verify audits every layer for leftover application-owned data. It is
// gated like the destructive operations so it cannot run against production
// state either. A layer whose count fails is recorded on its residue entry
// and the remaining layers are still audited.
func (p *Plane) Verify(ctx context.Context) (*Verification, error) {
	if err := p.gate.Check(); err != nil {
		return nil, err
	}
	v := &Verification{}
	for _, layer := range p.layers {
		stepCtx, cancel := context.WithTimeout(ctx, p.stepTimeout)
		count, err := layer.Remaining(stepCtx)
		cancel()

		r := Residue{Layer: layer.Name(), Remaining: count}
		if err != nil {
			r.Err = err
			r.Error = err.Error()
			slog.Error("verify layer failed", "layer", layer.Name(), "err", err)
		}
		v.Residues = append(v.Residues, r)
	}
	return v, nil
}
