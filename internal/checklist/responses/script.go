package responses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// ScriptParams configures execute_script. A zero Timeout uses the runner default.
type ScriptParams struct {
	Script  string        `param:"script"`
	Args    []string      `param:"args"`
	Timeout time.Duration `param:"timeout"`
}

// Validate implements checklist.Validator.
func (p *ScriptParams) Validate() error {
	if p.Script == "" {
		return errors.New("script is required")
	}
	if p.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// ScriptResponse runs an operator script and waits for it.
type ScriptResponse struct {
	checklist.Bound
	sup    Supervisor
	runner ScriptRunner
}

// Requires implements checklist.Binder.
func (h *ScriptResponse) Requires() []string { return nil }

// NewParams implements checklist.ResponseHandler.
func (h *ScriptResponse) NewParams() any { return &ScriptParams{} }

// SelfTimed implements checklist.SelfTimed; the runner enforces the timeout.
func (h *ScriptResponse) SelfTimed() bool { return true }

// Process implements checklist.ResponseHandler.
func (h *ScriptResponse) Process(ctx context.Context, _ *checklist.Response, params any) error {
	p := params.(*ScriptParams)
	if h.runner == nil {
		return fmt.Errorf("%w: script runner", ErrCapabilityMissing)
	}

	res, err := h.runner.Run(ctx, p.Script, p.Args, p.Timeout)
	if err != nil {
		h.sup.Broadcast(ctx, fmt.Sprintf("script %s failed: %v", p.Script, err))
		return fmt.Errorf("executing %s: %w", p.Script, err)
	}
	h.sup.Broadcast(ctx, fmt.Sprintf("script %s finished in %s", p.Script, res.Duration.Round(time.Second)))
	return nil
}
