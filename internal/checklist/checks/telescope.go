package checks

import (
	"context"
	"fmt"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// Telescope check modes.
const (
	TelescopeParked = iota
	TelescopeUnparked
	TelescopeTracking
	TelescopeNotTracking
	TelescopeCoverOpen
	TelescopeCoverClosed
)

// TelescopeCheck triggers on mount and cover state.
type TelescopeCheck struct {
	checklist.Bound
}

// NewTelescopeCheck creates a telescope state check.
func NewTelescopeCheck() *TelescopeCheck {
	return &TelescopeCheck{}
}

// Requires implements checklist.Binder.
func (c *TelescopeCheck) Requires() []string {
	return []string{capability.NameTelescope}
}

// NewParams implements checklist.CheckHandler.
func (c *TelescopeCheck) NewParams() any { return &struct{}{} }

// Process implements checklist.CheckHandler.
func (c *TelescopeCheck) Process(ctx context.Context, chk *checklist.Check, _ any) (checklist.Result, error) {
	tel, ok := c.Caps().Telescope()
	if !ok {
		return checklist.NotTriggered("telescope unavailable"), nil
	}

	var (
		state bool
		err   error
		what  string
	)
	switch chk.Mode {
	case TelescopeParked, TelescopeUnparked:
		what = "parked"
		state, err = tel.IsParked(ctx)
	case TelescopeTracking, TelescopeNotTracking:
		what = "tracking"
		state, err = tel.IsTracking(ctx)
	case TelescopeCoverOpen, TelescopeCoverClosed:
		what = "cover open"
		state, err = tel.IsCoverOpen(ctx)
	default:
		return checklist.Result{}, fmt.Errorf("unknown telescope check mode %d", chk.Mode)
	}
	if err != nil {
		return checklist.Result{}, fmt.Errorf("reading telescope %s: %w", what, err)
	}

	// Even modes test for the state, odd modes for its absence.
	want := chk.Mode%2 == 0
	return checklist.Result{
		Triggered: state == want,
		Status:    checklist.StatusOK,
		Message:   fmt.Sprintf("telescope %s: %t", what, state),
	}, nil
}
