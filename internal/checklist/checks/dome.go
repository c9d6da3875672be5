package checks

import (
	"context"
	"fmt"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// Dome check modes.
const (
	DomeSlitOpen = iota
	DomeSlitClosed
	DomeFlapOpen
	DomeFlapClosed
)

// DomeCheck triggers on the slit or flap state.
type DomeCheck struct {
	checklist.Bound
}

// NewDomeCheck creates a dome state check.
func NewDomeCheck() *DomeCheck {
	return &DomeCheck{}
}

// Requires implements checklist.Binder.
func (c *DomeCheck) Requires() []string {
	return []string{capability.NameDome}
}

// NewParams implements checklist.CheckHandler.
func (c *DomeCheck) NewParams() any { return &struct{}{} }

// Process implements checklist.CheckHandler.
func (c *DomeCheck) Process(ctx context.Context, chk *checklist.Check, _ any) (checklist.Result, error) {
	dome, ok := c.Caps().Dome()
	if !ok {
		return checklist.NotTriggered("dome unavailable"), nil
	}

	var (
		open bool
		err  error
		part string
	)
	switch chk.Mode {
	case DomeSlitOpen, DomeSlitClosed:
		part = "slit"
		open, err = dome.IsSlitOpen(ctx)
	case DomeFlapOpen, DomeFlapClosed:
		part = "flap"
		open, err = dome.IsFlapOpen(ctx)
	default:
		return checklist.Result{}, fmt.Errorf("unknown dome check mode %d", chk.Mode)
	}
	if err != nil {
		return checklist.Result{}, fmt.Errorf("reading dome %s: %w", part, err)
	}

	want := chk.Mode == DomeSlitOpen || chk.Mode == DomeFlapOpen
	state := "closed"
	if open {
		state = "open"
	}
	return checklist.Result{
		Triggered: open == want,
		Status:    checklist.StatusOK,
		Message:   fmt.Sprintf("dome %s is %s", part, state),
	}, nil
}
