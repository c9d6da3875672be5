package responses

import (
	"context"
	"fmt"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// Dome fan response modes.
const (
	FanOn = iota
	FanOff
)

// DomeFanParams selects a fan. An empty name selects the first fan.
type DomeFanParams struct {
	Fan string `param:"fan"`
}

// DomeFanResponse switches a dome fan.
type DomeFanResponse struct {
	checklist.Bound
	sup Supervisor
}

// Requires implements checklist.Binder.
func (h *DomeFanResponse) Requires() []string {
	return []string{capability.NameDomeFan}
}

// NewParams implements checklist.ResponseHandler.
func (h *DomeFanResponse) NewParams() any { return &DomeFanParams{} }

// Process implements checklist.ResponseHandler.
func (h *DomeFanResponse) Process(ctx context.Context, resp *checklist.Response, params any) error {
	p := params.(*DomeFanParams)
	fans, ok := h.Caps().Fans()
	if !ok {
		return missing(capability.NameDomeFan)
	}
	fan, ok := fans.Get(p.Fan)
	if !ok {
		return fmt.Errorf("%w: fan %q", ErrCapabilityMissing, p.Fan)
	}
	label := p.Fan
	if label == "" {
		label = fans.Names()[0]
	}

	on, err := fan.IsSwitchedOn(ctx)
	if err != nil {
		return fmt.Errorf("reading fan %s: %w", label, err)
	}

	switch resp.Mode {
	case FanOn:
		if on {
			h.sup.Broadcast(ctx, fmt.Sprintf("fan %s already on", label))
			return nil
		}
		if err := fan.SwitchOn(ctx); err != nil {
			return fmt.Errorf("switching on fan %s: %w", label, err)
		}
		h.sup.Broadcast(ctx, fmt.Sprintf("fan %s on", label))
	case FanOff:
		if !on {
			return nil
		}
		if err := fan.SwitchOff(ctx); err != nil {
			return fmt.Errorf("switching off fan %s: %w", label, err)
		}
		h.sup.Broadcast(ctx, fmt.Sprintf("fan %s off", label))
	default:
		return fmt.Errorf("%w: domefan %d", ErrUnknownMode, resp.Mode)
	}
	return nil
}
