package responses

import (
	"context"
	"fmt"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// Telescope response modes.
const (
	TelescopeUnpark = iota
	TelescopePark
	TelescopeOpenCover
	TelescopeCloseCover
)

// TelescopeResponse parks, unparks and moves the mirror cover.
type TelescopeResponse struct {
	checklist.Bound
	d discipline
}

// Requires implements checklist.Binder.
func (h *TelescopeResponse) Requires() []string {
	return []string{capability.NameTelescope}
}

// NewParams implements checklist.ResponseHandler.
func (h *TelescopeResponse) NewParams() any { return &struct{}{} }

// Process implements checklist.ResponseHandler.
func (h *TelescopeResponse) Process(ctx context.Context, resp *checklist.Response, _ any) error {
	tel, ok := h.Caps().Telescope()
	if !ok {
		return missing(capability.NameTelescope)
	}

	switch resp.Mode {
	case TelescopeUnpark:
		parked, err := tel.IsParked(ctx)
		if err != nil {
			return fmt.Errorf("reading park state: %w", err)
		}
		if !parked {
			return nil
		}
		if err := tel.Unpark(ctx); err != nil {
			h.d.sup.Broadcast(ctx, fmt.Sprintf("failed to unpark telescope: %v", err))
			return fmt.Errorf("unparking telescope: %w", err)
		}
		return nil
	case TelescopePark:
		parked, err := tel.IsParked(ctx)
		if err != nil {
			return fmt.Errorf("reading park state: %w", err)
		}
		if parked {
			return nil
		}
		if err := tel.Park(ctx); err != nil {
			h.d.sup.Broadcast(ctx, fmt.Sprintf("failed to park telescope: %v", err))
			return fmt.Errorf("parking telescope: %w", err)
		}
		h.d.sup.Broadcast(ctx, "telescope parked")
		return nil
	case TelescopeOpenCover:
		return h.d.open(ctx, InstrumentTelescope, "telescope cover", tel.IsCoverOpen, tel.OpenCover)
	case TelescopeCloseCover:
		return h.d.close(ctx, InstrumentTelescope, "telescope cover", tel.IsCoverOpen, tel.CloseCover)
	default:
		return fmt.Errorf("%w: telescope %d", ErrUnknownMode, resp.Mode)
	}
}
