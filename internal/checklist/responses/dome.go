package responses

import (
	"context"
	"errors"
	"fmt"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// Dome response modes.
const (
	DomeOpenSlit = iota
	DomeCloseSlit
	DomeOpenFlap
	DomeCloseFlap
	DomeSlew
)

// DomeParams configures a dome response. Azimuth is used by DomeSlew only.
type DomeParams struct {
	Azimuth float64 `param:"azimuth"`
}

// Validate implements checklist.Validator.
func (p *DomeParams) Validate() error {
	if p.Azimuth < 0 || p.Azimuth >= 360 {
		return errors.New("azimuth must be in [0, 360)")
	}
	return nil
}

// DomeResponse opens, closes or slews the dome.
type DomeResponse struct {
	checklist.Bound
	d discipline
}

// Requires implements checklist.Binder.
func (h *DomeResponse) Requires() []string {
	return []string{capability.NameDome}
}

// NewParams implements checklist.ResponseHandler.
func (h *DomeResponse) NewParams() any { return &DomeParams{} }

// Process implements checklist.ResponseHandler.
func (h *DomeResponse) Process(ctx context.Context, resp *checklist.Response, params any) error {
	p := params.(*DomeParams)
	dome, ok := h.Caps().Dome()
	if !ok {
		return missing(capability.NameDome)
	}

	switch resp.Mode {
	case DomeOpenSlit:
		return h.d.open(ctx, InstrumentDome, "dome slit", dome.IsSlitOpen, dome.OpenSlit)
	case DomeCloseSlit:
		return h.d.close(ctx, InstrumentDome, "dome slit", dome.IsSlitOpen, dome.CloseSlit)
	case DomeOpenFlap:
		return h.d.open(ctx, InstrumentDome, "dome flap", dome.IsFlapOpen, dome.OpenFlap)
	case DomeCloseFlap:
		return h.d.close(ctx, InstrumentDome, "dome flap", dome.IsFlapOpen, dome.CloseFlap)
	case DomeSlew:
		if err := dome.SlewToAzimuth(ctx, p.Azimuth); err != nil {
			return fmt.Errorf("slewing dome to %.1f: %w", p.Azimuth, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: dome %d", ErrUnknownMode, resp.Mode)
	}
}
