package responses

import (
	"context"
	"errors"
	"fmt"

	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
)

// LockParams names an instrument and the key that holds or releases it.
type LockParams struct {
	Instrument string `param:"instrument"`
	Key        string `param:"key"`
}

// Validate implements checklist.Validator.
func (p *LockParams) Validate() error {
	if p.Instrument == "" {
		return errors.New("instrument is required")
	}
	if p.Key == "" {
		return errors.New("key is required")
	}
	return nil
}

// LockResponse locks an instrument with a key.
type LockResponse struct {
	checklist.Bound
	sup Supervisor
}

// Requires implements checklist.Binder.
func (h *LockResponse) Requires() []string { return nil }

// NewParams implements checklist.ResponseHandler.
func (h *LockResponse) NewParams() any { return &LockParams{} }

// Process implements checklist.ResponseHandler.
func (h *LockResponse) Process(ctx context.Context, _ *checklist.Response, params any) error {
	p := params.(*LockParams)
	h.sup.Broadcast(ctx, fmt.Sprintf("locking %s with key %s", p.Instrument, p.Key))
	if err := h.sup.LockInstrument(ctx, p.Instrument, p.Key); err != nil {
		return fmt.Errorf("locking %s: %w", p.Instrument, err)
	}
	return nil
}

// UnlockResponse releases one key of an instrument. The instrument stays
// locked while other keys are active, which is not an error.
type UnlockResponse struct {
	checklist.Bound
	sup    Supervisor
	logger Logger
}

// Requires implements checklist.Binder.
func (h *UnlockResponse) Requires() []string { return nil }

// NewParams implements checklist.ResponseHandler.
func (h *UnlockResponse) NewParams() any { return &LockParams{} }

// Process implements checklist.ResponseHandler.
func (h *UnlockResponse) Process(ctx context.Context, _ *checklist.Response, params any) error {
	p := params.(*LockParams)
	unlocked, err := h.sup.UnlockInstrument(ctx, p.Instrument, p.Key)
	if err != nil {
		return fmt.Errorf("unlocking %s: %w", p.Instrument, err)
	}
	if !unlocked {
		h.logger.Info("instrument still locked", "instrument", p.Instrument, "key", p.Key)
		return nil
	}
	h.sup.Broadcast(ctx, fmt.Sprintf("%s unlocked by key %s", p.Instrument, p.Key))
	return nil
}

// SetFlagParams configures a direct flag write.
type SetFlagParams struct {
	Instrument string `param:"instrument"`
	Flag       string `param:"flag"`
}

// Validate implements checklist.Validator.
func (p *SetFlagParams) Validate() error {
	if p.Instrument == "" {
		return errors.New("instrument is required")
	}
	f, err := instrument.ParseFlag(p.Flag)
	if err != nil {
		return err
	}
	p.Flag = f.String()
	return nil
}

// SetFlagResponse writes an instrument flag without consulting CanOpen.
// The lock rules of the store still apply.
type SetFlagResponse struct {
	checklist.Bound
	sup Supervisor
}

// Requires implements checklist.Binder.
func (h *SetFlagResponse) Requires() []string { return nil }

// NewParams implements checklist.ResponseHandler.
func (h *SetFlagResponse) NewParams() any { return &SetFlagParams{} }

// Process implements checklist.ResponseHandler.
func (h *SetFlagResponse) Process(ctx context.Context, _ *checklist.Response, params any) error {
	p := params.(*SetFlagParams)
	if err := h.sup.SetFlag(ctx, p.Instrument, instrument.Flag(p.Flag)); err != nil {
		return fmt.Errorf("setting %s to %s: %w", p.Instrument, p.Flag, err)
	}
	return nil
}

// ItemParams names another monitored item.
type ItemParams struct {
	Item string `param:"item"`
}

// Validate implements checklist.Validator.
func (p *ItemParams) Validate() error {
	if p.Item == "" {
		return errors.New("item is required")
	}
	return nil
}

// ItemResponse activates or deactivates another item by name.
type ItemResponse struct {
	checklist.Bound
	sup      Supervisor
	activate bool
}

// Requires implements checklist.Binder.
func (h *ItemResponse) Requires() []string { return nil }

// NewParams implements checklist.ResponseHandler.
func (h *ItemResponse) NewParams() any { return &ItemParams{} }

// Process implements checklist.ResponseHandler.
func (h *ItemResponse) Process(ctx context.Context, _ *checklist.Response, params any) error {
	p := params.(*ItemParams)
	if h.activate {
		if err := h.sup.Activate(ctx, p.Item); err != nil {
			return fmt.Errorf("activating %s: %w", p.Item, err)
		}
		return nil
	}
	if err := h.sup.Deactivate(ctx, p.Item); err != nil {
		return fmt.Errorf("deactivating %s: %w", p.Item, err)
	}
	return nil
}
