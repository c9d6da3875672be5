package checks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
)

// InstrumentFlagParams configures an instrument flag check.
type InstrumentFlagParams struct {
	Instrument string        `param:"instrument"`
	Flag       string        `param:"flag"`
	Negate     bool          `param:"negate"`
	Duration   time.Duration `param:"duration"`
}

// Validate implements checklist.Validator.
func (p *InstrumentFlagParams) Validate() error {
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

// InstrumentFlagCheck triggers on an instrument's operating flag.
type InstrumentFlagCheck struct {
	checklist.Bound
	flags FlagReader
	now   func() time.Time
}

// NewInstrumentFlagCheck creates an instrument flag check.
func NewInstrumentFlagCheck(flags FlagReader, now func() time.Time) *InstrumentFlagCheck {
	if now == nil {
		now = time.Now
	}
	return &InstrumentFlagCheck{flags: flags, now: now}
}

// Requires implements checklist.Binder.
func (c *InstrumentFlagCheck) Requires() []string { return nil }

// NewParams implements checklist.CheckHandler.
func (c *InstrumentFlagCheck) NewParams() any { return &InstrumentFlagParams{} }

// Process implements checklist.CheckHandler.
func (c *InstrumentFlagCheck) Process(ctx context.Context, chk *checklist.Check, params any) (checklist.Result, error) {
	p := params.(*InstrumentFlagParams)

	current, err := c.flags.GetFlag(ctx, p.Instrument)
	if err != nil {
		return checklist.Result{}, fmt.Errorf("reading flag of %s: %w", p.Instrument, err)
	}

	cond := current == instrument.Flag(p.Flag)
	op := "=="
	if p.Negate {
		cond = !cond
		op = "!="
	}

	triggered, ref := sustain(chk, cond, p.Duration, c.now())
	return checklist.Result{
		Triggered: triggered,
		Status:    checklist.StatusOK,
		Message:   fmt.Sprintf("%s is %s (%s %s: %t)", p.Instrument, current, op, p.Flag, cond),
		Reference: ref,
	}, nil
}
