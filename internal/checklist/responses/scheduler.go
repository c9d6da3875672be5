package responses

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
)

// StartSchedulerResponse marks the scheduler OPERATING and starts it.
type StartSchedulerResponse struct {
	checklist.Bound
	d discipline
}

// Requires implements checklist.Binder.
func (h *StartSchedulerResponse) Requires() []string {
	return []string{capability.NameScheduler}
}

// NewParams implements checklist.ResponseHandler.
func (h *StartSchedulerResponse) NewParams() any { return &struct{}{} }

// Process implements checklist.ResponseHandler.
func (h *StartSchedulerResponse) Process(ctx context.Context, _ *checklist.Response, _ any) error {
	sched, ok := h.Caps().Scheduler()
	if !ok {
		return missing(capability.NameScheduler)
	}
	if err := h.d.sup.SetFlag(ctx, InstrumentScheduler, instrument.FlagOperating); err != nil {
		return fmt.Errorf("setting scheduler OPERATING: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return h.d.fail(ctx, InstrumentScheduler, fmt.Errorf("starting scheduler: %w", err))
	}
	h.d.sup.Broadcast(ctx, "scheduler started")
	return nil
}

// StopAllResponse stops the scheduler, telescope tracking and any running
// exposure. Every step runs even when an earlier one fails.
type StopAllResponse struct {
	checklist.Bound
	sup Supervisor
}

// Requires implements checklist.Binder.
func (h *StopAllResponse) Requires() []string {
	return []string{capability.NameScheduler, capability.NameTelescope, capability.NameCamera}
}

// NewParams implements checklist.ResponseHandler.
func (h *StopAllResponse) NewParams() any { return &struct{}{} }

// Process implements checklist.ResponseHandler.
func (h *StopAllResponse) Process(ctx context.Context, _ *checklist.Response, _ any) error {
	var errs []error
	step := func(what string, err error) {
		if err == nil {
			return
		}
		h.sup.Broadcast(ctx, fmt.Sprintf("stop all: %s: %v", what, err))
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
	}

	step("scheduler flag", h.sup.SetFlag(ctx, InstrumentScheduler, instrument.FlagClose))
	if sched, ok := h.Caps().Scheduler(); ok {
		step("stopping scheduler", sched.Stop(ctx))
	} else {
		step("stopping scheduler", missing(capability.NameScheduler))
	}

	if tel, ok := h.Caps().Telescope(); ok {
		tracking, err := tel.IsTracking(ctx)
		step("reading tracking", err)
		if err == nil && tracking {
			step("stopping tracking", tel.StopTracking(ctx))
		}
	} else {
		step("stopping tracking", missing(capability.NameTelescope))
	}

	if cam, ok := h.Caps().Camera(); ok {
		exposing, err := cam.IsExposing(ctx)
		step("reading camera", err)
		if err == nil && exposing {
			step("aborting exposure", cam.AbortExposure(ctx))
		}
	} else {
		step("aborting exposure", missing(capability.NameCamera))
	}

	return errors.Join(errs...)
}

// ConfigureSchedulerParams names the programme file.
type ConfigureSchedulerParams struct {
	File string `param:"file"`
}

// Validate implements checklist.Validator.
func (p *ConfigureSchedulerParams) Validate() error {
	if p.File == "" {
		return errors.New("file is required")
	}
	return nil
}

// programFile is the YAML layout of a scheduler programme file.
type programFile struct {
	Programs []capability.Program `yaml:"programs"`
}

// LoadPrograms reads a YAML programme file.
func LoadPrograms(path string) ([]capability.Program, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provisioned path
	if err != nil {
		return nil, fmt.Errorf("reading programme file: %w", err)
	}
	var f programFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing programme file: %w", err)
	}
	if len(f.Programs) == 0 {
		return nil, fmt.Errorf("programme file %s defines no programs", path)
	}
	for i, p := range f.Programs {
		if p.Name == "" {
			return nil, fmt.Errorf("programme %d has no name", i)
		}
	}
	return f.Programs, nil
}

// ConfigureSchedulerResponse loads a programme file into the scheduler.
type ConfigureSchedulerResponse struct {
	checklist.Bound
	d discipline
}

// Requires implements checklist.Binder.
func (h *ConfigureSchedulerResponse) Requires() []string {
	return []string{capability.NameScheduler}
}

// NewParams implements checklist.ResponseHandler.
func (h *ConfigureSchedulerResponse) NewParams() any { return &ConfigureSchedulerParams{} }

// Process implements checklist.ResponseHandler.
func (h *ConfigureSchedulerResponse) Process(ctx context.Context, _ *checklist.Response, params any) error {
	p := params.(*ConfigureSchedulerParams)
	sched, ok := h.Caps().Scheduler()
	if !ok {
		return missing(capability.NameScheduler)
	}

	programs, err := LoadPrograms(p.File)
	if err != nil {
		return h.d.fail(ctx, InstrumentScheduler, err)
	}
	if err := sched.Configure(ctx, programs); err != nil {
		return h.d.fail(ctx, InstrumentScheduler, fmt.Errorf("configuring scheduler: %w", err))
	}
	if err := h.d.sup.SetFlag(ctx, InstrumentScheduler, instrument.FlagReady); err != nil {
		return fmt.Errorf("setting scheduler READY: %w", err)
	}
	h.d.sup.Broadcast(ctx, fmt.Sprintf("scheduler configured with %d programs from %s", len(programs), p.File))
	return nil
}
