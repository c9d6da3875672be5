package responses

import (
	"context"
	"fmt"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
	"github.com/wschoenell/chimera-manager/internal/process"
)

// Response kinds.
const (
	KindDome               = "dome"
	KindTelescope          = "telescope"
	KindDomeFan            = "domefan"
	KindLockInstrument     = "lock_instrument"
	KindUnlockInstrument   = "unlock_instrument"
	KindSetInstrumentFlag  = "set_instrument_flag"
	KindExecuteScript      = "execute_script"
	KindSendMessage        = "send_message"
	KindSendPhoto          = "send_photo"
	KindQuestion           = "question"
	KindStartScheduler     = "start_scheduler"
	KindStopAll            = "stop_all"
	KindConfigureScheduler = "configure_scheduler"
	KindActivate           = "activate"
	KindDeactivate         = "deactivate"
)

// Instruments whose flags the responses move.
const (
	InstrumentDome      = capability.NameDome
	InstrumentTelescope = capability.NameTelescope
	InstrumentScheduler = capability.NameScheduler
)

// Supervisor is the part of the supervisor the responses drive.
type Supervisor interface {
	GetFlag(ctx context.Context, instrument string) (instrument.Flag, error)
	SetFlag(ctx context.Context, instrument string, flag instrument.Flag) error
	LockInstrument(ctx context.Context, instrument, key string) error
	UnlockInstrument(ctx context.Context, instrument, key string) (bool, error)
	CanOpen(ctx context.Context, instrument string) (bool, error)
	Activate(ctx context.Context, item string) error
	Deactivate(ctx context.Context, item string) error
	// Broadcast reports msg to the operators and the log.
	Broadcast(ctx context.Context, msg string)
}

// ScriptRunner runs operator scripts.
type ScriptRunner interface {
	Run(ctx context.Context, script string, args []string, timeout time.Duration) (process.Result, error)
}

// Logger defines the logging interface used by the handlers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures the response handlers.
type Options struct {
	// Scripts runs execute_script responses. Without it they fail.
	Scripts ScriptRunner
	// AskTimeout is the question wait when the response sets none.
	AskTimeout time.Duration
	Logger     Logger
}

// DefaultAskTimeout applies when neither the response nor Options set one.
const DefaultAskTimeout = 60 * time.Second

func (o Options) withDefaults() Options {
	if o.AskTimeout <= 0 {
		o.AskTimeout = DefaultAskTimeout
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// RegisterAll registers every response kind on r, driving sup.
func RegisterAll(r *checklist.Registry, sup Supervisor, opts Options) {
	opts = opts.withDefaults()
	d := discipline{sup: sup, logger: opts.Logger}

	r.RegisterResponse(KindDome, &DomeResponse{d: d})
	r.RegisterResponse(KindTelescope, &TelescopeResponse{d: d})
	r.RegisterResponse(KindDomeFan, &DomeFanResponse{sup: sup})
	r.RegisterResponse(KindLockInstrument, &LockResponse{sup: sup})
	r.RegisterResponse(KindUnlockInstrument, &UnlockResponse{sup: sup, logger: opts.Logger})
	r.RegisterResponse(KindSetInstrumentFlag, &SetFlagResponse{sup: sup})
	r.RegisterResponse(KindExecuteScript, &ScriptResponse{sup: sup, runner: opts.Scripts})
	r.RegisterResponse(KindSendMessage, &MessageResponse{})
	r.RegisterResponse(KindSendPhoto, &PhotoResponse{})
	r.RegisterResponse(KindQuestion, &QuestionResponse{sup: sup, defaultWait: opts.AskTimeout})
	r.RegisterResponse(KindStartScheduler, &StartSchedulerResponse{d: d})
	r.RegisterResponse(KindStopAll, &StopAllResponse{sup: sup})
	r.RegisterResponse(KindConfigureScheduler, &ConfigureSchedulerResponse{d: d})
	r.RegisterResponse(KindActivate, &ItemResponse{sup: sup, activate: true})
	r.RegisterResponse(KindDeactivate, &ItemResponse{sup: sup})
}

// discipline carries the open/close rules shared by dome, telescope and
// scheduler responses.
type discipline struct {
	sup    Supervisor
	logger Logger
}

// open runs the open sequence for instrument. what names the moving part
// in messages; isOpen and doOpen query and move it.
func (d discipline) open(ctx context.Context, inst, what string,
	isOpen func(context.Context) (bool, error), doOpen func(context.Context) error) error {
	allowed, err := d.sup.CanOpen(ctx, inst)
	if err != nil {
		return fmt.Errorf("checking whether %s may open: %w", inst, err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrOpenNotAllowed, what)
	}

	if err := d.sup.SetFlag(ctx, inst, instrument.FlagOperating); err != nil {
		return d.fail(ctx, inst, fmt.Errorf("setting %s OPERATING: %w", inst, err))
	}

	open, err := isOpen(ctx)
	if err != nil {
		return d.fail(ctx, inst, fmt.Errorf("reading %s: %w", what, err))
	}
	if open {
		d.logger.Debug("already open", "part", what)
		return nil
	}
	if err := doOpen(ctx); err != nil {
		return d.fail(ctx, inst, fmt.Errorf("opening %s: %w", what, err))
	}
	d.sup.Broadcast(ctx, fmt.Sprintf("%s open", what))
	return nil
}

// close runs the close sequence for instrument. A failed flag write is
// broadcast; only the physical close decides the returned error.
func (d discipline) close(ctx context.Context, inst, what string,
	isOpen func(context.Context) (bool, error), doClose func(context.Context) error) error {
	d.release(ctx, inst)

	open, err := isOpen(ctx)
	if err != nil {
		return fmt.Errorf("reading %s: %w", what, err)
	}
	if !open {
		d.logger.Debug("already closed", "part", what)
		return nil
	}
	if err := doClose(ctx); err != nil {
		d.sup.Broadcast(ctx, fmt.Sprintf("failed to close %s: %v", what, err))
		return fmt.Errorf("closing %s: %w", what, err)
	}
	d.sup.Broadcast(ctx, fmt.Sprintf("%s closed", what))
	return nil
}

// release moves an OPERATING flag back to READY.
func (d discipline) release(ctx context.Context, inst string) {
	flag, err := d.sup.GetFlag(ctx, inst)
	if err != nil {
		d.sup.Broadcast(ctx, fmt.Sprintf("could not read %s flag: %v", inst, err))
		return
	}
	if flag != instrument.FlagOperating {
		return
	}
	if err := d.sup.SetFlag(ctx, inst, instrument.FlagReady); err != nil {
		d.sup.Broadcast(ctx, fmt.Sprintf("could not set %s READY: %v", inst, err))
	}
}

// fail leaves inst at ERROR (best effort), broadcasts and returns err.
func (d discipline) fail(ctx context.Context, inst string, err error) error {
	if ferr := d.sup.SetFlag(ctx, inst, instrument.FlagError); ferr != nil {
		d.logger.Error("could not set error flag", "instrument", inst, "error", ferr)
	}
	d.sup.Broadcast(ctx, fmt.Sprintf("%s: %v", inst, err))
	return err
}

func missing(name string) error {
	return fmt.Errorf("%w: %s", ErrCapabilityMissing, name)
}
