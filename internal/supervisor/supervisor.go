package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/checklist/checks"
	"github.com/wschoenell/chimera-manager/internal/checklist/responses"
	"github.com/wschoenell/chimera-manager/internal/instrument"
)

// Logger defines the logging interface used by the supervisor.
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

// Recorder stores supervisor history, e.g. in a time series database.
type Recorder interface {
	RecordItem(it *checklist.Item, status checklist.Status, at time.Time)
	RecordFlag(instrument string, flag instrument.Flag, at time.Time)
}

// Publisher streams live events (WebSocket clients).
type Publisher interface {
	Publish(kind string, payload any)
}

// Event kinds handed to the Publisher.
const (
	EventMachineState   = "machine.state"
	EventItemStatus     = "item.status"
	EventInstrumentFlag = "instrument.flag"
	EventBroadcast      = "broadcast"
)

// siteInstrument must be operable for any single instrument to open.
const siteInstrument = capability.NameSite

// schedulerErrorItem runs when the scheduler reports a failed program.
const schedulerErrorItem = "SchedulerInError"

const (
	// transitionBacklog bounds machine transitions waiting for the notifier.
	transitionBacklog = 64
	// notifyTimeout bounds one notifier call made outside a caller's context.
	notifyTimeout = 10 * time.Second
)

// Config holds the supervisor settings.
type Config struct {
	// Site identifies the observatory; it namespaces the pass guard.
	Site string
	// Instruments get a flag row at Init and make up the CanOpen("") set.
	Instruments []string
	// Interval is the time between wake-ups.
	Interval time.Duration
	// HandlerTimeout bounds each check and response call. 0 disables it.
	HandlerTimeout time.Duration
	// MaxDataAge is the default weather freshness limit.
	MaxDataAge time.Duration
	// AskTimeout is the default operator question wait.
	AskTimeout time.Duration
}

// Deps are the collaborators of a supervisor. Store, Items and Lookup are
// required; the rest may be nil.
type Deps struct {
	Store     *instrument.Store
	Items     checklist.Repository
	Lookup    capability.Lookup
	Scripts   responses.ScriptRunner
	Guard     PassGuard
	Metrics   *Metrics
	Recorder  Recorder
	Publisher Publisher
	Logger    Logger
}

// Supervisor is the control surface of one observatory.
//
// Thread Safety: all methods are safe for concurrent use.
type Supervisor struct {
	cfg       Config
	store     *instrument.Store
	items     checklist.Repository
	lookup    capability.Lookup
	registry  *checklist.Registry
	evaluator *checklist.Evaluator
	machine   *Machine
	metrics   *Metrics
	recorder  Recorder
	publisher Publisher
	logger    Logger
	now       func() time.Time

	// transitions queues machine state changes for the notifier.
	transitions chan string
}

// New builds a supervisor with its own registry, evaluator and machine.
// Call Init before Run.
func New(cfg Config, deps Deps) *Supervisor {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Second
	}

	s := &Supervisor{
		cfg:       cfg,
		store:     deps.Store,
		items:     deps.Items,
		lookup:    deps.Lookup,
		metrics:   deps.Metrics,
		recorder:  deps.Recorder,
		publisher: deps.Publisher,
		logger:    logger,
		now:       time.Now,

		transitions: make(chan string, transitionBacklog),
	}

	s.registry = checklist.NewRegistry()
	s.registry.SetLogger(logger)
	checks.RegisterAll(s.registry, s, checks.Options{MaxAge: cfg.MaxDataAge})
	responses.RegisterAll(s.registry, s, responses.Options{
		Scripts:    deps.Scripts,
		AskTimeout: cfg.AskTimeout,
		Logger:     logger,
	})

	s.evaluator = checklist.NewEvaluator(deps.Items, s.registry, logger)
	s.evaluator.SetHandlerTimeout(cfg.HandlerTimeout)
	s.evaluator.SetObserver(&passObserver{s: s})

	s.machine = NewMachine(s.pass, logger)
	s.machine.SetGuard(deps.Guard)
	s.machine.OnStateChange(s.stateChanged)
	s.evaluator.SetAbort(s.machine.Aborted)

	s.store.OnChange(s.flagChanged)
	return s
}

// Registry returns the supervisor's handler registry.
func (s *Supervisor) Registry() *checklist.Registry {
	return s.registry
}

// Machine returns the supervisor's state machine.
func (s *Supervisor) Machine() *Machine {
	return s.machine
}

// Init loads the instrument flags, creating rows for every configured
// instrument, and binds the handlers to their capabilities.
func (s *Supervisor) Init(ctx context.Context) error {
	if err := s.store.Load(ctx, s.cfg.Instruments...); err != nil {
		return fmt.Errorf("loading instruments: %w", err)
	}
	for name, flag := range s.store.Snapshot() {
		s.metrics.setFlag(name, flag)
	}
	s.Rebind(ctx)
	return nil
}

// Rebind resolves every handler capability again, e.g. after a bridge
// reconnects. It returns the names that could not be resolved.
func (s *Supervisor) Rebind(ctx context.Context) []string {
	missing := s.registry.Bind(ctx, s.lookup)
	if len(missing) > 0 {
		s.logger.Warn("handlers bound without some capabilities", "missing", missing)
	}
	return missing
}

// Run drives the machine until ctx is done: it activates the machine,
// wakes it immediately and then every Interval, and shuts it down on exit.
// Machine transitions are relayed to the operators while it runs.
func (s *Supervisor) Run(ctx context.Context) {
	relayStop := make(chan struct{})
	relayDone := make(chan struct{})
	go s.relayTransitions(relayStop, relayDone)

	go s.machine.Run(ctx)
	s.machine.Activate()
	s.machine.Wakeup()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			<-s.machine.Done()
			close(relayStop)
			<-relayDone
			return
		case <-ticker.C:
			s.machine.Wakeup()
		}
	}
}

// Start moves the machine from OFF to IDLE so wake-ups run passes again.
func (s *Supervisor) Start() {
	s.machine.Activate()
}

// Stop aborts the running pass and parks the machine in OFF.
func (s *Supervisor) Stop() error {
	return s.machine.Request(StateStop)
}

// Wakeup requests a pass now if the machine is idle.
func (s *Supervisor) Wakeup() {
	s.machine.Wakeup()
}

// Shutdown aborts the running pass and ends the machine goroutine.
func (s *Supervisor) Shutdown() {
	if err := s.machine.Request(StateShutdown); err != nil {
		s.logger.Debug("shutdown requested twice", "error", err)
	}
}

// State returns the machine state.
func (s *Supervisor) State() State {
	return s.machine.State()
}

// pass is the machine's PassFunc.
func (s *Supervisor) pass(ctx context.Context) {
	sum, err := s.evaluator.Run(ctx)
	s.metrics.observePass(sum, err)
	switch {
	case errors.Is(err, checklist.ErrCheckAborted):
		s.logger.Info("pass aborted", "items", sum.Items)
	case err != nil:
		s.Broadcast(ctx, fmt.Sprintf("checklist pass failed: %v", err))
	default:
		s.logger.Debug("pass complete", "items", sum.Items, "dispatched", sum.Dispatched, "errors", sum.Errors)
	}
}

// RunAction runs the responses of the named item now, without its checks.
func (s *Supervisor) RunAction(ctx context.Context, name string) error {
	if err := s.evaluator.RunAction(ctx, name); err != nil {
		s.Broadcast(ctx, fmt.Sprintf("running %s: %v", name, err))
		return err
	}
	return nil
}

// Activate marks an item active.
func (s *Supervisor) Activate(ctx context.Context, name string) error {
	if err := s.items.SetActive(ctx, name, true); err != nil {
		return err
	}
	s.logger.Info("item activated", "item", name)
	return nil
}

// Deactivate marks an item inactive.
func (s *Supervisor) Deactivate(ctx context.Context, name string) error {
	if err := s.items.SetActive(ctx, name, false); err != nil {
		return err
	}
	s.logger.Info("item deactivated", "item", name)
	return nil
}

// Items returns every item in id order.
func (s *Supervisor) Items(ctx context.Context) ([]checklist.Item, error) {
	return s.items.List(ctx)
}

// InactiveItems returns the items that only run on request.
func (s *Supervisor) InactiveItems(ctx context.Context) ([]checklist.Item, error) {
	all, err := s.items.List(ctx)
	if err != nil {
		return nil, err
	}
	var inactive []checklist.Item
	for _, it := range all {
		if !it.Active {
			inactive = append(inactive, it)
		}
	}
	return inactive, nil
}

// GetFlag returns the flag of an instrument.
func (s *Supervisor) GetFlag(ctx context.Context, name string) (instrument.Flag, error) {
	return s.store.GetFlag(ctx, name)
}

// SetFlag persists a flag. Lock rules apply; a refused or failed write
// returns an error wrapping instrument.ErrStatusUpdate.
func (s *Supervisor) SetFlag(ctx context.Context, name string, flag instrument.Flag) error {
	return s.store.SetFlag(ctx, name, flag, true)
}

// LockInstrument locks an instrument with key.
func (s *Supervisor) LockInstrument(ctx context.Context, name, key string) error {
	return s.store.Lock(ctx, name, key)
}

// UnlockInstrument releases key. It reports false while other keys hold the lock.
func (s *Supervisor) UnlockInstrument(ctx context.Context, name, key string) (bool, error) {
	return s.store.Unlock(ctx, name, key)
}

// HasKey reports whether key currently holds the instrument.
func (s *Supervisor) HasKey(ctx context.Context, name, key string) (bool, error) {
	return s.store.HasKey(ctx, name, key)
}

// InstrumentKeys returns every key ever used on an instrument.
func (s *Supervisor) InstrumentKeys(ctx context.Context, name string) ([]instrument.Key, error) {
	return s.store.Keys(ctx, name)
}

// Instruments returns every instrument with its flag and keys.
func (s *Supervisor) Instruments(ctx context.Context) ([]instrument.Status, error) {
	return s.store.Instruments(ctx)
}

// CanOpen reports whether name may open.
//
// An empty name asks about the whole observatory: every known instrument
// must be READY or OPERATING, and an observatory with no instruments may
// not open. A named instrument must itself be operable, and so must the
// site.
func (s *Supervisor) CanOpen(ctx context.Context, name string) (bool, error) {
	if name == "" {
		names := s.store.Names()
		if len(names) == 0 {
			return false, nil
		}
		for _, n := range names {
			f, err := s.store.GetFlag(ctx, n)
			if err != nil {
				return false, err
			}
			if !f.Operable() {
				return false, nil
			}
		}
		return true, nil
	}

	f, err := s.store.GetFlag(ctx, name)
	if err != nil {
		return false, err
	}
	if !f.Operable() {
		return false, nil
	}
	if name == siteInstrument {
		return true, nil
	}
	site, err := s.store.GetFlag(ctx, siteInstrument)
	if err != nil {
		return false, err
	}
	return site.Operable(), nil
}

// Broadcast logs msg and sends it to the operators and live clients.
func (s *Supervisor) Broadcast(ctx context.Context, msg string) {
	s.logger.Info("broadcast", "message", msg)
	if s.publisher != nil {
		s.publisher.Publish(EventBroadcast, map[string]string{"message": msg})
	}
	s.notifyOperators(ctx, msg)
}

// notifyOperators sends msg through the notifier capability, if one is bound.
func (s *Supervisor) notifyOperators(ctx context.Context, msg string) {
	v, err := s.lookup.Lookup(ctx, capability.NameNotifier)
	if err != nil {
		return
	}
	if n, ok := v.(capability.Notifier); ok {
		n.Broadcast(ctx, msg)
	}
}

// notifyDetached is notifyOperators for callbacks that carry no context.
func (s *Supervisor) notifyDetached(msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	s.notifyOperators(ctx, msg)
}

// stateChanged runs under the machine lock, so the notifier message is
// queued for relayTransitions instead of sent here.
func (s *Supervisor) stateChanged(from, to State) {
	s.metrics.setState(to)
	if s.publisher != nil {
		s.publisher.Publish(EventMachineState, map[string]string{"from": from.String(), "to": to.String()})
	}
	msg := fmt.Sprintf("supervisor %s -> %s", from, to)
	select {
	case s.transitions <- msg:
	default:
		s.logger.Warn("transition backlog full, notification dropped", "from", from.String(), "to", to.String())
	}
}

// relayTransitions sends queued machine transitions to the operators in
// order. After stop it drains the queue and closes done.
func (s *Supervisor) relayTransitions(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case msg := <-s.transitions:
			s.notifyDetached(msg)
		case <-stop:
			for {
				select {
				case msg := <-s.transitions:
					s.notifyDetached(msg)
				default:
					return
				}
			}
		}
	}
}

func (s *Supervisor) flagChanged(name string, from, to instrument.Flag) {
	s.logger.Info("instrument flag changed", "instrument", name, "from", from.String(), "to", to.String())
	s.metrics.setFlag(name, to)
	if s.recorder != nil {
		s.recorder.RecordFlag(name, to, s.now())
	}
	if s.publisher != nil {
		s.publisher.Publish(EventInstrumentFlag, map[string]string{
			"instrument": name,
			"from":       from.String(),
			"to":         to.String(),
		})
	}
	s.notifyDetached(fmt.Sprintf("%s: %s -> %s", name, from, to))
}
