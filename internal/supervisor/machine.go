package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is a state of the supervisor machine.
type State int

// Machine states.
const (
	StateOff State = iota
	StateIdle
	StateStart
	StateBusy
	StateStop
	StateShutdown
)

var stateNames = [...]string{"OFF", "IDLE", "START", "BUSY", "STOP", "SHUTDOWN"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// PassFunc runs one evaluation pass. It should poll Machine.Aborted.
type PassFunc func(ctx context.Context)

// PassGuard grants the right to run one pass. ok is false when another
// supervisor sharing the observatory holds it. The pass runs under held,
// which the guard cancels if the grant is lost before release.
type PassGuard interface {
	Acquire(ctx context.Context) (held context.Context, release func(context.Context) error, ok bool, err error)
}

// Machine is the supervisor state machine.
//
// A single goroutine (Run) reacts to state changes signalled through a
// condition variable. START launches one worker goroutine for a pass and
// moves to BUSY; the worker moves back to IDLE when the pass ends. STOP
// and SHUTDOWN raise the abort flag, which the running pass polls.
//
//	OFF --Activate--> IDLE --Wakeup--> START --> BUSY --pass done--> IDLE
//	any --Request(STOP)--> STOP --> OFF
//	any --Request(SHUTDOWN)--> SHUTDOWN (goroutine exits)
//
// Thread Safety: all methods are safe for concurrent use.
type Machine struct {
	pass   PassFunc
	logger Logger

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	guard    PassGuard
	onChange func(from, to State)
	running  bool
	// active counts pass workers still running, including aborted ones.
	active int

	abort   atomic.Bool
	workers sync.WaitGroup
	done    chan struct{}
}

// NewMachine creates a machine in OFF that runs pass on every START.
func NewMachine(pass PassFunc, logger Logger) *Machine {
	if logger == nil {
		logger = noopLogger{}
	}
	m := &Machine{
		pass:   pass,
		logger: logger,
		state:  StateOff,
		done:   make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// SetGuard installs a pass guard. Nil runs every pass unguarded.
func (m *Machine) SetGuard(g PassGuard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guard = g
}

// OnStateChange registers fn to be called on every transition. fn runs
// with the machine lock held and must not call back into the machine.
func (m *Machine) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Aborted reports whether the running pass should stop.
func (m *Machine) Aborted() bool {
	return m.abort.Load()
}

// Done is closed when the machine goroutine has exited and every pass
// worker has returned.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Activate moves OFF to IDLE. It is a no-op in any other state.
func (m *Machine) Activate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateOff {
		m.setLocked(StateIdle)
	}
}

// Wakeup moves IDLE to START. It is a no-op in any other state, so wake-ups
// arriving while a pass runs are coalesced.
func (m *Machine) Wakeup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		m.setLocked(StateStart)
	}
}

// Request asks for START, STOP or SHUTDOWN.
//
// START is accepted from OFF and IDLE and ignored while a pass is pending
// or running. STOP is ignored when already OFF. Nothing is accepted after
// SHUTDOWN.
func (m *Machine) Request(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateShutdown {
		return fmt.Errorf("%w: machine is shut down", ErrInvalidTransition)
	}

	switch target {
	case StateStart:
		if m.state == StateOff || m.state == StateIdle {
			m.setLocked(StateStart)
		}
	case StateStop:
		if m.state != StateOff {
			m.setLocked(StateStop)
		}
	case StateShutdown:
		m.setLocked(StateShutdown)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, target)
	}
	return nil
}

// Run drives the machine until SHUTDOWN. Pass workers inherit ctx. Run
// returns after the last worker has finished.
func (m *Machine) Run(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("machine already running")
		return
	}
	m.running = true

	m.logger.Info("supervisor machine started", "state", m.state.String())
	for m.state != StateShutdown {
		switch m.state {
		case StateStart:
			if m.active > 0 {
				// An aborted pass is still unwinding; never run two at once.
				m.cond.Wait()
				continue
			}
			m.abort.Store(false)
			m.setLocked(StateBusy)
			m.active++
			m.workers.Add(1)
			go m.work(ctx)
		case StateStop:
			m.abort.Store(true)
			m.setLocked(StateOff)
		default:
			m.cond.Wait()
		}
	}
	m.abort.Store(true)
	m.mu.Unlock()

	m.workers.Wait()
	m.logger.Info("supervisor machine stopped")
	close(m.done)
}

// work runs one guarded pass and returns the machine to IDLE.
func (m *Machine) work(ctx context.Context) {
	defer m.workers.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("pass panicked", "panic", r)
		}
		m.mu.Lock()
		m.active--
		if m.state == StateBusy {
			m.setLocked(StateIdle)
		}
		m.cond.Broadcast()
		m.mu.Unlock()
	}()

	m.mu.Lock()
	guard := m.guard
	m.mu.Unlock()

	passCtx := ctx
	if guard != nil {
		held, release, ok, err := guard.Acquire(ctx)
		if err != nil {
			m.logger.Error("pass guard unavailable, skipping pass", "error", err)
			return
		}
		if !ok {
			m.logger.Info("another supervisor holds the pass, skipping")
			return
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("releasing pass guard", "error", err)
			}
		}()
		passCtx = held
	}

	m.pass(passCtx)
	if ctx.Err() == nil && passCtx.Err() != nil {
		m.logger.Warn("pass guard lost during pass", "cause", context.Cause(passCtx))
	}
}

// setLocked changes state and wakes the machine goroutine. mu must be held.
func (m *Machine) setLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.logger.Debug("machine state changed", "from", from.String(), "to", to.String())
	if m.onChange != nil {
		m.onChange(from, to)
	}
	m.cond.Broadcast()
}
