package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/instrument"
)

// Instrument event names.
const (
	EventSlewBegin       = "slew_begin"
	EventTrackingStopped = "tracking_stopped"
	EventParkComplete    = "park_complete"
	EventUnparkComplete  = "unpark_complete"
	EventProgramBegin    = "program_begin"
	EventProgramComplete = "program_complete"
	EventStateChanged    = "state_changed"
)

// Scheduler program outcomes carried by program_complete.
const (
	ProgramOK      = "OK"
	ProgramError   = "ERROR"
	ProgramAborted = "ABORTED"
)

// schedulerBusy is the scheduler state that maps to OPERATING.
const schedulerBusy = "BUSY"

// Event is a notification from an instrument.
type Event struct {
	// Source is the instrument that emitted the event (telescope, scheduler).
	Source string `json:"source"`
	Name   string `json:"event"`
	// Status is the program outcome of program_complete.
	Status string `json:"status,omitempty"`
	// State is the new scheduler state of state_changed.
	State   string `json:"state,omitempty"`
	Program string `json:"program,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleEvent applies the flag changes an instrument event implies.
// Unknown events are logged and ignored.
func (s *Supervisor) HandleEvent(ctx context.Context, ev Event) error {
	s.logger.Debug("instrument event", "source", ev.Source, "event", ev.Name, "status", ev.Status, "state", ev.State)

	switch ev.Source {
	case capability.NameTelescope:
		return s.telescopeEvent(ctx, ev)
	case capability.NameScheduler:
		return s.schedulerEvent(ctx, ev)
	default:
		s.logger.Debug("ignoring event from unsupervised source", "source", ev.Source)
		return nil
	}
}

func (s *Supervisor) telescopeEvent(ctx context.Context, ev Event) error {
	switch ev.Name {
	case EventSlewBegin:
		return s.setFlags(ctx, instrument.FlagOperating, capability.NameTelescope)
	case EventTrackingStopped:
		err := s.setFlags(ctx, instrument.FlagReady, capability.NameTelescope)
		msg := "telescope tracking stopped"
		if ev.Message != "" {
			msg += ": " + ev.Message
		}
		s.Broadcast(ctx, msg)
		return err
	case EventParkComplete:
		return s.setFlags(ctx, instrument.FlagClose, capability.NameTelescope, capability.NameDome)
	case EventUnparkComplete:
		return s.setFlags(ctx, instrument.FlagReady, capability.NameTelescope, capability.NameDome)
	default:
		s.logger.Debug("ignoring telescope event", "event", ev.Name)
		return nil
	}
}

func (s *Supervisor) schedulerEvent(ctx context.Context, ev Event) error {
	switch ev.Name {
	case EventProgramBegin:
		return s.setFlags(ctx, instrument.FlagOperating, capability.NameScheduler)
	case EventProgramComplete:
		switch strings.ToUpper(ev.Status) {
		case ProgramError:
			err := s.setFlags(ctx, instrument.FlagError, capability.NameScheduler)
			s.Broadcast(ctx, fmt.Sprintf("scheduler program %s failed: %s", ev.Program, ev.Message))
			if runErr := s.RunAction(ctx, schedulerErrorItem); runErr != nil {
				err = errors.Join(err, runErr)
			}
			return err
		case ProgramAborted:
			return s.setFlags(ctx, instrument.FlagReady, capability.NameScheduler)
		default:
			return nil
		}
	case EventStateChanged:
		flag := instrument.FlagReady
		if strings.EqualFold(ev.State, schedulerBusy) {
			flag = instrument.FlagOperating
		}
		return s.setFlags(ctx, flag, capability.NameScheduler)
	default:
		s.logger.Debug("ignoring scheduler event", "event", ev.Name)
		return nil
	}
}

// setFlags writes flag to every named instrument. Lock refusals are
// expected (an operator lock outranks events) and only logged.
func (s *Supervisor) setFlags(ctx context.Context, flag instrument.Flag, names ...string) error {
	var errs []error
	for _, name := range names {
		err := s.SetFlag(ctx, name, flag)
		if errors.Is(err, instrument.ErrLocked) {
			s.logger.Info("event flag change refused, instrument locked", "instrument", name, "flag", flag.String())
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
