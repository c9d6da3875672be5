package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wschoenell/chimera-manager/internal/checklist"
)

const commandHelp = `/list - list the items
/run <item> - run the responses of an inactive item
/info - show the machine state and instrument flags
/lock <instrument> <key> - lock an instrument
/unlock <instrument> <key> - release a key
/help - show this message`

// HandleCommand executes an operator command line and returns the reply.
// The reply is also broadcast.
func (s *Supervisor) HandleCommand(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty", ErrUnknownCommand)
	}
	s.logger.Info("operator command", "command", fields[0], "args", fields[1:])

	reply, err := s.command(ctx, strings.ToLower(fields[0]), fields[1:])
	if err != nil {
		reply = fmt.Sprintf("%s: %v", fields[0], err)
	}
	s.Broadcast(ctx, reply)
	return reply, err
}

func (s *Supervisor) command(ctx context.Context, cmd string, args []string) (string, error) {
	switch cmd {
	case "/help", "/start":
		return commandHelp, nil
	case "/list":
		return s.listCommand(ctx)
	case "/info":
		return s.infoCommand(ctx)
	case "/run":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: /run <item>", ErrUsage)
		}
		return s.runCommand(ctx, args[0])
	case "/lock":
		if len(args) != 2 {
			return "", fmt.Errorf("%w: /lock <instrument> <key>", ErrUsage)
		}
		if err := s.LockInstrument(ctx, args[0], args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s locked with key %s", args[0], args[1]), nil
	case "/unlock":
		if len(args) != 2 {
			return "", fmt.Errorf("%w: /unlock <instrument> <key>", ErrUsage)
		}
		ok, err := s.UnlockInstrument(ctx, args[0], args[1])
		if err != nil {
			return "", err
		}
		if !ok {
			return fmt.Sprintf("%s still locked", args[0]), nil
		}
		return fmt.Sprintf("%s unlocked", args[0]), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func (s *Supervisor) listCommand(ctx context.Context) (string, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "no items", nil
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		state := "active"
		if !it.Active {
			state = "inactive"
		}
		fmt.Fprintf(&b, "%s [%s] %s", it.Name, state, it.Status)
	}
	return b.String(), nil
}

func (s *Supervisor) infoCommand(ctx context.Context) (string, error) {
	all, err := s.Instruments(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "machine: %s", s.State())
	for _, st := range all {
		fmt.Fprintf(&b, "\n%s: %s", st.Instrument, st.Flag)
		if keys := st.ActiveKeys(); len(keys) > 0 {
			fmt.Fprintf(&b, " (keys: %s)", strings.Join(keys, ", "))
		}
	}
	return b.String(), nil
}

// runCommand runs an inactive item. Active items are refused.
func (s *Supervisor) runCommand(ctx context.Context, name string) (string, error) {
	if err := s.RunInactive(ctx, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s done", name), nil
}

// RunInactive runs the responses of an inactive item. Active items run on
// the regular passes and are refused with ErrItemActive.
func (s *Supervisor) RunInactive(ctx context.Context, name string) error {
	it, err := s.items.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, checklist.ErrItemNotFound) {
			return err
		}
		return fmt.Errorf("looking up %s: %w", name, err)
	}
	if it.Active {
		return fmt.Errorf("%w: %s", ErrItemActive, name)
	}
	return s.RunAction(ctx, name)
}
