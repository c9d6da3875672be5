package instrument

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the store.
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

// ChangeFunc is called after a committed flag change.
type ChangeFunc func(instrument string, from, to Flag)

// Store is the lock-aware flag API.
//
// It keeps the current flag of every known instrument in memory (so
// SetFlag with persist=false has somewhere to go) and funnels every
// persisted change through Repository.Update, serialised by mu.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	mu       sync.Mutex
	flags    map[string]Flag
	onChange ChangeFunc
}

// NewStore creates a Store over repo.
//
// Parameters:
//   - repo: Persistence for flags and keys
//   - logger: Logger instance (may be nil)
func NewStore(repo Repository, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		flags:  make(map[string]Flag),
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnChange registers fn to be called after every committed flag change.
// fn runs outside the store lock.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Load warms the in-memory view from the database and makes sure every
// named instrument has a row, so a restart resumes exactly where the
// previous process stopped.
func (s *Store) Load(ctx context.Context, instruments ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, name := range instruments {
		if _, err := s.repo.Ensure(ctx, name, now); err != nil {
			return fmt.Errorf("ensuring instrument %s: %w", name, err)
		}
	}

	all, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading instruments: %w", err)
	}
	for _, st := range all {
		s.flags[st.Instrument] = st.Flag
	}
	return nil
}

// GetFlag returns the current flag, creating an UNSET row on first sight.
func (s *Store) GetFlag(ctx context.Context, instrument string) (Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.flags[instrument]; ok {
		return f, nil
	}
	st, err := s.repo.Ensure(ctx, instrument, s.now())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStatusUpdate, err)
	}
	s.flags[instrument] = st.Flag
	return st.Flag, nil
}

// Snapshot returns the in-memory flag of every known instrument.
func (s *Store) Snapshot() map[string]Flag {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Flag, len(s.flags))
	for k, v := range s.flags {
		out[k] = v
	}
	return out
}

// Names returns the known instruments in sorted order.
func (s *Store) Names() []string {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetFlag writes flag for instrument.
//
// With persist=false only the in-memory view changes. Either way a locked
// instrument refuses any non-LOCK flag while keys are active; use Unlock to
// release it.
//
// Returns:
//   - error: ErrStatusUpdate (possibly with ErrLocked) when nothing was committed,
//     ErrKeyRequired for flag LOCK (use Lock)
func (s *Store) SetFlag(ctx context.Context, instrument string, flag Flag, persist bool) error {
	if !flag.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFlag, flag)
	}
	if flag == FlagLock {
		return ErrKeyRequired
	}
	if !persist {
		return s.setCached(ctx, instrument, flag)
	}

	committed, err := s.update(ctx, instrument, flag, "", false)
	if err != nil {
		return err
	}
	if !committed {
		return fmt.Errorf("%w: %s -> %s: %w", ErrStatusUpdate, instrument, flag, ErrLocked)
	}
	return nil
}

// setCached changes only the in-memory flag. The persisted row is the
// authority on LOCK: while it holds active keys the change is refused.
func (s *Store) setCached(ctx context.Context, instrument string, flag Flag) error {
	if instrument == "" {
		return ErrInvalidName
	}

	s.mu.Lock()
	st, err := s.repo.Ensure(ctx, instrument, s.now())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrStatusUpdate, err)
	}
	if st.Flag == FlagLock && len(st.ActiveKeys()) > 0 {
		s.flags[instrument] = FlagLock
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s: %w", ErrStatusUpdate, instrument, flag, ErrLocked)
	}
	from, ok := s.flags[instrument]
	if !ok {
		from = st.Flag
	}
	s.flags[instrument] = flag
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil && from != flag {
		notify(instrument, from, flag)
	}
	return nil
}

// Lock moves instrument to LOCK held by key, or adds key as another holder.
func (s *Store) Lock(ctx context.Context, instrument, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if _, err := s.update(ctx, instrument, FlagLock, key, false); err != nil {
		return err
	}
	s.logger.Info("instrument locked", "instrument", instrument, "key", key)
	return nil
}

// Unlock releases key and moves the instrument to CLOSE once no key is active.
//
// Returns:
//   - bool: true when the instrument left LOCK; false when it was not locked
//     or other keys still hold it
//   - error: ErrStatusUpdate if the change could not be committed
func (s *Store) Unlock(ctx context.Context, instrument, key string) (bool, error) {
	committed, err := s.update(ctx, instrument, FlagClose, key, true)
	if errors.Is(err, errNotLocked) {
		s.logger.Debug("unlock ignored, instrument not locked", "instrument", instrument)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !committed {
		s.logger.Info("instrument still locked by other keys", "instrument", instrument, "released", key)
		return false, nil
	}
	s.logger.Info("instrument unlocked", "instrument", instrument, "key", key)
	return true, nil
}

// HasKey reports whether key is an active holder of instrument's lock.
func (s *Store) HasKey(ctx context.Context, instrument, key string) (bool, error) {
	flag, err := s.GetFlag(ctx, instrument)
	if err != nil {
		return false, err
	}
	if flag != FlagLock {
		return false, nil
	}
	st, err := s.repo.Get(ctx, instrument)
	if err != nil {
		return false, fmt.Errorf("reading keys for %s: %w", instrument, err)
	}
	for _, k := range st.ActiveKeys() {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}

// Keys returns every key ever recorded for instrument, active or not.
func (s *Store) Keys(ctx context.Context, instrument string) ([]Key, error) {
	st, err := s.repo.Get(ctx, instrument)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading keys for %s: %w", instrument, err)
	}
	return st.Keys, nil
}

// Instruments returns the persisted status of every instrument, with the
// in-memory flag applied for values set without persistence.
func (s *Store) Instruments(ctx context.Context) ([]Status, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing instruments: %w", err)
	}
	snap := s.Snapshot()
	for i := range all {
		if f, ok := snap[all[i].Instrument]; ok {
			all[i].Flag = f
		}
	}
	return all, nil
}

// errNotLocked aborts an unlock whose instrument is not in LOCK.
var errNotLocked = errors.New("instrument: not locked")

// update runs the lock-aware read-modify-write and reports whether the
// requested flag was committed. With onlyIfLocked the transaction is
// abandoned with errNotLocked unless the current flag is LOCK.
func (s *Store) update(ctx context.Context, instrument string, flag Flag, key string, onlyIfLocked bool) (bool, error) {
	if instrument == "" {
		return false, ErrInvalidName
	}

	s.mu.Lock()
	var (
		committed bool
		from      Flag
	)
	cached, hasCached := s.flags[instrument]
	st, err := s.repo.Update(ctx, instrument, s.now(), func(st *Status) error {
		// The cache carries flags set without persistence, but never
		// overrides a persisted LOCK.
		if hasCached && st.Flag != FlagLock {
			st.Flag = cached
		}
		from = st.Flag
		if onlyIfLocked && st.Flag != FlagLock {
			return errNotLocked
		}
		committed = st.apply(flag, key, s.now())
		return nil
	})
	if errors.Is(err, errNotLocked) {
		s.flags[instrument] = from
		s.mu.Unlock()
		return false, err
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("instrument status update failed", "instrument", instrument, "flag", flag, "error", err)
		return false, fmt.Errorf("%w: %s -> %s: %w", ErrStatusUpdate, instrument, flag, err)
	}
	s.flags[instrument] = st.Flag
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil && from != st.Flag {
		notify(instrument, from, st.Flag)
	}
	return committed, nil
}
