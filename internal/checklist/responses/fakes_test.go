package responses

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
	"github.com/wschoenell/chimera-manager/internal/process"
)

type fakeSupervisor struct {
	mu         sync.Mutex
	flags      map[string]instrument.Flag
	canOpen    bool
	setFlagErr map[instrument.Flag]error
	locks      map[string][]string
	unlockOK   bool
	activated  map[string]bool
	broadcasts []string
	setCalls   []string
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		flags:      make(map[string]instrument.Flag),
		canOpen:    true,
		setFlagErr: make(map[instrument.Flag]error),
		locks:      make(map[string][]string),
		unlockOK:   true,
		activated:  make(map[string]bool),
	}
}

func (s *fakeSupervisor) GetFlag(_ context.Context, name string) (instrument.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flags[name]; ok {
		return f, nil
	}
	return instrument.FlagUnset, nil
}

func (s *fakeSupervisor) SetFlag(_ context.Context, name string, flag instrument.Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls = append(s.setCalls, name+"="+flag.String())
	if err := s.setFlagErr[flag]; err != nil {
		return err
	}
	s.flags[name] = flag
	return nil
}

func (s *fakeSupervisor) LockInstrument(_ context.Context, name, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[name] = append(s.locks[name], key)
	s.flags[name] = instrument.FlagLock
	return nil
}

func (s *fakeSupervisor) UnlockInstrument(context.Context, string, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlockOK, nil
}

func (s *fakeSupervisor) CanOpen(context.Context, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canOpen, nil
}

func (s *fakeSupervisor) Activate(_ context.Context, item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated[item] = true
	return nil
}

func (s *fakeSupervisor) Deactivate(_ context.Context, item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated[item] = false
	return nil
}

func (s *fakeSupervisor) Broadcast(_ context.Context, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, msg)
}

func (s *fakeSupervisor) flag(name string) instrument.Flag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[name]
}

func (s *fakeSupervisor) broadcasted(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.broadcasts {
		if strings.Contains(b, substr) {
			return true
		}
	}
	return false
}

type fakeDome struct {
	slitOpen, flapOpen bool
	openErr, closeErr  error
	opens, closes      int
	azimuth            float64
}

func (d *fakeDome) IsSlitOpen(context.Context) (bool, error) { return d.slitOpen, nil }
func (d *fakeDome) OpenSlit(context.Context) error {
	d.opens++
	if d.openErr != nil {
		return d.openErr
	}
	d.slitOpen = true
	return nil
}
func (d *fakeDome) CloseSlit(context.Context) error {
	d.closes++
	if d.closeErr != nil {
		return d.closeErr
	}
	d.slitOpen = false
	return nil
}
func (d *fakeDome) IsFlapOpen(context.Context) (bool, error) { return d.flapOpen, nil }
func (d *fakeDome) OpenFlap(context.Context) error {
	d.opens++
	d.flapOpen = true
	return d.openErr
}
func (d *fakeDome) CloseFlap(context.Context) error {
	d.closes++
	d.flapOpen = false
	return d.closeErr
}
func (d *fakeDome) SlewToAzimuth(_ context.Context, az float64) error {
	d.azimuth = az
	return nil
}
func (d *fakeDome) Stand(context.Context) error { return nil }

type fakeTelescope struct {
	parked, tracking, coverOpen bool
	stopErr                     error
	parks, unparks, stops       int
}

func (t *fakeTelescope) IsParked(context.Context) (bool, error) { return t.parked, nil }
func (t *fakeTelescope) Park(context.Context) error {
	t.parks++
	t.parked = true
	return nil
}
func (t *fakeTelescope) Unpark(context.Context) error {
	t.unparks++
	t.parked = false
	return nil
}
func (t *fakeTelescope) IsTracking(context.Context) (bool, error) { return t.tracking, nil }
func (t *fakeTelescope) StopTracking(context.Context) error {
	t.stops++
	if t.stopErr != nil {
		return t.stopErr
	}
	t.tracking = false
	return nil
}
func (t *fakeTelescope) IsCoverOpen(context.Context) (bool, error) { return t.coverOpen, nil }
func (t *fakeTelescope) OpenCover(context.Context) error {
	t.coverOpen = true
	return nil
}
func (t *fakeTelescope) CloseCover(context.Context) error {
	t.coverOpen = false
	return nil
}

type fakeFan struct {
	on       bool
	switches int
}

func (f *fakeFan) IsSwitchedOn(context.Context) (bool, error) { return f.on, nil }
func (f *fakeFan) SwitchOn(context.Context) error {
	f.switches++
	f.on = true
	return nil
}
func (f *fakeFan) SwitchOff(context.Context) error {
	f.switches++
	f.on = false
	return nil
}

type fakeCamera struct {
	exposing bool
	aborts   int
}

func (c *fakeCamera) IsExposing(context.Context) (bool, error) { return c.exposing, nil }
func (c *fakeCamera) AbortExposure(context.Context) error {
	c.aborts++
	c.exposing = false
	return nil
}

type fakeScheduler struct {
	startErr     error
	configureErr error
	started      bool
	stopped      bool
	programs     []capability.Program
}

func (s *fakeScheduler) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}
func (s *fakeScheduler) Stop(context.Context) error {
	s.stopped = true
	return nil
}
func (s *fakeScheduler) Next(context.Context, time.Time, []capability.Candidate) (*capability.Candidate, error) {
	return nil, nil //nolint:nilnil // nothing to schedule
}
func (s *fakeScheduler) Observed(context.Context, time.Time, capability.Candidate) error { return nil }
func (s *fakeScheduler) Configure(_ context.Context, programs []capability.Program) error {
	if s.configureErr != nil {
		return s.configureErr
	}
	s.programs = programs
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	answer   string
	answered bool
	asked    []string
	waits    []time.Duration
	messages []string
	photos   []string
}

func (n *fakeNotifier) Broadcast(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *fakeNotifier) BroadcastPhoto(_ context.Context, path, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.photos = append(n.photos, path)
}

func (n *fakeNotifier) Ask(_ context.Context, q string, timeout time.Duration) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.asked = append(n.asked, q)
	n.waits = append(n.waits, timeout)
	return n.answer, n.answered
}

type fakeRunner struct {
	err     error
	scripts []string
	timeout time.Duration
}

func (r *fakeRunner) Run(_ context.Context, script string, _ []string, timeout time.Duration) (process.Result, error) {
	r.scripts = append(r.scripts, script)
	r.timeout = timeout
	return process.Result{Script: script, Duration: time.Second}, r.err
}

// setup registers every response against sup and binds values.
func setup(t *testing.T, sup Supervisor, opts Options, values map[string]any) *checklist.Registry {
	t.Helper()
	r := checklist.NewRegistry()
	RegisterAll(r, sup, opts)
	r.Bind(context.Background(), capability.NewStatic(values))
	return r
}

// run decodes and processes one response the way the evaluator does.
func run(t *testing.T, r *checklist.Registry, kind string, mode int, params checklist.Params) error {
	t.Helper()
	resp := &checklist.Response{Kind: kind, Mode: mode, Params: params}
	h, p, err := r.DecodeResponse(resp)
	if err != nil {
		t.Fatalf("DecodeResponse(%s): %v", kind, err)
	}
	return h.Process(context.Background(), resp, p)
}
