package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/checklist/checks"
	"github.com/wschoenell/chimera-manager/internal/checklist/responses"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/database"
	"github.com/wschoenell/chimera-manager/internal/instrument"
	"github.com/wschoenell/chimera-manager/migrations"
)

type fakeStation struct {
	mu     sync.Mutex
	values map[capability.Quantity]float64
}

func (s *fakeStation) Name() string { return "ws-test" }

func (s *fakeStation) Reading(_ context.Context, q capability.Quantity) (capability.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[q]
	if !ok {
		return capability.Reading{}, errors.New("no reading")
	}
	return capability.Reading{Value: v, Time: time.Now()}, nil
}

type fakeDome struct {
	mu         sync.Mutex
	slitOpen   bool
	closeCalls int
}

func (d *fakeDome) IsSlitOpen(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slitOpen, nil
}

func (d *fakeDome) OpenSlit(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slitOpen = true
	return nil
}

func (d *fakeDome) CloseSlit(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slitOpen = false
	d.closeCalls++
	return nil
}

func (d *fakeDome) IsFlapOpen(context.Context) (bool, error)     { return false, nil }
func (d *fakeDome) OpenFlap(context.Context) error               { return nil }
func (d *fakeDome) CloseFlap(context.Context) error              { return nil }
func (d *fakeDome) SlewToAzimuth(context.Context, float64) error { return nil }
func (d *fakeDome) Stand(context.Context) error                  { return nil }

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Broadcast(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *fakeNotifier) BroadcastPhoto(context.Context, string, string) {}

func (n *fakeNotifier) Ask(context.Context, string, time.Duration) (string, bool) {
	return "", false
}

func (n *fakeNotifier) contains(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

type fakePublisher struct {
	mu    sync.Mutex
	kinds []string
}

func (p *fakePublisher) Publish(kind string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
}

func (p *fakePublisher) count(kind string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu    sync.Mutex
	items []string
	flags []string
}

func (r *fakeRecorder) RecordItem(it *checklist.Item, status checklist.Status, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, it.Name+"="+status.String())
}

func (r *fakeRecorder) RecordFlag(name string, flag instrument.Flag, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = append(r.flags, name+"="+flag.String())
}

type fixture struct {
	sup      *Supervisor
	items    *checklist.SQLiteRepository
	dome     *fakeDome
	station  *fakeStation
	notifier *fakeNotifier
	pub      *fakePublisher
	rec      *fakeRecorder
	reg      *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	f := &fixture{
		items:    checklist.NewSQLiteRepository(db.DB),
		dome:     &fakeDome{},
		station:  &fakeStation{values: map[capability.Quantity]float64{capability.Humidity: 50}},
		notifier: &fakeNotifier{},
		pub:      &fakePublisher{},
		rec:      &fakeRecorder{},
		reg:      prometheus.NewRegistry(),
	}
	lookup := capability.NewStatic(map[string]any{
		capability.NameDome:            f.dome,
		capability.NameWeatherStations: capability.WeatherStations{f.station},
		capability.NameNotifier:        f.notifier,
	})

	f.sup = New(Config{
		Site:        "test",
		Instruments: []string{"site", "dome", "telescope", "scheduler"},
		Interval:    time.Hour,
		MaxDataAge:  10 * time.Minute,
	}, Deps{
		Store:     instrument.NewStore(instrument.NewSQLiteRepository(db.DB), nil),
		Items:     f.items,
		Lookup:    lookup,
		Metrics:   NewMetrics(f.reg),
		Recorder:  f.rec,
		Publisher: f.pub,
	})
	if err := f.sup.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return f
}

func (f *fixture) save(t *testing.T, it *checklist.Item) {
	t.Helper()
	if err := f.items.Save(context.Background(), it); err != nil {
		t.Fatalf("Save(%s) error = %v", it.Name, err)
	}
}

func (f *fixture) flag(t *testing.T, name string) instrument.Flag {
	t.Helper()
	got, err := f.sup.GetFlag(context.Background(), name)
	if err != nil {
		t.Fatalf("GetFlag(%s) error = %v", name, err)
	}
	return got
}

func (f *fixture) setFlags(t *testing.T, flags map[string]instrument.Flag) {
	t.Helper()
	for name, flag := range flags {
		if err := f.sup.SetFlag(context.Background(), name, flag); err != nil {
			t.Fatalf("SetFlag(%s, %s) error = %v", name, flag, err)
		}
	}
}

func humidityItem(active bool) *checklist.Item {
	return &checklist.Item{
		Name:   "HumidityHigh",
		Active: active,
		Checks: []checklist.Check{
			{Kind: checks.KindHumidity, Params: checklist.Params{"threshold": 90, "above": true}},
		},
		Responses: []checklist.Response{
			{Kind: responses.KindDome, Mode: responses.DomeCloseSlit},
			{Kind: responses.KindLockInstrument, Params: checklist.Params{"instrument": "dome", "key": "humidity"}},
		},
	}
}

func TestSupervisor_InitCreatesInstruments(t *testing.T) {
	f := newFixture(t)

	all, err := f.sup.Instruments(context.Background())
	if err != nil {
		t.Fatalf("Instruments() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Instruments() = %d rows, want 4", len(all))
	}
	for _, st := range all {
		if st.Flag != instrument.FlagUnset {
			t.Errorf("%s flag = %s, want UNSET", st.Instrument, st.Flag)
		}
	}
	if got := testutil.ToFloat64(f.sup.metrics.InstrumentFlag.WithLabelValues("dome", "UNSET")); got != 1 {
		t.Errorf("instrument_flag{dome,UNSET} = %v, want 1", got)
	}
}

func TestSupervisor_PassClosesOnHumidity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, humidityItem(true))
	f.dome.slitOpen = true

	f.sup.pass(ctx)
	if f.dome.closeCalls != 0 {
		t.Fatalf("dome closed at 50%% humidity")
	}

	f.station.mu.Lock()
	f.station.values[capability.Humidity] = 95
	f.station.mu.Unlock()
	f.sup.pass(ctx)

	if f.dome.closeCalls != 1 {
		t.Errorf("closeCalls = %d, want 1", f.dome.closeCalls)
	}
	if got := f.flag(t, "dome"); got != instrument.FlagLock {
		t.Errorf("dome flag = %s, want LOCK", got)
	}
	ok, err := f.sup.HasKey(ctx, "dome", "humidity")
	if err != nil || !ok {
		t.Errorf("HasKey(dome, humidity) = %v, %v; want true", ok, err)
	}

	it, err := f.items.GetByName(ctx, "HumidityHigh")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if it.Status != checklist.StatusOK {
		t.Errorf("item status = %s, want OK", it.Status)
	}
	if !f.notifier.contains("HumidityHigh: UNSET -> OK") {
		t.Errorf("status change not broadcast; got %v", f.notifier.msgs)
	}
	if !f.notifier.contains("dome slit closed") {
		t.Errorf("close not broadcast; got %v", f.notifier.msgs)
	}

	if got := testutil.ToFloat64(f.sup.metrics.Passes.WithLabelValues(PassCompleted)); got != 2 {
		t.Errorf("passes{completed} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(f.sup.metrics.Evaluations.WithLabelValues("OK")); got != 1 {
		t.Errorf("evaluations{OK} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.sup.metrics.InstrumentFlag.WithLabelValues("dome", "LOCK")); got != 1 {
		t.Errorf("instrument_flag{dome,LOCK} = %v, want 1", got)
	}
	if f.pub.count(EventItemStatus) != 1 {
		t.Errorf("item.status published %d times, want 1", f.pub.count(EventItemStatus))
	}
	if f.pub.count(EventInstrumentFlag) == 0 {
		t.Error("instrument.flag never published")
	}

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if len(f.rec.items) != 2 || f.rec.items[1] != "HumidityHigh=OK" {
		t.Errorf("recorded items = %v", f.rec.items)
	}
	if len(f.rec.flags) == 0 || f.rec.flags[len(f.rec.flags)-1] != "dome=LOCK" {
		t.Errorf("recorded flags = %v", f.rec.flags)
	}
}

func TestSupervisor_CanOpen(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]instrument.Flag
		inst  string
		want  bool
	}{
		{
			name: "all unset",
			inst: "",
			want: false,
		},
		{
			name: "all operable",
			flags: map[string]instrument.Flag{
				"site": instrument.FlagReady, "dome": instrument.FlagOperating,
				"telescope": instrument.FlagReady, "scheduler": instrument.FlagReady,
			},
			inst: "",
			want: true,
		},
		{
			name: "one closed blocks the observatory",
			flags: map[string]instrument.Flag{
				"site": instrument.FlagReady, "dome": instrument.FlagReady,
				"telescope": instrument.FlagClose, "scheduler": instrument.FlagReady,
			},
			inst: "",
			want: false,
		},
		{
			name:  "dome ready with site ready",
			flags: map[string]instrument.Flag{"site": instrument.FlagReady, "dome": instrument.FlagReady},
			inst:  "dome",
			want:  true,
		},
		{
			name:  "dome ready with site closed",
			flags: map[string]instrument.Flag{"site": instrument.FlagClose, "dome": instrument.FlagReady},
			inst:  "dome",
			want:  false,
		},
		{
			name:  "dome in error",
			flags: map[string]instrument.Flag{"site": instrument.FlagReady, "dome": instrument.FlagError},
			inst:  "dome",
			want:  false,
		},
		{
			name:  "site alone",
			flags: map[string]instrument.Flag{"site": instrument.FlagOperating},
			inst:  "site",
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.setFlags(t, tt.flags)
			got, err := f.sup.CanOpen(context.Background(), tt.inst)
			if err != nil {
				t.Fatalf("CanOpen(%q) error = %v", tt.inst, err)
			}
			if got != tt.want {
				t.Errorf("CanOpen(%q) = %v, want %v", tt.inst, got, tt.want)
			}
		})
	}
}

func TestSupervisor_CanOpenLockedDome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setFlags(t, map[string]instrument.Flag{"site": instrument.FlagReady})
	if err := f.sup.LockInstrument(ctx, "dome", "operator"); err != nil {
		t.Fatalf("LockInstrument() error = %v", err)
	}

	if ok, _ := f.sup.CanOpen(ctx, "dome"); ok {
		t.Error("locked dome may open")
	}
	if err := f.sup.SetFlag(ctx, "dome", instrument.FlagReady); !errors.Is(err, instrument.ErrLocked) {
		t.Errorf("SetFlag on locked dome error = %v, want ErrLocked", err)
	}

	ok, err := f.sup.UnlockInstrument(ctx, "dome", "operator")
	if err != nil || !ok {
		t.Fatalf("UnlockInstrument() = %v, %v", ok, err)
	}
	if got := f.flag(t, "dome"); got != instrument.FlagClose {
		t.Errorf("dome flag after unlock = %s, want CLOSE", got)
	}
}

func TestSupervisor_HandleEvent(t *testing.T) {
	tests := []struct {
		name  string
		start map[string]instrument.Flag
		ev    Event
		want  map[string]instrument.Flag
	}{
		{
			name: "slew begin",
			ev:   Event{Source: "telescope", Name: EventSlewBegin},
			want: map[string]instrument.Flag{"telescope": instrument.FlagOperating},
		},
		{
			name:  "tracking stopped",
			start: map[string]instrument.Flag{"telescope": instrument.FlagOperating},
			ev:    Event{Source: "telescope", Name: EventTrackingStopped, Message: "limit reached"},
			want:  map[string]instrument.Flag{"telescope": instrument.FlagReady},
		},
		{
			name: "park complete closes telescope and dome",
			ev:   Event{Source: "telescope", Name: EventParkComplete},
			want: map[string]instrument.Flag{"telescope": instrument.FlagClose, "dome": instrument.FlagClose},
		},
		{
			name: "unpark complete readies telescope and dome",
			ev:   Event{Source: "telescope", Name: EventUnparkComplete},
			want: map[string]instrument.Flag{"telescope": instrument.FlagReady, "dome": instrument.FlagReady},
		},
		{
			name: "program begin",
			ev:   Event{Source: "scheduler", Name: EventProgramBegin},
			want: map[string]instrument.Flag{"scheduler": instrument.FlagOperating},
		},
		{
			name:  "program aborted",
			start: map[string]instrument.Flag{"scheduler": instrument.FlagOperating},
			ev:    Event{Source: "scheduler", Name: EventProgramComplete, Status: "aborted"},
			want:  map[string]instrument.Flag{"scheduler": instrument.FlagReady},
		},
		{
			name:  "program ok leaves flag",
			start: map[string]instrument.Flag{"scheduler": instrument.FlagOperating},
			ev:    Event{Source: "scheduler", Name: EventProgramComplete, Status: ProgramOK},
			want:  map[string]instrument.Flag{"scheduler": instrument.FlagOperating},
		},
		{
			name: "scheduler busy",
			ev:   Event{Source: "scheduler", Name: EventStateChanged, State: "busy"},
			want: map[string]instrument.Flag{"scheduler": instrument.FlagOperating},
		},
		{
			name:  "scheduler idle",
			start: map[string]instrument.Flag{"scheduler": instrument.FlagOperating},
			ev:    Event{Source: "scheduler", Name: EventStateChanged, State: "IDLE"},
			want:  map[string]instrument.Flag{"scheduler": instrument.FlagReady},
		},
		{
			name: "unknown source ignored",
			ev:   Event{Source: "camera", Name: "readout"},
			want: map[string]instrument.Flag{"telescope": instrument.FlagUnset},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.setFlags(t, tt.start)
			if err := f.sup.HandleEvent(context.Background(), tt.ev); err != nil {
				t.Fatalf("HandleEvent() error = %v", err)
			}
			for name, want := range tt.want {
				if got := f.flag(t, name); got != want {
					t.Errorf("%s flag = %s, want %s", name, got, want)
				}
			}
		})
	}
}

func TestSupervisor_HandleEventLockedInstrument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.sup.LockInstrument(ctx, "dome", "maintenance"); err != nil {
		t.Fatalf("LockInstrument() error = %v", err)
	}

	if err := f.sup.HandleEvent(ctx, Event{Source: "telescope", Name: EventUnparkComplete}); err != nil {
		t.Fatalf("HandleEvent() error = %v, want lock refusal ignored", err)
	}
	if got := f.flag(t, "dome"); got != instrument.FlagLock {
		t.Errorf("dome flag = %s, want LOCK", got)
	}
	if got := f.flag(t, "telescope"); got != instrument.FlagReady {
		t.Errorf("telescope flag = %s, want READY", got)
	}
}

func TestSupervisor_ProgramErrorRunsRecoveryItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, &checklist.Item{
		Name:   schedulerErrorItem,
		Active: false,
		Responses: []checklist.Response{
			{Kind: responses.KindLockInstrument, Params: checklist.Params{"instrument": "telescope", "key": "scheduler"}},
		},
	})

	err := f.sup.HandleEvent(ctx, Event{
		Source: "scheduler", Name: EventProgramComplete, Status: ProgramError,
		Program: "survey", Message: "camera timeout",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if got := f.flag(t, "scheduler"); got != instrument.FlagError {
		t.Errorf("scheduler flag = %s, want ERROR", got)
	}
	if got := f.flag(t, "telescope"); got != instrument.FlagLock {
		t.Errorf("telescope flag = %s, want LOCK from recovery item", got)
	}
	if !f.notifier.contains("survey failed: camera timeout") {
		t.Errorf("failure not broadcast; got %v", f.notifier.msgs)
	}
}

func TestSupervisor_ProgramErrorWithoutRecoveryItem(t *testing.T) {
	f := newFixture(t)

	err := f.sup.HandleEvent(context.Background(), Event{Source: "scheduler", Name: EventProgramComplete, Status: ProgramError})
	if !errors.Is(err, checklist.ErrItemNotFound) {
		t.Errorf("HandleEvent() error = %v, want ErrItemNotFound", err)
	}
	if got := f.flag(t, "scheduler"); got != instrument.FlagError {
		t.Errorf("scheduler flag = %s, want ERROR", got)
	}
}

func TestSupervisor_HandleCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, humidityItem(true))
	f.save(t, &checklist.Item{
		Name: "LockTelescope",
		Responses: []checklist.Response{
			{Kind: responses.KindLockInstrument, Params: checklist.Params{"instrument": "telescope", "key": "op"}},
		},
	})

	t.Run("help", func(t *testing.T) {
		reply, err := f.sup.HandleCommand(ctx, "/help")
		if err != nil || !strings.Contains(reply, "/run <item>") {
			t.Errorf("HandleCommand(/help) = %q, %v", reply, err)
		}
	})

	t.Run("list", func(t *testing.T) {
		reply, err := f.sup.HandleCommand(ctx, "/list")
		if err != nil {
			t.Fatalf("HandleCommand(/list) error = %v", err)
		}
		if !strings.Contains(reply, "HumidityHigh [active]") || !strings.Contains(reply, "LockTelescope [inactive]") {
			t.Errorf("/list reply = %q", reply)
		}
	})

	t.Run("run inactive item", func(t *testing.T) {
		reply, err := f.sup.HandleCommand(ctx, "/run LockTelescope")
		if err != nil {
			t.Fatalf("HandleCommand(/run) error = %v", err)
		}
		if reply != "LockTelescope done" {
			t.Errorf("reply = %q", reply)
		}
		if got := f.flag(t, "telescope"); got != instrument.FlagLock {
			t.Errorf("telescope flag = %s, want LOCK", got)
		}
	})

	t.Run("run active item refused", func(t *testing.T) {
		_, err := f.sup.HandleCommand(ctx, "/run HumidityHigh")
		if !errors.Is(err, ErrItemActive) {
			t.Errorf("error = %v, want ErrItemActive", err)
		}
	})

	t.Run("run unknown item", func(t *testing.T) {
		_, err := f.sup.HandleCommand(ctx, "/run Nope")
		if !errors.Is(err, checklist.ErrItemNotFound) {
			t.Errorf("error = %v, want ErrItemNotFound", err)
		}
	})

	t.Run("info", func(t *testing.T) {
		reply, err := f.sup.HandleCommand(ctx, "/info")
		if err != nil {
			t.Fatalf("HandleCommand(/info) error = %v", err)
		}
		if !strings.Contains(reply, "machine: OFF") || !strings.Contains(reply, "telescope: LOCK (keys: op)") {
			t.Errorf("/info reply = %q", reply)
		}
	})

	t.Run("lock and unlock", func(t *testing.T) {
		if _, err := f.sup.HandleCommand(ctx, "/lock dome op2"); err != nil {
			t.Fatalf("/lock error = %v", err)
		}
		reply, err := f.sup.HandleCommand(ctx, "/unlock dome op2")
		if err != nil || reply != "dome unlocked" {
			t.Errorf("/unlock = %q, %v", reply, err)
		}
	})

	t.Run("usage errors", func(t *testing.T) {
		for _, line := range []string{"/run", "/lock dome", "/unlock"} {
			if _, err := f.sup.HandleCommand(ctx, line); !errors.Is(err, ErrUsage) {
				t.Errorf("HandleCommand(%q) error = %v, want ErrUsage", line, err)
			}
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := f.sup.HandleCommand(ctx, "/dance"); !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("error = %v, want ErrUnknownCommand", err)
		}
		if _, err := f.sup.HandleCommand(ctx, "   "); !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("empty line error = %v, want ErrUnknownCommand", err)
		}
	})

	if !f.notifier.contains("LockTelescope done") {
		t.Errorf("command reply not broadcast; got %v", f.notifier.msgs)
	}
}

func TestSupervisor_ActivateDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, humidityItem(false))

	if err := f.sup.Activate(ctx, "HumidityHigh"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	inactive, err := f.sup.InactiveItems(ctx)
	if err != nil || len(inactive) != 0 {
		t.Fatalf("InactiveItems() = %v, %v; want none", inactive, err)
	}
	if err := f.sup.Deactivate(ctx, "HumidityHigh"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	inactive, _ = f.sup.InactiveItems(ctx)
	if len(inactive) != 1 {
		t.Errorf("InactiveItems() = %d, want 1", len(inactive))
	}
	if err := f.sup.Activate(ctx, "Nope"); !errors.Is(err, checklist.ErrItemNotFound) {
		t.Errorf("Activate(unknown) error = %v, want ErrItemNotFound", err)
	}
}

func TestSupervisor_RunActionBroadcastsFailure(t *testing.T) {
	f := newFixture(t)

	err := f.sup.RunAction(context.Background(), "Missing")
	if err == nil {
		t.Fatal("RunAction() expected error")
	}
	if !f.notifier.contains("running Missing") {
		t.Errorf("failure not broadcast; got %v", f.notifier.msgs)
	}
}

func TestSupervisor_RunLoop(t *testing.T) {
	f := newFixture(t)
	f.save(t, humidityItem(true))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sup.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(f.sup.metrics.Passes.WithLabelValues(PassCompleted)) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("no pass completed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if f.pub.count(EventMachineState) == 0 {
		t.Error("machine state changes not published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := f.sup.State(); got != StateShutdown {
		t.Errorf("State() = %s, want SHUTDOWN", got)
	}
	for _, want := range []string{"supervisor OFF -> IDLE", "supervisor IDLE -> START", "-> SHUTDOWN"} {
		if !f.notifier.contains(want) {
			t.Errorf("transition %q not sent to notifier; got %v", want, f.notifier.msgs)
		}
	}
}

func TestSupervisor_FlagChangesReachNotifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sup.SetFlag(ctx, "dome", instrument.FlagReady); err != nil {
		t.Fatalf("SetFlag() error = %v", err)
	}
	if err := f.sup.LockInstrument(ctx, "dome", "rain"); err != nil {
		t.Fatalf("LockInstrument() error = %v", err)
	}
	for _, want := range []string{"dome: UNSET -> READY", "dome: READY -> LOCK"} {
		if !f.notifier.contains(want) {
			t.Errorf("flag change %q not sent to notifier; got %v", want, f.notifier.msgs)
		}
	}
}
