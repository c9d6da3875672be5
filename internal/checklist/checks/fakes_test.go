package checks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
)

var testNow = time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)

type fakeStation struct {
	name     string
	readings map[capability.Quantity]capability.Reading
	err      error
}

func (s *fakeStation) Name() string { return s.name }

func (s *fakeStation) Reading(_ context.Context, q capability.Quantity) (capability.Reading, error) {
	if s.err != nil {
		return capability.Reading{}, s.err
	}
	r, ok := s.readings[q]
	if !ok {
		return capability.Reading{}, capability.ErrNoReading
	}
	return r, nil
}

func station(name string, q capability.Quantity, value float64, age time.Duration) *fakeStation {
	return &fakeStation{
		name:     name,
		readings: map[capability.Quantity]capability.Reading{q: {Value: value, Time: testNow.Add(-age)}},
	}
}

type fakeSite struct {
	now      time.Time
	altitude func(t time.Time) float64
}

func (s *fakeSite) Now() time.Time { return s.now }
func (s *fakeSite) SunPosition(t time.Time) capability.AltAz {
	return capability.AltAz{Alt: s.altitude(t)}
}
func (s *fakeSite) MoonPosition(time.Time) capability.AltAz { return capability.AltAz{} }
func (s *fakeSite) LST(time.Time) float64                   { return 0 }
func (s *fakeSite) Sunrise(time.Time) (time.Time, error)    { return time.Time{}, nil }
func (s *fakeSite) Sunset(time.Time) (time.Time, error)     { return time.Time{}, nil }
func (s *fakeSite) Twilight(time.Time, float64, bool) (time.Time, error) {
	return time.Time{}, nil
}

type fakeDome struct {
	slitOpen, flapOpen bool
	err                error
}

func (d *fakeDome) IsSlitOpen(context.Context) (bool, error)     { return d.slitOpen, d.err }
func (d *fakeDome) OpenSlit(context.Context) error               { return nil }
func (d *fakeDome) CloseSlit(context.Context) error              { return nil }
func (d *fakeDome) IsFlapOpen(context.Context) (bool, error)     { return d.flapOpen, d.err }
func (d *fakeDome) OpenFlap(context.Context) error               { return nil }
func (d *fakeDome) CloseFlap(context.Context) error              { return nil }
func (d *fakeDome) SlewToAzimuth(context.Context, float64) error { return nil }
func (d *fakeDome) Stand(context.Context) error                  { return nil }

type fakeTelescope struct {
	parked, tracking, coverOpen bool
}

func (t *fakeTelescope) IsParked(context.Context) (bool, error)    { return t.parked, nil }
func (t *fakeTelescope) Park(context.Context) error                { return nil }
func (t *fakeTelescope) Unpark(context.Context) error              { return nil }
func (t *fakeTelescope) IsTracking(context.Context) (bool, error)  { return t.tracking, nil }
func (t *fakeTelescope) StopTracking(context.Context) error        { return nil }
func (t *fakeTelescope) IsCoverOpen(context.Context) (bool, error) { return t.coverOpen, nil }
func (t *fakeTelescope) OpenCover(context.Context) error           { return nil }
func (t *fakeTelescope) CloseCover(context.Context) error          { return nil }

type fakeFlags map[string]instrument.Flag

func (f fakeFlags) GetFlag(_ context.Context, name string) (instrument.Flag, error) {
	flag, ok := f[name]
	if !ok {
		return "", errors.New("no such instrument")
	}
	return flag, nil
}

func bind(t *testing.T, b checklist.Binder, values map[string]any) {
	t.Helper()
	set, errs := capability.NewSet(values)
	if len(errs) > 0 {
		t.Fatalf("NewSet: %v", errs)
	}
	b.Bind(set)
}

// process decodes params the way the evaluator does and runs the handler.
func process(t *testing.T, h checklist.CheckHandler, chk *checklist.Check) checklist.Result {
	t.Helper()
	params := h.NewParams()
	if err := chk.Params.Decode(params); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	res, err := h.Process(context.Background(), chk, params)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return res
}

// applyRef mimics the evaluator's handling of reference actions.
func applyRef(chk *checklist.Check, res checklist.Result, now time.Time) {
	switch res.Reference {
	case checklist.ReferenceMark:
		if chk.ReferenceTime == nil {
			t := now
			chk.ReferenceTime = &t
		}
	case checklist.ReferenceClear:
		chk.ReferenceTime = nil
	}
}
