package bridge

import (
	"context"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
)

func (b *Bridge) callBool(ctx context.Context, id, method string) (bool, error) {
	var v bool
	if err := b.Call(ctx, id, method, nil, &v); err != nil {
		return false, err
	}
	return v, nil
}

func (b *Bridge) call(ctx context.Context, id, method string) error {
	return b.Call(ctx, id, method, nil, nil)
}

// Dome implements capability.Dome over the bridge.
type Dome struct {
	b  *Bridge
	id string
}

func (d *Dome) IsSlitOpen(ctx context.Context) (bool, error) { return d.b.callBool(ctx, d.id, "is_slit_open") }
func (d *Dome) OpenSlit(ctx context.Context) error           { return d.b.call(ctx, d.id, "open_slit") }
func (d *Dome) CloseSlit(ctx context.Context) error          { return d.b.call(ctx, d.id, "close_slit") }
func (d *Dome) IsFlapOpen(ctx context.Context) (bool, error) { return d.b.callBool(ctx, d.id, "is_flap_open") }
func (d *Dome) OpenFlap(ctx context.Context) error           { return d.b.call(ctx, d.id, "open_flap") }
func (d *Dome) CloseFlap(ctx context.Context) error          { return d.b.call(ctx, d.id, "close_flap") }
func (d *Dome) Stand(ctx context.Context) error              { return d.b.call(ctx, d.id, "stand") }

func (d *Dome) SlewToAzimuth(ctx context.Context, az float64) error {
	return d.b.Call(ctx, d.id, "slew_to_az", map[string]any{"az": az}, nil)
}

// Telescope implements capability.Telescope over the bridge.
type Telescope struct {
	b  *Bridge
	id string
}

func (t *Telescope) IsParked(ctx context.Context) (bool, error)    { return t.b.callBool(ctx, t.id, "is_parked") }
func (t *Telescope) Park(ctx context.Context) error                { return t.b.call(ctx, t.id, "park") }
func (t *Telescope) Unpark(ctx context.Context) error              { return t.b.call(ctx, t.id, "unpark") }
func (t *Telescope) IsTracking(ctx context.Context) (bool, error)  { return t.b.callBool(ctx, t.id, "is_tracking") }
func (t *Telescope) StopTracking(ctx context.Context) error        { return t.b.call(ctx, t.id, "stop_tracking") }
func (t *Telescope) IsCoverOpen(ctx context.Context) (bool, error) { return t.b.callBool(ctx, t.id, "is_cover_open") }
func (t *Telescope) OpenCover(ctx context.Context) error           { return t.b.call(ctx, t.id, "open_cover") }
func (t *Telescope) CloseCover(ctx context.Context) error          { return t.b.call(ctx, t.id, "close_cover") }

// Camera implements capability.Camera over the bridge.
type Camera struct {
	b  *Bridge
	id string
}

func (c *Camera) IsExposing(ctx context.Context) (bool, error) { return c.b.callBool(ctx, c.id, "is_exposing") }
func (c *Camera) AbortExposure(ctx context.Context) error      { return c.b.call(ctx, c.id, "abort_exposure") }

// Scheduler implements capability.Scheduler over the bridge.
type Scheduler struct {
	b  *Bridge
	id string
}

func (s *Scheduler) Start(ctx context.Context) error { return s.b.call(ctx, s.id, "start") }
func (s *Scheduler) Stop(ctx context.Context) error  { return s.b.call(ctx, s.id, "stop") }

// Next returns nil when the remote scheduler has nothing to observe.
func (s *Scheduler) Next(ctx context.Context, t time.Time, candidates []capability.Candidate) (*capability.Candidate, error) {
	var next *capability.Candidate
	args := map[string]any{"time": t.UTC(), "candidates": candidates}
	if err := s.b.Call(ctx, s.id, "next", args, &next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Scheduler) Observed(ctx context.Context, t time.Time, c capability.Candidate) error {
	return s.b.Call(ctx, s.id, "observed", map[string]any{"time": t.UTC(), "candidate": c}, nil)
}

func (s *Scheduler) Configure(ctx context.Context, programs []capability.Program) error {
	return s.b.Call(ctx, s.id, "configure", map[string]any{"programs": programs}, nil)
}

// WeatherStation implements capability.WeatherStation over the bridge.
type WeatherStation struct {
	b  *Bridge
	id string
}

func (w *WeatherStation) Name() string { return w.id }

// Reading fetches the latest value of q. A null result means the station
// has no value for q and yields capability.ErrNoReading.
func (w *WeatherStation) Reading(ctx context.Context, q capability.Quantity) (capability.Reading, error) {
	var r *capability.Reading
	if err := w.b.Call(ctx, w.id, "reading", map[string]any{"quantity": string(q)}, &r); err != nil {
		return capability.Reading{}, err
	}
	if r == nil {
		return capability.Reading{}, capability.ErrNoReading
	}
	if w.b.onReading != nil {
		w.b.onReading(w.id, q, *r)
	}
	return *r, nil
}

// Fan implements capability.Fan over the bridge.
type Fan struct {
	b  *Bridge
	id string
}

func (f *Fan) IsSwitchedOn(ctx context.Context) (bool, error) { return f.b.callBool(ctx, f.id, "is_switched_on") }
func (f *Fan) SwitchOn(ctx context.Context) error             { return f.b.call(ctx, f.id, "switch_on") }
func (f *Fan) SwitchOff(ctx context.Context) error            { return f.b.call(ctx, f.id, "switch_off") }

var (
	_ capability.Dome           = (*Dome)(nil)
	_ capability.Telescope      = (*Telescope)(nil)
	_ capability.Camera         = (*Camera)(nil)
	_ capability.Scheduler      = (*Scheduler)(nil)
	_ capability.WeatherStation = (*WeatherStation)(nil)
	_ capability.Fan            = (*Fan)(nil)
)
