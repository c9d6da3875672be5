package checks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// WeatherParams configures a threshold check on a weather quantity.
type WeatherParams struct {
	Threshold float64       `param:"threshold"`
	Above     bool          `param:"above"`
	Duration  time.Duration `param:"duration"`
	// TriggerOnNoData is the outcome when no station has a fresh reading.
	TriggerOnNoData *bool         `param:"trigger_on_no_data"`
	MaxAge          time.Duration `param:"max_age"`
	// Spread (dewpoint only) compares temperature minus dew point instead
	// of the dew point itself.
	Spread bool `param:"spread"`
}

// Validate implements checklist.Validator.
func (p *WeatherParams) Validate() error {
	if p.Duration < 0 || p.MaxAge < 0 {
		return errors.New("duration and max_age must not be negative")
	}
	return nil
}

type weatherSensor struct {
	quantity capability.Quantity
	unit     string
	// noData is the default TriggerOnNoData.
	noData bool
}

var (
	humiditySensor     = weatherSensor{capability.Humidity, "%", true}
	temperatureSensor  = weatherSensor{capability.Temperature, "°C", false}
	windSensor         = weatherSensor{capability.Wind, "km/h", true}
	dewPointSensor     = weatherSensor{capability.DewPoint, "°C", true}
	transparencySensor = weatherSensor{capability.Transparency, "", true}
)

// WeatherCheck compares the freshest reading from any station with a threshold.
type WeatherCheck struct {
	checklist.Bound
	sensor weatherSensor
	maxAge time.Duration
	now    func() time.Time
}

// newWeatherCheck creates a weather threshold check.
func newWeatherCheck(sensor weatherSensor, opts Options) *WeatherCheck {
	opts = opts.withDefaults()
	return &WeatherCheck{sensor: sensor, maxAge: opts.MaxAge, now: opts.Now}
}

// Requires implements checklist.Binder.
func (c *WeatherCheck) Requires() []string {
	return []string{capability.NameWeatherStations}
}

// NewParams implements checklist.CheckHandler.
func (c *WeatherCheck) NewParams() any { return &WeatherParams{} }

// Process implements checklist.CheckHandler.
func (c *WeatherCheck) Process(ctx context.Context, chk *checklist.Check, params any) (checklist.Result, error) {
	p := params.(*WeatherParams)

	stations, ok := c.Caps().WeatherStations()
	if !ok {
		return checklist.NotTriggered("no weather station available"), nil
	}

	maxAge := c.maxAge
	if p.MaxAge > 0 {
		maxAge = p.MaxAge
	}
	now := c.now()

	value, station, fresh := c.read(ctx, stations, p, maxAge, now)
	if !fresh {
		noData := c.sensor.noData
		if p.TriggerOnNoData != nil {
			noData = *p.TriggerOnNoData
		}
		res := checklist.Result{
			Triggered: noData,
			Status:    checklist.StatusOK,
			Message:   fmt.Sprintf("no fresh %s data from %d station(s) within %s", c.label(p), len(stations), maxAge),
			Reference: checklist.ReferenceClear,
		}
		if chk.ReferenceTime == nil {
			res.Reference = checklist.ReferenceKeep
		}
		return res, nil
	}

	cond := value < p.Threshold
	cmp := "below"
	if p.Above {
		cond = value > p.Threshold
		cmp = "above"
	}

	triggered, ref := sustain(chk, cond, p.Duration, now)
	msg := fmt.Sprintf("%s %.2f%s from %s, %s %.2f%s: %t",
		c.label(p), value, c.sensor.unit, station, cmp, p.Threshold, c.sensor.unit, cond)
	if chk.Mode == ModeSustained && cond && chk.ReferenceTime != nil {
		msg += fmt.Sprintf(" for %s", now.Sub(*chk.ReferenceTime).Truncate(time.Second))
	}
	return checklist.Result{Triggered: triggered, Status: checklist.StatusOK, Message: msg, Reference: ref}, nil
}

func (c *WeatherCheck) label(p *WeatherParams) string {
	if c.sensor.quantity == capability.DewPoint && p.Spread {
		return "dew point spread"
	}
	return string(c.sensor.quantity)
}

// read returns the value to compare, the station it came from and whether
// it was fresh.
func (c *WeatherCheck) read(ctx context.Context, stations capability.WeatherStations, p *WeatherParams, maxAge time.Duration, now time.Time) (float64, string, bool) {
	if c.sensor.quantity != capability.DewPoint || !p.Spread {
		r, station, ok := Freshest(ctx, stations, c.sensor.quantity, maxAge, now)
		return r.Value, station, ok
	}

	// The spread uses a single station so both values describe the same air.
	var (
		best     capability.Reading
		bestName string
		found    bool
	)
	for _, ws := range stations {
		temp, err := ws.Reading(ctx, capability.Temperature)
		if err != nil || !isFresh(temp, maxAge, now) {
			continue
		}
		dew, err := ws.Reading(ctx, capability.DewPoint)
		if err != nil || !isFresh(dew, maxAge, now) {
			continue
		}
		at := dew.Time
		if temp.Time.Before(at) {
			at = temp.Time
		}
		if !found || at.After(best.Time) {
			best = capability.Reading{Value: temp.Value - dew.Value, Time: at}
			bestName = ws.Name()
			found = true
		}
	}
	return best.Value, bestName, found
}

// Freshest returns the newest reading of q across stations that is at most
// maxAge old, the name of the station that produced it, and whether any
// station qualified. Stations that fail to answer are skipped.
func Freshest(ctx context.Context, stations capability.WeatherStations, q capability.Quantity, maxAge time.Duration, now time.Time) (capability.Reading, string, bool) {
	var (
		best     capability.Reading
		bestName string
		found    bool
	)
	for _, ws := range stations {
		r, err := ws.Reading(ctx, q)
		if err != nil || !isFresh(r, maxAge, now) {
			continue
		}
		if !found || r.Time.After(best.Time) {
			best, bestName, found = r, ws.Name(), true
		}
	}
	return best, bestName, found
}

func isFresh(r capability.Reading, maxAge time.Duration, now time.Time) bool {
	if r.Time.IsZero() {
		return false
	}
	return now.Sub(r.Time) <= maxAge
}
