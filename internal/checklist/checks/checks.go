package checks

import (
	"context"
	"time"

	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
)

// Check kinds.
const (
	KindTime           = "time"
	KindHumidity       = "humidity"
	KindTemperature    = "temperature"
	KindWind           = "wind"
	KindDewPoint       = "dewpoint"
	KindTransparency   = "transparency"
	KindInstrumentFlag = "instrument_flag"
	KindDome           = "dome"
	KindTelescope      = "telescope"
	KindNetwork        = "network"
)

// ModeSustained is the mode in which a condition must hold for a duration.
const ModeSustained = 1

// DefaultMaxAge is how old a weather reading may be when Options.MaxAge is unset.
const DefaultMaxAge = 10 * time.Minute

// FlagReader is the part of the supervisor the checks read.
type FlagReader interface {
	GetFlag(ctx context.Context, instrument string) (instrument.Flag, error)
}

// Options configures the check handlers.
type Options struct {
	// MaxAge is the default freshness limit for weather readings.
	MaxAge time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RegisterAll registers every check kind on r.
func RegisterAll(r *checklist.Registry, flags FlagReader, opts Options) {
	opts = opts.withDefaults()

	r.RegisterCheck(KindTime, NewTimeCheck())
	r.RegisterCheck(KindHumidity, newWeatherCheck(humiditySensor, opts))
	r.RegisterCheck(KindTemperature, newWeatherCheck(temperatureSensor, opts))
	r.RegisterCheck(KindWind, newWeatherCheck(windSensor, opts))
	r.RegisterCheck(KindDewPoint, newWeatherCheck(dewPointSensor, opts))
	r.RegisterCheck(KindTransparency, newWeatherCheck(transparencySensor, opts))
	r.RegisterCheck(KindInstrumentFlag, NewInstrumentFlagCheck(flags, opts.Now))
	r.RegisterCheck(KindDome, NewDomeCheck())
	r.RegisterCheck(KindTelescope, NewTelescopeCheck())
	r.RegisterCheck(KindNetwork, NewNetworkCheck(opts.Now))
}

// sustain applies the two-mode contract to an instantaneous condition.
//
// In mode 0 the condition is reported as is. In ModeSustained the reference
// time is marked when the condition first holds and cleared when it does
// not, and the check triggers once the condition has held for d.
func sustain(chk *checklist.Check, cond bool, d time.Duration, now time.Time) (bool, checklist.ReferenceAction) {
	if chk.Mode != ModeSustained {
		return cond, checklist.ReferenceKeep
	}
	if !cond {
		return false, checklist.ReferenceClear
	}
	if chk.ReferenceTime == nil {
		return d <= 0, checklist.ReferenceMark
	}
	return now.Sub(*chk.ReferenceTime) >= d, checklist.ReferenceKeep
}
