package ephemeris

import (
	"fmt"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
)

// Site implements capability.Site for a fixed location.
type Site struct {
	Latitude  float64
	Longitude float64
	Elevation float64

	now func() time.Time
}

var _ capability.Site = (*Site)(nil)

// NewSite creates a site. Latitude and longitude are in degrees, longitude
// east-positive; elevation is in metres.
func NewSite(latitude, longitude, elevation float64) *Site {
	return &Site{
		Latitude:  latitude,
		Longitude: longitude,
		Elevation: elevation,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Intended for tests and simulations.
func (s *Site) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the current UTC time.
func (s *Site) Now() time.Time {
	return s.now().UTC()
}

// SunPosition returns the Sun's altitude and azimuth at t.
func (s *Site) SunPosition(t time.Time) capability.AltAz {
	ra, dec := SunEquatorial(t)
	return Horizontal(t, ra, dec, s.Latitude, s.Longitude)
}

// MoonPosition returns the Moon's altitude and azimuth at t.
func (s *Site) MoonPosition(t time.Time) capability.AltAz {
	ra, dec := MoonEquatorial(t)
	return Horizontal(t, ra, dec, s.Latitude, s.Longitude)
}

// LST returns the local sidereal time in hours.
func (s *Site) LST(t time.Time) float64 {
	return LST(t, s.Longitude)
}

// SunRising reports whether the Sun's altitude is increasing at t.
func (s *Site) SunRising(t time.Time) bool {
	return s.SunPosition(t.Add(time.Minute)).Alt > s.SunPosition(t).Alt
}

// Sunrise returns the first sunrise after t.
func (s *Site) Sunrise(t time.Time) (time.Time, error) {
	return s.Twilight(t, SunriseAltitude, true)
}

// Sunset returns the first sunset after t.
func (s *Site) Sunset(t time.Time) (time.Time, error) {
	return s.Twilight(t, SunriseAltitude, false)
}

// Twilight returns the first time after t at which the Sun crosses altitude
// in the given direction. Use -6, -12 or -18 for civil, nautical or
// astronomical twilight.
func (s *Site) Twilight(t time.Time, altitude float64, rising bool) (time.Time, error) {
	f := func(at time.Time) float64 { return s.SunPosition(at).Alt - altitude }

	prev := t
	prevVal := f(prev)
	for elapsed := searchStep; elapsed <= searchWindow; elapsed += searchStep {
		next := t.Add(elapsed)
		nextVal := f(next)

		crossedUp := prevVal < 0 && nextVal >= 0
		crossedDown := prevVal >= 0 && nextVal < 0
		if (rising && crossedUp) || (!rising && crossedDown) {
			return bisect(f, prev, next, rising).UTC(), nil
		}
		prev, prevVal = next, nextVal
	}
	return time.Time{}, fmt.Errorf("%w: altitude %.2f after %s", ErrNoEvent, altitude, t.Format(time.RFC3339))
}

// bisect narrows a sign change of f in [lo, hi] to searchTol.
func bisect(f func(time.Time) float64, lo, hi time.Time, rising bool) time.Time {
	for hi.Sub(lo) > searchTol {
		mid := lo.Add(hi.Sub(lo) / 2)
		above := f(mid) >= 0
		if above == rising {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}
