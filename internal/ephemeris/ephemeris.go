package ephemeris

import (
	"math"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
)

const (
	deg = math.Pi / 180
	rad = 180 / math.Pi

	// unixEpochJD is the Julian date of 1970-01-01T00:00:00Z.
	unixEpochJD = 2440587.5
	// j2000 is the Julian date of 2000-01-01T12:00:00Z.
	j2000 = 2451545.0

	// SunriseAltitude accounts for refraction and the solar semi-diameter.
	SunriseAltitude = -0.833

	searchWindow = 48 * time.Hour
	searchStep   = 10 * time.Minute
	searchTol    = time.Second
)

// julianDate converts t to a Julian date.
func julianDate(t time.Time) float64 {
	return float64(t.UnixNano())/float64(24*time.Hour) + unixEpochJD
}

// daysSinceJ2000 returns the fractional days since J2000.0.
func daysSinceJ2000(t time.Time) float64 {
	return julianDate(t) - j2000
}

// normalize wraps an angle in degrees to [0, 360).
func normalize(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// obliquity returns the mean obliquity of the ecliptic in degrees.
func obliquity(d float64) float64 {
	return 23.439 - 0.0000004*d
}

// GMST returns the Greenwich mean sidereal time in hours.
func GMST(t time.Time) float64 {
	d := daysSinceJ2000(t)
	return normalize(15*(18.697374558+24.06570982441908*d)) / 15
}

// LST returns the local mean sidereal time in hours for an east-positive longitude.
func LST(t time.Time, longitude float64) float64 {
	return normalize(15*GMST(t)+longitude) / 15
}

// SunEquatorial returns the apparent right ascension and declination of the
// Sun, both in degrees.
func SunEquatorial(t time.Time) (ra, dec float64) {
	d := daysSinceJ2000(t)
	g := normalize(357.529+0.98560028*d) * deg
	q := normalize(280.459 + 0.98564736*d)
	l := normalize(q+1.915*math.Sin(g)+0.020*math.Sin(2*g)) * deg
	e := obliquity(d) * deg

	ra = normalize(math.Atan2(math.Cos(e)*math.Sin(l), math.Cos(l)) * rad)
	dec = math.Asin(math.Sin(e)*math.Sin(l)) * rad
	return ra, dec
}

// MoonEquatorial returns the geocentric right ascension and declination of
// the Moon, both in degrees.
func MoonEquatorial(t time.Time) (ra, dec float64) {
	d := daysSinceJ2000(t)
	l := normalize(218.316 + 13.176396*d)
	m := normalize(134.963+13.064993*d) * deg
	f := normalize(93.272+13.229350*d) * deg

	lambda := normalize(l+6.289*math.Sin(m)) * deg
	beta := 5.128 * math.Sin(f) * deg
	e := obliquity(d) * deg

	ra = normalize(math.Atan2(
		math.Sin(lambda)*math.Cos(e)-math.Tan(beta)*math.Sin(e),
		math.Cos(lambda),
	) * rad)
	dec = math.Asin(math.Sin(beta)*math.Cos(e)+math.Cos(beta)*math.Sin(e)*math.Sin(lambda)) * rad
	return ra, dec
}

// Horizontal converts equatorial coordinates to altitude/azimuth for an
// observer at latitude/longitude (degrees, longitude east-positive).
func Horizontal(t time.Time, ra, dec, latitude, longitude float64) capability.AltAz {
	ha := (LST(t, longitude)*15 - ra) * deg
	phi := latitude * deg
	delta := dec * deg

	sinAlt := math.Sin(phi)*math.Sin(delta) + math.Cos(phi)*math.Cos(delta)*math.Cos(ha)
	alt := math.Asin(math.Max(-1, math.Min(1, sinAlt)))

	az := math.Atan2(
		-math.Cos(delta)*math.Sin(ha),
		math.Sin(delta)*math.Cos(phi)-math.Cos(delta)*math.Cos(ha)*math.Sin(phi),
	)
	return capability.AltAz{Alt: alt * rad, Az: normalize(az * rad)}
}
