// Package ephemeris computes low-precision solar and lunar positions,
// sidereal time and rise/set events for a fixed site.
//
// The algorithms are the compact series from the Astronomical Almanac
// (accurate to about 0.01° for the Sun and 0.3° for the Moon between 1950 and
// 2050). That is ample for deciding whether it is dark enough to open a dome,
// and keeps the supervisor free of a heavyweight astronomy dependency.
//
// Usage:
//
//	site := ephemeris.NewSite(-22.53, -45.58, 1864)
//	sunset, err := site.Sunset(time.Now())
//	alt := site.SunPosition(time.Now()).Alt
package ephemeris
