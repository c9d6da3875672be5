package ephemeris

import "errors"

// ErrNoEvent is returned when the sun does not cross the requested altitude
// within the search window (polar day or night).
var ErrNoEvent = errors.New("ephemeris: no crossing within search window")
