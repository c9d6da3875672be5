// Package checks provides the check handlers of the checklist engine.
//
// Kinds:
//
//	time             sun altitude above/below a limit, optionally rising/setting
//	humidity         relative humidity (%) against a threshold
//	temperature      air temperature (°C) against a threshold
//	wind             wind speed (km/h) against a threshold
//	dewpoint         dew point (°C), or temperature minus dew point, against a threshold
//	transparency     sky transparency (fraction) against a threshold
//	instrument_flag  an instrument's operating flag equals (or differs from) a value
//	dome             slit/flap open or closed
//	telescope        parked, tracking or cover state
//	network          a TCP beacon is (un)reachable
//
// Threshold kinds honour mode 1: the condition must also have held
// continuously for the configured duration, measured from the check's
// reference time.
package checks
