// Package capability defines the contracts between the supervisor and the
// observatory hardware and services it drives.
//
// Check and response handlers never talk to a driver directly. Each handler
// declares the capability names it needs (see the Name constants), the handler
// registry resolves them through a Lookup, and the handler receives a Set with
// whatever could be resolved. A handler must treat a missing capability as a
// reason to do nothing: checks report "not triggered", responses fail.
//
// Implementations live elsewhere: internal/ephemeris provides Site, and
// internal/bridge provides MQTT-backed proxies for everything else.
package capability
