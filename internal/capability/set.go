package capability

import "fmt"

// Set is the resolved subset of capabilities handed to one handler.
// Getters report false when the capability was not resolved.
type Set struct {
	values map[string]any
}

// NewSet validates that every value implements the interface its name
// promises. Values of the wrong type are dropped and reported.
func NewSet(values map[string]any) (Set, []error) {
	s := Set{values: make(map[string]any, len(values))}
	var errs []error
	for name, v := range values {
		if !typeMatches(name, v) {
			errs = append(errs, fmt.Errorf("%w: %s is %T", ErrWrongType, name, v))
			continue
		}
		s.values[name] = v
	}
	return s, errs
}

func typeMatches(name string, v any) bool {
	var ok bool
	switch name {
	case NameSite:
		_, ok = v.(Site)
	case NameWeatherStations:
		_, ok = v.(WeatherStations)
	case NameDome:
		_, ok = v.(Dome)
	case NameTelescope:
		_, ok = v.(Telescope)
	case NameCamera:
		_, ok = v.(Camera)
	case NameScheduler:
		_, ok = v.(Scheduler)
	case NameDomeFan:
		_, ok = v.(Fans)
	case NameNotifier:
		_, ok = v.(Notifier)
	default:
		ok = v != nil
	}
	return ok
}

// Has reports whether name was resolved.
func (s Set) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Site returns the site capability.
func (s Set) Site() (Site, bool) {
	v, ok := s.values[NameSite].(Site)
	return v, ok
}

// WeatherStations returns the configured stations.
func (s Set) WeatherStations() (WeatherStations, bool) {
	v, ok := s.values[NameWeatherStations].(WeatherStations)
	return v, ok && len(v) > 0
}

// Dome returns the dome capability.
func (s Set) Dome() (Dome, bool) {
	v, ok := s.values[NameDome].(Dome)
	return v, ok
}

// Telescope returns the telescope capability.
func (s Set) Telescope() (Telescope, bool) {
	v, ok := s.values[NameTelescope].(Telescope)
	return v, ok
}

// Camera returns the camera capability.
func (s Set) Camera() (Camera, bool) {
	v, ok := s.values[NameCamera].(Camera)
	return v, ok
}

// Scheduler returns the scheduler capability.
func (s Set) Scheduler() (Scheduler, bool) {
	v, ok := s.values[NameScheduler].(Scheduler)
	return v, ok
}

// Fans returns the dome fans.
func (s Set) Fans() (Fans, bool) {
	v, ok := s.values[NameDomeFan].(Fans)
	return v, ok && len(v) > 0
}

// Notifier returns the operator notifier.
func (s Set) Notifier() (Notifier, bool) {
	v, ok := s.values[NameNotifier].(Notifier)
	return v, ok
}
