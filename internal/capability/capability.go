package capability

import (
	"context"
	"sort"
	"time"
)

// Capability names a handler may declare in Requires.
const (
	NameSite            = "site"
	NameWeatherStations = "weatherstations"
	NameDome            = "dome"
	NameTelescope       = "telescope"
	NameCamera          = "camera"
	NameScheduler       = "scheduler"
	NameDomeFan         = "domefan"
	NameNotifier        = "notifier"
)

// AllNames lists every capability name.
var AllNames = []string{
	NameSite, NameWeatherStations, NameDome, NameTelescope,
	NameCamera, NameScheduler, NameDomeFan, NameNotifier,
}

// AltAz is a horizontal position in degrees. Azimuth is measured from north
// through east.
type AltAz struct {
	Alt float64 `json:"alt"`
	Az  float64 `json:"az"`
}

// Site provides time and ephemeris for the observatory location.
type Site interface {
	Now() time.Time
	SunPosition(t time.Time) AltAz
	MoonPosition(t time.Time) AltAz
	// LST returns the local sidereal time in hours.
	LST(t time.Time) float64
	// Sunrise returns the first sunrise after t.
	Sunrise(t time.Time) (time.Time, error)
	// Sunset returns the first sunset after t.
	Sunset(t time.Time) (time.Time, error)
	// Twilight returns the first time after t at which the sun crosses
	// altitude going up (rising) or down.
	Twilight(t time.Time, altitude float64, rising bool) (time.Time, error)
}

// Quantity identifies a weather measurement.
type Quantity string

// Weather quantities.
const (
	Humidity     Quantity = "humidity"     // percent
	Temperature  Quantity = "temperature"  // degrees Celsius
	Wind         Quantity = "wind"         // km/h
	DewPoint     Quantity = "dewpoint"     // degrees Celsius
	Transparency Quantity = "transparency" // fraction, 0..1
)

// Reading is one weather measurement and the time it was taken.
type Reading struct {
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// WeatherStation reports the latest value of a quantity.
type WeatherStation interface {
	Name() string
	Reading(ctx context.Context, q Quantity) (Reading, error)
}

// WeatherStations is the ordered set of configured stations.
type WeatherStations []WeatherStation

// Dome controls the enclosure.
type Dome interface {
	IsSlitOpen(ctx context.Context) (bool, error)
	OpenSlit(ctx context.Context) error
	CloseSlit(ctx context.Context) error
	IsFlapOpen(ctx context.Context) (bool, error)
	OpenFlap(ctx context.Context) error
	CloseFlap(ctx context.Context) error
	SlewToAzimuth(ctx context.Context, az float64) error
	// Stand stops dome motion and leaves it where it is.
	Stand(ctx context.Context) error
}

// Telescope controls the mount and its mirror cover.
type Telescope interface {
	IsParked(ctx context.Context) (bool, error)
	Park(ctx context.Context) error
	Unpark(ctx context.Context) error
	IsTracking(ctx context.Context) (bool, error)
	StopTracking(ctx context.Context) error
	IsCoverOpen(ctx context.Context) (bool, error)
	OpenCover(ctx context.Context) error
	CloseCover(ctx context.Context) error
}

// Fan is a switchable dome fan.
type Fan interface {
	IsSwitchedOn(ctx context.Context) (bool, error)
	SwitchOn(ctx context.Context) error
	SwitchOff(ctx context.Context) error
}

// Fans is the named set of dome fans.
type Fans map[string]Fan

// Get returns the named fan. An empty name selects the first fan in name order.
func (f Fans) Get(name string) (Fan, bool) {
	if name != "" {
		fan, ok := f[name]
		return fan, ok
	}
	names := f.Names()
	if len(names) == 0 {
		return nil, false
	}
	return f[names[0]], true
}

// Names returns the fan names in sorted order.
func (f Fans) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Camera is the science camera.
type Camera interface {
	IsExposing(ctx context.Context) (bool, error)
	AbortExposure(ctx context.Context) error
}

// Candidate is one schedulable observation.
type Candidate struct {
	ID       string    `json:"id"`
	Program  string    `json:"program"`
	Target   string    `json:"target"`
	RA       float64   `json:"ra"`
	Dec      float64   `json:"dec"`
	Priority int       `json:"priority"`
	Until    time.Time `json:"until,omitzero"`
}

// Exposure is one block of frames inside a program.
type Exposure struct {
	Filter  string  `json:"filter" yaml:"filter"`
	ExpTime float64 `json:"exptime" yaml:"exptime"`
	Frames  int     `json:"frames" yaml:"frames"`
}

// Program is an observing program handed to the scheduler.
type Program struct {
	Name      string     `json:"name" yaml:"name"`
	Target    string     `json:"target" yaml:"target"`
	RA        float64    `json:"ra" yaml:"ra"`
	Dec       float64    `json:"dec" yaml:"dec"`
	Priority  int        `json:"priority" yaml:"priority"`
	Exposures []Exposure `json:"exposures,omitempty" yaml:"exposures"`
}

// Scheduler runs the observing queue. Its algorithm is opaque to the supervisor.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context, t time.Time, candidates []Candidate) (*Candidate, error)
	Observed(ctx context.Context, t time.Time, c Candidate) error
	Configure(ctx context.Context, programs []Program) error
}

// Notifier reaches the operators.
type Notifier interface {
	Broadcast(ctx context.Context, msg string)
	BroadcastPhoto(ctx context.Context, path, caption string)
	// Ask waits at most timeout for an answer. ok is false when nobody answered.
	Ask(ctx context.Context, question string, timeout time.Duration) (answer string, ok bool)
}
