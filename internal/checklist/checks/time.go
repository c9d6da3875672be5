package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// TimeParams configures a sun altitude check.
type TimeParams struct {
	SunAltitude float64 `param:"sun_altitude"`
	Above       bool    `param:"above"`
	// Rising, when set, also requires the sun to be rising (true) or setting (false).
	Rising   *bool         `param:"rising"`
	Duration time.Duration `param:"duration"`
}

// Sun phase codes reported in the message.
const (
	SunAboveRising  = 0
	SunAboveSetting = 1
	SunBelowRising  = 2
	SunBelowSetting = 3
)

// TimeCheck triggers on the sun's altitude and direction of motion.
type TimeCheck struct {
	checklist.Bound
}

// NewTimeCheck creates a sun altitude check.
func NewTimeCheck() *TimeCheck {
	return &TimeCheck{}
}

// Requires implements checklist.Binder.
func (c *TimeCheck) Requires() []string {
	return []string{capability.NameSite}
}

// NewParams implements checklist.CheckHandler.
func (c *TimeCheck) NewParams() any { return &TimeParams{} }

// Process implements checklist.CheckHandler.
func (c *TimeCheck) Process(_ context.Context, chk *checklist.Check, params any) (checklist.Result, error) {
	p := params.(*TimeParams)

	site, ok := c.Caps().Site()
	if !ok {
		return checklist.NotTriggered("site unavailable"), nil
	}

	now := site.Now()
	alt := site.SunPosition(now).Alt
	rising := site.SunPosition(now.Add(time.Minute)).Alt > alt
	above := alt > p.SunAltitude

	cond := above == p.Above
	if p.Rising != nil {
		cond = cond && rising == *p.Rising
	}

	triggered, ref := sustain(chk, cond, p.Duration, now)
	return checklist.Result{
		Triggered: triggered,
		Status:    checklist.StatusOK,
		Message: fmt.Sprintf("sun at %.2f° (%s, code %d), limit %.2f°",
			alt, phaseName(above, rising), phaseCode(above, rising), p.SunAltitude),
		Reference: ref,
	}, nil
}

func phaseCode(above, rising bool) int {
	switch {
	case above && rising:
		return SunAboveRising
	case above:
		return SunAboveSetting
	case rising:
		return SunBelowRising
	default:
		return SunBelowSetting
	}
}

func phaseName(above, rising bool) string {
	pos, dir := "below", "setting"
	if above {
		pos = "above"
	}
	if rising {
		dir = "rising"
	}
	return pos + " and " + dir
}
