package checklist

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome code of a monitored item.
type Status int

// Item statuses. The numeric values are persisted.
const (
	StatusUnknown Status = iota
	StatusUnset
	StatusOK
	StatusWarning
	StatusAlert
	StatusAborted
	StatusError
)

var statusNames = [...]string{
	StatusUnknown: "UNKNOWN",
	StatusUnset:   "UNSET",
	StatusOK:      "OK",
	StatusWarning: "WARNING",
	StatusAlert:   "ALERT",
	StatusAborted: "ABORTED",
	StatusError:   "ERROR",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus converts a case-insensitive name into a Status.
func ParseStatus(name string) (Status, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range statusNames {
		if n == upper {
			return Status(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("%w: %q", ErrInvalidStatus, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Params is the raw, kind-specific configuration of a check or response as
// stored in the database. Handlers decode it into their own typed struct.
type Params map[string]any

// Item is a named rule: a conjunctive chain of checks guarding an ordered
// chain of responses.
type Item struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Active        bool       `json:"active"`
	Eager         bool       `json:"eager"`
	EagerResponse bool       `json:"eager_response"`
	Status        Status     `json:"status"`
	LastUpdate    *time.Time `json:"last_update,omitempty"`
	LastChange    *time.Time `json:"last_change,omitempty"`
	Checks        []Check    `json:"checks"`
	Responses     []Response `json:"responses"`
}

// Check is one condition of an item.
type Check struct {
	ID       int64  `json:"id"`
	ItemID   int64  `json:"item_id"`
	Position int    `json:"position"`
	Kind     string `json:"kind"`
	Mode     int    `json:"mode"`
	Params   Params `json:"params,omitempty"`

	// ReferenceTime marks since when a duration-qualified condition has
	// held. Only the check's handler moves it.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Response is one action of an item.
type Response struct {
	ID       int64  `json:"id"`
	ItemID   int64  `json:"item_id"`
	Position int    `json:"position"`
	Kind     string `json:"kind"`
	Mode     int    `json:"mode"`
	Params   Params `json:"params,omitempty"`
}

// ReferenceAction tells the evaluator what to do with Check.ReferenceTime.
type ReferenceAction int

// Reference time actions.
const (
	ReferenceKeep ReferenceAction = iota
	ReferenceMark
	ReferenceClear
)

// Result is the outcome of one check.
type Result struct {
	Triggered bool
	// Status is the outcome code when triggered. Zero means StatusOK.
	Status  Status
	Message string

	Reference ReferenceAction
}

// Triggered builds a triggered result with the default OK outcome.
func Triggered(format string, args ...any) Result {
	return Result{Triggered: true, Status: StatusOK, Message: fmt.Sprintf(format, args...)}
}

// NotTriggered builds a non-triggered result.
func NotTriggered(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

// DeepCopy returns a copy of the item that shares no mutable state.
func (it *Item) DeepCopy() *Item {
	if it == nil {
		return nil
	}
	cp := *it
	cp.LastUpdate = copyTime(it.LastUpdate)
	cp.LastChange = copyTime(it.LastChange)
	if it.Checks != nil {
		cp.Checks = make([]Check, len(it.Checks))
		for i, c := range it.Checks {
			c.Params = copyParams(c.Params)
			c.ReferenceTime = copyTime(c.ReferenceTime)
			cp.Checks[i] = c
		}
	}
	if it.Responses != nil {
		cp.Responses = make([]Response, len(it.Responses))
		for i, r := range it.Responses {
			r.Params = copyParams(r.Params)
			cp.Responses[i] = r
		}
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// copyParams copies the top level of params. Nested values are treated as
// read-only by every handler.
func copyParams(p Params) Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
