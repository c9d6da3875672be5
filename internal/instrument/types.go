package instrument

import (
	"fmt"
	"strings"
	"time"
)

// Flag is the coarse operating mode of an instrument.
type Flag string

// Operating flags.
const (
	FlagUnset     Flag = "UNSET"
	FlagReady     Flag = "READY"
	FlagOperating Flag = "OPERATING"
	FlagClose     Flag = "CLOSE"
	FlagLock      Flag = "LOCK"
	FlagError     Flag = "ERROR"
)

// AllFlags lists every flag in declaration order.
var AllFlags = []Flag{FlagUnset, FlagReady, FlagOperating, FlagClose, FlagLock, FlagError}

// ParseFlag converts a case-insensitive name into a Flag.
func ParseFlag(s string) (Flag, error) {
	f := Flag(strings.ToUpper(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFlag, s)
	}
	return f, nil
}

// Valid reports whether f is one of the known flags.
func (f Flag) Valid() bool {
	for _, known := range AllFlags {
		if f == known {
			return true
		}
	}
	return false
}

// Operable reports whether the flag allows opening (READY or OPERATING).
func (f Flag) Operable() bool {
	return f == FlagReady || f == FlagOperating
}

func (f Flag) String() string { return string(f) }

// Key is a named holder of an instrument lock.
type Key struct {
	Key       string    `json:"key"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status is the persisted state of one instrument.
type Status struct {
	Instrument string     `json:"instrument"`
	Flag       Flag       `json:"flag"`
	LastUpdate time.Time  `json:"last_update"`
	LastChange *time.Time `json:"last_change,omitempty"`
	Keys       []Key      `json:"keys,omitempty"`
}

// ActiveKeys returns the names of the keys currently holding the lock.
func (s *Status) ActiveKeys() []string {
	var keys []string
	for _, k := range s.Keys {
		if k.Active {
			keys = append(keys, k.Key)
		}
	}
	return keys
}

// DeepCopy returns a copy that shares no slices with s.
func (s *Status) DeepCopy() *Status {
	if s == nil {
		return nil
	}
	cp := *s
	if s.LastChange != nil {
		t := *s.LastChange
		cp.LastChange = &t
	}
	if s.Keys != nil {
		cp.Keys = make([]Key, len(s.Keys))
		copy(cp.Keys, s.Keys)
	}
	return &cp
}

// activateKey creates key or reactivates it if already known.
func (s *Status) activateKey(key string, now time.Time) {
	for i := range s.Keys {
		if s.Keys[i].Key == key {
			s.Keys[i].Active = true
			s.Keys[i].UpdatedAt = now
			return
		}
	}
	s.Keys = append(s.Keys, Key{Key: key, Active: true, UpdatedAt: now})
}

// deactivateKey releases key if known. Unknown keys are recorded inactive so
// every holder that ever touched the instrument stays auditable.
func (s *Status) deactivateKey(key string, now time.Time) {
	for i := range s.Keys {
		if s.Keys[i].Key == key {
			s.Keys[i].Active = false
			s.Keys[i].UpdatedAt = now
			return
		}
	}
	if key != "" {
		s.Keys = append(s.Keys, Key{Key: key, Active: false, UpdatedAt: now})
	}
}

// apply runs the lock-aware update on s and reports whether the requested
// flag was committed. Key changes are applied even when the flag is refused.
func (s *Status) apply(flag Flag, key string, now time.Time) bool {
	s.LastUpdate = now

	if s.Flag != FlagLock {
		if flag == FlagLock {
			s.activateKey(key, now)
		}
		s.setFlag(flag, now)
		return true
	}

	if flag != FlagLock {
		s.deactivateKey(key, now)
		if len(s.ActiveKeys()) > 0 {
			return false
		}
		s.setFlag(flag, now)
		return true
	}

	s.activateKey(key, now)
	return true
}

func (s *Status) setFlag(flag Flag, now time.Time) {
	if s.Flag != flag {
		t := now
		s.LastChange = &t
	}
	s.Flag = flag
}
