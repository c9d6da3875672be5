package capability

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeFan struct{ on bool }

func (f *fakeFan) IsSwitchedOn(context.Context) (bool, error) { return f.on, nil }
func (f *fakeFan) SwitchOn(context.Context) error             { f.on = true; return nil }
func (f *fakeFan) SwitchOff(context.Context) error            { f.on = false; return nil }

type fakeNotifier struct{}

func (fakeNotifier) Broadcast(context.Context, string)              {}
func (fakeNotifier) BroadcastPhoto(context.Context, string, string) {}
func (fakeNotifier) Ask(context.Context, string, time.Duration) (string, bool) {
	return "", false
}

func TestStatic_Lookup(t *testing.T) {
	s := NewStatic(map[string]any{NameNotifier: fakeNotifier{}})

	if _, err := s.Lookup(context.Background(), NameNotifier); err != nil {
		t.Fatalf("Lookup(notifier) error = %v", err)
	}
	if _, err := s.Lookup(context.Background(), NameDome); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(dome) error = %v, want ErrNotFound", err)
	}

	s.Remove(NameNotifier)
	if _, err := s.Lookup(context.Background(), NameNotifier); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after Remove error = %v, want ErrNotFound", err)
	}

	var zero Static
	zero.Put(NameDomeFan, Fans{"north": &fakeFan{}})
	if _, err := zero.Lookup(context.Background(), NameDomeFan); err != nil {
		t.Errorf("zero Static Lookup error = %v", err)
	}
}

func TestNewSet_DropsWrongTypes(t *testing.T) {
	set, errs := NewSet(map[string]any{
		NameNotifier: fakeNotifier{},
		NameDome:     "not a dome",
	})

	if len(errs) != 1 || !errors.Is(errs[0], ErrWrongType) {
		t.Fatalf("errs = %v, want one ErrWrongType", errs)
	}
	if _, ok := set.Notifier(); !ok {
		t.Error("Notifier() missing")
	}
	if _, ok := set.Dome(); ok {
		t.Error("Dome() should be missing")
	}
	if set.Has(NameDome) {
		t.Error("Has(dome) = true")
	}
}

func TestSet_EmptyCollectionsAreMissing(t *testing.T) {
	set, _ := NewSet(map[string]any{
		NameWeatherStations: WeatherStations{},
		NameDomeFan:         Fans{},
	})
	if _, ok := set.WeatherStations(); ok {
		t.Error("empty station list should read as missing")
	}
	if _, ok := set.Fans(); ok {
		t.Error("empty fan set should read as missing")
	}
}

func TestFans_Get(t *testing.T) {
	south := &fakeFan{}
	north := &fakeFan{}
	fans := Fans{"south": south, "north": north}

	got, ok := fans.Get("")
	if !ok || got != north {
		t.Errorf("Get(\"\") should return the first fan by name")
	}
	if got, ok := fans.Get("south"); !ok || got != south {
		t.Error("Get(south) mismatch")
	}
	if _, ok := fans.Get("east"); ok {
		t.Error("Get(east) should fail")
	}
	if _, ok := (Fans{}).Get(""); ok {
		t.Error("Get on empty set should fail")
	}
}
