package model

import (
	"testing"
	"time"
)

func TestParseCommodity(t *testing.T) {
	c, err := ParseCommodity(" heat ")
	if err != nil || c != Heat {
		t.Fatalf("expected HEAT got %v (%v)", c, err)
	}
	if _, err := ParseCommodity("water"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLimitsClamp(t *testing.T) {
	l := Limits{Min: -100, Max: 200}
	if v := l.Clamp(500); v != 200 {
		t.Fatalf("expected 200 got %v", v)
	}
	if v := l.Clamp(-500); v != -100 {
		t.Fatalf("expected -100 got %v", v)
	}
	if v := (Limits{}).Clamp(42); v != 0 {
		t.Fatalf("off range must clamp to 0, got %v", v)
	}
}

func TestDeviceStateClamp(t *testing.T) {
	s := DeviceState{Limits: map[Commodity]Limits{Electricity: {}}}
	if v := s.Clamp(Electricity, 1500); v != 0 {
		t.Fatalf("reported [0, 0] must clamp to 0, got %v", v)
	}
	if v := s.Clamp(Heat, 1500); v != 1500 {
		t.Fatalf("unreported limits must not clamp, got %v", v)
	}
}

func TestDeviceStateFillAndClone(t *testing.T) {
	s := DeviceState{
		Capacity:    1000,
		Energy:      250,
		Consumption: map[Commodity]complex128{Electricity: 10},
		Plan:        Plan{Electricity: {{Timestamp: time.Unix(0, 0), Power: 5}}},
	}
	if f := s.Fill(); f != 0.25 {
		t.Fatalf("expected 0.25 got %v", f)
	}
	cp := s.Clone()
	cp.Consumption[Electricity] = 99
	cp.Plan[Electricity][0].Power = 1
	if s.Consumption[Electricity] != 10 || s.Plan[Electricity][0].Power != 5 {
		t.Fatalf("clone shares memory with original")
	}
}

func TestCommodityUnmarshalText(t *testing.T) {
	var c Commodity
	if err := c.UnmarshalText([]byte("natgas")); err != nil || c != NaturalGas {
		t.Fatalf("expected NATGAS got %v (%v)", c, err)
	}
	if err := c.UnmarshalText([]byte("steam")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestClearingResultCommoditiesSorted(t *testing.T) {
	r := ClearingResult{Prices: map[Commodity]float64{Heat: 1, Electricity: 2}}
	got := r.Commodities()
	if len(got) != 2 || got[0] != Electricity || got[1] != Heat {
		t.Fatalf("unexpected order %v", got)
	}
}
