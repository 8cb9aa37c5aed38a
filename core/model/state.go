package model

import (
	"sort"
	"time"
)

// Limits bounds the power a device exchanges for one commodity. Positive
// values are consumption, negative values are production.
type Limits struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp restricts v to the limits. The zero value is the off range [0, 0].
func (l Limits) Clamp(v float64) float64 {
	if v < l.Min {
		return l.Min
	}
	if v > l.Max {
		return l.Max
	}
	return v
}

// PlanEntry is a single timestamped setpoint.
type PlanEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Power     complex128 `json:"-"`
}

// Plan maps each commodity to an ordered sequence of setpoints.
type Plan map[Commodity][]PlanEntry

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	for c, entries := range p {
		out[c] = append([]PlanEntry(nil), entries...)
	}
	return out
}

// Commodities returns the plan's commodities in a stable order.
func (p Plan) Commodities() []Commodity {
	out := make([]Commodity, 0, len(p))
	for c := range p {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DeviceState is a snapshot of a device taken at the start of an interval.
type DeviceState struct {
	// Consumption is the current (or forecast) power per commodity.
	Consumption map[Commodity]complex128
	// Limits are the physical production/consumption bounds per commodity.
	Limits map[Commodity]Limits
	// Plan is the last plan written to the device.
	Plan Plan
	// Capacity is the storage capacity in Wh for buffer-like devices.
	Capacity float64
	// Energy is the stored energy in Wh for buffer-like devices.
	Energy float64
	// UpdatedAt is the time the state was last refreshed by the device.
	UpdatedAt time.Time
}

// Clamp restricts v to the limits reported for c. A commodity without
// reported limits is not clamped.
func (s DeviceState) Clamp(c Commodity, v float64) float64 {
	if lim, ok := s.Limits[c]; ok {
		return lim.Clamp(v)
	}
	return v
}

// Fill returns the storage fill level in [0,1], or 0 when the device has no
// storage.
func (s DeviceState) Fill() float64 {
	if s.Capacity <= 0 {
		return 0
	}
	f := s.Energy / s.Capacity
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Clone returns a deep copy of the state.
func (s DeviceState) Clone() DeviceState {
	out := s
	if s.Consumption != nil {
		out.Consumption = make(map[Commodity]complex128, len(s.Consumption))
		for k, v := range s.Consumption {
			out.Consumption[k] = v
		}
	}
	if s.Limits != nil {
		out.Limits = make(map[Commodity]Limits, len(s.Limits))
		for k, v := range s.Limits {
			out.Limits[k] = v
		}
	}
	out.Plan = s.Plan.Clone()
	return out
}
