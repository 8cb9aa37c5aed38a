package model

import (
	"sort"
	"time"
)

// ClearingResult holds the outcome of one market interval.
type ClearingResult struct {
	IntervalID string                `json:"interval_id"`
	Timestamp  time.Time             `json:"timestamp"`
	Prices     map[Commodity]float64 `json:"prices"`
	Targets    map[Commodity]float64 `json:"targets"`
	// Demand is the aggregate demand at the clearing price.
	Demand map[Commodity]float64 `json:"demand"`
	// Flexibility is the surface of the aggregate curve.
	Flexibility map[Commodity]float64 `json:"flexibility"`
	// Constrained lists commodities whose target was clamped by a congestion limit.
	Constrained []Commodity `json:"constrained,omitempty"`
	// Infeasible lists commodities whose target lay outside the aggregate curve.
	Infeasible []Commodity `json:"infeasible,omitempty"`
	Fallbacks  []string    `json:"fallbacks,omitempty"`
}

// Clone returns a deep copy of the result.
func (r ClearingResult) Clone() ClearingResult {
	out := r
	out.Prices = cloneFloats(r.Prices)
	out.Targets = cloneFloats(r.Targets)
	out.Demand = cloneFloats(r.Demand)
	out.Flexibility = cloneFloats(r.Flexibility)
	out.Constrained = append([]Commodity(nil), r.Constrained...)
	out.Infeasible = append([]Commodity(nil), r.Infeasible...)
	out.Fallbacks = append([]string(nil), r.Fallbacks...)
	return out
}

// Commodities returns the cleared commodities in a stable order.
func (r ClearingResult) Commodities() []Commodity {
	out := make([]Commodity, 0, len(r.Prices))
	for c := range r.Prices {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func cloneFloats(m map[Commodity]float64) map[Commodity]float64 {
	if m == nil {
		return nil
	}
	out := make(map[Commodity]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
