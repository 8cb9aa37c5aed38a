package auction

import (
	"fmt"
	"math"

	"github.com/kilianp07/gridmarket/core/model"
)

// Bounds limits the net-demand target of one commodity.
type Bounds struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// CongestionConstraint holds per-commodity target bounds. It is read-only
// once built and never verifies the physical outcome of a clearing.
type CongestionConstraint struct {
	bounds map[model.Commodity]Bounds
}

// NewCongestionConstraint copies limits into a constraint.
func NewCongestionConstraint(limits map[model.Commodity]Bounds) (*CongestionConstraint, error) {
	out := &CongestionConstraint{bounds: make(map[model.Commodity]Bounds, len(limits))}
	for c, b := range limits {
		if math.IsNaN(b.Upper) || math.IsNaN(b.Lower) || b.Lower > b.Upper {
			return nil, fmt.Errorf("%w: congestion bounds for %s: lower %v above upper %v", ErrConfiguration, c, b.Lower, b.Upper)
		}
		out.bounds[c] = b
	}
	return out, nil
}

// Limits returns the bounds for c.
func (cc *CongestionConstraint) Limits(c model.Commodity) (Bounds, bool) {
	if cc == nil {
		return Bounds{}, false
	}
	b, ok := cc.bounds[c]
	return b, ok
}

// Clamp restricts target into the bounds of c and reports whether it moved.
func (cc *CongestionConstraint) Clamp(c model.Commodity, target float64) (float64, bool) {
	b, ok := cc.Limits(c)
	if !ok {
		return target, false
	}
	switch {
	case target > b.Upper:
		return b.Upper, true
	case target < b.Lower:
		return b.Lower, true
	}
	return target, false
}
