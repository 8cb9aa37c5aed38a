package auction

import (
	"sort"

	"github.com/kilianp07/gridmarket/core/curve"
	"github.com/kilianp07/gridmarket/core/model"
)

// bids holds one curve per commodity for a subtree.
type bids map[model.Commodity]*curve.Curve

func (b bids) add(c model.Commodity, bid *curve.Curve) {
	if bid == nil {
		return
	}
	if cur, ok := b[c]; ok {
		b[c] = cur.AddFunction(bid)
		return
	}
	b[c] = bid.Clone()
}

func (b bids) merge(other bids) {
	for _, c := range other.commodities() {
		b.add(c, other[c])
	}
}

func (b bids) commodities() []model.Commodity {
	out := make([]model.Commodity, 0, len(b))
	for c := range b {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// outcome is the clearing of one commodity.
type outcome struct {
	price       float64
	target      float64
	demand      float64
	constrained bool
	infeasible  bool
}

// clearCurve clamps target into the congestion bounds of c, inverts agg at the
// clamped target and quantizes the price when step > 0.
func clearCurve(agg *curve.Curve, c model.Commodity, target float64, cc *CongestionConstraint, dom Domain, step float64) outcome {
	t, constrained := cc.Clamp(c, target)
	price, ok := agg.Invert(t)
	price = dom.snap(price, step)
	return outcome{
		price:       price,
		target:      t,
		demand:      agg.DemandForPrice(price),
		constrained: constrained,
		infeasible:  !ok,
	}
}
