package auction

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/kilianp07/gridmarket/core/curve"
	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
)

// RatioPoint is one sample of a state-dependent conversion ratio.
type RatioPoint struct {
	Fill  float64 `json:"fill"`
	Ratio float64 `json:"ratio"`
}

// Conversion maps the primary power onto a secondary commodity:
// secondary = ratio * primary. A heat pump consuming electricity and
// producing heat uses a negative ratio (minus the COP).
type Conversion struct {
	Commodity model.Commodity `json:"commodity"`
	Ratio     float64         `json:"ratio"`
	// Curve, when set, makes the ratio depend on the storage fill level.
	Curve []RatioPoint `json:"curve"`
}

// ConverterConfig configures a thermal or other multi-commodity converter.
type ConverterConfig struct {
	Primary model.Commodity `json:"primary"`
	// PowerMin and PowerMax bound the primary power in W. A consumer such as a
	// heat pump uses [0, P]; a producer such as a CHP uses [-P, 0].
	PowerMin    float64      `json:"power_min"`
	PowerMax    float64      `json:"power_max"`
	Secondaries []Conversion `json:"secondaries"`
	// MustRun is the primary power used when the store is below MinFill.
	// Zero selects whichever of PowerMin/PowerMax is furthest from idle.
	MustRun float64 `json:"must_run"`
	MinFill float64 `json:"min_fill"`
	MaxFill float64 `json:"max_fill"`
}

// Validate checks bounds and conversion definitions.
func (c ConverterConfig) Validate() error {
	if c.PowerMin > c.PowerMax {
		return fmt.Errorf("%w: converter power_min %v above power_max %v", ErrConfiguration, c.PowerMin, c.PowerMax)
	}
	if c.MaxFill != 0 && c.MinFill > c.MaxFill {
		return fmt.Errorf("%w: converter min_fill above max_fill", ErrConfiguration)
	}
	seen := map[model.Commodity]bool{c.Primary: true}
	for _, s := range c.Secondaries {
		if s.Commodity == "" {
			return fmt.Errorf("%w: conversion without commodity", ErrConfiguration)
		}
		if seen[s.Commodity] {
			return fmt.Errorf("%w: commodity %s declared twice", ErrConfiguration, s.Commodity)
		}
		seen[s.Commodity] = true
		if len(s.Curve) == 1 {
			return fmt.Errorf("%w: ratio curve for %s needs at least two points", ErrConfiguration, s.Commodity)
		}
	}
	return nil
}

type ratio struct {
	commodity model.Commodity
	fixed     float64
	fn        *interp.PiecewiseLinear
	lo, hi    float64
}

func (r ratio) at(fill float64) float64 {
	if r.fn == nil {
		return r.fixed
	}
	return r.fn.Predict(math.Max(r.lo, math.Min(r.hi, fill)))
}

// Converter bids in its primary commodity only and converts the dispatched
// primary power into its secondary commodities.
type Converter struct {
	cfg    ConverterConfig
	ratios []ratio
	dev    device.StateAccessor
	domain Domain
	strict bool
	bid    lastBid
}

// NewConverter returns a converter contract.
func NewConverter(cfg ConverterConfig, env Env) (*Converter, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	if cfg.Primary == "" {
		cfg.Primary = model.Electricity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxFill == 0 {
		cfg.MaxFill = 1
	}
	if cfg.MustRun == 0 {
		cfg.MustRun = cfg.PowerMax
		if math.Abs(cfg.PowerMin) > math.Abs(cfg.PowerMax) {
			cfg.MustRun = cfg.PowerMin
		}
	}
	c := &Converter{cfg: cfg, dev: env.Device, domain: env.Domain, strict: env.StrictComfort}
	for _, s := range cfg.Secondaries {
		r := ratio{commodity: s.Commodity, fixed: s.Ratio}
		if len(s.Curve) > 1 {
			pts := append([]RatioPoint(nil), s.Curve...)
			sort.Slice(pts, func(i, j int) bool { return pts[i].Fill < pts[j].Fill })
			xs := make([]float64, len(pts))
			ys := make([]float64, len(pts))
			for i, p := range pts {
				if i > 0 && p.Fill <= xs[i-1] {
					return nil, fmt.Errorf("%w: duplicate fill %v in ratio curve for %s", ErrConfiguration, p.Fill, s.Commodity)
				}
				xs[i], ys[i] = p.Fill, p.Ratio
			}
			var pl interp.PiecewiseLinear
			if err := pl.Fit(xs, ys); err != nil {
				return nil, fmt.Errorf("%w: ratio curve for %s: %v", ErrConfiguration, s.Commodity, err)
			}
			r.fn, r.lo, r.hi = &pl, xs[0], xs[len(xs)-1]
		}
		c.ratios = append(c.ratios, r)
	}
	return c, nil
}

func (c *Converter) Commodity() model.Commodity { return c.cfg.Primary }

// Commodities lists the primary commodity followed by the secondaries.
func (c *Converter) Commodities() []model.Commodity {
	out := []model.Commodity{c.cfg.Primary}
	for _, r := range c.ratios {
		out = append(out, r.commodity)
	}
	return out
}

func (c *Converter) idle() float64 {
	return math.Max(c.cfg.PowerMin, math.Min(c.cfg.PowerMax, 0))
}

// CreateBid returns a primary-commodity curve. A full store idles, a store
// below MinFill must run in strict mode and may only run in relaxed mode.
func (c *Converter) CreateBid(ctx context.Context, iv Interval) (*curve.Curve, error) {
	st, err := syncState(ctx, c.dev)
	if err != nil {
		return nil, err
	}
	lo, hi := c.cfg.PowerMin, c.cfg.PowerMax
	if lim, ok := st.Limits[c.cfg.Primary]; ok {
		lo, hi = math.Max(lo, lim.Min), math.Min(hi, lim.Max)
		if lo > hi {
			return nil, fmt.Errorf("%w: device limits [%v, %v] exclude configured range", ErrMalformedBid, lim.Min, lim.Max)
		}
	}
	idle := math.Max(lo, math.Min(hi, 0))
	mustRun := math.Max(lo, math.Min(hi, c.cfg.MustRun))
	var bid *curve.Curve
	switch {
	case st.Capacity <= 0:
		bid, err = c.domain.Line(hi, lo)
	case st.Fill() >= c.cfg.MaxFill:
		bid, err = c.domain.Flat(idle)
	case st.Fill() < c.cfg.MinFill && c.strict:
		bid, err = c.domain.Flat(mustRun)
	case st.Fill() < c.cfg.MinFill:
		bid, err = c.domain.Line(math.Max(mustRun, idle), math.Min(mustRun, idle))
	default:
		bid, err = c.domain.Line(hi, lo)
	}
	if err != nil {
		return nil, err
	}
	c.bid.store(iv, bid, st)
	return bid, nil
}

// ApplyPrice dispatches the primary commodity from the own bid, converts it
// into every secondary commodity and clamps each to the device limits.
func (c *Converter) ApplyPrice(ctx context.Context, iv Interval, price float64) (model.Plan, error) {
	bid, st, err := c.bid.load(iv)
	if err != nil {
		return nil, err
	}
	primary := st.Clamp(c.cfg.Primary, bid.DemandForPrice(price))
	plan := singleEntry(iv, c.cfg.Primary, primary)
	fill := st.Fill()
	for _, r := range c.ratios {
		v := st.Clamp(r.commodity, r.at(fill)*primary)
		plan[r.commodity] = []model.PlanEntry{{Timestamp: iv.Start, Power: complex(v, 0)}}
	}
	if err := c.dev.SetPlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
