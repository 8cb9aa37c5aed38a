package auction

import (
	"context"
	"fmt"
	"math"

	"github.com/kilianp07/gridmarket/core/curve"
	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
)

// BufferConfig configures a time-shiftable storage device such as a battery.
type BufferConfig struct {
	Commodity model.Commodity `json:"commodity"`
	// MaxCharge and MaxDischarge are positive power bounds in W. Device limits,
	// when reported, tighten them further.
	MaxCharge    float64 `json:"max_charge"`
	MaxDischarge float64 `json:"max_discharge"`
	// MinFill is the fill level below which the comfort of the device is
	// violated.
	MinFill float64 `json:"min_fill"`
}

// Validate checks the power bounds.
func (c BufferConfig) Validate() error {
	if c.MaxCharge < 0 || c.MaxDischarge < 0 {
		return fmt.Errorf("%w: buffer power bounds must be positive", ErrConfiguration)
	}
	if c.MinFill < 0 || c.MinFill > 1 {
		return fmt.Errorf("%w: buffer min_fill %v outside [0,1]", ErrConfiguration, c.MinFill)
	}
	return nil
}

// Buffer bids a line spanning its charge/discharge range across the comfort
// window: it charges when cheap and discharges when expensive.
type Buffer struct {
	cfg    BufferConfig
	dev    device.StateAccessor
	domain Domain
	strict bool
	bid    lastBid
}

// NewBuffer returns a buffer contract.
func NewBuffer(cfg BufferConfig, env Env) (*Buffer, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Commodity == "" {
		cfg.Commodity = model.Electricity
	}
	return &Buffer{cfg: cfg, dev: env.Device, domain: env.Domain, strict: env.StrictComfort}, nil
}

func (b *Buffer) Commodity() model.Commodity { return b.cfg.Commodity }

// powerRange returns the charge and discharge power available during iv,
// limited by the device limits and the stored energy.
func (b *Buffer) powerRange(st model.DeviceState, iv Interval) (charge, discharge float64) {
	charge, discharge = b.cfg.MaxCharge, b.cfg.MaxDischarge
	if lim, ok := st.Limits[b.cfg.Commodity]; ok {
		charge = math.Min(charge, math.Max(lim.Max, 0))
		discharge = math.Min(discharge, math.Max(-lim.Min, 0))
	}
	if st.Capacity > 0 && iv.Duration > 0 {
		h := iv.Duration.Hours()
		charge = math.Min(charge, math.Max(st.Capacity-st.Energy, 0)/h)
		discharge = math.Min(discharge, math.Max(st.Energy, 0)/h)
	}
	return charge, discharge
}

// CreateBid returns the buffer's flexibility for iv. Below MinFill a strict
// buffer must run at full charge; a relaxed one may still wait for a cheaper
// price but never discharges.
func (b *Buffer) CreateBid(ctx context.Context, iv Interval) (*curve.Curve, error) {
	st, err := syncState(ctx, b.dev)
	if err != nil {
		return nil, err
	}
	charge, discharge := b.powerRange(st, iv)
	var c *curve.Curve
	switch {
	case st.Capacity > 0 && st.Fill() < b.cfg.MinFill && b.strict:
		c, err = b.domain.Flat(charge)
	case st.Capacity > 0 && st.Fill() < b.cfg.MinFill:
		c, err = b.domain.Line(charge, 0)
	default:
		c, err = b.domain.Line(charge, -discharge)
	}
	if err != nil {
		return nil, err
	}
	b.bid.store(iv, c, st)
	return c, nil
}

// ApplyPrice dispatches the buffer at its own bid's demand for price.
func (b *Buffer) ApplyPrice(ctx context.Context, iv Interval, price float64) (model.Plan, error) {
	bid, st, err := b.bid.load(iv)
	if err != nil {
		return nil, err
	}
	power := st.Clamp(b.cfg.Commodity, bid.DemandForPrice(price))
	plan := singleEntry(iv, b.cfg.Commodity, power)
	if err := b.dev.SetPlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
