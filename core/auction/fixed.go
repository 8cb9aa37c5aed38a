package auction

import (
	"context"
	"fmt"

	"github.com/kilianp07/gridmarket/core/curve"
	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
)

// FixedConfig configures a static load.
type FixedConfig struct {
	Commodity model.Commodity `json:"commodity"`
	// Power overrides the consumption reported by the device when non-zero.
	Power float64 `json:"power"`
}

// FixedLoad bids its forecast consumption at any price.
type FixedLoad struct {
	cfg    FixedConfig
	dev    device.StateAccessor
	domain Domain
	bid    lastBid
}

// NewFixedLoad returns a static-load contract.
func NewFixedLoad(cfg FixedConfig, env Env) (*FixedLoad, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	if cfg.Commodity == "" {
		cfg.Commodity = model.Electricity
	}
	return &FixedLoad{cfg: cfg, dev: env.Device, domain: env.Domain}, nil
}

func (f *FixedLoad) Commodity() model.Commodity { return f.cfg.Commodity }

// CreateBid returns a flat curve at the current consumption.
func (f *FixedLoad) CreateBid(ctx context.Context, iv Interval) (*curve.Curve, error) {
	st, err := syncState(ctx, f.dev)
	if err != nil {
		return nil, err
	}
	demand := real(st.Consumption[f.cfg.Commodity])
	if f.cfg.Power != 0 {
		demand = f.cfg.Power
	}
	c, err := f.domain.Flat(demand)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBid, err)
	}
	f.bid.store(iv, c, st)
	return c, nil
}

// ApplyPrice writes the forecast consumption back to the device.
func (f *FixedLoad) ApplyPrice(ctx context.Context, iv Interval, price float64) (model.Plan, error) {
	bid, st, err := f.bid.load(iv)
	if err != nil {
		return nil, err
	}
	power := st.Clamp(f.cfg.Commodity, bid.DemandForPrice(price))
	plan := singleEntry(iv, f.cfg.Commodity, power)
	if err := f.dev.SetPlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
