package auction

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/gridmarket/core/curve"
	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
)

// BidDispatchContract is implemented by every device category that takes part
// in the market.
type BidDispatchContract interface {
	// Commodity is the commodity the bid is expressed in.
	Commodity() model.Commodity
	// CreateBid synchronizes device state and returns a fresh curve for iv.
	CreateBid(ctx context.Context, iv Interval) (*curve.Curve, error)
	// ApplyPrice evaluates the contract's own bid at price and writes the
	// resulting plan to the device. The written plan is returned.
	ApplyPrice(ctx context.Context, iv Interval, price float64) (model.Plan, error)
}

// Env carries the market-wide settings a contract needs at construction.
type Env struct {
	Device        device.StateAccessor
	Domain        Domain
	StrictComfort bool
}

func (e Env) validate() error {
	if e.Device == nil {
		return fmt.Errorf("%w: nil device", ErrConfiguration)
	}
	return e.Domain.Validate()
}

// lastBid keeps the curve submitted for the current interval so ApplyPrice
// evaluates the participant's own bid, never the aggregate.
type lastBid struct {
	mu    sync.Mutex
	iv    string
	curve *curve.Curve
	state model.DeviceState
}

func (b *lastBid) store(iv Interval, c *curve.Curve, st model.DeviceState) {
	b.mu.Lock()
	b.iv, b.curve, b.state = iv.ID, c, st
	b.mu.Unlock()
}

func (b *lastBid) load(iv Interval) (*curve.Curve, model.DeviceState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.curve == nil || b.iv != iv.ID {
		return nil, model.DeviceState{}, fmt.Errorf("%w: no bid for interval %s", ErrInvalidTransition, iv.ID)
	}
	return b.curve, b.state, nil
}

func syncState(ctx context.Context, dev device.StateAccessor) (model.DeviceState, error) {
	st, err := dev.Sync(ctx)
	if err != nil {
		return model.DeviceState{}, fmt.Errorf("%w: %v", ErrStateSync, err)
	}
	return st, nil
}

func singleEntry(iv Interval, c model.Commodity, power float64) model.Plan {
	return model.Plan{c: {{Timestamp: iv.Start, Power: complex(power, 0)}}}
}
