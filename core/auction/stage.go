package auction

import (
	"context"
	"time"

	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
)

// Stage is a named behavior a node runs every interval before it bids. Nodes
// run their stages in the configured order; a failing stage is logged and
// does not prevent the bid.
type Stage interface {
	Name() string
	BeforeBid(ctx context.Context, iv Interval) error
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	ID string
	Fn func(ctx context.Context, iv Interval) error
}

func (s StageFunc) Name() string { return s.ID }

func (s StageFunc) BeforeBid(ctx context.Context, iv Interval) error {
	if s.Fn == nil {
		return nil
	}
	return s.Fn(ctx, iv)
}

// TickStage advances a simulated device from the previous interval start to
// the current one, integrating the last dispatched power into its storage.
type TickStage struct {
	dev       *device.MemoryDevice
	commodity model.Commodity
	last      time.Time
}

// NewTickStage returns a stage ticking dev for commodity.
func NewTickStage(dev *device.MemoryDevice, commodity model.Commodity) *TickStage {
	return &TickStage{dev: dev, commodity: commodity}
}

func (s *TickStage) Name() string { return "tick" }

func (s *TickStage) BeforeBid(_ context.Context, iv Interval) error {
	if !s.last.IsZero() && iv.Start.After(s.last) {
		s.dev.Tick(s.commodity, iv.Start.Sub(s.last), iv.Start)
	}
	s.last = iv.Start
	return nil
}

// LocalTargetStage copies external overrides into the target of an islanded
// node before it clears its subtree.
type LocalTargetStage struct {
	source TargetSource
	market *LocalMarket
}

// NewLocalTargetStage returns a stage feeding source into market.
func NewLocalTargetStage(source TargetSource, market *LocalMarket) *LocalTargetStage {
	return &LocalTargetStage{source: source, market: market}
}

func (s *LocalTargetStage) Name() string { return "local_target" }

func (s *LocalTargetStage) BeforeBid(_ context.Context, _ Interval) error {
	for _, c := range s.market.Commodities() {
		if o, ok := s.source.TakeOverride(c); ok && o.Target != nil {
			s.market.SetTarget(c, *o.Target)
		}
	}
	return nil
}
