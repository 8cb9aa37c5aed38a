package auction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/gridmarket/core/clearinglog"
	"github.com/kilianp07/gridmarket/core/curve"
	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/logger"
	"github.com/kilianp07/gridmarket/core/metrics"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

// Clearer runs one auction cycle per interval over a participant tree.
type Clearer struct {
	cfg        Config
	root       *Node
	congestion *CongestionConstraint
	log        logger.Logger

	mu      sync.RWMutex
	sink    metrics.Sink
	bus     eventbus.EventBus
	store   clearinglog.Store
	targets TargetSource
	result  model.ClearingResult
	index   int64

	// cycleMu serializes ClearMarket so intervals never overlap.
	cycleMu sync.Mutex
	state   *machine[ClearerState]
}

// NewClearer validates the configuration and the tree. All errors wrap
// ErrConfiguration and are meant to stop the process before the first interval.
func NewClearer(cfg Config, root *Node, cc *CongestionConstraint, log logger.Logger) (*Clearer, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil participant tree", ErrConfiguration)
	}
	if log == nil {
		return nil, fmt.Errorf("%w: nil logger", ErrConfiguration)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(cc); err != nil {
		return nil, err
	}
	if err := validateTree(cfg, root); err != nil {
		return nil, err
	}
	return &Clearer{
		cfg:        cfg,
		root:       root,
		congestion: cc,
		log:        log,
		sink:       metrics.NopSink{},
		store:      clearinglog.NopStore{},
		state:      newMachine("clearer", ClearerIdle, clearerTransitions),
	}, nil
}

func validateTree(cfg Config, root *Node) error {
	names := make(map[string]bool)
	var err error
	root.Walk(func(n *Node) {
		if err != nil {
			return
		}
		switch {
		case n.name == "":
			err = fmt.Errorf("%w: participant without name", ErrConfiguration)
		case names[n.name]:
			err = fmt.Errorf("%w: duplicate participant %q", ErrConfiguration, n.name)
		case n.contract != nil && !cfg.has(n.contract.Commodity()):
			err = fmt.Errorf("%w: participant %q bids in unsupported commodity %q",
				ErrConfiguration, n.name, n.contract.Commodity())
		}
		names[n.name] = true
		if err == nil && n.local != nil {
			for _, c := range n.local.Commodities() {
				if !cfg.has(c) {
					err = fmt.Errorf("%w: sub-market %q clears unsupported commodity %q", ErrConfiguration, n.name, c)
					return
				}
			}
		}
	})
	return err
}

// SetSink configures the logging sink. Values are fire-and-forget.
func (c *Clearer) SetSink(s metrics.Sink) {
	if s == nil {
		s = metrics.NopSink{}
	}
	c.mu.Lock()
	c.sink = s
	c.mu.Unlock()
}

// SetBus configures the bus receiving market events.
func (c *Clearer) SetBus(b eventbus.EventBus) {
	c.mu.Lock()
	c.bus = b
	c.mu.Unlock()
}

// SetLogStore configures the store used to persist clearing results.
func (c *Clearer) SetLogStore(s clearinglog.Store) {
	if s == nil {
		s = clearinglog.NopStore{}
	}
	c.mu.Lock()
	c.store = s
	c.mu.Unlock()
}

// SetTargetSource configures the external ctrlMode/target source read at the
// start of each cycle.
func (c *Clearer) SetTargetSource(src TargetSource) {
	c.mu.Lock()
	c.targets = src
	c.mu.Unlock()
}

// Config returns the effective configuration.
func (c *Clearer) Config() Config { return c.cfg }

// Root returns the participant tree.
func (c *Clearer) Root() *Node { return c.root }

// State returns the current clearing state.
func (c *Clearer) State() ClearerState { return c.state.current() }

// CurrentPrice returns the last clearing price of commodity.
func (c *Clearer) CurrentPrice(com model.Commodity) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.result.Prices[com]
	return p, ok
}

// Result returns a copy of the last clearing result.
func (c *Clearer) Result() model.ClearingResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result.Clone()
}

// ClearMarket runs one complete cycle for the interval starting at now: bid
// collection, aggregation, clearing and dispatch. Concurrent calls are
// serialized. Participant failures degrade to flat bids; only broken state
// transitions are returned as errors.
func (c *Clearer) ClearMarket(ctx context.Context, now time.Time) (model.ClearingResult, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	start := time.Now()

	c.mu.Lock()
	iv := NewInterval(c.index, now, c.cfg.Interval())
	c.index++
	sink, bus, store, src := c.sink, c.bus, c.store, c.targets
	c.mu.Unlock()

	cy := &cycle{iv: iv, dom: c.cfg.Domain, parallel: c.cfg.Parallel, log: c.log, bus: bus}
	res, err := c.run(ctx, cy, src)
	if err != nil {
		c.state.reset()
		c.root.reset()
		return model.ClearingResult{}, err
	}
	took := time.Since(start)
	clearingDuration.Observe(took.Seconds())
	clearingTotal.Inc()

	c.mu.Lock()
	c.result = res.Clone()
	c.mu.Unlock()

	c.report(ctx, sink, store, res, took)
	if bus != nil {
		bus.Publish(events.ClearingEvent{Result: res.Clone(), Duration: took})
	}
	c.log.Infof("interval %d cleared in %s: prices %v, %d dispatched, %d fallbacks",
		iv.Index, took, res.Prices, cy.dispatched, len(res.Fallbacks))
	return res, nil
}

func (c *Clearer) run(ctx context.Context, cy *cycle, src TargetSource) (model.ClearingResult, error) {
	if err := c.state.to(ClearerCollectingBids); err != nil {
		return model.ClearingResult{}, err
	}
	collected, err := c.root.collect(ctx, cy)
	if err != nil {
		return model.ClearingResult{}, err
	}

	if err := c.state.to(ClearerAggregating); err != nil {
		return model.ClearingResult{}, err
	}
	if err := c.root.state.to(ParticipantAwaitingPrice); err != nil {
		return model.ClearingResult{}, err
	}
	agg := make(bids, len(c.cfg.Commodities))
	for _, com := range c.cfg.Commodities {
		if b, ok := collected[com]; ok {
			agg[com] = b
			continue
		}
		empty, err := c.cfg.Domain.NewCurve()
		if err != nil {
			return model.ClearingResult{}, err
		}
		agg[com] = empty
	}

	if err := c.state.to(ClearerClearing); err != nil {
		return model.ClearingResult{}, err
	}
	res := model.ClearingResult{
		IntervalID:  cy.iv.ID,
		Timestamp:   cy.iv.Start,
		Prices:      make(map[model.Commodity]float64, len(agg)),
		Targets:     make(map[model.Commodity]float64, len(agg)),
		Demand:      make(map[model.Commodity]float64, len(agg)),
		Flexibility: make(map[model.Commodity]float64, len(agg)),
	}
	for _, com := range c.cfg.Commodities {
		target := c.resolveTarget(com, agg[com], src)
		out := clearCurve(agg[com], com, target, c.congestion, c.cfg.Domain, c.cfg.DiscreteStep)
		if out.constrained {
			congestedTotal.WithLabelValues(string(com)).Inc()
			res.Constrained = append(res.Constrained, com)
			c.log.Warnf("target %.1f for %s clamped to congestion limit %.1f", target, com, out.target)
		}
		if out.infeasible {
			infeasibleTotal.WithLabelValues(string(com)).Inc()
			res.Infeasible = append(res.Infeasible, com)
			lo, hi := agg[com].DemandRange()
			c.log.Warnf("target %.1f for %s outside aggregate range [%.1f, %.1f], price clamped to %.2f",
				out.target, com, lo, hi, out.price)
		}
		res.Prices[com] = out.price
		res.Targets[com] = out.target
		res.Demand[com] = out.demand
		res.Flexibility[com] = agg[com].Surface()
	}

	if err := c.state.to(ClearerDispatching); err != nil {
		return model.ClearingResult{}, err
	}
	if err := c.root.dispatch(ctx, cy, res.Prices); err != nil {
		return model.ClearingResult{}, err
	}
	res.Fallbacks = append([]string(nil), cy.fallbacks...)
	sort.Strings(res.Fallbacks)
	if err := c.state.to(ClearerIdle); err != nil {
		return model.ClearingResult{}, err
	}
	return res, nil
}

// resolveTarget picks the net-demand target of com before congestion
// clamping: islanding first, then the external override, then the mode.
func (c *Clearer) resolveTarget(com model.Commodity, agg *curve.Curve, src TargetSource) float64 {
	if c.cfg.Islanding {
		return c.cfg.IslandTargets[com]
	}
	mode := c.cfg.Mode
	target, hasTarget := c.cfg.Targets[com], false
	if src != nil {
		if o, ok := src.TakeOverride(com); ok {
			if o.Mode != "" {
				if _, limited := c.congestion.Limits(com); o.Mode == ModeReference && !limited {
					c.log.Warnf("ignoring switch to reference mode for %s: no congestion limit", com)
				} else {
					mode = o.Mode
				}
			}
			if o.Target != nil {
				target, hasTarget = *o.Target, true
			}
		}
	}
	if mode == ModeReference && !hasTarget {
		return agg.DemandForPrice(c.cfg.ReferencePrices[com])
	}
	return target
}

func (c *Clearer) report(ctx context.Context, sink metrics.Sink, store clearinglog.Store, res model.ClearingResult, took time.Duration) {
	for _, com := range c.cfg.Commodities {
		for name, v := range map[string]float64{
			"price":       res.Prices[com],
			"target":      res.Targets[com],
			"demand":      res.Demand[com],
			"flexibility": res.Flexibility[com],
		} {
			if err := sink.LogValue(fmt.Sprintf("market.%s.%s", com, name), v); err != nil {
				c.log.Errorf("metrics sink: %v", err)
			}
		}
	}
	if err := store.Append(ctx, clearinglog.NewRecord(res, took)); err != nil {
		c.log.Errorf("clearing log: %v", err)
	}
}
