package auction

import (
	"sort"
	"sync"

	"github.com/kilianp07/gridmarket/core/model"
)

// LocalMarket turns a node into an islanded sub-market. The node clears its
// subtree against local targets, broadcasts the local prices to its children
// and bids a flat curve at the local target into its parent.
type LocalMarket struct {
	mu         sync.Mutex
	targets    map[model.Commodity]float64
	congestion *CongestionConstraint
	step       float64
	prices     map[model.Commodity]float64
}

// NewLocalMarket returns a sub-market for the commodities in targets.
func NewLocalMarket(targets map[model.Commodity]float64, cc *CongestionConstraint, step float64) *LocalMarket {
	m := &LocalMarket{
		targets:    make(map[model.Commodity]float64, len(targets)),
		congestion: cc,
		step:       step,
		prices:     make(map[model.Commodity]float64),
	}
	for c, v := range targets {
		m.targets[c] = v
	}
	return m
}

// Commodities lists the commodities cleared locally.
func (m *LocalMarket) Commodities() []model.Commodity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Commodity, 0, len(m.targets))
	for c := range m.targets {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetTarget replaces the local target of c.
func (m *LocalMarket) SetTarget(c model.Commodity, v float64) {
	m.mu.Lock()
	m.targets[c] = v
	m.mu.Unlock()
}

// Target returns the local target of c.
func (m *LocalMarket) Target(c model.Commodity) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targets[c]
}

// Price returns the last local clearing price of c.
func (m *LocalMarket) Price(c model.Commodity) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[c]
	return p, ok
}

func (m *LocalMarket) covers(c model.Commodity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.targets[c]
	return ok
}

// settle clears the subtree bids locally and returns the bids the node
// forwards to its parent.
func (m *LocalMarket) settle(node string, sub bids, cy *cycle) bids {
	out := bids{}
	for _, c := range sub.commodities() {
		if !m.covers(c) {
			out[c] = sub[c]
		}
	}
	prices := make(map[model.Commodity]float64)
	for _, c := range m.Commodities() {
		agg, ok := sub[c]
		if !ok {
			agg = cy.dom.fallback()
		}
		res := clearCurve(agg, c, m.Target(c), m.congestion, cy.dom, m.step)
		if res.infeasible {
			cy.log.Warnf("sub-market %s: target %.1f for %s outside bid range, price clamped to %.2f", node, res.target, c, res.price)
		}
		prices[c] = res.price
		flat, err := cy.dom.Flat(res.demand)
		if err != nil {
			flat = cy.dom.fallback()
		}
		out[c] = flat
		cy.log.Debugw("sub-market cleared", map[string]any{
			"node": node, "commodity": string(c), "price": res.price, "target": res.target, "exchange": res.demand,
		})
	}
	m.mu.Lock()
	m.prices = prices
	m.mu.Unlock()
	return out
}

// overlay returns prices with the local prices substituted.
func (m *LocalMarket) overlay(prices map[model.Commodity]float64) map[model.Commodity]float64 {
	out := make(map[model.Commodity]float64, len(prices))
	for c, p := range prices {
		out[c] = p
	}
	m.mu.Lock()
	for c, p := range m.prices {
		out[c] = p
	}
	m.mu.Unlock()
	return out
}
