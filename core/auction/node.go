package auction

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/gridmarket/core/curve"
	"github.com/kilianp07/gridmarket/core/model"
)

// Node is one participant of the tree. A node without a contract only
// aggregates its children.
type Node struct {
	name     string
	contract BidDispatchContract
	children []*Node
	stages   []Stage
	local    *LocalMarket
	state    *machine[ParticipantState]

	// skip is set when the own bid fell back; only the goroutine visiting
	// the node in the current cycle touches it.
	skip bool
}

// NewNode returns a tree node. contract may be nil for pure aggregators.
func NewNode(name string, contract BidDispatchContract) *Node {
	return &Node{
		name:     name,
		contract: contract,
		state:    newMachine("participant "+name, ParticipantIdle, participantTransitions),
	}
}

func (n *Node) Name() string                  { return n.name }
func (n *Node) Contract() BidDispatchContract { return n.contract }
func (n *Node) Children() []*Node             { return append([]*Node(nil), n.children...) }
func (n *Node) LocalMarket() *LocalMarket     { return n.local }

// State returns the participant state.
func (n *Node) State() ParticipantState { return n.state.current() }

// AddChild appends children in bid order.
func (n *Node) AddChild(children ...*Node) *Node {
	n.children = append(n.children, children...)
	return n
}

// AddStage appends stages run before the node bids.
func (n *Node) AddStage(stages ...Stage) *Node {
	n.stages = append(n.stages, stages...)
	return n
}

// SetLocalMarket turns the node into an islanded sub-market.
func (n *Node) SetLocalMarket(m *LocalMarket) *Node {
	n.local = m
	return n
}

// Walk visits the subtree depth-first, parents before children.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Walk(fn)
	}
}

func (n *Node) reset() {
	n.Walk(func(x *Node) {
		x.state.reset()
		x.skip = false
	})
}

// collect returns the summed bids of the subtree: children first, then the
// node's own bid.
func (n *Node) collect(ctx context.Context, cy *cycle) (bids, error) {
	for _, s := range n.stages {
		if err := s.BeforeBid(ctx, cy.iv); err != nil {
			cy.log.Warnf("node %s: stage %s: %v", n.name, s.Name(), err)
		}
	}
	out, err := n.collectChildren(ctx, cy)
	if err != nil {
		return nil, err
	}
	if n.contract != nil {
		out.add(n.contract.Commodity(), n.ownBid(ctx, cy))
	}
	if n.local != nil {
		out = n.local.settle(n.name, out, cy)
	}
	if err := n.state.to(ParticipantBidSubmitted); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) collectChildren(ctx context.Context, cy *cycle) (bids, error) {
	results := make([]bids, len(n.children))
	if cy.parallel && len(n.children) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, child := range n.children {
			i, child := i, child
			g.Go(func() error {
				b, err := child.collect(gctx, cy)
				results[i] = b
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, child := range n.children {
			b, err := child.collect(ctx, cy)
			if err != nil {
				return nil, err
			}
			results[i] = b
		}
	}
	// Summation order follows the child order whatever the traversal.
	out := bids{}
	for i, b := range results {
		out.merge(b)
		if err := n.children[i].state.to(ParticipantAwaitingPrice); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (n *Node) ownBid(ctx context.Context, cy *cycle) *curve.Curve {
	bid, err := n.contract.CreateBid(ctx, cy.iv)
	if err == nil {
		err = checkBid(bid, cy.dom)
	}
	if err != nil {
		n.skip = true
		cy.fallback(n.name, n.contract.Commodity(), err)
		return cy.dom.fallback()
	}
	n.skip = false
	return bid
}

func checkBid(bid *curve.Curve, dom Domain) error {
	switch {
	case bid == nil:
		return fmt.Errorf("%w: nil curve", ErrMalformedBid)
	case !bid.IsMonotone():
		return fmt.Errorf("%w: %v", ErrMalformedBid, curve.ErrNonMonotonic)
	case bid.MinPrice() != dom.MinPrice || bid.MaxPrice() != dom.MaxPrice:
		return fmt.Errorf("%w: domain [%v, %v] differs from market [%v, %v]",
			ErrMalformedBid, bid.MinPrice(), bid.MaxPrice(), dom.MinPrice, dom.MaxPrice)
	}
	return nil
}

// dispatch applies prices to the node and broadcasts them to the subtree.
func (n *Node) dispatch(ctx context.Context, cy *cycle, prices map[model.Commodity]float64) error {
	if n.local != nil {
		prices = n.local.overlay(prices)
	}
	if err := n.applyOwn(ctx, cy, prices); err != nil {
		return err
	}
	if cy.parallel && len(n.children) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for _, child := range n.children {
			child := child
			g.Go(func() error { return child.dispatch(gctx, cy, prices) })
		}
		return g.Wait()
	}
	for _, child := range n.children {
		if err := child.dispatch(ctx, cy, prices); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) applyOwn(ctx context.Context, cy *cycle, prices map[model.Commodity]float64) error {
	if n.contract == nil {
		if err := n.state.to(ParticipantDispatched); err != nil {
			return err
		}
		return n.state.to(ParticipantIdle)
	}
	c := n.contract.Commodity()
	price, ok := prices[c]
	switch {
	case n.skip:
		cy.skip(n.name, "fallback bid")
		return n.state.to(ParticipantIdle)
	case !ok:
		cy.log.Warnf("node %s: no price for %s", n.name, c)
		cy.skip(n.name, "no price for "+string(c))
		return n.state.to(ParticipantIdle)
	}
	plan, err := n.contract.ApplyPrice(ctx, cy.iv, price)
	if err != nil {
		cy.log.Warnf("node %s: apply price %.2f: %v", n.name, price, err)
		cy.skip(n.name, err.Error())
		return n.state.to(ParticipantIdle)
	}
	if err := n.state.to(ParticipantDispatched); err != nil {
		return err
	}
	cy.dispatch(n.name, plan, price)
	return n.state.to(ParticipantIdle)
}
