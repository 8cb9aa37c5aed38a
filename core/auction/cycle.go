package auction

import (
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/logger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

// cycle carries the per-interval context through the tree.
type cycle struct {
	iv       Interval
	dom      Domain
	parallel bool
	log      logger.Logger
	bus      eventbus.EventBus

	mu         sync.Mutex
	fallbacks  []string
	skipped    []string
	dispatched int
}

func (cy *cycle) publish(ev eventbus.Event) {
	if cy.bus != nil {
		cy.bus.Publish(ev)
	}
}

func (cy *cycle) fallback(node string, c model.Commodity, err error) {
	reason := "malformed_bid"
	if errors.Is(err, ErrStateSync) {
		reason = "state_sync"
	}
	cy.log.Warnw("participant bid replaced by flat bid", map[string]any{
		"participant": node,
		"commodity":   string(c),
		"interval":    cy.iv.ID,
		"reason":      reason,
		"error":       err.Error(),
	})
	fallbackTotal.WithLabelValues(reason).Inc()
	cy.mu.Lock()
	cy.fallbacks = append(cy.fallbacks, node)
	cy.mu.Unlock()
	cy.publish(events.FallbackEvent{IntervalID: cy.iv.ID, Participant: node, Commodity: c, Reason: reason, Err: err})
}

func (cy *cycle) skip(node, reason string) {
	cy.mu.Lock()
	cy.skipped = append(cy.skipped, node)
	cy.mu.Unlock()
	cy.publish(events.SkipEvent{IntervalID: cy.iv.ID, Participant: node, Reason: reason})
}

func (cy *cycle) dispatch(node string, plan model.Plan, price float64) {
	cy.mu.Lock()
	cy.dispatched++
	cy.mu.Unlock()
	now := time.Now()
	for _, c := range plan.Commodities() {
		for _, e := range plan[c] {
			cy.publish(events.DispatchEvent{
				IntervalID:  cy.iv.ID,
				Participant: node,
				Commodity:   c,
				PowerW:      real(e.Power),
				Price:       price,
				Timestamp:   now,
			})
		}
	}
}
