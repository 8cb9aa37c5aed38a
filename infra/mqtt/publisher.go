package mqtt

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/infra/logger"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic, kind string, retained bool, payload []byte) error
}

// PriceMessage is the retained payload published per commodity after every
// clearing.
type PriceMessage struct {
	IntervalID  string    `json:"interval_id"`
	Timestamp   time.Time `json:"timestamp"`
	Price       float64   `json:"price"`
	Target      float64   `json:"target"`
	Demand      float64   `json:"demand"`
	Constrained bool      `json:"constrained"`
	Infeasible  bool      `json:"infeasible"`
}

// PriceMessages splits a clearing result into per-commodity messages.
func PriceMessages(r model.ClearingResult) map[model.Commodity]PriceMessage {
	out := make(map[model.Commodity]PriceMessage, len(r.Prices))
	for c, p := range r.Prices {
		out[c] = PriceMessage{
			IntervalID:  r.IntervalID,
			Timestamp:   r.Timestamp,
			Price:       p,
			Target:      r.Targets[c],
			Demand:      r.Demand[c],
			Constrained: slices.Contains(r.Constrained, c),
			Infeasible:  slices.Contains(r.Infeasible, c),
		}
	}
	return out
}

// StartResultPublisher publishes the clearing results seen on the bus to the
// price topics. It stops when the bus is closed, or when ctx is canceled after
// publishing the results still queued. The returned channel is closed once it
// has stopped.
func StartResultPublisher(ctx context.Context, bus eventbus.EventBus, pub Publisher, topics Topics) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || pub == nil {
		close(done)
		return done
	}
	log := logger.New("mqtt_publisher")
	sub := bus.Subscribe()
	handle := func(ev eventbus.Event) {
		ce, ok := ev.(events.ClearingEvent)
		if !ok {
			return
		}
		for c, m := range PriceMessages(ce.Result) {
			payload, err := json.Marshal(m)
			if err != nil {
				log.Errorf("encode price %s: %v", c, err)
				continue
			}
			if err := pub.Publish(topics.Price(c), "price", true, payload); err != nil {
				log.Errorf("publish price %s: %v", c, err)
			}
		}
	}
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				// flush results already queued
				for {
					select {
					case ev, ok := <-sub:
						if !ok {
							return
						}
						handle(ev)
					default:
						return
					}
				}
			case ev, ok := <-sub:
				if !ok {
					return
				}
				handle(ev)
			}
		}
	}()
	return done
}
