package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/gridmarket/core/events"
	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
	"github.com/kilianp07/gridmarket/infra/logger"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards market events
// to the recorders implemented by sink. It stops when the context is canceled
// or the bus is closed; events already buffered at cancellation are still
// recorded. The returned channel is closed once the collector has stopped.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	handle := func(ev eventbus.Event) {
		if err := record(sink, ev); err != nil {
			log.Errorf("record %T: %v", ev, err)
		}
	}
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
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

func record(sink coremetrics.Sink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.ClearingEvent:
		if r, ok := sink.(coremetrics.ClearingRecorder); ok {
			return r.RecordClearing(coremetrics.ClearingEvent{Result: e.Result, Duration: e.Duration})
		}
	case events.DispatchEvent:
		if r, ok := sink.(coremetrics.DispatchRecorder); ok {
			return r.RecordDispatch(coremetrics.DispatchEvent{
				IntervalID:  e.IntervalID,
				Participant: e.Participant,
				Commodity:   e.Commodity,
				PowerW:      e.PowerW,
				Price:       e.Price,
				Time:        e.Timestamp,
			})
		}
	case events.FallbackEvent:
		if r, ok := sink.(coremetrics.FallbackRecorder); ok {
			return r.RecordFallback(coremetrics.FallbackEvent{
				IntervalID:  e.IntervalID,
				Participant: e.Participant,
				Reason:      e.Reason,
				Time:        time.Now(),
			})
		}
	}
	return nil
}
