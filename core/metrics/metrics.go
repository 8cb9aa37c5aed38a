package metrics

import (
	"time"

	"github.com/kilianp07/gridmarket/core/model"
)

// Sink records named values. Recording is fire-and-forget: errors are logged
// by the caller and never influence the market.
type Sink interface {
	LogValue(name string, value float64) error
}

// ClearingEvent captures the outcome of one market interval.
type ClearingEvent struct {
	Result   model.ClearingResult
	Duration time.Duration
}

// ClearingRecorder records clearing results.
type ClearingRecorder interface {
	RecordClearing(ev ClearingEvent) error
}

// DispatchEvent describes the setpoint written to one device.
type DispatchEvent struct {
	IntervalID  string
	Participant string
	Commodity   model.Commodity
	PowerW      float64
	Price       float64
	Time        time.Time
}

// DispatchRecorder records dispatched setpoints.
type DispatchRecorder interface {
	RecordDispatch(ev DispatchEvent) error
}

// FallbackEvent records a participant whose bid was replaced by a flat bid.
type FallbackEvent struct {
	IntervalID  string
	Participant string
	Reason      string
	Time        time.Time
}

// FallbackRecorder records bid fallbacks.
type FallbackRecorder interface {
	RecordFallback(ev FallbackEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) LogValue(string, float64) error     { return nil }
func (NopSink) RecordClearing(ClearingEvent) error { return nil }
func (NopSink) RecordDispatch(DispatchEvent) error { return nil }
func (NopSink) RecordFallback(FallbackEvent) error { return nil }
