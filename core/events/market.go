package events

import (
	"time"

	"github.com/kilianp07/gridmarket/core/model"
)

// ClearingEvent is published once per interval after dispatch completed.
type ClearingEvent struct {
	Result   model.ClearingResult
	Duration time.Duration
}

// FallbackEvent is published when a participant could not produce a valid bid.
type FallbackEvent struct {
	IntervalID  string
	Participant string
	Commodity   model.Commodity
	// Reason is "state_sync" or "malformed_bid".
	Reason string
	Err    error
}

// DispatchEvent is published for every setpoint written to a device.
type DispatchEvent struct {
	IntervalID  string
	Participant string
	Commodity   model.Commodity
	PowerW      float64
	Price       float64
	Timestamp   time.Time
}

// SkipEvent is published when a participant is not dispatched, either because
// its bid fell back or because writing the plan failed.
type SkipEvent struct {
	IntervalID  string
	Participant string
	Reason      string
}
