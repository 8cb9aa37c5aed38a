// Package events defines the market events emitted on the event bus.
//
// Available event types:
//   - ClearingEvent: one interval cleared
//   - FallbackEvent: a participant's bid was replaced by a flat bid
//   - DispatchEvent: a setpoint was written to a device
//   - SkipEvent: a participant was not dispatched
package events
