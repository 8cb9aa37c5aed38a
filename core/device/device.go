// Package device defines how the market reads and writes device state.
//
// Device state may be mutated concurrently by sensor or simulation ticks, so
// implementations guard every read and write with a short, non-reentrant
// critical section scoped to the device. Callers must never call back into the
// market while such a section is held.
package device

import (
	"context"
	"errors"

	"github.com/kilianp07/gridmarket/core/model"
)

// ErrStale is returned by Sync when the last known state is too old to bid on.
var ErrStale = errors.New("device: state is stale")

// StateAccessor is the narrow interface to a physical or simulated device.
type StateAccessor interface {
	// Sync returns a snapshot of the current device state.
	Sync(ctx context.Context) (model.DeviceState, error)
	// SetPlan replaces the device plan for the given commodities.
	SetPlan(ctx context.Context, plan model.Plan) error
}
