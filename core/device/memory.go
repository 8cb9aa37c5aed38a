package device

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/gridmarket/core/model"
)

// MemoryDevice is an in-process device used by the simulator and tests.
type MemoryDevice struct {
	mu      sync.Mutex
	state   model.DeviceState
	syncErr error
}

// NewMemoryDevice returns a device initialised with the given state.
func NewMemoryDevice(initial model.DeviceState) *MemoryDevice {
	st := initial.Clone()
	if st.Consumption == nil {
		st.Consumption = make(map[model.Commodity]complex128)
	}
	if st.Limits == nil {
		st.Limits = make(map[model.Commodity]model.Limits)
	}
	if st.Plan == nil {
		st.Plan = make(model.Plan)
	}
	return &MemoryDevice{state: st}
}

// Sync returns a copy of the device state.
func (d *MemoryDevice) Sync(_ context.Context) (model.DeviceState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.syncErr != nil {
		return model.DeviceState{}, d.syncErr
	}
	return d.state.Clone(), nil
}

// SetPlan stores the plan and makes its first entry the current consumption.
func (d *MemoryDevice) SetPlan(_ context.Context, plan model.Plan) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c, entries := range plan {
		d.state.Plan[c] = append([]model.PlanEntry(nil), entries...)
		if len(entries) > 0 {
			d.state.Consumption[c] = entries[0].Power
		}
	}
	return nil
}

// Update mutates the state under the device lock. fn must not call back into
// the device.
func (d *MemoryDevice) Update(fn func(*model.DeviceState)) {
	d.mu.Lock()
	fn(&d.state)
	d.mu.Unlock()
}

// FailSync makes subsequent Sync calls return err; nil restores normal operation.
func (d *MemoryDevice) FailSync(err error) {
	d.mu.Lock()
	d.syncErr = err
	d.mu.Unlock()
}

// Tick advances a buffer device by dt using the current consumption of the
// given commodity, keeping the stored energy inside [0, Capacity].
func (d *MemoryDevice) Tick(commodity model.Commodity, dt time.Duration, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.Capacity > 0 {
		e := d.state.Energy + real(d.state.Consumption[commodity])*dt.Hours()
		if e < 0 {
			e = 0
		}
		if e > d.state.Capacity {
			e = d.state.Capacity
		}
		d.state.Energy = e
	}
	d.state.UpdatedAt = now
}
