package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/infra/logger"
)

// Power is the wire form of a complex power value.
type Power struct {
	Active   float64 `json:"p"`
	Reactive float64 `json:"q,omitempty"`
}

// StateReport is the payload a device publishes on its state topic.
type StateReport struct {
	Timestamp   time.Time               `json:"timestamp"`
	Consumption map[string]Power        `json:"consumption"`
	Limits      map[string]model.Limits `json:"limits"`
	CapacityWh  float64                 `json:"capacity_wh"`
	EnergyWh    float64                 `json:"energy_wh"`
}

// state converts the report, normalizing commodity names.
func (r StateReport) state() (model.DeviceState, error) {
	s := model.DeviceState{
		Consumption: make(map[model.Commodity]complex128, len(r.Consumption)),
		Limits:      make(map[model.Commodity]model.Limits, len(r.Limits)),
		Capacity:    r.CapacityWh,
		Energy:      r.EnergyWh,
		UpdatedAt:   r.Timestamp,
	}
	for name, p := range r.Consumption {
		c, err := model.ParseCommodity(name)
		if err != nil {
			return model.DeviceState{}, err
		}
		s.Consumption[c] = complex(p.Active, p.Reactive)
	}
	for name, l := range r.Limits {
		c, err := model.ParseCommodity(name)
		if err != nil {
			return model.DeviceState{}, err
		}
		if l.Min > l.Max {
			return model.DeviceState{}, fmt.Errorf("limits of %s: min %.1f above max %.1f", c, l.Min, l.Max)
		}
		s.Limits[c] = l
	}
	return s, nil
}

// RemoteDevice is a device.StateAccessor backed by MQTT. It caches the last
// state report and writes plans as acknowledged commands.
type RemoteDevice struct {
	id         string
	cli        *PahoClient
	staleAfter time.Duration
	ackTimeout time.Duration
	now        func() time.Time
	log        logger.Logger

	mu    sync.Mutex
	state model.DeviceState
	seen  bool
}

var _ device.StateAccessor = (*RemoteDevice)(nil)

// NewRemoteDevice subscribes to the state topic of device id.
func NewRemoteDevice(cli *PahoClient, id string) (*RemoteDevice, error) {
	cfg := cli.Config()
	d := &RemoteDevice{
		id:         id,
		cli:        cli,
		staleAfter: cfg.StaleAfter(),
		ackTimeout: cfg.AckTimeout(),
		now:        time.Now,
		log:        logger.New("mqtt_device"),
	}
	if err := cli.Subscribe(cli.Topics().DeviceState(id), "state", d.onState); err != nil {
		return nil, err
	}
	return d, nil
}

// ID returns the device identifier.
func (d *RemoteDevice) ID() string { return d.id }

func (d *RemoteDevice) onState(_ paho.Client, msg paho.Message) {
	var r StateReport
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		d.log.Errorf("device %s: decode state: %v", d.id, err)
		return
	}
	s, err := r.state()
	if err != nil {
		d.log.Errorf("device %s: invalid state: %v", d.id, err)
		return
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = d.now()
	}
	d.mu.Lock()
	s.Plan = d.state.Plan
	d.state = s
	d.seen = true
	d.mu.Unlock()
}

// Sync returns the last reported state. It fails with device.ErrStale when no
// report arrived yet or the last one is older than the configured age.
func (d *RemoteDevice) Sync(ctx context.Context) (model.DeviceState, error) {
	if err := ctx.Err(); err != nil {
		return model.DeviceState{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.seen {
		return model.DeviceState{}, fmt.Errorf("device %s: no state received: %w", d.id, device.ErrStale)
	}
	if d.staleAfter > 0 {
		if age := d.now().Sub(d.state.UpdatedAt); age > d.staleAfter {
			return model.DeviceState{}, fmt.Errorf("device %s: state is %s old: %w", d.id, age, device.ErrStale)
		}
	}
	return d.state.Clone(), nil
}

// SetPlan sends the plan and waits for the device to acknowledge it. The
// cached plan only changes once the device accepted it.
func (d *RemoteDevice) SetPlan(ctx context.Context, plan model.Plan) error {
	id, err := d.cli.SendCommand(d.id, plan)
	if err != nil {
		return fmt.Errorf("device %s: send plan: %w", d.id, err)
	}
	if _, err := d.cli.WaitForAck(ctx, id, d.ackTimeout); err != nil {
		return fmt.Errorf("device %s: %w", d.id, err)
	}
	d.mu.Lock()
	if d.state.Plan == nil {
		d.state.Plan = make(model.Plan, len(plan))
	}
	for c, entries := range plan {
		d.state.Plan[c] = append([]model.PlanEntry(nil), entries...)
	}
	d.mu.Unlock()
	return nil
}
