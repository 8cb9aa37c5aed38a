package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/gridmarket/core/model"
)

func TestMemoryDeviceSetPlanUpdatesConsumption(t *testing.T) {
	d := NewMemoryDevice(model.DeviceState{})
	ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	plan := model.Plan{model.Electricity: {{Timestamp: ts, Power: complex(1500, 0)}}}
	if err := d.SetPlan(context.Background(), plan); err != nil {
		t.Fatalf("set plan: %v", err)
	}
	st, err := d.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if real(st.Consumption[model.Electricity]) != 1500 {
		t.Fatalf("expected 1500 got %v", st.Consumption[model.Electricity])
	}
	if len(st.Plan[model.Electricity]) != 1 || !st.Plan[model.Electricity][0].Timestamp.Equal(ts) {
		t.Fatalf("plan not stored: %#v", st.Plan)
	}
}

func TestMemoryDeviceFailSync(t *testing.T) {
	d := NewMemoryDevice(model.DeviceState{})
	boom := errors.New("offline")
	d.FailSync(boom)
	if _, err := d.Sync(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected offline error got %v", err)
	}
	d.FailSync(nil)
	if _, err := d.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestMemoryDeviceTickClampsEnergy(t *testing.T) {
	d := NewMemoryDevice(model.DeviceState{Capacity: 1000, Energy: 900})
	d.Update(func(s *model.DeviceState) { s.Consumption[model.Electricity] = 500 })
	d.Tick(model.Electricity, time.Hour, time.Now())
	st, _ := d.Sync(context.Background())
	if st.Energy != 1000 {
		t.Fatalf("expected full buffer got %v", st.Energy)
	}
	d.Update(func(s *model.DeviceState) { s.Consumption[model.Electricity] = -4000 })
	d.Tick(model.Electricity, time.Hour, time.Now())
	st, _ = d.Sync(context.Background())
	if st.Energy != 0 {
		t.Fatalf("expected empty buffer got %v", st.Energy)
	}
}

func TestMemoryDeviceConcurrentAccess(t *testing.T) {
	d := NewMemoryDevice(model.DeviceState{Capacity: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Tick(model.Electricity, time.Minute, time.Now())
		}()
		go func(i int) {
			defer wg.Done()
			_ = d.SetPlan(context.Background(), model.Plan{model.Electricity: {{Power: complex(float64(i), 0)}}})
			_, _ = d.Sync(context.Background())
		}(i)
	}
	wg.Wait()
}
