package auction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridmarket/core/curve"
	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *testLogger) Debugf(string, ...any)         {}
func (l *testLogger) Debugw(string, map[string]any) {}
func (l *testLogger) Infof(string, ...any)          {}
func (l *testLogger) Errorf(string, ...any)         {}

func (l *testLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *testLogger) Warnw(msg string, fields map[string]any) {
	l.mu.Lock()
	l.warns = append(l.warns, fmt.Sprintf("%s %v", msg, fields))
	l.mu.Unlock()
}

func (l *testLogger) warned(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.warns {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func env(dev device.StateAccessor) Env {
	return Env{Device: dev, Domain: DefaultDomain}
}

func consuming(w float64) *device.MemoryDevice {
	return device.NewMemoryDevice(model.DeviceState{
		Consumption: map[model.Commodity]complex128{model.Electricity: complex(w, 0)},
	})
}

func fixedNode(t *testing.T, name string, w float64) (*Node, *device.MemoryDevice) {
	t.Helper()
	dev := consuming(w)
	c, err := NewFixedLoad(FixedConfig{Commodity: model.Electricity}, env(dev))
	if err != nil {
		t.Fatalf("fixed load: %v", err)
	}
	return NewNode(name, c), dev
}

func bufferNode(t *testing.T, name string, maxPower float64) (*Node, *device.MemoryDevice) {
	t.Helper()
	dev := device.NewMemoryDevice(model.DeviceState{})
	c, err := NewBuffer(BufferConfig{MaxCharge: maxPower, MaxDischarge: maxPower}, env(dev))
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	return NewNode(name, c), dev
}

func newClearer(t *testing.T, cfg Config, root *Node, cc *CongestionConstraint) (*Clearer, *testLogger) {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	log := &testLogger{}
	c, err := NewClearer(cfg, root, cc, log)
	if err != nil {
		t.Fatalf("clearer: %v", err)
	}
	return c, log
}

func power(t *testing.T, dev device.StateAccessor, c model.Commodity) float64 {
	t.Helper()
	st, err := dev.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	return real(st.Consumption[c])
}

func planned(t *testing.T, dev device.StateAccessor, c model.Commodity) []model.PlanEntry {
	t.Helper()
	st, err := dev.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	return st.Plan[c]
}

// curveContract bids a caller-supplied curve builder.
type curveContract struct {
	commodity model.Commodity
	build     func() (*curve.Curve, error)
	mu        sync.Mutex
	applied   []float64
}

func (c *curveContract) Commodity() model.Commodity { return c.commodity }

func (c *curveContract) CreateBid(context.Context, Interval) (*curve.Curve, error) {
	return c.build()
}

func (c *curveContract) ApplyPrice(_ context.Context, _ Interval, price float64) (model.Plan, error) {
	c.mu.Lock()
	c.applied = append(c.applied, price)
	c.mu.Unlock()
	return model.Plan{}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	values map[string]float64
}

func (s *recordingSink) LogValue(name string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]float64)
	}
	s.values[name] = v
	return nil
}
