package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridmarket/config"
	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/scheduler"
	"github.com/kilianp07/gridmarket/infra/logger"
)

const homeConfig = `market:
  commodities: [electricity]
  tick_seconds: 60
  interval_seconds: 900
topology:
  name: home
  children:
    - name: base_load
      contract: {type: fixed, conf: {commodity: electricity}}
      device:
        consumption: {electricity: 400}
    - name: battery
      contract: {type: buffer, conf: {max_charge: 3000, max_discharge: 3000}}
      stages: [tick]
      device:
        capacity_wh: 10000
        energy_wh: 5000
    - name: garage
      local_market:
        targets: {electricity: 0}
      stages: [local_target]
      children:
        - name: charger
          contract: {type: buffer, conf: {max_charge: 2000, max_discharge: 0}}
          device: {type: mqtt, id: ev-01, capacity_wh: 40000, energy_wh: 10000}
mqtt:
  broker: "tcp://localhost:1883"
clearing_log:
  backend: jsonl
  path: clearing.log
`

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func loadConfig(t *testing.T, data string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.ClearingLog.Path = filepath.Join(dir, "clearing.log")
	return cfg
}

func newService(t *testing.T, cfg *config.Config, sc *scheduler.Scenario) *Service {
	t.Helper()
	svc, err := New(cfg, Options{
		Clock:    scheduler.NewSimClock(start),
		Offline:  true,
		Scenario: sc,
		Logger:   logger.NopLogger{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func collect(svc *Service) *[]model.ClearingResult {
	var out []model.ClearingResult
	svc.SetResultHandler(func(r model.ClearingResult) { out = append(out, r) })
	return &out
}

func TestServiceBalancesHome(t *testing.T) {
	svc := newService(t, loadConfig(t, homeConfig), nil)
	results := collect(svc)

	require.NoError(t, svc.RunN(context.Background(), 2))
	require.Len(t, *results, 2)
	for _, r := range *results {
		assert.InDelta(t, 0, r.Targets[model.Electricity], 1e-9)
		assert.InDelta(t, 0, r.Demand[model.Electricity], 1)
		assert.Empty(t, r.Fallbacks)
	}
	assert.True(t, (*results)[1].Timestamp.Equal(start.Add(15*time.Minute)))

	bat, ok := svc.Device("battery")
	require.True(t, ok)
	st, err := bat.Sync(context.Background())
	require.NoError(t, err)
	assert.Less(t, real(st.Consumption[model.Electricity]), 0.0, "battery should discharge")
	assert.Less(t, st.Energy, 5000.0, "tick stage should drain the battery")
}

func TestServiceSimulatesRemoteDevicesOffline(t *testing.T) {
	svc := newService(t, loadConfig(t, homeConfig), nil)
	_, ok := svc.Device("charger")
	assert.True(t, ok)
	_, ok = svc.Device("home")
	assert.False(t, ok)
}

func TestServiceOverrideLastsOneInterval(t *testing.T) {
	svc := newService(t, loadConfig(t, homeConfig), nil)
	results := collect(svc)

	target := 1500.0
	svc.Override(model.Electricity, auction.Override{Target: &target})
	require.NoError(t, svc.RunN(context.Background(), 2))
	require.Len(t, *results, 2)
	assert.InDelta(t, 1500, (*results)[0].Targets[model.Electricity], 1e-9)
	assert.InDelta(t, 0, (*results)[1].Targets[model.Electricity], 1e-9)
}

func TestServiceReplaysScenario(t *testing.T) {
	target := -1000.0
	sc := &scheduler.Scenario{Steps: []scheduler.ScenarioStep{
		{At: start.Add(15 * time.Minute), Commodity: model.Electricity, Target: &target},
	}}
	svc := newService(t, loadConfig(t, homeConfig), sc)
	results := collect(svc)

	require.NoError(t, svc.RunN(context.Background(), 3))
	require.Len(t, *results, 3)
	assert.InDelta(t, 0, (*results)[0].Targets[model.Electricity], 1e-9)
	assert.InDelta(t, -1000, (*results)[1].Targets[model.Electricity], 1e-9)
	assert.InDelta(t, 0, (*results)[2].Targets[model.Electricity], 1e-9)
}

func TestServiceLocalOverrideFeedsIsland(t *testing.T) {
	svc := newService(t, loadConfig(t, homeConfig), nil)
	box, ok := svc.LocalOverride("garage")
	require.True(t, ok)
	target := 800.0
	box.Set(model.Electricity, auction.Override{Target: &target})

	require.NoError(t, svc.RunN(context.Background(), 1))
	var garage *auction.Node
	svc.Clearer.Root().Walk(func(n *auction.Node) {
		if n.Name() == "garage" {
			garage = n
		}
	})
	require.NotNil(t, garage)
	assert.Equal(t, 800.0, garage.LocalMarket().Target(model.Electricity))
}

func TestServiceWritesClearingLog(t *testing.T) {
	cfg := loadConfig(t, homeConfig)
	svc := newService(t, cfg, nil)
	require.NoError(t, svc.RunN(context.Background(), 3))
	require.NoError(t, svc.Close())

	f, err := os.Open(cfg.ClearingLog.Path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestServiceHandlerServesResult(t *testing.T) {
	cfg := loadConfig(t, homeConfig)
	cfg.API.Token = "secret"
	svc := newService(t, cfg, nil)

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/clearing/result", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rr := httptest.NewRecorder()
		svc.Handler().ServeHTTP(rr, req)
		return rr
	}
	assert.Equal(t, http.StatusNoContent, get().Code)

	require.NoError(t, svc.RunN(context.Background(), 1))
	rr := get()
	require.Equal(t, http.StatusOK, rr.Code)
	var res model.ClearingResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Contains(t, res.Prices, model.Electricity)

	rr = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/participants/status", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"charger"`)
}

func TestServiceBusHoldsWholeInterval(t *testing.T) {
	var b strings.Builder
	b.WriteString("market:\n  commodities: [electricity]\ntopology:\n  name: street\n  children:\n")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "    - name: load-%03d\n      contract: {type: fixed}\n      device:\n        consumption: {electricity: 100}\n", i)
	}
	b.WriteString("    - name: battery\n      contract: {type: buffer, conf: {max_charge: 30000, max_discharge: 30000}}\n")
	svc := newService(t, loadConfig(t, b.String()), nil)

	// Nobody reads this subscriber until the interval is over.
	sub := svc.Bus().Subscribe()
	require.NoError(t, svc.RunN(context.Background(), 1))

	var dispatched, clearing int
	for len(sub) > 0 {
		switch (<-sub).(type) {
		case events.DispatchEvent:
			dispatched++
		case events.ClearingEvent:
			clearing++
		}
	}
	assert.Equal(t, 201, dispatched)
	assert.Equal(t, 1, clearing)
	assert.Zero(t, svc.bus.Dropped())
}

func TestNewServiceRejectsBadTree(t *testing.T) {
	cfg := loadConfig(t, homeConfig)
	cfg.Topology.Children[0].Contract.Type = "nuclear"
	_, err := New(cfg, Options{Offline: true, Logger: logger.NopLogger{}})
	if err == nil {
		t.Fatal("expected error for unknown contract")
	}
}

func TestNewServiceRejectsNilConfig(t *testing.T) {
	_, err := New(nil, Options{})
	assert.True(t, errors.Is(err, auction.ErrConfiguration))
}

func TestTargetSourcesLaterWins(t *testing.T) {
	a, b := auction.NewOverrideBox(), auction.NewOverrideBox()
	lo, hi := 100.0, 200.0
	a.Set(model.Heat, auction.Override{Mode: auction.ModeReference, Target: &lo})
	b.Set(model.Heat, auction.Override{Target: &hi})

	o, ok := targetSources{a, b}.TakeOverride(model.Heat)
	require.True(t, ok)
	assert.Equal(t, auction.ModeReference, o.Mode)
	assert.Equal(t, 200.0, *o.Target)

	_, ok = targetSources{a, b}.TakeOverride(model.Heat)
	assert.False(t, ok)
}
