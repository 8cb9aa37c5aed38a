package participants

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/infra/logger"
)

func tree(t *testing.T) *auction.Node {
	t.Helper()
	env := func(st model.DeviceState) auction.Env {
		return auction.Env{Device: device.NewMemoryDevice(st), Domain: auction.DefaultDomain}
	}
	load, err := auction.NewFixedLoad(auction.FixedConfig{Commodity: model.Electricity},
		env(model.DeviceState{Consumption: map[model.Commodity]complex128{model.Electricity: 500}}))
	if err != nil {
		t.Fatalf("fixed: %v", err)
	}
	heat, err := auction.NewFixedLoad(auction.FixedConfig{Commodity: model.Heat, Power: 300}, env(model.DeviceState{}))
	if err != nil {
		t.Fatalf("fixed: %v", err)
	}
	bat, err := auction.NewBuffer(auction.BufferConfig{MaxCharge: 2000, MaxDischarge: 2000}, env(model.DeviceState{}))
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	island := auction.NewNode("island", nil).
		AddChild(auction.NewNode("island-battery", bat)).
		SetLocalMarket(auction.NewLocalMarket(map[model.Commodity]float64{model.Electricity: 0}, nil, 0))
	return auction.NewNode("root", nil).AddChild(auction.NewNode("load", load), auction.NewNode("boiler", heat), island)
}

func TestStatuses(t *testing.T) {
	root := tree(t)
	c, err := auction.NewClearer(auction.Config{Commodities: []model.Commodity{model.Electricity, model.Heat}}, root, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("clearer: %v", err)
	}
	if _, err := c.ClearMarket(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("clear: %v", err)
	}

	got := Statuses(root)
	if len(got) != 5 {
		t.Fatalf("expected 5 nodes got %d", len(got))
	}
	names := []string{"root", "load", "boiler", "island", "island-battery"}
	for i, n := range names {
		if got[i].Name != n {
			t.Fatalf("node %d: expected %s got %s", i, n, got[i].Name)
		}
	}
	if got[4].Parent != "island" || got[0].Children != 3 {
		t.Fatalf("unexpected tree shape %#v", got)
	}
	if got[2].Commodity != model.Heat {
		t.Fatalf("expected boiler to bid heat, got %s", got[2].Commodity)
	}
	if _, ok := got[3].LocalPrices[model.Electricity]; !ok {
		t.Fatalf("expected a local price on the island")
	}
}

func TestStatusHandler_Filter(t *testing.T) {
	h := NewStatusHandler(tree(t))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/participants/status?commodity=heat", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []Status
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Name != "boiler" {
		t.Fatalf("unexpected filter result %#v", out)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/participants/status?commodity=steam", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestStatusHandler_StateFilter(t *testing.T) {
	h := NewStatusHandler(tree(t))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/participants/status?state=dispatched", nil))
	var out []Status
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("no node should be dispatched before the first interval, got %#v", out)
	}
}
