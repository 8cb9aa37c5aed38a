package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
	"github.com/kilianp07/gridmarket/core/model"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.LogValue("market.electricity.price", 12.5))
	require.NoError(t, s.RecordClearing(coremetrics.ClearingEvent{Result: model.ClearingResult{
		Prices:  map[model.Commodity]float64{model.Electricity: -40},
		Targets: map[model.Commodity]float64{model.Electricity: 500},
		Demand:  map[model.Commodity]float64{model.Electricity: 480},
	}}))
	require.NoError(t, s.RecordDispatch(coremetrics.DispatchEvent{Participant: "ev1", Commodity: model.Electricity, PowerW: 1500}))
	require.NoError(t, s.RecordFallback(coremetrics.FallbackEvent{Participant: "hp", Reason: "state_sync"}))
	require.NoError(t, s.RecordFallback(coremetrics.FallbackEvent{Participant: "hp", Reason: "state_sync"}))

	assert.Equal(t, 12.5, testutil.ToFloat64(s.values.WithLabelValues("market.electricity.price")))
	assert.Equal(t, -40.0, testutil.ToFloat64(s.prices.WithLabelValues("ELECTRICITY")))
	assert.Equal(t, 500.0, testutil.ToFloat64(s.targets.WithLabelValues("ELECTRICITY")))
	assert.Equal(t, 480.0, testutil.ToFloat64(s.demand.WithLabelValues("ELECTRICITY")))
	assert.Equal(t, 1500.0, testutil.ToFloat64(s.dispatch.WithLabelValues("ev1", "ELECTRICITY")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.fallbacks.WithLabelValues("hp", "state_sync")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, first.LogValue("x", 3))
	assert.Equal(t, 3.0, testutil.ToFloat64(second.values.WithLabelValues("x")))
}
