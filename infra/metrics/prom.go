package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink exposes market values and events as Prometheus metrics.
type PromSink struct {
	values    *prometheus.GaugeVec
	prices    *prometheus.GaugeVec
	targets   *prometheus.GaugeVec
	demand    *prometheus.GaugeVec
	dispatch  *prometheus.GaugeVec
	fallbacks *prometheus.CounterVec
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "market_value",
			Help: "Last value logged by the market under the given name",
		}, []string{"name"}),
		prices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "market_price",
			Help: "Clearing price of the last interval",
		}, []string{"commodity"}),
		targets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "market_target_watts",
			Help: "Target aggregate demand of the last interval",
		}, []string{"commodity"}),
		demand: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "market_demand_watts",
			Help: "Aggregate demand at the clearing price of the last interval",
		}, []string{"commodity"}),
		dispatch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "participant_dispatch_watts",
			Help: "Setpoint written to a participant device",
		}, []string{"participant", "commodity"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "participant_fallbacks_total",
			Help: "Number of bids replaced by a flat fallback bid",
		}, []string{"participant", "reason"}),
	}
	var err error
	if s.values, err = registerGaugeVec(reg, s.values); err != nil {
		return nil, err
	}
	if s.prices, err = registerGaugeVec(reg, s.prices); err != nil {
		return nil, err
	}
	if s.targets, err = registerGaugeVec(reg, s.targets); err != nil {
		return nil, err
	}
	if s.demand, err = registerGaugeVec(reg, s.demand); err != nil {
		return nil, err
	}
	if s.dispatch, err = registerGaugeVec(reg, s.dispatch); err != nil {
		return nil, err
	}
	if err := reg.Register(s.fallbacks); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		s.fallbacks = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return s, nil
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {
	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.GaugeVec), nil
		}
		return nil, err
	}
	return g, nil
}

// LogValue sets the market_value gauge for name.
func (s *PromSink) LogValue(name string, value float64) error {
	s.values.WithLabelValues(name).Set(value)
	return nil
}

// RecordClearing updates the per-commodity price, target and demand gauges.
func (s *PromSink) RecordClearing(ev coremetrics.ClearingEvent) error {
	for c, p := range ev.Result.Prices {
		s.prices.WithLabelValues(string(c)).Set(p)
	}
	for c, t := range ev.Result.Targets {
		s.targets.WithLabelValues(string(c)).Set(t)
	}
	for c, d := range ev.Result.Demand {
		s.demand.WithLabelValues(string(c)).Set(d)
	}
	return nil
}

// RecordDispatch sets the participant setpoint gauge.
func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	s.dispatch.WithLabelValues(ev.Participant, string(ev.Commodity)).Set(ev.PowerW)
	return nil
}

// RecordFallback increments the fallback counter of the participant.
func (s *PromSink) RecordFallback(ev coremetrics.FallbackEvent) error {
	s.fallbacks.WithLabelValues(ev.Participant, ev.Reason).Inc()
	return nil
}
