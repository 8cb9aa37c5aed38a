package auction

import "github.com/prometheus/client_golang/prometheus"

var (
	clearingDuration prometheus.Histogram
	clearingTotal    prometheus.Counter
	fallbackTotal    *prometheus.CounterVec
	infeasibleTotal  *prometheus.CounterVec
	congestedTotal   *prometheus.CounterVec
)

// newCollectors creates the clearer's metric collectors.
func newCollectors() (prometheus.Histogram, prometheus.Counter, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec) {
	dur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "market_clearing_duration_seconds",
		Help:    "Duration of one bid-collect, clear and dispatch cycle",
		Buckets: prometheus.DefBuckets,
	})
	total := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_clearings_total",
		Help: "Number of completed market clearing cycles",
	})
	fb := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_bid_fallbacks_total",
		Help: "Number of participant bids replaced by a flat bid",
	}, []string{"reason"})
	inf := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_infeasible_clearings_total",
		Help: "Number of clearings whose target was outside the aggregate bid range",
	}, []string{"commodity"})
	cong := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_congested_clearings_total",
		Help: "Number of clearings whose target was clamped by a congestion limit",
	}, []string{"commodity"})
	return dur, total, fb, inf, cong
}

func init() {
	clearingDuration, clearingTotal, fallbackTotal, infeasibleTotal, congestedTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the clearer metrics on reg. If reg is nil,
// prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(clearingDuration, clearingTotal, fallbackTotal, infeasibleTotal, congestedTotal)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	clearingDuration, clearingTotal, fallbackTotal, infeasibleTotal, congestedTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
