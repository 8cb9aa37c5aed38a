package metrics

import (
	"context"
	"math"
	"net/http"
	"slices"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
	"github.com/kilianp07/gridmarket/infra/logger"
)

// InfluxSink writes market values and events to an InfluxDB instance using
// the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
	now      func() time.Time
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
		now:      time.Now,
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// LogValue writes a named value to the market_value measurement.
func (s *InfluxSink) LogValue(name string, value float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("market_value").
		AddTag("name", name).
		AddField("value", round3(value)).
		SetTime(s.now())
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordClearing writes one market_clearing point per commodity.
func (s *InfluxSink) RecordClearing(ev coremetrics.ClearingEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r := ev.Result
	for _, c := range r.Commodities() {
		p := write.NewPointWithMeasurement("market_clearing").
			AddTag("interval_id", r.IntervalID).
			AddTag("commodity", string(c)).
			AddField("price", round3(r.Prices[c])).
			AddField("target_w", round3(r.Targets[c])).
			AddField("demand_w", round3(r.Demand[c])).
			AddField("flexibility", round3(r.Flexibility[c])).
			AddField("constrained", slices.Contains(r.Constrained, c)).
			AddField("infeasible", slices.Contains(r.Infeasible, c)).
			AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
			SetTime(r.Timestamp)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordDispatch writes the setpoint sent to one participant.
func (s *InfluxSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("participant_dispatch").
		AddTag("participant", ev.Participant).
		AddTag("commodity", string(ev.Commodity)).
		AddTag("interval_id", ev.IntervalID).
		AddField("power_w", round3(ev.PowerW)).
		AddField("price", round3(ev.Price)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFallback records a participant whose bid was replaced.
func (s *InfluxSink) RecordFallback(ev coremetrics.FallbackEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("bid_fallback").
		AddTag("participant", ev.Participant).
		AddTag("interval_id", ev.IntervalID).
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
