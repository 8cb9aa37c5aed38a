// Package clearinglog persists clearing results for later analysis.
package clearinglog

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/gridmarket/core/model"
)

// Record captures one cleared interval.
type Record struct {
	Timestamp  time.Time            `json:"timestamp"`
	IntervalID string               `json:"interval_id"`
	DurationMS float64              `json:"duration_ms"`
	Result     model.ClearingResult `json:"result"`
}

// NewRecord builds a record from a result and the time the cycle took.
func NewRecord(res model.ClearingResult, took time.Duration) Record {
	return Record{
		Timestamp:  res.Timestamp,
		IntervalID: res.IntervalID,
		DurationMS: float64(took.Microseconds()) / 1000,
		Result:     res,
	}
}

// Query defines filters for retrieving records. Zero fields match anything.
type Query struct {
	Start     time.Time
	End       time.Time
	Commodity model.Commodity
}

func (q Query) matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Commodity != "" {
		if _, ok := r.Result.Prices[q.Commodity]; !ok {
			return false
		}
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }

// commodityKey encodes the commodities of a result as ",A,B," for substring
// filtering in SQL.
func commodityKey(res model.ClearingResult) string {
	cs := make([]string, 0, len(res.Prices))
	for c := range res.Prices {
		cs = append(cs, string(c))
	}
	sort.Strings(cs)
	return "," + strings.Join(cs, ",") + ","
}
