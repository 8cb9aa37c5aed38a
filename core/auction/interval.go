package auction

import (
	"time"

	"github.com/google/uuid"
)

// Interval identifies one control interval.
type Interval struct {
	ID       string
	Index    int64
	Start    time.Time
	Duration time.Duration
}

// NewInterval returns interval index starting at start.
func NewInterval(index int64, start time.Time, d time.Duration) Interval {
	return Interval{ID: uuid.NewString(), Index: index, Start: start, Duration: d}
}

// End returns the end of the interval.
func (iv Interval) End() time.Time { return iv.Start.Add(iv.Duration) }
