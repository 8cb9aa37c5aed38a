package clearinglog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridmarket/core/model"
)

func record(ts time.Time, id string, prices map[model.Commodity]float64) Record {
	return NewRecord(model.ClearingResult{IntervalID: id, Timestamp: ts, Prices: prices}, 1500*time.Microsecond)
}

func fill(t *testing.T, s Store, base time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, record(base, "a", map[model.Commodity]float64{model.Electricity: -1000})))
	require.NoError(t, s.Append(ctx, record(base.Add(time.Hour), "b", map[model.Commodity]float64{model.Electricity: 0, model.Heat: 10})))
	require.NoError(t, s.Append(ctx, record(base.Add(2*time.Hour), "c", map[model.Commodity]float64{model.Heat: 20})))
}

func checkQueries(t *testing.T, s Store, base time.Time) {
	t.Helper()
	ctx := context.Background()
	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].IntervalID)
	assert.InDelta(t, 1.5, all[0].DurationMS, 1e-9)
	assert.Equal(t, -1000.0, all[0].Result.Prices[model.Electricity])

	heat, err := s.Query(ctx, Query{Commodity: model.Heat})
	require.NoError(t, err)
	require.Len(t, heat, 2)
	assert.Equal(t, "b", heat[0].IntervalID)

	window, err := s.Query(ctx, Query{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "b", window[0].IntervalID)
}

func TestJSONLStore_AppendQuery(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "clearing.jsonl"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fill(t, s, base)
	checkQueries(t, s, base)
}

func TestSQLiteStore_AppendQuery(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "clearing.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fill(t, s, base)
	checkQueries(t, s, base)
}

func TestRotatingJSONLStore_Query(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "clearing.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fill(t, s, base)
	checkQueries(t, s, base)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clearing.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 5, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	res := model.ClearingResult{
		Timestamp: time.Now(),
		Fallbacks: make([]string, 0, 2000),
		Prices:    map[model.Commodity]float64{model.Electricity: 1},
	}
	for i := 0; i < 2000; i++ {
		res.Fallbacks = append(res.Fallbacks, "participant-with-a-long-name")
	}
	for i := 0; i < 30; i++ {
		require.NoError(t, s.Append(context.Background(), NewRecord(res, time.Millisecond)))
	}
	backups, _ := filepath.Glob(filepath.Join(dir, "clearing-*.jsonl"))
	assert.NotEmpty(t, backups)
	out, err := s.Query(context.Background(), Query{Commodity: model.Electricity})
	require.NoError(t, err)
	assert.Len(t, out, 30)
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	_, err = Open(Config{Backend: "sqlite"})
	assert.Error(t, err)

	_, err = Open(Config{Backend: "csv", Path: "x"})
	assert.Error(t, err)

	s, err = Open(Config{Backend: "jsonl", Path: filepath.Join(t.TempDir(), "x.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)
}
