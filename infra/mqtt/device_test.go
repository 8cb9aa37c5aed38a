package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
)

const stateTopic = "gridmarket/device/boiler/state"

func TestRemoteDeviceSync(t *testing.T) {
	cli, mc := newTestClient(t, Config{})
	d, err := NewRemoteDevice(cli, "boiler")
	require.NoError(t, err)

	_, err = d.Sync(context.Background())
	require.ErrorIs(t, err, device.ErrStale)

	mc.deliver(stateTopic, []byte(`{
		"timestamp": "2026-01-01T10:00:00Z",
		"consumption": {"heat": {"p": 1200}, "electricity": {"p": 300, "q": 20}},
		"limits": {"heat": {"min": 0, "max": 3000}},
		"capacity_wh": 10000,
		"energy_wh": 2500
	}`))
	s, err := d.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, complex(1200, 0), s.Consumption[model.Heat])
	assert.Equal(t, complex(300, 20), s.Consumption[model.Electricity])
	assert.Equal(t, model.Limits{Min: 0, Max: 3000}, s.Limits[model.Heat])
	assert.InDelta(t, 0.25, s.Fill(), 1e-9)
}

func TestRemoteDeviceRejectsInvalidReports(t *testing.T) {
	cli, mc := newTestClient(t, Config{})
	d, err := NewRemoteDevice(cli, "boiler")
	require.NoError(t, err)

	mc.deliver(stateTopic, []byte(`not json`))
	mc.deliver(stateTopic, []byte(`{"consumption": {"steam": {"p": 1}}}`))
	mc.deliver(stateTopic, []byte(`{"limits": {"heat": {"min": 10, "max": 0}}}`))
	_, err = d.Sync(context.Background())
	assert.ErrorIs(t, err, device.ErrStale)
}

func TestRemoteDeviceStale(t *testing.T) {
	cli, mc := newTestClient(t, Config{StaleAfterMS: 60000})
	d, err := NewRemoteDevice(cli, "boiler")
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	mc.deliver(stateTopic, []byte(`{"timestamp": "2026-01-01T09:58:00Z", "consumption": {"heat": {"p": 1}}}`))
	_, err = d.Sync(context.Background())
	assert.ErrorIs(t, err, device.ErrStale)

	mc.deliver(stateTopic, []byte(`{"consumption": {"heat": {"p": 1}}}`))
	_, err = d.Sync(context.Background())
	assert.NoError(t, err, "reports without timestamp are stamped on receipt")
}

func TestRemoteDeviceSetPlan(t *testing.T) {
	cli, mc := newTestClient(t, Config{AckTimeoutMS: 500})
	ok := ""
	mc.ack = &ok
	d, err := NewRemoteDevice(cli, "boiler")
	require.NoError(t, err)
	mc.deliver(stateTopic, []byte(`{"consumption": {"heat": {"p": 1}}}`))

	require.NoError(t, d.SetPlan(context.Background(), plan(model.Heat, 800)))
	s, err := d.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 800.0, real(s.Plan[model.Heat][0].Power))

	mc.deliver(stateTopic, []byte(`{"consumption": {"heat": {"p": 2}}}`))
	s, err = d.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Plan[model.Heat], 1, "plan survives new state reports")
}

func TestRemoteDeviceSetPlanUnacknowledged(t *testing.T) {
	cli, _ := newTestClient(t, Config{AckTimeoutMS: 1})
	d, err := NewRemoteDevice(cli, "boiler")
	require.NoError(t, err)
	err = d.SetPlan(context.Background(), plan(model.Heat, 800))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAckTimeout))
}
