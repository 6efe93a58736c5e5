package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a := New()
	b := New()

	a.EventsCreated.Add(3)
	a.RemindersSent.WithLabelValues("hourly", "ok").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(a.EventsCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EventsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.RemindersSent.WithLabelValues("hourly", "ok")))
}

func TestRegisterGauge(t *testing.T) {
	c := New()
	backlog := 7.0
	c.RegisterGauge("bus_pending", "Inbound backlog.", func() float64 { return backlog })

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "planbot_bus_pending" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 7.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "gauge not gathered")
}

func TestObserveTurn(t *testing.T) {
	c := New()
	c.ObserveTurn("start", time.Now().Add(-50*time.Millisecond))

	assert.Equal(t, 1, testutil.CollectAndCount(c.TurnDuration))
}
