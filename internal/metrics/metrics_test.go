package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CycleFinished(time.Second, nil)
	m.CycleFinished(time.Second, errors.New("db down"))
	m.Overdue(3)
	m.Delivery(true)
	m.Delivery(false)
	m.Delivery(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.schedulerCycles.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.overdueTransitions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CycleFinished(time.Second, nil)
		m.Reminded(1)
		m.StatusChanged("completed")
	})
}
