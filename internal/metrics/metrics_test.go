package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetStateIsExclusive(t *testing.T) {
	SetState("remote_down")
	assert.Equal(t, float64(1), testutil.ToFloat64(stateGauge.WithLabelValues("remote_down")))
	assert.Equal(t, float64(0), testutil.ToFloat64(stateGauge.WithLabelValues("up")))

	SetState("up")
	assert.Equal(t, float64(0), testutil.ToFloat64(stateGauge.WithLabelValues("remote_down")))
	assert.Equal(t, float64(1), testutil.ToFloat64(stateGauge.WithLabelValues("up")))
}

func TestObserveProbe(t *testing.T) {
	before := testutil.ToFloat64(probes.WithLabelValues("4.2.2.1", "failure"))
	ObserveProbe("4.2.2.1", false)
	ObserveProbe("4.2.2.1", true)
	assert.Equal(t, before+1, testutil.ToFloat64(probes.WithLabelValues("4.2.2.1", "failure")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(probes.WithLabelValues("4.2.2.1", "success")), float64(1))
}
