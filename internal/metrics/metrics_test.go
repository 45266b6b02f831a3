package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAppend(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveAppend("success")
	c.ObserveAppend("success")
	c.ObserveAppend("rejected")

	var m dto.Metric
	require.NoError(t, c.Appends.WithLabelValues("success").Write(&m))
	assert.Equal(t, float64(2), m.GetCounter().GetValue())
}

func TestNilCollectorsAreNoOps(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveAppend("success")
		c.ObserveReindex()
		c.ObserveConflict("validation")
		c.SetSubjects(3)
	})
}

func TestSetSubjects(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.SetSubjects(5)

	var m dto.Metric
	require.NoError(t, c.Subjects.Write(&m))
	assert.Equal(t, float64(5), m.GetGauge().GetValue())
}
