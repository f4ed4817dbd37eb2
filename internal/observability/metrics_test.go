package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())

	first.TasksCreatedTotal.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(first.TasksCreatedTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.TasksCreatedTotal))
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestNewMetrics_Gathered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AuthRejectionsTotal.WithLabelValues("api_key").Inc()

	count, err := testutil.GatherAndCount(reg, "auth_rejections_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
