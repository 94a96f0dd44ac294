package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCountersRegisterAndIncrement(t *testing.T) {
	ticks := TicksCollected.WithLabelValues("bitflyer")
	before := counterValue(t, ticks)
	ticks.Inc()
	assert.Equal(t, before+1, counterValue(t, ticks))

	dropped := TicksDropped.WithLabelValues("bitflyer", "malformed")
	before = counterValue(t, dropped)
	dropped.Inc()
	assert.Equal(t, before+1, counterValue(t, dropped))

	before = counterValue(t, DetectCycles)
	DetectCycles.Inc()
	assert.Equal(t, before+1, counterValue(t, DetectCycles))
}

func TestHistogramObserves(t *testing.T) {
	FetchDuration.WithLabelValues("gmo", "ticker").Observe(0.042)

	var m dto.Metric
	h, err := FetchDuration.GetMetricWithLabelValues("gmo", "ticker")
	require.NoError(t, err)
	require.NoError(t, h.(prometheus.Metric).Write(&m))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}
