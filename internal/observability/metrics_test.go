package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryMetrics(t *testing.T) {
	m := NewInMemoryMetrics()
	var _ MetricsCollector = m

	m.IncReceived()
	m.IncReceived()
	m.IncProcessed()
	m.IncFailed()
	m.IncRetried()
	m.IncSentToDLQ()
	m.IncPublished()
	m.IncPublishFailed()
	m.IncSkipped()
	m.IncDecodeFailed()

	assert.Equal(t, int64(2), m.GetReceived())
	assert.Equal(t, int64(1), m.GetProcessed())
	assert.Equal(t, int64(1), m.GetFailed())
	assert.Equal(t, int64(1), m.GetRetried())
	assert.Equal(t, int64(1), m.GetSentToDLQ())
	assert.Equal(t, int64(1), m.GetPublished())
	assert.Equal(t, int64(1), m.GetPublishFailed())
	assert.Equal(t, int64(1), m.GetSkipped())
	assert.Equal(t, int64(1), m.GetDecodeFailed())
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg, "test")
	require.NoError(t, err)
	var _ MetricsCollector = m

	m.IncRetried()
	m.IncRetried()
	m.IncSentToDLQ()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues(eventRetried)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(eventSentToDLQ)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.events.WithLabelValues(eventProcessed)))
}

func TestPrometheusMetrics_ReusesRegisteredCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusMetrics(reg, "test")
	require.NoError(t, err)
	second, err := NewPrometheusMetrics(reg, "test")
	require.NoError(t, err)

	first.IncProcessed()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.events.WithLabelValues(eventProcessed)))
}

func TestInitLogger_Metrics(t *testing.T) {
	InitLogger("debug")
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())

	InitLogger("not-a-level")
	assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel())
}

func TestNewZapLogger(t *testing.T) {
	l, err := NewZapLogger("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))
	assert.True(t, l.Core().Enabled(1))
}
