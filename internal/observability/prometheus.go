package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements MetricsCollector on top of a single counter vec
// labelled by event.
type PrometheusMetrics struct {
	events *prometheus.CounterVec
}

const (
	eventPublished     = "published"
	eventPublishFailed = "publish_failed"
	eventReceived      = "received"
	eventProcessed     = "processed"
	eventFailed        = "failed"
	eventRetried       = "retried"
	eventSentToDLQ     = "sent_to_dlq"
	eventSkipped       = "skipped"
	eventDecodeFailed  = "decode_failed"
)

// NewPrometheusMetrics creates the collector and registers it. A collector that
// is already registered is reused.
func NewPrometheusMetrics(registerer prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "messages_total",
		Help:      "Messages seen by the order pipeline, by event",
	}, []string{"event"})

	if err := registerer.Register(events); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		events = are.ExistingCollector.(*prometheus.CounterVec)
	}

	// Pre-create every series so dashboards see zeros instead of gaps.
	for _, ev := range []string{
		eventPublished, eventPublishFailed, eventReceived, eventProcessed,
		eventFailed, eventRetried, eventSentToDLQ, eventSkipped, eventDecodeFailed,
	} {
		events.WithLabelValues(ev)
	}

	return &PrometheusMetrics{events: events}, nil
}

func (m *PrometheusMetrics) inc(event string) {
	m.events.WithLabelValues(event).Inc()
}

func (m *PrometheusMetrics) IncPublished()     { m.inc(eventPublished) }
func (m *PrometheusMetrics) IncPublishFailed() { m.inc(eventPublishFailed) }
func (m *PrometheusMetrics) IncReceived()      { m.inc(eventReceived) }
func (m *PrometheusMetrics) IncProcessed()     { m.inc(eventProcessed) }
func (m *PrometheusMetrics) IncFailed()        { m.inc(eventFailed) }
func (m *PrometheusMetrics) IncRetried()       { m.inc(eventRetried) }
func (m *PrometheusMetrics) IncSentToDLQ()     { m.inc(eventSentToDLQ) }
func (m *PrometheusMetrics) IncSkipped()       { m.inc(eventSkipped) }
func (m *PrometheusMetrics) IncDecodeFailed()  { m.inc(eventDecodeFailed) }
