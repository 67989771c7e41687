package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "go-orders/pipeline"

// Tracer returns the pipeline tracer from the global provider. Without an SDK
// installed by the binary the spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
