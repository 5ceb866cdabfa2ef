package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "qugate"

// Tracer returns the tracer used for JSON-RPC method spans.
func Tracer() trace.Tracer { return otel.Tracer(instrumentationName) }

// Procedures counts gate procedures through the global meter provider so
// they reach the OTLP pipeline alongside the Prometheus series.
type Procedures struct {
	calls  metric.Int64Counter
	amount metric.Int64Counter
}

var (
	proceduresOnce sync.Once
	procedures     *Procedures
)

// GateProcedures returns the process-wide procedure instruments. Instrument
// creation failures leave a no-op counter in place.
func GateProcedures() *Procedures {
	proceduresOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		calls, err := meter.Int64Counter("qugate.gate.procedures",
			metric.WithDescription("Gate procedures executed, by name and status."))
		if err != nil {
			calls, _ = noopMeter().Int64Counter("qugate.gate.procedures")
		}
		amount, err := meter.Int64Counter("qugate.gate.attached_amount",
			metric.WithDescription("Value attached to gate procedures."),
			metric.WithUnit("{qu}"))
		if err != nil {
			amount, _ = noopMeter().Int64Counter("qugate.gate.attached_amount")
		}
		procedures = &Procedures{calls: calls, amount: amount}
	})
	return procedures
}

func noopMeter() metric.Meter { return noop.NewMeterProvider().Meter(instrumentationName) }

// Record adds one procedure with the given outcome and attached amount.
func (p *Procedures) Record(ctx context.Context, procedure string, status string, attached uint64) {
	if p == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("procedure", procedure),
		attribute.String("status", status),
	)
	p.calls.Add(ctx, 1, attrs)
	if attached > 0 {
		// Counters are int64; amounts above that range are clamped.
		v := int64(attached)
		if v < 0 {
			v = 1<<63 - 1
		}
		p.amount.Add(ctx, v, attrs)
	}
}
