package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating an OpenTelemetry span per event.
//
// Each event becomes a point-in-time span named after event.Msg (e.g.
// "node_start", "checkpoint_saved"), carrying runID/step/nodeID plus all of
// event.Meta as attributes, with span status set to error when
// event.Meta["error"] is present.
type OTelEmitter struct {
	tracer trace.Tracer
	spans  []trace.Span // track spans for batching
}

// NewOTelEmitter creates an OTelEmitter that emits spans on tracer, e.g.
// otel.Tracer("graphrun").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{
		tracer: tracer,
		spans:  make([]trace.Span, 0),
	}
}

// Emit starts and immediately ends a span for event, since events represent a
// point in time rather than a duration.
func (o *OTelEmitter) Emit(event Event) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()

	o.addStandardAttributes(span, event)
	o.addMetadataAttributes(span, event.Meta)
	o.addConcurrencyAttributes(span, event.Meta)

	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// EmitBatch creates and ends a span per event. The OpenTelemetry batch span
// processor handles amortizing export cost across them.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)

		o.addStandardAttributes(span, event)
		o.addMetadataAttributes(span, event.Meta)
		o.addConcurrencyAttributes(span, event.Meta)

		if err, ok := event.Meta["error"].(string); ok {
			span.SetStatus(codes.Error, err)
			span.RecordError(fmt.Errorf("%s", err))
		}

		span.End()
	}

	return nil
}

// Flush calls ForceFlush on the active tracer provider, if it supports it,
// blocking until buffered spans are exported or ctx is done. Call before
// shutdown; a no-op provider (e.g. the default noop) returns nil immediately.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	// Get tracer provider and force flush if supported
	tp := otel.GetTracerProvider()

	// Check if provider supports flushing (SDK tracer provider)
	type flusher interface {
		ForceFlush(context.Context) error
	}

	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}

	// Provider doesn't support flushing (e.g., noop provider)
	return nil
}

// addStandardAttributes adds core event fields as span attributes.
func (o *OTelEmitter) addStandardAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("graphrun.run_id", event.RunID),
		attribute.Int("graphrun.step", event.Step),
		attribute.String("graphrun.node_id", event.NodeID),
	)
}

// addMetadataAttributes converts event metadata to span attributes, mapping
// snapshot_id/thread_id (set on the engine's snapshot events) to
// "graphrun.checkpoint.*" and duration_ms/retryable to "graphrun.node.*",
// and passing everything else through under its own key.
//
// Handles string, int, int64, float64, bool directly; time.Duration is
// converted to milliseconds; anything else falls back to its string form.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}

	for key, value := range meta {
		// Skip concurrency attributes (handled separately)
		if key == "step_id" || key == "order_key" || key == "attempt" {
			continue
		}

		attrKey := key
		switch key {
		case "snapshot_id":
			attrKey = "graphrun.checkpoint.snapshot_id"
		case "thread_id":
			attrKey = "graphrun.checkpoint.thread_id"
		case "duration_ms":
			attrKey = "graphrun.node.duration_ms"
		case "retryable":
			attrKey = "graphrun.node.retryable"
		}

		// Convert value to appropriate attribute type
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			// Convert duration to milliseconds
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			// Fallback to string representation
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}

// addConcurrencyAttributes adds the step_id/order_key/attempt fields the
// concurrent scheduler stamps on routing-decision events, under a
// "graphrun.*" namespace, enabling correlation of retries and replay order.
func (o *OTelEmitter) addConcurrencyAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}

	if stepID, ok := meta["step_id"].(string); ok {
		span.SetAttributes(attribute.String("graphrun.step_id", stepID))
	}

	if orderKey, ok := meta["order_key"].(string); ok {
		span.SetAttributes(attribute.String("graphrun.order_key", orderKey))
	}

	if attempt, ok := meta["attempt"].(int); ok {
		span.SetAttributes(attribute.Int("graphrun.attempt", attempt))
	} else if attempt, ok := meta["attempt"].(int64); ok {
		span.SetAttributes(attribute.Int64("graphrun.attempt", attempt))
	}
}
