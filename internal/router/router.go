// Package router implements the event dispatch fabric (spec §4.3): a
// registry from event kind x optional (exchange, symbol) filter to a set of
// sinks, delivering each event to its matching sinks in registration order.
// Grounded on internal/app/dispatcher/runtime.go's OTel-instrumented Runtime
// (counters/histogram via go.opentelemetry.io/otel/metric), adapted from a
// channel-fed background loop to a direct per-event Emit call since this
// router has no reordering stage to run concurrently with ingestion.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shopspring/decimal"

	"github.com/driftnet-io/marketfeed/internal/coalescer"
	"github.com/driftnet-io/marketfeed/internal/schema"
)

// Sink is the stable contract between router and sink (spec §6: "each sink
// exposes write(kind, exchange, symbol, timestamp, payload)").
type Sink interface {
	Write(ctx context.Context, kind schema.EventType, exchange, symbol string, ts time.Time, payload any) error
}

// Filter narrows a registration to one exchange and/or symbol; an empty
// field matches any value (spec §4.3: "optional (exchange, symbol) filter").
type Filter struct {
	Exchange string
	Symbol   string
}

func (f Filter) matches(exchange, symbol string) bool {
	if f.Exchange != "" && f.Exchange != exchange {
		return false
	}
	if f.Symbol != "" && f.Symbol != symbol {
		return false
	}
	return true
}

type registration struct {
	kind   schema.EventType
	filter Filter
	sink   Sink
}

// Router fans one normalized event out to its registered sinks in
// registration order, sequentially per event (spec §5: "the router
// serializes calls per event but not across events").
type Router struct {
	mu            sync.RWMutex
	registrations []registration
	coalescer     *coalescer.Coalescer

	eventsEmittedCounter  metric.Int64Counter
	eventsDeliveredCounter metric.Int64Counter
	sinkErrorCounter      metric.Int64Counter
	deliveryDuration      metric.Float64Histogram
}

// New constructs an empty Router, wiring an order coalescer by default
// (spec §4.3: "the router coordinates with a per-order coalescer").
func New() *Router {
	r := &Router{coalescer: coalescer.New()}

	meter := otel.Meter("router")
	r.eventsEmittedCounter, _ = meter.Int64Counter("router.events.emitted",
		metric.WithDescription("Events submitted to the router"),
		metric.WithUnit("{event}"))
	r.eventsDeliveredCounter, _ = meter.Int64Counter("router.events.delivered",
		metric.WithDescription("Successful sink deliveries"),
		metric.WithUnit("{event}"))
	r.sinkErrorCounter, _ = meter.Int64Counter("router.sink.errors",
		metric.WithDescription("Sink delivery failures, isolated per sink"),
		metric.WithUnit("{event}"))
	r.deliveryDuration, _ = meter.Float64Histogram("router.delivery.duration",
		metric.WithDescription("Per-sink delivery duration"),
		metric.WithUnit("ms"))

	return r
}

// Register adds sink to the set invoked for events of kind matching filter.
// Registration order determines delivery order for a given event (spec
// §4.3: "delivers to each in registration order").
func (r *Router) Register(kind schema.EventType, filter Filter, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, registration{kind: kind, filter: filter, sink: sink})
}

// Emit delivers event to every matching sink in registration order. A
// failing sink is logged by the caller (the session owns logging context)
// and skipped for this event; it stays registered (spec §4.3, §4.6:
// "sink-error: log, skip that sink for this event").
func (r *Router) Emit(ctx context.Context, event schema.Event) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Type == schema.EventTypeOrder {
		r.coalesceOrder(&event)
	}

	r.mu.RLock()
	matches := make([]Sink, 0, len(r.registrations))
	for _, reg := range r.registrations {
		if reg.kind == event.Type && reg.filter.matches(event.Exchange, event.Symbol) {
			matches = append(matches, reg.sink)
		}
	}
	r.mu.RUnlock()

	attrs := metric.WithAttributes(
		attribute.String("event_type", string(event.Type)),
		attribute.String("exchange", event.Exchange),
		attribute.String("symbol", event.Symbol),
	)
	if r.eventsEmittedCounter != nil {
		r.eventsEmittedCounter.Add(ctx, 1, attrs)
	}

	var lastErr error
	for _, sink := range matches {
		start := time.Now()
		err := sink.Write(ctx, event.Type, event.Exchange, event.Symbol, event.EmitTS, event.Payload)
		if r.deliveryDuration != nil {
			r.deliveryDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
		}
		if err != nil {
			lastErr = err
			if r.sinkErrorCounter != nil {
				r.sinkErrorCounter.Add(ctx, 1, attrs)
			}
			continue
		}
		if r.eventsDeliveredCounter != nil {
			r.eventsDeliveredCounter.Add(ctx, 1, attrs)
		}
	}
	return lastErr
}

// coalesceOrder computes unhandled_amount via the order coalescer and
// stamps it onto the event's OrderPayload before dispatch (spec §4.4).
func (r *Router) coalesceOrder(event *schema.Event) {
	payload, ok := event.Payload.(schema.OrderPayload)
	if !ok {
		return
	}
	filled, err := decimal.NewFromString(payload.Filled)
	if err != nil {
		return
	}
	result := r.coalescer.Process(event.Exchange, event.Symbol, payload.OrderID, filled)
	payload.UnhandledAmount = result.UnhandledAmount.String()
	event.Payload = payload
}
