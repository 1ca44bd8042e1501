// Package sink provides reference implementations of router.Sink: a
// structured-logging sink for local runs and an in-memory recording sink for
// tests. Grounded on adapters/shared/publisher.go's event-emission style
// (canonical fields, clock injection) and pkg/consumer/wrapper.go's
// panic-recovering invocation wrapper, adapted from "consume an event" to
// "deliver to a sink".
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/driftnet-io/marketfeed/internal/schema"
)

// LoggingSink writes every delivery as a structured slog record. Grounded on
// publisher.go's providerName-scoped logging (there via log.Printf; here via
// slog, matching session.go's and feed.go's established logger).
type LoggingSink struct {
	log *slog.Logger
}

// NewLoggingSink constructs a LoggingSink. A nil logger falls back to
// slog.Default, matching session.New's convention.
func NewLoggingSink(logger *slog.Logger) *LoggingSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSink{log: logger}
}

// Write implements router.Sink.
func (s *LoggingSink) Write(ctx context.Context, kind schema.EventType, exchange, symbol string, ts time.Time, payload any) error {
	s.log.LogAttrs(ctx, slog.LevelInfo, "event",
		slog.String("kind", string(kind)),
		slog.String("exchange", exchange),
		slog.String("symbol", symbol),
		slog.Time("ts", ts),
		slog.Any("payload", payload),
	)
	return nil
}

// Delivery is one recorded call to RecordingSink.Write.
type Delivery struct {
	Kind     schema.EventType
	Exchange string
	Symbol   string
	Ts       time.Time
	Payload  any
}

// RecordingSink accumulates deliveries in memory for test assertions,
// recovering from a panicking payload the same way pkg/consumer/wrapper.go's
// Wrapper.Invoke recovers a panicking consumer lambda — a malformed payload
// must not take down the router's delivery loop.
type RecordingSink struct {
	mu         sync.Mutex
	deliveries []Delivery
	failNext   int
	failErr    error
}

// NewRecordingSink constructs an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Write implements router.Sink.
func (s *RecordingSink) Write(ctx context.Context, kind schema.EventType, exchange, symbol string, ts time.Time, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recording sink panic: %v\n%s", r, debug.Stack())
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return s.failErr
	}
	s.deliveries = append(s.deliveries, Delivery{
		Kind:     kind,
		Exchange: exchange,
		Symbol:   symbol,
		Ts:       ts,
		Payload:  payload,
	})
	return nil
}

// FailNext makes the next n calls to Write return err instead of recording,
// for exercising router.Emit's per-sink error isolation (spec §4.6:
// "sink-error: log, skip that sink for this event").
func (s *RecordingSink) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failErr = err
}

// Deliveries returns a copy of every delivery recorded so far.
func (s *RecordingSink) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

// Len reports how many deliveries have been recorded.
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

// Reset clears all recorded deliveries.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = nil
}
