package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftnet-io/marketfeed/internal/schema"
)

type recordingSink struct {
	name    string
	calls   []string
	failAll bool
}

func (s *recordingSink) Write(ctx context.Context, kind schema.EventType, exchange, symbol string, ts time.Time, payload any) error {
	s.calls = append(s.calls, s.name)
	if s.failAll {
		return errors.New("boom")
	}
	return nil
}

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	r := New()
	var order []string
	first := &recordingSink{name: "first"}
	second := &recordingSink{name: "second"}
	r.Register(schema.EventTypeTrade, Filter{}, first)
	r.Register(schema.EventTypeTrade, Filter{}, second)

	err := r.Emit(context.Background(), schema.Event{Exchange: "binance", Symbol: "BTC-USDT", Type: schema.EventTypeTrade})
	require.NoError(t, err)
	order = append(order, first.calls...)
	order = append(order, second.calls...)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestEmitFiltersByExchangeAndSymbol(t *testing.T) {
	r := New()
	matching := &recordingSink{name: "match"}
	other := &recordingSink{name: "other"}
	r.Register(schema.EventTypeTicker, Filter{Exchange: "binance", Symbol: "BTC-USDT"}, matching)
	r.Register(schema.EventTypeTicker, Filter{Exchange: "okx"}, other)

	err := r.Emit(context.Background(), schema.Event{Exchange: "binance", Symbol: "BTC-USDT", Type: schema.EventTypeTicker})
	require.NoError(t, err)
	require.Len(t, matching.calls, 1)
	require.Empty(t, other.calls)
}

func TestEmitIsolatesFailingSink(t *testing.T) {
	r := New()
	failing := &recordingSink{name: "failing", failAll: true}
	healthy := &recordingSink{name: "healthy"}
	r.Register(schema.EventTypeTrade, Filter{}, failing)
	r.Register(schema.EventTypeTrade, Filter{}, healthy)

	_ = r.Emit(context.Background(), schema.Event{Exchange: "binance", Symbol: "BTC-USDT", Type: schema.EventTypeTrade})
	require.Len(t, failing.calls, 1)
	require.Len(t, healthy.calls, 1)
}

func TestEmitCoalescesOrderEvents(t *testing.T) {
	r := New()
	sink := &recordingSink{name: "orders"}
	var captured schema.OrderPayload
	r.Register(schema.EventTypeOrder, Filter{}, sinkFunc(func(ctx context.Context, kind schema.EventType, exchange, symbol string, ts time.Time, payload any) error {
		captured = payload.(schema.OrderPayload)
		return sink.Write(ctx, kind, exchange, symbol, ts, payload)
	}))

	evt := schema.Event{
		Exchange: "binance", Symbol: "BTC-USDT", Type: schema.EventTypeOrder,
		Payload: schema.OrderPayload{OrderID: "o1", Filled: "2"},
	}
	require.NoError(t, r.Emit(context.Background(), evt))
	require.Equal(t, "2", captured.UnhandledAmount)

	evt.Payload = schema.OrderPayload{OrderID: "o1", Filled: "5"}
	require.NoError(t, r.Emit(context.Background(), evt))
	require.Equal(t, "5", captured.UnhandledAmount)
}

type sinkFunc func(ctx context.Context, kind schema.EventType, exchange, symbol string, ts time.Time, payload any) error

func (f sinkFunc) Write(ctx context.Context, kind schema.EventType, exchange, symbol string, ts time.Time, payload any) error {
	return f(ctx, kind, exchange, symbol, ts, payload)
}
