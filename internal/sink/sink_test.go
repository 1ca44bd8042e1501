package sink

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftnet-io/marketfeed/internal/schema"
)

func TestRecordingSinkRecordsDeliveries(t *testing.T) {
	s := NewRecordingSink()
	ts := time.Unix(0, 0).UTC()

	err := s.Write(context.Background(), schema.EventTypeTrade, "okx", "BTC-USD", ts, schema.TradePayload{TradeID: "1"})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	deliveries := s.Deliveries()
	require.Len(t, deliveries, 1)
	require.Equal(t, schema.EventTypeTrade, deliveries[0].Kind)
	require.Equal(t, "okx", deliveries[0].Exchange)
	require.Equal(t, "BTC-USD", deliveries[0].Symbol)
}

func TestRecordingSinkFailNext(t *testing.T) {
	s := NewRecordingSink()
	boom := errors.New("boom")
	s.FailNext(1, boom)

	err := s.Write(context.Background(), schema.EventTypeTicker, "binance", "ETH-USD", time.Now(), schema.TickerPayload{})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, s.Len())

	err = s.Write(context.Background(), schema.EventTypeTicker, "binance", "ETH-USD", time.Now(), schema.TickerPayload{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
}

func TestRecordingSinkReset(t *testing.T) {
	s := NewRecordingSink()
	_ = s.Write(context.Background(), schema.EventTypeTrade, "okx", "BTC-USD", time.Now(), schema.TradePayload{})
	require.Equal(t, 1, s.Len())
	s.Reset()
	require.Equal(t, 0, s.Len())
}

func TestLoggingSinkWritesWithoutError(t *testing.T) {
	s := NewLoggingSink(slog.Default())
	err := s.Write(context.Background(), schema.EventTypeBookSnapshot, "bitmex", "BTC-USD", time.Now(), schema.BookSnapshotPayload{})
	require.NoError(t, err)
}

func TestLoggingSinkFallsBackToDefaultLogger(t *testing.T) {
	s := NewLoggingSink(nil)
	require.NotNil(t, s.log)
}
