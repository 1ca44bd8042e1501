package binance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/signer"
)

func TestNativeSymbolRoundTrip(t *testing.T) {
	native, ok := NativeSymbol("BTC-USDT")
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", native)
	require.Equal(t, "BTC-USDT", canonicalInstrument(native))
}

func TestEndpointSwitchesOnListenKey(t *testing.T) {
	d := New(MarketSpot, signer.Credentials{}, 0, 0, 0)
	require.Equal(t, spotWSBase, d.Endpoint(false, ""))
	require.Equal(t, spotWSBase+"/abc123", d.Endpoint(true, "abc123"))
}

func TestBuildSubscribeFramesEmitsOneFrame(t *testing.T) {
	d := New(MarketSpot, signer.Credentials{}, 0, 0, 0)
	frames, err := d.BuildSubscribeFrames([]dialect.ChannelSymbol{
		{Channel: ChannelDepth, Symbol: "BTC-USDT", NativeSym: "BTCUSDT"},
		{Channel: ChannelTrade, Symbol: "BTC-USDT", NativeSym: "BTCUSDT"},
	})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Contains(t, string(frames[0]), "btcusdt@depth@100ms")
	require.Contains(t, string(frames[0]), "btcusdt@aggTrade")
}

func TestDecodeClassifiesByEventType(t *testing.T) {
	d := New(MarketSpot, signer.Credentials{}, 0, 0, 0)
	frames, err := d.Decode([]byte(`{"e":"depthUpdate","s":"BTCUSDT"}`))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "depthUpdate", frames[0].Channel)
}

func TestRouteDepthUpdateProducesBookDelta(t *testing.T) {
	d := New(MarketSpot, signer.Credentials{}, 0, 0, 0)
	raw := []byte(`{"e":"depthUpdate","s":"BTCUSDT","U":100,"u":105,"b":[["10000.00","1.5"]],"a":[["10001.00","0"]]}`)
	routed, err := d.Route(dialect.Frame{Channel: "depthUpdate", Raw: raw})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	require.Equal(t, dialect.RoutedBookDelta, routed[0].Kind)
	require.Equal(t, "BTC-USDT", routed[0].Symbol)
	require.Equal(t, uint64(100), routed[0].Delta.FirstID)
	require.Equal(t, uint64(105), routed[0].Delta.FinalID)
	require.Len(t, routed[0].Delta.Bids, 1)
	require.Len(t, routed[0].Delta.Asks, 1)
}

func TestRouteAggTradeProducesEvent(t *testing.T) {
	d := New(MarketSpot, signer.Credentials{}, 0, 0, 0)
	raw := []byte(`{"e":"aggTrade","E":1700000000000,"s":"BTCUSDT","t":555,"p":"10000.5","q":"0.01","m":true}`)
	routed, err := d.Route(dialect.Frame{Channel: "aggTrade", Raw: raw})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	require.Equal(t, dialect.RoutedEvent, routed[0].Kind)
	require.Equal(t, "BTC-USDT", routed[0].Symbol)
}

func TestRouteUnknownChannelReturnsNil(t *testing.T) {
	d := New(MarketSpot, signer.Credentials{}, 0, 0, 0)
	routed, err := d.Route(dialect.Frame{Channel: "somethingElse", Raw: []byte(`{}`)})
	require.NoError(t, err)
	require.Nil(t, routed)
}

func TestSequencedVariantDiffersByMarket(t *testing.T) {
	spot := New(MarketSpot, signer.Credentials{}, 0, 0, 0)
	futures := New(MarketFutures, signer.Credentials{}, 0, 0, 0)
	require.NotEqual(t, spot.SequencedVariant(ChannelDepth), futures.SequencedVariant(ChannelDepth))
}
