package bitmex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftnet-io/marketfeed/internal/book"
	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/signer"
)

func TestNativeSymbolTranslatesBTCtoXBT(t *testing.T) {
	native, ok := NativeSymbol("BTC-USD")
	require.True(t, ok)
	require.Equal(t, "XBTUSD", native)
	require.Equal(t, "BTC-USD", canonicalInstrument(native))
}

func TestRequiresAuthOnlyForPrivateChannels(t *testing.T) {
	d := New(signer.Credentials{})
	require.False(t, d.RequiresAuth([]string{ChannelBook, ChannelTrade}))
	require.True(t, d.RequiresAuth([]string{ChannelOrder}))
}

func TestBuildSubscribeFramesJoinsTableAndSymbol(t *testing.T) {
	d := New(signer.Credentials{})
	frames, err := d.BuildSubscribeFrames([]dialect.ChannelSymbol{
		{Channel: ChannelBook, NativeSym: "XBTUSD"},
		{Channel: ChannelTrade, NativeSym: "XBTUSD"},
	})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Contains(t, string(frames[0]), "orderBookL2:XBTUSD")
	require.Contains(t, string(frames[0]), "trade:XBTUSD")
}

func TestDecodeIgnoresControlFrames(t *testing.T) {
	d := New(signer.Credentials{})
	frames, err := d.Decode([]byte(`{"success":true,"subscribe":"trade:XBTUSD"}`))
	require.NoError(t, err)
	require.Nil(t, frames)
}

func TestRouteBookPartialProducesIDOp(t *testing.T) {
	d := New(signer.Credentials{})
	raw := []byte(`{"table":"orderBookL2","action":"partial","data":[{"symbol":"XBTUSD","id":1,"side":"Buy","size":"100","price":"9000"}]}`)
	routed, err := d.Route(dialect.Frame{Channel: ChannelBook, Raw: raw})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	require.Equal(t, dialect.RoutedBookIDOp, routed[0].Kind)
	require.Equal(t, book.IDActionPartial, routed[0].IDAction)
	require.Equal(t, "BTC-USD", routed[0].Symbol)
}

func TestRouteBookUpdateOmitsPrice(t *testing.T) {
	d := New(signer.Credentials{})
	raw := []byte(`{"table":"orderBookL2","action":"update","data":[{"symbol":"XBTUSD","id":1,"side":"Buy","size":"50"}]}`)
	routed, err := d.Route(dialect.Frame{Channel: ChannelBook, Raw: raw})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	require.Equal(t, book.IDActionUpdate, routed[0].IDAction)
	require.Len(t, routed[0].IDRows, 1)
	require.True(t, routed[0].IDRows[0].Price.IsZero())
}

func TestRouteTradeProducesEvent(t *testing.T) {
	d := New(signer.Credentials{})
	raw := []byte(`{"table":"trade","data":[{"symbol":"XBTUSD","side":"Buy","size":"40","price":"8335","trdMatchID":"abc","timestamp":"2018-05-19T12:25:26.632Z"}]}`)
	routed, err := d.Route(dialect.Frame{Channel: ChannelTrade, Raw: raw})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	require.Equal(t, dialect.RoutedEvent, routed[0].Kind)
	require.Equal(t, "BTC-USD", routed[0].Symbol)
}

func TestParseAuthResultRecognizesAuthKeyExpiresAck(t *testing.T) {
	d := New(signer.Credentials{})
	result, ok := d.ParseAuthResult([]byte(`{"success":true,"request":{"op":"authKeyExpires","args":["k",123,"sig"]}}`))
	require.True(t, ok)
	require.True(t, result.OK)

	_, ok = d.ParseAuthResult([]byte(`{"success":true,"subscribe":"trade:XBTUSD"}`))
	require.False(t, ok)
}
