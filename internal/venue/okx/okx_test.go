package okx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/schema"
	"github.com/driftnet-io/marketfeed/internal/signer"
)

func TestNativeSymbolIsHyphenated(t *testing.T) {
	native, ok := NativeSymbol("BTC-USDT")
	require.True(t, ok)
	require.Equal(t, "BTC-USDT", native)
	require.Equal(t, "BTC-USDT", canonicalInstrument(native))
}

func TestEndpointSwitchesOnPrivate(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	require.Equal(t, wsPublicBase, d.Endpoint(false, ""))
	require.Equal(t, wsPrivateBase, d.Endpoint(true, ""))
}

func TestRequiresAuthOnlyForOrders(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	require.False(t, d.RequiresAuth([]string{ChannelBooks, ChannelTrade}))
	require.True(t, d.RequiresAuth([]string{ChannelOrders}))
}

func TestBuildSubscribeFramesChunks(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	pairs := make([]dialect.ChannelSymbol, 0, 25)
	for i := 0; i < 25; i++ {
		pairs = append(pairs, dialect.ChannelSymbol{Channel: ChannelBooks, Symbol: "BTC-USDT", NativeSym: "BTC-USDT"})
	}
	frames, err := d.BuildSubscribeFrames(pairs)
	require.NoError(t, err)
	require.Len(t, frames, 2)
}

func TestDecodeIgnoresControlAcks(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	frames, err := d.Decode([]byte(`{"event":"subscribe","arg":{"channel":"books","instId":"BTC-USDT"}}`))
	require.NoError(t, err)
	require.Nil(t, frames)
}

func TestDecodeIgnoresPong(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	frames, err := d.Decode([]byte("pong"))
	require.NoError(t, err)
	require.Nil(t, frames)
}

func TestDecodeSplitsDataRecords(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	raw := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","tradeId":"1","px":"100","sz":"1","side":"buy","ts":"1700000000000"},{"instId":"BTC-USDT","tradeId":"2","px":"101","sz":"2","side":"sell","ts":"1700000000100"}]}`)
	frames, err := d.Decode(raw)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, "trades", frames[0].Channel)
}

func TestRouteBookSnapshotSetsPartialTrue(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	raw := []byte(`{"instId":"BTC-USDT","asks":[["101","1"]],"bids":[["99","2"]],"seqId":5,"ts":"1700000000000","action":"snapshot"}`)
	routed, err := d.Route(dialect.Frame{Channel: ChannelBooks, Raw: raw})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	require.Equal(t, dialect.RoutedBookPush, routed[0].Kind)
	require.True(t, routed[0].PushPartial)
	require.Len(t, routed[0].PushBids, 1)
}

func TestRouteBookUpdateSetsPartialFalse(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	raw := []byte(`{"instId":"BTC-USDT","asks":[["101","0"]],"bids":[],"seqId":6,"ts":"1700000000000","action":"update"}`)
	routed, err := d.Route(dialect.Frame{Channel: ChannelBooks, Raw: raw})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	require.False(t, routed[0].PushPartial)
}

func TestRouteOrderProducesEvent(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	raw := []byte(`{"instId":"BTC-USDT","ordId":"42","clOrdId":"c1","px":"100","sz":"2","side":"buy","state":"partially_filled","accFillSz":"1","avgPx":"100","uTime":"1700000000000"}`)
	routed, err := d.Route(dialect.Frame{Channel: ChannelOrders, Raw: raw})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	require.Equal(t, dialect.RoutedEvent, routed[0].Kind)
	payload, ok := routed[0].Event.Payload.(schema.OrderPayload)
	require.True(t, ok)
	require.Equal(t, "1", payload.Filled)
	require.Equal(t, "1", payload.Remaining)
}

func TestParseAuthResultRecognizesLoginAck(t *testing.T) {
	d := New(signer.Credentials{}, 0, 0, 0)
	result, ok := d.ParseAuthResult([]byte(`{"event":"login","code":"0","msg":""}`))
	require.True(t, ok)
	require.True(t, result.OK)

	_, ok = d.ParseAuthResult([]byte(`{"event":"subscribe"}`))
	require.False(t, ok)
}

func TestBuildAuthFrameSignsMessage(t *testing.T) {
	d := New(signer.Credentials{APIKey: "k", APISecret: "s", Passphrase: "p"}, 0, 0, 0)
	raw, err := d.BuildAuthFrame(nil)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"op":"login"`)
	require.Contains(t, string(raw), `"apiKey":"k"`)
}
