// Package binance implements the Binance spot and USD-M futures dialects
// (spec §2, §9 Open Questions: spot/futures sequence-overlap resolution).
// Spot and futures share every wire shape except base URLs and the book
// reconciliation variant, so one Dialect struct serves both, parameterized
// by Market (spec §9 Design Notes: composition over mixin inheritance).
// Grounded on internal/adapters/binance/{provider,parser,rest,options}.go.
package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/driftnet-io/marketfeed/internal/book"
	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/restutil"
	"github.com/driftnet-io/marketfeed/internal/signer"
)

// Market selects which Binance product the Dialect targets.
type Market int

const (
	MarketSpot Market = iota
	MarketFutures
)

// Channel names recognized in SubscriptionConfig (spec §3 dual subscription
// form).
const (
	ChannelDepth    = "depth"
	ChannelTrade    = "trade"
	ChannelTicker   = "ticker"
	ChannelUserData = "userData"
)

const (
	spotWSBase    = "wss://stream.binance.com:9443/ws"
	spotRESTBase  = "https://api.binance.com/api/v3"
	futuresWSBase = "wss://fstream.binance.com/ws"
	futuresRESTBase = "https://fapi.binance.com/fapi/v1"

	listenKeyKeepalive = 15 * time.Minute // grounded on options.go defaultUserStreamKeepAlive-equivalent
)

// Dialect implements dialect.Dialect for Binance spot and USD-M futures.
type Dialect struct {
	market   Market
	wsBase   string
	restBase string
	depth    int
	creds    signer.Credentials
	rest     *restutil.Client
}

// New constructs a Binance dialect for the given market. creds may be zero
// for public-only sessions. depth <= 0 falls back to Binance's default REST
// depth limit of 1000 (config.ExchangeSettings.BookDepth).
func New(market Market, creds signer.Credentials, restTimeout time.Duration, restRPS float64, depth int) *Dialect {
	if depth <= 0 {
		depth = 1000
	}
	d := &Dialect{market: market, creds: creds, depth: depth}
	switch market {
	case MarketFutures:
		d.wsBase = futuresWSBase
		d.restBase = futuresRESTBase
	default:
		d.wsBase = spotWSBase
		d.restBase = spotRESTBase
	}
	d.rest = restutil.NewClient(d.Name(), restTimeout, restRPS)
	return d
}

func (d *Dialect) Name() string {
	if d.market == MarketFutures {
		return "binance-futures"
	}
	return "binance"
}

func (d *Dialect) Endpoint(private bool, listenKey string) string {
	if private && listenKey != "" {
		return d.wsBase + "/" + listenKey
	}
	return d.wsBase
}

func (d *Dialect) NeedsListenKey() bool { return true }

func (d *Dialect) ObtainListenKey(ctx context.Context) (string, error) {
	return d.rest.CreateListenKey(ctx, d.restBase+"/userDataStream", d.creds.APIKey)
}

// RequiresAuth is always false: Binance's private channel authenticates via
// the listen-key path segment baked into Endpoint, not a login frame (spec
// §4.2 Authenticate: "skip straight to SUBSCRIBING" when no login is needed).
func (d *Dialect) RequiresAuth(channels []string) bool { return false }

func (d *Dialect) BuildAuthFrame(ctx context.Context) ([]byte, error) {
	return nil, nil
}

func (d *Dialect) ParseAuthResult(raw []byte) (dialect.AuthResult, bool) {
	return dialect.AuthResult{}, false
}

func (d *Dialect) BookMode(channel string) dialect.BookMode {
	if channel == ChannelDepth {
		return dialect.BookModeSequenced
	}
	return dialect.BookModeNone
}

func (d *Dialect) SequencedVariant(channel string) book.Variant {
	if d.market == MarketFutures {
		return book.VariantFutures
	}
	return book.VariantSpot
}

func (d *Dialect) NeedsSnapshot(channel string) bool {
	return channel == ChannelDepth
}

func (d *Dialect) FetchSnapshot(ctx context.Context, req dialect.SnapshotRequest) (dialect.Snapshot, error) {
	snap, err := d.rest.FetchDepth(ctx, d.restBase+"/depth", req.NativeSym, d.depth)
	if err != nil {
		return dialect.Snapshot{}, err
	}
	return dialect.Snapshot{
		Bids:         toBookLevels(snap.Bids),
		Asks:         toBookLevels(snap.Asks),
		LastUpdateID: uint64(snap.LastUpdateID),
	}, nil
}

func (d *Dialect) KeepaliveInterval() time.Duration {
	if d.creds.APIKey == "" {
		return 0
	}
	return listenKeyKeepalive
}

func (d *Dialect) Keepalive(ctx context.Context) error {
	key, err := d.rest.CreateListenKey(ctx, d.restBase+"/userDataStream", d.creds.APIKey)
	if err != nil {
		return err
	}
	return d.rest.RefreshListenKey(ctx, d.restBase+"/userDataStream", d.creds.APIKey, key)
}

func (d *Dialect) IdleTimeout() time.Duration { return 0 }

func toBookLevels(levels [][]string) []dialect.BookLevel {
	out := make([]dialect.BookLevel, 0, len(levels))
	for _, l := range levels {
		if len(l) < 2 {
			continue
		}
		out = append(out, dialect.BookLevel{Price: l[0], Size: l[1]})
	}
	return out
}

// NativeSymbol converts a canonical "BASE-QUOTE" symbol into Binance's
// concatenated, uppercase wire form (e.g. "BTC-USDT" -> "BTCUSDT").
func NativeSymbol(symbol string) (string, bool) {
	base, quote, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(symbol)), "-")
	if !ok || base == "" || quote == "" {
		return "", false
	}
	return base + quote, true
}

// canonicalInstrument reverses NativeSymbol for wire payloads that only
// carry the concatenated form (spec §3: wire dialects are normalized to
// canonical "BASE-QUOTE" before reaching the event sum type). Grounded on
// internal/adapters/binance/parser.go's canonicalInstrument.
func canonicalInstrument(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ""
	}
	knownQuotes := []string{"USDT", "BUSD", "USDC", "FDUSD", "BTC", "ETH", "BNB"}
	for _, quote := range knownQuotes {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)] + "-" + quote
		}
	}
	if len(symbol) > 3 {
		return symbol[:3] + "-" + symbol[3:]
	}
	return symbol
}

// subscribeFrame mirrors Binance's WS control-message shape (spec §4.2
// Subscribe).
type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// BuildSubscribeFrames emits one SUBSCRIBE control frame naming every
// resolved (channel, symbol) pair's stream token; the userData channel
// needs no subscription since it streams automatically once dialed via its
// listen-key path (spec §4.2 Subscribe).
func (d *Dialect) BuildSubscribeFrames(pairs []dialect.ChannelSymbol) ([][]byte, error) {
	var params []string
	for _, p := range pairs {
		token := streamToken(p.NativeSym, p.Channel)
		if token == "" {
			continue
		}
		params = append(params, token)
	}
	if len(params) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(subscribeFrame{Method: "SUBSCRIBE", Params: params, ID: 1})
	if err != nil {
		return nil, fmt.Errorf("marshal subscribe frame: %w", err)
	}
	return [][]byte{raw}, nil
}

func streamToken(nativeSym, channel string) string {
	lower := strings.ToLower(nativeSym)
	switch channel {
	case ChannelDepth:
		return lower + "@depth@100ms"
	case ChannelTrade:
		return lower + "@aggTrade"
	case ChannelTicker:
		return lower + "@ticker"
	default:
		return ""
	}
}
