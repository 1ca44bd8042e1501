// Package okx implements the OKX spot dialect: a push-snapshot book model
// (no REST snapshot, no U/u sequence numbers — spec §9 Open Questions: OKCoin
// handling) and passphrase-based WS login (spec §4.2 Authenticate). Grounded
// on internal/infra/adapters/okx/{provider,rest,ws_manager,options}.go.
package okx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/driftnet-io/marketfeed/errs"
	"github.com/driftnet-io/marketfeed/internal/book"
	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/signer"
)

// Channel names recognized in SubscriptionConfig.
const (
	ChannelBooks  = "books"
	ChannelTrade  = "trades"
	ChannelTicker = "tickers"
	ChannelOrders = "orders"
)

const (
	wsPublicBase  = "wss://ws.okx.com:8443/ws/v5/public"
	wsPrivateBase = "wss://ws.okx.com:8443/ws/v5/private"
	restBase      = "https://www.okx.com"
	booksPath     = "/api/v5/market/books"
	depthParam    = "sz"

	maxSubscriptionsPerFrame = 20 // grounded on ws_manager.go okxMaxSubscriptionsPerRequest
)

// Dialect implements dialect.Dialect for OKX spot.
type Dialect struct {
	creds   signer.Credentials
	depth   int
	http    *http.Client
	limiter *rate.Limiter
}

// New constructs an OKX dialect. creds may be zero for public-only sessions.
// depth <= 0 falls back to OKX's default book depth of 200
// (config.ExchangeSettings.BookDepth).
func New(creds signer.Credentials, restTimeout time.Duration, restRPS float64, depth int) *Dialect {
	if depth <= 0 {
		depth = 200
	}
	d := &Dialect{creds: creds, depth: depth, http: &http.Client{Timeout: restTimeout}}
	if restRPS > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(restRPS), 1)
	}
	return d
}

func (d *Dialect) Name() string { return "okx" }

func (d *Dialect) Endpoint(private bool, listenKey string) string {
	if private {
		return wsPrivateBase
	}
	return wsPublicBase
}

// NeedsListenKey is always false: OKX authenticates with a signed login
// frame over the private endpoint, not a listen-key path segment.
func (d *Dialect) NeedsListenKey() bool { return false }

func (d *Dialect) ObtainListenKey(ctx context.Context) (string, error) { return "", nil }

// RequiresAuth reports whether channels names a private channel (spec §4.2
// Authenticate).
func (d *Dialect) RequiresAuth(channels []string) bool {
	for _, c := range channels {
		switch c {
		case ChannelOrders:
			return true
		}
	}
	return false
}

type wsLoginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

type wsLoginRequest struct {
	Op   string       `json:"op"`
	Args []wsLoginArg `json:"args"`
}

// BuildAuthFrame signs "{timestamp}GET/users/self/verify" with base64
// HMAC-SHA256 (grounded on provider.go's generateLoginRequest).
func (d *Dialect) BuildAuthFrame(ctx context.Context) ([]byte, error) {
	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	message := signer.OKXLoginMessage(timestamp)
	sig := signer.Base64HMAC(d.creds.APISecret, message)
	raw, err := json.Marshal(wsLoginRequest{
		Op: "login",
		Args: []wsLoginArg{{
			APIKey:     d.creds.APIKey,
			Passphrase: d.creds.Passphrase,
			Timestamp:  timestamp,
			Sign:       sig,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal okx login frame: %w", err)
	}
	return raw, nil
}

type loginAck struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
}

func (d *Dialect) ParseAuthResult(raw []byte) (dialect.AuthResult, bool) {
	var ack loginAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return dialect.AuthResult{}, false
	}
	if ack.Event != "login" {
		return dialect.AuthResult{}, false
	}
	return dialect.AuthResult{OK: ack.Code == "0", Message: ack.Msg}, true
}

func (d *Dialect) BookMode(channel string) dialect.BookMode {
	if channel == ChannelBooks {
		return dialect.BookModePush
	}
	return dialect.BookModeNone
}

// SequencedVariant is unused for OKX's push-snapshot books, returned only to
// satisfy the interface.
func (d *Dialect) SequencedVariant(channel string) book.Variant { return book.VariantSpot }

// NeedsSnapshot is always false: OKX seeds the book from the first
// Action=="snapshot" push frame, never a REST call (spec §9 Open Questions).
func (d *Dialect) NeedsSnapshot(channel string) bool { return false }

func (d *Dialect) FetchSnapshot(ctx context.Context, req dialect.SnapshotRequest) (dialect.Snapshot, error) {
	return dialect.Snapshot{}, fmt.Errorf("okx: book seeded from push frames, FetchSnapshot unused")
}

// KeepaliveInterval is zero: OKX has no periodic dialect action. No ping
// frames are sent; IdleTimeout's 25s read deadline ends a silent connection
// so the session reconnects.
func (d *Dialect) KeepaliveInterval() time.Duration { return 0 }

func (d *Dialect) Keepalive(ctx context.Context) error { return nil }

func (d *Dialect) IdleTimeout() time.Duration { return 25 * time.Second }

// booksSnapshot mirrors the REST `GET /api/v5/market/books` response row
// (grounded on okx/rest.go fetchOrderBookSnapshot, kept separate from
// restutil.DepthSnapshot since OKX wraps its payload in a {code,msg,data}
// envelope that Binance's shape does not use).
type booksSnapshot struct {
	Asks   [][]string `json:"asks"`
	Bids   [][]string `json:"bids"`
	SeqID  string     `json:"seqId"`
	TS     string     `json:"ts"`
	Action string     `json:"action"`
}

type booksResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data []booksSnapshot `json:"data"`
}

// FetchRESTBookSnapshot is an auxiliary REST fetch OKX adapters may use to
// warm a book ahead of the first push frame (optional; the session does not
// call this since NeedsSnapshot is false). Exercises the books REST endpoint
// the teacher's fetchOrderBookSnapshot hits.
func (d *Dialect) FetchRESTBookSnapshot(ctx context.Context, nativeSym string) (dialect.Snapshot, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return dialect.Snapshot{}, errs.New(d.Name(), errs.CodeTransientNetwork, errs.WithCause(err))
		}
	}
	params := url.Values{}
	params.Set("instId", nativeSym)
	params.Set(depthParam, strconv.Itoa(d.depth))
	reqURL := restBase + booksPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return dialect.Snapshot{}, fmt.Errorf("create okx books request: %w", err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return dialect.Snapshot{}, errs.New(d.Name(), errs.CodeTransientNetwork, errs.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return dialect.Snapshot{}, errs.New(d.Name(), errs.CodeExchange,
			errs.WithHTTP(resp.StatusCode), errs.WithRawMessage(strings.TrimSpace(string(body))))
	}

	var payload booksResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return dialect.Snapshot{}, errs.New(d.Name(), errs.CodeProtocolDecode, errs.WithCause(err))
	}
	if payload.Code != "0" || len(payload.Data) == 0 {
		return dialect.Snapshot{}, errs.New(d.Name(), errs.CodeExchange, errs.WithRawMessage(payload.Msg))
	}
	row := payload.Data[0]
	seq, _ := strconv.ParseUint(row.SeqID, 10, 64)
	return dialect.Snapshot{
		Bids:         toBookLevels(row.Bids),
		Asks:         toBookLevels(row.Asks),
		LastUpdateID: seq,
	}, nil
}

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

type wsArgument struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId,omitempty"`
}

type wsRequest struct {
	Op   string       `json:"op"`
	Args []wsArgument `json:"args"`
}

// BuildSubscribeFrames batches (channel, symbol) pairs into OKX "subscribe"
// control frames, chunked to stay under the exchange's per-request argument
// ceiling (grounded on ws_manager.go's sendBatchedControlRequests).
func (d *Dialect) BuildSubscribeFrames(pairs []dialect.ChannelSymbol) ([][]byte, error) {
	args := make([]wsArgument, 0, len(pairs))
	for _, p := range pairs {
		args = append(args, wsArgument{Channel: p.Channel, InstID: p.NativeSym})
	}
	if len(args) == 0 {
		return nil, nil
	}

	var frames [][]byte
	for start := 0; start < len(args); start += maxSubscriptionsPerFrame {
		end := start + maxSubscriptionsPerFrame
		if end > len(args) {
			end = len(args)
		}
		raw, err := json.Marshal(wsRequest{Op: "subscribe", Args: args[start:end]})
		if err != nil {
			return nil, fmt.Errorf("marshal okx subscribe frame: %w", err)
		}
		frames = append(frames, raw)
	}
	return frames, nil
}

// NativeSymbol converts a canonical "BASE-QUOTE" symbol into OKX's native
// form, which is identical (OKX already uses hyphenated instIds for spot).
func NativeSymbol(symbol string) (string, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !strings.Contains(symbol, "-") {
		return "", false
	}
	return symbol, true
}

func canonicalInstrument(instID string) string {
	return strings.ToUpper(strings.TrimSpace(instID))
}
