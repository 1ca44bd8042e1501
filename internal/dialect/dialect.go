// Package dialect defines the per-exchange plug-in surface that the generic
// stream session (internal/session) drives. An adapter is a value holding a
// Dialect; spot/margin/futures variants of the same exchange differ only in
// the Dialect they supply (spec §9 Design Notes: composition, not mixins).
package dialect

import (
	"context"
	"time"

	"github.com/driftnet-io/marketfeed/internal/book"
	"github.com/driftnet-io/marketfeed/internal/schema"
)

// BookMode selects which book-engine mode a channel's symbol is kept under.
type BookMode int

const (
	// BookModeNone: channel carries no book state (trade, ticker, funding,
	// order, position, instrument-update channels).
	BookModeNone BookMode = iota
	// BookModeSequenced: snapshot+U/u-delta reconciliation (spec §4.1 table).
	BookModeSequenced
	// BookModeOrderID: Bitmex-style partial/insert/update/delete protocol.
	BookModeOrderID
	// BookModePush: OKEx-family push-snapshot model, no REST snapshot, no
	// sequence numbers (spec §9 Open Questions: OKCoin handling).
	BookModePush
)

// RoutedKind tags what a Routed value carries.
type RoutedKind int

const (
	RoutedEvent RoutedKind = iota
	RoutedBookDelta
	RoutedBookIDOp
	RoutedBookPush
)

// Routed is the structured result of parsing one Frame. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Routed struct {
	Kind   RoutedKind
	Symbol string // canonical symbol; required for all book-kind variants

	Event schema.Event // Kind == RoutedEvent

	Delta book.Delta // Kind == RoutedBookDelta

	IDAction book.IDAction  // Kind == RoutedBookIDOp
	IDRows   []book.IDLevel // Kind == RoutedBookIDOp

	PushBids    []book.Level // Kind == RoutedBookPush
	PushAsks    []book.Level
	PushPartial bool
}

// Frame is one decoded wire message handed from the session to the dialect's
// Route for parsing (spec §4.2 Stream: "parse as JSON... dispatch to the
// adapter's per-channel parser").
type Frame struct {
	// Channel is the dialect-recognized topic/table the frame arrived on.
	Channel string
	// Raw is the decoded JSON payload for that channel, still undecoded into
	// a concrete shape: the dialect's parser owns the second decode pass.
	Raw []byte
}

// AuthResult reports whether a login frame was accepted, consumed by the
// session's AUTHENTICATING state (spec §4.2).
type AuthResult struct {
	OK      bool
	Message string
}

// SnapshotRequest names one symbol the session must seed before admitting
// deltas (spec §4.2 Snapshot state).
type SnapshotRequest struct {
	Symbol    string // canonical symbol
	NativeSym string // exchange-native symbol
}

// Dialect is the per-exchange triple of (endpoints, framing, parser table)
// an adapter supplies to the generic stream session (Glossary: "Dialect").
type Dialect interface {
	// Name identifies the exchange for logging, metrics, and error envelopes.
	Name() string

	// Endpoint returns the WebSocket URL to dial. private reports whether
	// the caller intends to send authenticated/private subscriptions;
	// exchanges whose private endpoint encodes a listen-key path segment
	// resolve it via listenKey.
	Endpoint(private bool, listenKey string) string

	// NeedsListenKey reports whether Connect must obtain a listen key via
	// REST before dialing the private endpoint (spec §4.2 Connect: "For
	// exchanges whose private-channel endpoint encodes a listen-key path
	// segment, first obtain the listen-key via REST").
	NeedsListenKey() bool

	// ObtainListenKey fetches a fresh listen key. Only called when
	// NeedsListenKey reports true.
	ObtainListenKey(ctx context.Context) (string, error)

	// RequiresAuth reports whether the subscription config's channel set
	// requires the AUTHENTICATING state at all.
	RequiresAuth(channels []string) bool

	// BuildAuthFrame constructs the wire bytes for a login/auth frame.
	BuildAuthFrame(ctx context.Context) ([]byte, error)

	// ParseAuthResult inspects one incoming frame and, if it is the login
	// acknowledgement, reports the outcome. ok=false means "not an auth
	// frame; keep waiting".
	ParseAuthResult(raw []byte) (result AuthResult, ok bool)

	// BuildSubscribeFrames encodes the resolved (channel, symbol) pairs into
	// one or more wire subscription frames (spec §4.2 Subscribe).
	BuildSubscribeFrames(pairs []ChannelSymbol) ([][]byte, error)

	// Decode turns one raw transport message into zero or more dialect
	// Frames. Implementations that receive DEFLATE-compressed frames
	// (OKEx family) decompress here before splitting by channel.
	Decode(raw []byte) ([]Frame, error)

	// Route parses one decoded Frame into zero or more Routed messages. A
	// frame that does not map to a known channel returns (nil, nil); the
	// session logs at WARN and continues (spec §4.6: "Unknown message
	// table/topic"). Book-kind frames are returned as raw deltas/pushes, not
	// final events: the book engine lives in the generic session, not the
	// dialect, so the session (not the adapter) owns sequence reconciliation
	// and the resulting "forced" flag (spec §4.1, §9: keep HOW, replace WHAT).
	Route(frame Frame) ([]Routed, error)

	// BookMode reports how channel's book state is reconciled, so the
	// session knows which book-engine mode to keep for the channel's symbol.
	BookMode(channel string) BookMode

	// SequencedVariant reports the spot/futures reconciliation rule for a
	// BookModeSequenced channel (spec §4.1, §9 Open Questions).
	SequencedVariant(channel string) book.Variant

	// NeedsSnapshot reports whether channel requires a REST snapshot seed
	// before the session admits deltas for it (spec §4.2 Snapshot state).
	NeedsSnapshot(channel string) bool

	// FetchSnapshot retrieves and returns the seed book-engine state for one
	// symbol. Implementations call internal/restutil under the hood.
	FetchSnapshot(ctx context.Context, req SnapshotRequest) (Snapshot, error)

	// KeepaliveInterval returns how often the session must refresh its
	// listen-key (or send a ping), or zero if the exchange needs neither.
	KeepaliveInterval() time.Duration

	// Keepalive performs one keepalive action (listen-key refresh, ping
	// frame, etc). Returning an errs.E with CodeStaleListenKey triggers a
	// full reconnect (spec §4.6).
	Keepalive(ctx context.Context) error

	// IdleTimeout returns the adapter-configured idle read timeout (spec §5,
	// default 180s).
	IdleTimeout() time.Duration
}

// ChannelSymbol is one resolved (channel, symbol) pair to subscribe to,
// carrying both canonical and native symbol forms.
type ChannelSymbol struct {
	Channel   string
	Symbol    string // canonical
	NativeSym string // exchange-native
}

// Snapshot is the book-engine seed state a dialect's FetchSnapshot returns;
// internal/session hands this to book.Book.InitFromSnapshot.
type Snapshot struct {
	Bids         []BookLevel
	Asks         []BookLevel
	LastUpdateID uint64
}

// BookLevel is a decimal-preserving (price, size) token pair as read off the
// wire, before conversion to book.Level.
type BookLevel struct {
	Price string
	Size  string
}
