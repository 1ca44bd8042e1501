// Package schema defines the canonical, exchange-agnostic event vocabulary
// normalized from every venue's wire dialect.
package schema

import "time"

// Side enumerates book sides.
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// TradeSide enumerates trade directions.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// OrderStatus enumerates canonical order lifecycle states (spec data model).
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusCanceled  OrderStatus = "canceled"
	OrderStatusCanceling OrderStatus = "canceling"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusFailed    OrderStatus = "failed"
)

// EventType tags the normalized event sum type (Design Notes: replace the
// source's keyword-dictionary callback with a tagged variant).
type EventType string

const (
	EventTypeTrade            EventType = "Trade"
	EventTypeTicker           EventType = "Ticker"
	EventTypeBookSnapshot     EventType = "BookSnapshot"
	EventTypeBookDelta        EventType = "BookDelta"
	EventTypeFunding          EventType = "Funding"
	EventTypeOrder            EventType = "Order"
	EventTypePosition         EventType = "Position"
	EventTypeInstrumentUpdate EventType = "InstrumentUpdate"
)

// Event is the canonical envelope dispatched by the router to sinks. Payload
// holds one of the *Payload structs below, selected by Type.
type Event struct {
	EventID  string
	Exchange string
	Symbol   string
	Type     EventType
	SeqID    uint64
	IngestTS time.Time
	EmitTS   time.Time
	Payload  any
}

// PriceLevel is a single (price, size) pair carried as decimal strings —
// conversion to float64 is permitted only at the sink boundary (spec §3).
type PriceLevel struct {
	Price string
	Size  string
}

// TradePayload normalizes an executed trade (spec §3).
type TradePayload struct {
	TradeID   string
	Side      TradeSide
	Price     string
	Amount    string
	Timestamp time.Time
}

// TickerPayload normalizes a best-bid/ask summary (spec §3).
type TickerPayload struct {
	BestBid   string
	BestAsk   string
	Timestamp time.Time
}

// BookSnapshotPayload carries a full ordered book view (spec §3, §4.1).
// Forced indicates the recipient must discard prior state (Glossary:
// "Forced callback").
type BookSnapshotPayload struct {
	Bids      []PriceLevel
	Asks      []PriceLevel
	Forced    bool
	Timestamp time.Time
}

// BookDeltaPayload carries an incremental update (spec §3, §4.1).
type BookDeltaPayload struct {
	Bids      []PriceLevel
	Asks      []PriceLevel
	Forced    bool
	Timestamp time.Time
}

// FundingPayload normalizes a perpetual funding-rate update (spec §3).
type FundingPayload struct {
	IntervalHours int
	Rate          string
	RateDaily     string
	Timestamp     time.Time
}

// OrderPayload normalizes a private order/execution update (spec §3).
// UnhandledAmount is populated by the order coalescer (spec §4.4) before the
// router dispatches to sinks, so sinks need not reconstruct fill history.
type OrderPayload struct {
	OrderID         string
	ClientOrderID   string
	Side            TradeSide
	Status          OrderStatus
	Amount          string
	Filled          string
	Remaining       string
	Price           *string
	Average         *string
	Timestamp       time.Time
	UnhandledAmount string
}

// PositionPayload is an exchange-opaque position snapshot (spec §3:
// "exchange-opaque dictionary of position fields").
type PositionPayload struct {
	Fields    map[string]string
	Timestamp time.Time
}

// InstrumentUpdatePayload advertises an instrument catalogue refresh.
type InstrumentUpdatePayload struct {
	Instrument Instrument
}

// Instrument captures canonical instrument metadata (expansion, needed by
// REST/signing paths that require tick size / min notional).
type Instrument struct {
	Symbol      string
	Base        string
	Quote       string
	PriceTick   string
	SizeTick    string
	MinNotional string
}

// Clone returns a deep copy of the instrument (safe to hand across feeds).
func (i Instrument) Clone() Instrument {
	return i
}
