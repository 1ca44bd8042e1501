package okx

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/driftnet-io/marketfeed/internal/book"
	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/schema"
	"github.com/driftnet-io/marketfeed/internal/wire"
)

// wsEnvelope mirrors OKX's wire frame shape: data-carrying frames name a
// channel/instId pair in Arg and carry zero or more records in Data; control
// acks (subscribe/unsubscribe/error/login) carry Event instead (grounded on
// ws_manager.go's wsEnvelope).
type wsEnvelope struct {
	Arg   wsArgument        `json:"arg"`
	Data  []json.RawMessage `json:"data"`
	Event string            `json:"event"`
}

// Decode splits one OKX frame into per-record Frames so Route's per-channel
// parsers each see a single record (spec §4.2 Stream). A bare "pong" text
// frame carries no payload and yields no frames.
func (d *Dialect) Decode(raw []byte) ([]dialect.Frame, error) {
	if strings.TrimSpace(string(raw)) == "pong" {
		return nil, nil
	}
	var envelope wsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode okx frame: %w", err)
	}
	if envelope.Event != "" || len(envelope.Data) == 0 {
		return nil, nil
	}
	frames := make([]dialect.Frame, 0, len(envelope.Data))
	for _, rec := range envelope.Data {
		frames = append(frames, dialect.Frame{Channel: envelope.Arg.Channel, Raw: rec})
	}
	return frames, nil
}

func (d *Dialect) Route(frame dialect.Frame) ([]dialect.Routed, error) {
	switch strings.ToLower(frame.Channel) {
	case ChannelTrade:
		return d.routeTrade(frame.Raw)
	case ChannelTicker:
		return d.routeTicker(frame.Raw)
	case ChannelBooks:
		return d.routeBook(frame.Raw)
	case ChannelOrders:
		return d.routeOrder(frame.Raw)
	default:
		return nil, nil
	}
}

type tradeEvent struct {
	InstID    string      `json:"instId"`
	TradeID   string      `json:"tradeId"`
	Price     string      `json:"px"`
	Quantity  string      `json:"sz"`
	Side      string      `json:"side"`
	Timestamp wire.Millis `json:"ts"`
}

func (d *Dialect) routeTrade(raw []byte) ([]dialect.Routed, error) {
	var evt tradeEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("decode okx trade: %w", err)
	}
	symbol := canonicalInstrument(evt.InstID)
	if symbol == "" {
		return nil, fmt.Errorf("missing instId in okx trade")
	}
	side := schema.TradeSideBuy
	if strings.EqualFold(evt.Side, "sell") {
		side = schema.TradeSideSell
	}
	ts := evt.Timestamp.Time()
	return []dialect.Routed{{
		Kind:   dialect.RoutedEvent,
		Symbol: symbol,
		Event: schema.Event{
			Symbol:   symbol,
			Type:     schema.EventTypeTrade,
			IngestTS: ts,
			EmitTS:   ts,
			Payload: schema.TradePayload{
				TradeID:   evt.TradeID,
				Side:      side,
				Price:     evt.Price,
				Amount:    evt.Quantity,
				Timestamp: ts,
			},
		},
	}}, nil
}

type tickerEvent struct {
	InstID string      `json:"instId"`
	Bid    string      `json:"bidPx"`
	Ask    string      `json:"askPx"`
	Ts     wire.Millis `json:"ts"`
}

func (d *Dialect) routeTicker(raw []byte) ([]dialect.Routed, error) {
	var evt tickerEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("decode okx ticker: %w", err)
	}
	symbol := canonicalInstrument(evt.InstID)
	if symbol == "" {
		return nil, fmt.Errorf("missing instId in okx ticker")
	}
	ts := evt.Ts.Time()
	return []dialect.Routed{{
		Kind:   dialect.RoutedEvent,
		Symbol: symbol,
		Event: schema.Event{
			Symbol:   symbol,
			Type:     schema.EventTypeTicker,
			IngestTS: ts,
			EmitTS:   ts,
			Payload: schema.TickerPayload{
				BestBid:   evt.Bid,
				BestAsk:   evt.Ask,
				Timestamp: ts,
			},
		},
	}}, nil
}

// bookEvent mirrors one `books` channel record; Action=="snapshot" replaces
// the book wholesale, anything else is an incremental push (both keyed by
// SeqID -- spec §9 Open Questions: OKCoin has no U/u delta reconciliation, so
// the session applies these through book.ApplyPush rather than ApplyDelta).
// Grounded on provider.go's bookEvent/handleBooks.
type bookEvent struct {
	InstID string      `json:"instId"`
	Asks   [][]string  `json:"asks"`
	Bids   [][]string  `json:"bids"`
	SeqID  json.Number `json:"seqId"`
	Ts     string      `json:"ts"`
	Action string      `json:"action"`
}

func (d *Dialect) routeBook(raw []byte) ([]dialect.Routed, error) {
	var evt bookEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("decode okx book: %w", err)
	}
	symbol := canonicalInstrument(evt.InstID)
	if symbol == "" {
		return nil, fmt.Errorf("missing instId in okx book")
	}
	bids, err := toLevels(evt.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := toLevels(evt.Asks)
	if err != nil {
		return nil, err
	}
	return []dialect.Routed{{
		Kind:        dialect.RoutedBookPush,
		Symbol:      symbol,
		PushBids:    bids,
		PushAsks:    asks,
		PushPartial: strings.EqualFold(strings.TrimSpace(evt.Action), "snapshot"),
	}}, nil
}

type orderEvent struct {
	InstID    string      `json:"instId"`
	OrdID     string      `json:"ordId"`
	ClOrdID   string      `json:"clOrdId"`
	Px        string      `json:"px"`
	Sz        string      `json:"sz"`
	Side      string      `json:"side"`
	State     string      `json:"state"`
	AccFillSz string      `json:"accFillSz"`
	AvgPx     string      `json:"avgPx"`
	UTime     wire.Millis `json:"uTime"`
}

func (d *Dialect) routeOrder(raw []byte) ([]dialect.Routed, error) {
	var evt orderEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("decode okx order: %w", err)
	}
	symbol := canonicalInstrument(evt.InstID)
	side := schema.TradeSideBuy
	if strings.EqualFold(evt.Side, "sell") {
		side = schema.TradeSideSell
	}
	ts := evt.UTime.Time()
	remaining := calculateRemaining(evt.Sz, evt.AccFillSz)
	return []dialect.Routed{{
		Kind:   dialect.RoutedEvent,
		Symbol: symbol,
		Event: schema.Event{
			Symbol:   symbol,
			Type:     schema.EventTypeOrder,
			IngestTS: ts,
			EmitTS:   ts,
			Payload: schema.OrderPayload{
				OrderID:       evt.OrdID,
				ClientOrderID: evt.ClOrdID,
				Side:          side,
				Status:        okxOrderStatus(evt.State),
				Amount:        evt.Sz,
				Filled:        evt.AccFillSz,
				Remaining:     remaining,
				Price:         &evt.Px,
				Average:       &evt.AvgPx,
				Timestamp:     ts,
			},
		},
	}}, nil
}

func okxOrderStatus(state string) schema.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "live":
		return schema.OrderStatusOpen
	case "partially_filled":
		return schema.OrderStatusOpen
	case "filled":
		return schema.OrderStatusClosed
	case "canceled":
		return schema.OrderStatusCanceled
	default:
		return schema.OrderStatusOpen
	}
}

func calculateRemaining(orig, executed string) string {
	origDec, err1 := decimal.NewFromString(strings.TrimSpace(orig))
	execDec, err2 := decimal.NewFromString(strings.TrimSpace(executed))
	if err1 != nil || err2 != nil {
		return strings.TrimSpace(orig)
	}
	remaining := origDec.Sub(execDec)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return remaining.String()
}

func toLevels(raw [][]string) ([]book.Level, error) {
	out := make([]book.Level, 0, len(raw))
	for _, tok := range raw {
		if len(tok) < 2 {
			continue
		}
		price, err := decimal.NewFromString(tok[0])
		if err != nil {
			return nil, fmt.Errorf("decode level price %q: %w", tok[0], err)
		}
		size, err := decimal.NewFromString(tok[1])
		if err != nil {
			return nil, fmt.Errorf("decode level size %q: %w", tok[1], err)
		}
		out = append(out, book.Level{Price: price, Size: size})
	}
	return out, nil
}
