package bitmex

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/driftnet-io/marketfeed/internal/book"
	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/schema"
	"github.com/driftnet-io/marketfeed/internal/wire"
)

// envelopeHead reads just enough of a Bitmex frame to classify it: data
// frames name a "table"; control frames (info/request/subscribe ack/error)
// carry none of these and are not routed further (grounded on bitmex.py's
// message_handler dispatch chain).
type envelopeHead struct {
	Table string `json:"table"`
}

func (d *Dialect) Decode(raw []byte) ([]dialect.Frame, error) {
	var head envelopeHead
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode bitmex frame: %w", err)
	}
	if head.Table == "" {
		return nil, nil
	}
	return []dialect.Frame{{Channel: head.Table, Raw: raw}}, nil
}

func (d *Dialect) Route(frame dialect.Frame) ([]dialect.Routed, error) {
	switch frame.Channel {
	case ChannelTrade:
		return d.routeTrade(frame.Raw)
	case ChannelQuote:
		return d.routeQuote(frame.Raw)
	case ChannelBook:
		return d.routeBook(frame.Raw)
	case ChannelOrder:
		return d.routeOrder(frame.Raw)
	case ChannelFunding:
		return d.routeFunding(frame.Raw)
	case ChannelPosition:
		return d.routePosition(frame.Raw)
	case ChannelInstrument:
		return d.routeInstrument(frame.Raw)
	default:
		return nil, nil
	}
}

type tradeRow struct {
	Symbol    string       `json:"symbol"`
	Side      string       `json:"side"`
	Size      string       `json:"size"`
	Price     string       `json:"price"`
	TrdMatch  string       `json:"trdMatchID"`
	Timestamp wire.ISO8601 `json:"timestamp"`
}

type tradeMessage struct {
	Data []tradeRow `json:"data"`
}

func (d *Dialect) routeTrade(raw []byte) ([]dialect.Routed, error) {
	var msg tradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode bitmex trade: %w", err)
	}
	routed := make([]dialect.Routed, 0, len(msg.Data))
	for _, row := range msg.Data {
		symbol := canonicalInstrument(row.Symbol)
		if symbol == "" {
			continue
		}
		side := schema.TradeSideBuy
		if strings.EqualFold(row.Side, "Sell") {
			side = schema.TradeSideSell
		}
		ts := row.Timestamp.Time()
		routed = append(routed, dialect.Routed{
			Kind:   dialect.RoutedEvent,
			Symbol: symbol,
			Event: schema.Event{
				Symbol:   symbol,
				Type:     schema.EventTypeTrade,
				IngestTS: ts,
				EmitTS:   ts,
				Payload: schema.TradePayload{
					TradeID:   row.TrdMatch,
					Side:      side,
					Price:     row.Price,
					Amount:    row.Size,
					Timestamp: ts,
				},
			},
		})
	}
	return routed, nil
}

type quoteRow struct {
	Symbol    string       `json:"symbol"`
	BidPrice  string       `json:"bidPrice"`
	AskPrice  string       `json:"askPrice"`
	Timestamp wire.ISO8601 `json:"timestamp"`
}

type quoteMessage struct {
	Data []quoteRow `json:"data"`
}

func (d *Dialect) routeQuote(raw []byte) ([]dialect.Routed, error) {
	var msg quoteMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode bitmex quote: %w", err)
	}
	routed := make([]dialect.Routed, 0, len(msg.Data))
	for _, row := range msg.Data {
		symbol := canonicalInstrument(row.Symbol)
		if symbol == "" {
			continue
		}
		ts := row.Timestamp.Time()
		routed = append(routed, dialect.Routed{
			Kind:   dialect.RoutedEvent,
			Symbol: symbol,
			Event: schema.Event{
				Symbol:   symbol,
				Type:     schema.EventTypeTicker,
				IngestTS: ts,
				EmitTS:   ts,
				Payload: schema.TickerPayload{
					BestBid:   row.BidPrice,
					BestAsk:   row.AskPrice,
					Timestamp: ts,
				},
			},
		})
	}
	return routed, nil
}

// bookRow mirrors one orderBookL2 data row. Price is absent on "update" rows
// (spec §4.1: Bitmex keeps the order's existing price and only replaces its
// size), so it decodes as a pointer.
type bookRow struct {
	Symbol string  `json:"symbol"`
	ID     uint64  `json:"id"`
	Side   string  `json:"side"`
	Size   *string `json:"size"`
	Price  *string `json:"price"`
}

type bookMessage struct {
	Action string    `json:"action"`
	Data   []bookRow `json:"data"`
}

func (d *Dialect) routeBook(raw []byte) ([]dialect.Routed, error) {
	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode bitmex book: %w", err)
	}
	if len(msg.Data) == 0 {
		return nil, nil
	}
	action, err := idAction(msg.Action)
	if err != nil {
		return nil, err
	}
	symbol := canonicalInstrument(msg.Data[0].Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("missing symbol in bitmex book message")
	}
	rows := make([]book.IDLevel, 0, len(msg.Data))
	for _, row := range msg.Data {
		side := book.SideBid
		if strings.EqualFold(row.Side, "Sell") {
			side = book.SideAsk
		}
		level := book.IDLevel{OrderID: row.ID, Side: side}
		if row.Size != nil {
			size, err := decimal.NewFromString(*row.Size)
			if err != nil {
				return nil, fmt.Errorf("decode bitmex book size %q: %w", *row.Size, err)
			}
			level.Size = size
		}
		if row.Price != nil {
			price, err := decimal.NewFromString(*row.Price)
			if err != nil {
				return nil, fmt.Errorf("decode bitmex book price %q: %w", *row.Price, err)
			}
			level.Price = price
		}
		rows = append(rows, level)
	}
	return []dialect.Routed{{
		Kind:     dialect.RoutedBookIDOp,
		Symbol:   symbol,
		IDAction: action,
		IDRows:   rows,
	}}, nil
}

func idAction(action string) (book.IDAction, error) {
	switch action {
	case "partial":
		return book.IDActionPartial, nil
	case "insert":
		return book.IDActionInsert, nil
	case "update":
		return book.IDActionUpdate, nil
	case "delete":
		return book.IDActionDelete, nil
	default:
		return 0, fmt.Errorf("unknown bitmex book action %q", action)
	}
}

type orderRow struct {
	Symbol    string  `json:"symbol"`
	OrderID   string  `json:"orderID"`
	ClOrdID   string  `json:"clOrdID"`
	Side      string  `json:"side"`
	OrdStatus string  `json:"ordStatus"`
	OrderQty  *string `json:"orderQty"`
	CumQty    *string `json:"cumQty"`
	LeavesQty *string `json:"leavesQty"`
	Price     *string      `json:"price"`
	AvgPrice  *string      `json:"avgPrice"`
	Timestamp wire.ISO8601 `json:"timestamp"`
}

type orderMessage struct {
	Data []orderRow `json:"data"`
}

func (d *Dialect) routeOrder(raw []byte) ([]dialect.Routed, error) {
	var msg orderMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode bitmex order: %w", err)
	}
	routed := make([]dialect.Routed, 0, len(msg.Data))
	for _, row := range msg.Data {
		if row.OrdStatus == "" {
			continue
		}
		symbol := canonicalInstrument(row.Symbol)
		side := schema.TradeSideBuy
		if strings.EqualFold(row.Side, "Sell") {
			side = schema.TradeSideSell
		}
		ts := row.Timestamp.Time()
		payload := schema.OrderPayload{
			OrderID:       row.OrderID,
			ClientOrderID: row.ClOrdID,
			Side:          side,
			Status:        bitmexOrderStatus(row.OrdStatus),
			Timestamp:     ts,
			Price:         row.Price,
			Average:       row.AvgPrice,
		}
		if row.OrderQty != nil {
			payload.Amount = *row.OrderQty
		}
		if row.CumQty != nil {
			payload.Filled = *row.CumQty
		}
		if row.LeavesQty != nil {
			payload.Remaining = *row.LeavesQty
		}
		routed = append(routed, dialect.Routed{
			Kind:   dialect.RoutedEvent,
			Symbol: symbol,
			Event: schema.Event{
				Symbol:   symbol,
				Type:     schema.EventTypeOrder,
				IngestTS: ts,
				EmitTS:   ts,
				Payload:  payload,
			},
		})
	}
	return routed, nil
}

// bitmexOrderStatus maps Bitmex's ordStatus vocabulary onto the canonical
// status set (grounded on bitmex.py's parse_order_status).
func bitmexOrderStatus(status string) schema.OrderStatus {
	switch status {
	case "PendingNew", "New", "PartiallyFilled":
		return schema.OrderStatusOpen
	case "Filled":
		return schema.OrderStatusClosed
	case "Canceled":
		return schema.OrderStatusCanceled
	case "Rejected":
		return schema.OrderStatusRejected
	default:
		return schema.OrderStatusOpen
	}
}

type fundingRow struct {
	Symbol           string       `json:"symbol"`
	FundingInterval  wire.ISO8601 `json:"fundingInterval"`
	FundingRate      wire.Number  `json:"fundingRate"`
	FundingRateDaily wire.Number  `json:"fundingRateDaily"`
	Timestamp        wire.ISO8601 `json:"timestamp"`
}

type fundingMessage struct {
	Data []fundingRow `json:"data"`
}

// routeFunding parses the funding table (spec §4.1 Funding), grounded on
// bitmex.py's _funding. fundingInterval is wire-encoded as a timestamp whose
// time-of-day component is the interval in hours (e.g. "...T08:00:00.000Z"
// means every 8 hours).
func (d *Dialect) routeFunding(raw []byte) ([]dialect.Routed, error) {
	var msg fundingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode bitmex funding: %w", err)
	}
	routed := make([]dialect.Routed, 0, len(msg.Data))
	for _, row := range msg.Data {
		symbol := canonicalInstrument(row.Symbol)
		if symbol == "" {
			continue
		}
		ts := row.Timestamp.Time()
		routed = append(routed, dialect.Routed{
			Kind:   dialect.RoutedEvent,
			Symbol: symbol,
			Event: schema.Event{
				Symbol:   symbol,
				Type:     schema.EventTypeFunding,
				IngestTS: ts,
				EmitTS:   ts,
				Payload: schema.FundingPayload{
					IntervalHours: row.FundingInterval.Time().Hour(),
					Rate:          row.FundingRate.String(),
					RateDaily:     row.FundingRateDaily.String(),
					Timestamp:     ts,
				},
			},
		})
	}
	return routed, nil
}

// stringifyRaw renders one raw JSON token from a heterogeneous position/
// instrument row as a bare string, unwrapping quoted strings and passing
// numbers/bools through verbatim.
func stringifyRaw(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

type positionMessage struct {
	Data []map[string]json.RawMessage `json:"data"`
}

func positionTimestamp(row map[string]json.RawMessage) time.Time {
	raw, ok := row["timestamp"]
	if !ok {
		return time.Time{}
	}
	var iso wire.ISO8601
	if err := json.Unmarshal(raw, &iso); err != nil {
		return time.Time{}
	}
	return iso.Time()
}

// routePosition passes the position table through opaquely (spec §4.1
// Position: exchange-specific fields, not normalized), grounded on
// bitmex.py's _position which forwards the whole row as **data.
func (d *Dialect) routePosition(raw []byte) ([]dialect.Routed, error) {
	var msg positionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode bitmex position: %w", err)
	}
	routed := make([]dialect.Routed, 0, len(msg.Data))
	for _, row := range msg.Data {
		symbolRaw, ok := row["symbol"]
		if !ok {
			continue
		}
		symbol := canonicalInstrument(stringifyRaw(symbolRaw))
		if symbol == "" {
			continue
		}
		fields := make(map[string]string, len(row))
		for k, v := range row {
			fields[k] = stringifyRaw(v)
		}
		ts := positionTimestamp(row)
		routed = append(routed, dialect.Routed{
			Kind:   dialect.RoutedEvent,
			Symbol: symbol,
			Event: schema.Event{
				Symbol:   symbol,
				Type:     schema.EventTypePosition,
				IngestTS: ts,
				EmitTS:   ts,
				Payload:  schema.PositionPayload{Fields: fields, Timestamp: ts},
			},
		})
	}
	return routed, nil
}

type instrumentRow struct {
	Symbol    string       `json:"symbol"`
	TickSize  wire.Number  `json:"tickSize"`
	LotSize   wire.Number  `json:"lotSize"`
	Timestamp wire.ISO8601 `json:"timestamp"`
}

type instrumentMessage struct {
	Data []instrumentRow `json:"data"`
}

// routeInstrument parses the instrument table's tick/lot size fields (spec
// §4.1 Instrument), grounded on bitmex.py's _instrument.
func (d *Dialect) routeInstrument(raw []byte) ([]dialect.Routed, error) {
	var msg instrumentMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode bitmex instrument: %w", err)
	}
	routed := make([]dialect.Routed, 0, len(msg.Data))
	for _, row := range msg.Data {
		symbol := canonicalInstrument(row.Symbol)
		if symbol == "" {
			continue
		}
		ts := row.Timestamp.Time()
		base, quote, _ := strings.Cut(symbol, "-")
		routed = append(routed, dialect.Routed{
			Kind:   dialect.RoutedEvent,
			Symbol: symbol,
			Event: schema.Event{
				Symbol:   symbol,
				Type:     schema.EventTypeInstrumentUpdate,
				IngestTS: ts,
				EmitTS:   ts,
				Payload: schema.InstrumentUpdatePayload{
					Instrument: schema.Instrument{
						Symbol:    symbol,
						Base:      base,
						Quote:     quote,
						PriceTick: row.TickSize.String(),
						SizeTick:  row.LotSize.String(),
					},
				},
			},
		})
	}
	return routed, nil
}
