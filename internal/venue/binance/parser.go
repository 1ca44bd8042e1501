package binance

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/driftnet-io/marketfeed/internal/book"
	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/schema"
)

// wsEvent reads just enough of a Binance frame to classify it before the
// type-specific decode pass (spec §4.2 Stream: "parse as JSON... dispatch to
// the adapter's per-channel parser"). Grounded on
// internal/adapters/binance/parser.go's wsEnvelope/meta two-pass decode.
type wsEvent struct {
	EventType string `json:"e"`
}

// Decode classifies one raw frame by its "e" event-type field; Binance's raw
// (non-combined) stream delivers one JSON object per frame, so this always
// returns at most one Frame.
func (d *Dialect) Decode(raw []byte) ([]dialect.Frame, error) {
	var head wsEvent
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode binance frame: %w", err)
	}
	if head.EventType == "" {
		return nil, nil
	}
	return []dialect.Frame{{Channel: head.EventType, Raw: raw}}, nil
}

func (d *Dialect) Route(frame dialect.Frame) ([]dialect.Routed, error) {
	switch strings.ToLower(frame.Channel) {
	case "depthupdate":
		return d.routeDepthUpdate(frame.Raw)
	case "aggtrade", "trade":
		return d.routeTrade(frame.Raw)
	case "24hrticker", "ticker":
		return d.routeTicker(frame.Raw)
	case "executionreport":
		return d.routeExecutionReport(frame.Raw)
	default:
		return nil, nil
	}
}

type depthUpdate struct {
	Symbol        string     `json:"s"`
	FirstUpdateID uint64     `json:"U"`
	FinalUpdateID uint64     `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

func (d *Dialect) routeDepthUpdate(raw []byte) ([]dialect.Routed, error) {
	var payload depthUpdate
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode depth update: %w", err)
	}
	symbol := canonicalInstrument(payload.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("missing symbol in depth update")
	}
	bids, err := toLevels(payload.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := toLevels(payload.Asks)
	if err != nil {
		return nil, err
	}
	return []dialect.Routed{{
		Kind:   dialect.RoutedBookDelta,
		Symbol: symbol,
		Delta: book.Delta{
			FirstID: payload.FirstUpdateID,
			FinalID: payload.FinalUpdateID,
			Bids:    bids,
			Asks:    asks,
		},
	}}, nil
}

type aggTrade struct {
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      uint64 `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	IsBuyerMaker bool   `json:"m"`
}

func (d *Dialect) routeTrade(raw []byte) ([]dialect.Routed, error) {
	var payload aggTrade
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode agg trade: %w", err)
	}
	symbol := canonicalInstrument(payload.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("missing symbol in agg trade")
	}
	side := schema.TradeSideBuy
	if payload.IsBuyerMaker {
		side = schema.TradeSideSell
	}
	ts := time.UnixMilli(payload.EventTime).UTC()
	return []dialect.Routed{{
		Kind:   dialect.RoutedEvent,
		Symbol: symbol,
		Event: schema.Event{
			Symbol:   symbol,
			Type:     schema.EventTypeTrade,
			IngestTS: ts,
			EmitTS:   ts,
			Payload: schema.TradePayload{
				TradeID:   fmt.Sprintf("%d", payload.TradeID),
				Side:      side,
				Price:     payload.Price,
				Amount:    payload.Quantity,
				Timestamp: ts,
			},
		},
	}}, nil
}

type ticker24hr struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	AskPrice  string `json:"a"`
}

func (d *Dialect) routeTicker(raw []byte) ([]dialect.Routed, error) {
	var payload ticker24hr
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	symbol := canonicalInstrument(payload.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("missing symbol in ticker")
	}
	ts := time.UnixMilli(payload.EventTime).UTC()
	return []dialect.Routed{{
		Kind:   dialect.RoutedEvent,
		Symbol: symbol,
		Event: schema.Event{
			Symbol:   symbol,
			Type:     schema.EventTypeTicker,
			IngestTS: ts,
			EmitTS:   ts,
			Payload: schema.TickerPayload{
				BestBid:   payload.BidPrice,
				BestAsk:   payload.AskPrice,
				Timestamp: ts,
			},
		},
	}}, nil
}

type executionReport struct {
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	ClientOrderID      string `json:"c"`
	Side               string `json:"S"`
	OriginalQuantity   string `json:"q"`
	Price              string `json:"p"`
	OrderStatus        string `json:"X"`
	OrderID            int64  `json:"i"`
	CumulativeQuantity string `json:"z"`
	TransactionTime    int64  `json:"T"`
}

func (d *Dialect) routeExecutionReport(raw []byte) ([]dialect.Routed, error) {
	var payload executionReport
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode execution report: %w", err)
	}
	symbol := canonicalInstrument(payload.Symbol)
	side := schema.TradeSideBuy
	if strings.EqualFold(payload.Side, "SELL") {
		side = schema.TradeSideSell
	}
	ts := time.UnixMilli(payload.TransactionTime).UTC()
	remaining := calculateRemaining(payload.OriginalQuantity, payload.CumulativeQuantity)
	return []dialect.Routed{{
		Kind:   dialect.RoutedEvent,
		Symbol: symbol,
		Event: schema.Event{
			Symbol:   symbol,
			Type:     schema.EventTypeOrder,
			IngestTS: ts,
			EmitTS:   ts,
			Payload: schema.OrderPayload{
				OrderID:       fmt.Sprintf("%d", payload.OrderID),
				ClientOrderID: payload.ClientOrderID,
				Side:          side,
				Status:        binanceStatus(payload.OrderStatus),
				Amount:        payload.OriginalQuantity,
				Filled:        payload.CumulativeQuantity,
				Remaining:     remaining,
				Price:         &payload.Price,
				Timestamp:     ts,
			},
		},
	}}, nil
}

func binanceStatus(raw string) schema.OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "NEW", "PARTIALLY_FILLED":
		return schema.OrderStatusOpen
	case "FILLED":
		return schema.OrderStatusClosed
	case "CANCELED":
		return schema.OrderStatusCanceled
	case "PENDING_CANCEL":
		return schema.OrderStatusCanceling
	case "REJECTED":
		return schema.OrderStatusRejected
	case "EXPIRED":
		return schema.OrderStatusFailed
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
