package book

import (
	"sync"

	"github.com/shopspring/decimal"
)

// IDAction enumerates the Bitmex-style order-id-indexed protocol operations
// (spec §4.1: "partial/insert/update/delete protocol keyed by order-id").
type IDAction int

const (
	IDActionPartial IDAction = iota
	IDActionInsert
	IDActionUpdate
	IDActionDelete
)

// IDLevel is one row of a Bitmex-style order-id-indexed message.
type IDLevel struct {
	OrderID uint64
	Side    Side
	Price   decimal.Decimal
	Size    decimal.Decimal
}

// Side mirrors schema.Side's two values locally; this package does not import
// schema, so callers translate from schema.Side at the adapter boundary.
type Side int

const (
	SideBid Side = iota
	SideAsk
)

// IDBook tracks resting orders by id, one price level per id, and
// dereferences id -> price before removing a level on delete (spec §4.1).
// Messages arriving before the initial partial are discarded.
type IDBook struct {
	mu sync.Mutex

	partialReceived bool

	bidSizes map[string]decimal.Decimal // price key -> aggregate size
	askSizes map[string]decimal.Decimal
	bidPrice map[uint64]decimal.Decimal // order id -> price, for delete/update dereference
	askPrice map[uint64]decimal.Decimal
}

// NewIDBook constructs an empty order-id-indexed book.
func NewIDBook() *IDBook {
	return &IDBook{
		bidSizes: make(map[string]decimal.Decimal),
		askSizes: make(map[string]decimal.Decimal),
		bidPrice: make(map[uint64]decimal.Decimal),
		askPrice: make(map[uint64]decimal.Decimal),
	}
}

// Apply processes one batch of same-action rows. Rows arriving before the
// first IDActionPartial are discarded and ok reports false.
func (b *IDBook) Apply(action IDAction, rows []IDLevel) (view *View, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if action == IDActionPartial {
		b.bidSizes = make(map[string]decimal.Decimal)
		b.askSizes = make(map[string]decimal.Decimal)
		b.bidPrice = make(map[uint64]decimal.Decimal)
		b.askPrice = make(map[uint64]decimal.Decimal)
		for _, r := range rows {
			b.upsertLocked(r)
		}
		b.partialReceived = true
		return b.viewLocked(), true
	}

	if !b.partialReceived {
		return nil, false
	}

	switch action {
	case IDActionInsert:
		for _, r := range rows {
			b.upsertLocked(r)
		}
	case IDActionUpdate:
		for _, r := range rows {
			b.updateSizeLocked(r)
		}
	case IDActionDelete:
		for _, r := range rows {
			b.deleteLocked(r)
		}
	}
	return b.viewLocked(), true
}

// Reset clears all state, requiring a fresh partial before further updates.
func (b *IDBook) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.partialReceived = false
	b.bidSizes = make(map[string]decimal.Decimal)
	b.askSizes = make(map[string]decimal.Decimal)
	b.bidPrice = make(map[uint64]decimal.Decimal)
	b.askPrice = make(map[uint64]decimal.Decimal)
}

func (b *IDBook) upsertLocked(r IDLevel) {
	sizes, prices := b.sideMaps(r.Side)
	// an insert (or a repeated id in a partial) may move an id to a new price; drop any stale
	// reference first so the old level's aggregate size stays correct.
	if old, had := prices[r.OrderID]; had {
		b.removeFromAggregate(sizes, old, r.OrderID, prices)
	}
	key := r.Price.String()
	sizes[key] = r.Size
	prices[r.OrderID] = r.Price
}

// updateSizeLocked applies an update row that carries only a new size, not a
// price (Bitmex's "update" action never repeats the price on the wire — the
// recipient keeps the order's existing price and only replaces its resting
// size). A row naming an unknown order id is discarded.
func (b *IDBook) updateSizeLocked(r IDLevel) {
	sizes, prices := b.sideMaps(r.Side)
	price, had := prices[r.OrderID]
	if !had {
		return
	}
	sizes[price.String()] = r.Size
}

func (b *IDBook) deleteLocked(r IDLevel) {
	sizes, prices := b.sideMaps(r.Side)
	price, had := prices[r.OrderID]
	if !had {
		return
	}
	delete(prices, r.OrderID)
	delete(sizes, price.String())
}

// removeFromAggregate drops the level that an order id previously occupied.
// Bitmex's wire protocol is one-order-per-level for the depths this engine
// targets, so reassigning simply replaces the prior entry.
func (b *IDBook) removeFromAggregate(sizes map[string]decimal.Decimal, price decimal.Decimal, id uint64, prices map[uint64]decimal.Decimal) {
	delete(sizes, price.String())
}

func (b *IDBook) sideMaps(s Side) (map[string]decimal.Decimal, map[uint64]decimal.Decimal) {
	if s == SideBid {
		return b.bidSizes, b.bidPrice
	}
	return b.askSizes, b.askPrice
}

func (b *IDBook) viewLocked() *View {
	return &View{
		Bids: sortedDecimalLevels(b.bidSizes, true),
		Asks: sortedDecimalLevels(b.askSizes, false),
	}
}

func sortedDecimalLevels(m map[string]decimal.Decimal, descending bool) []Level {
	if len(m) == 0 {
		return nil
	}
	out := make([]Level, 0, len(m))
	for key, size := range m {
		price, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		out = append(out, Level{Price: price, Size: size})
	}
	sortLevelsInPlace(out, descending)
	return out
}
