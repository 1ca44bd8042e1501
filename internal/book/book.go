// Package book implements the order-book reconstruction state machine: it
// merges a REST snapshot with a live delta stream, detects sequence gaps,
// and enforces the sequence-overlap rules documented per exchange (spec
// §4.1). This is the single most failure-sensitive component in the system:
// get the off-by-one wrong and every book silently desyncs.
package book

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Variant selects the sequence-reconciliation rule a venue uses to bridge a
// REST snapshot with its live delta stream (spec §4.1, §9 Open Questions).
type Variant int

const (
	// VariantSpot applies the Binance-spot rule: a delta bridges the
	// snapshot when U <= lastUpdateID+1 <= u.
	VariantSpot Variant = iota
	// VariantFutures applies the Binance-futures rule: a delta bridges the
	// snapshot when U <= lastUpdateID <= u (note the missing +1).
	VariantFutures
)

// Outcome classifies the result of applying one delta against the current
// reconciliation state (spec §4.1 table).
type Outcome int

const (
	// OutcomeSkip: the delta is already covered by the snapshot.
	OutcomeSkip Outcome = iota
	// OutcomeApply: the delta was applied against an already-bridged book.
	OutcomeApply
	// OutcomeApplyForced: this is the delta that bridges the snapshot; the
	// recipient must treat the resulting book as a reset.
	OutcomeApplyForced
	// OutcomeResync: a gap was detected; out-of-band recovery (re-fetch the
	// snapshot) is required. Surfaced as a snapshot-gap error by the caller.
	OutcomeResync
)

// Level is a single (price, size) update; Size == 0 means remove.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Delta is one wire update to apply to a book (spec §3).
type Delta struct {
	FirstID uint64 // U
	FinalID uint64 // u
	Bids    []Level
	Asks    []Level
}

// View is a cheap read of the ordered book sides, for dispatch (spec §4.1
// book_view). Bids are sorted descending by price, asks ascending.
type View struct {
	Bids []Level
	Asks []Level
}

// side stores resting size keyed by the price's canonical decimal string so
// repeated updates at the same price hash to the same map entry regardless
// of how the venue formatted the token.
type side map[string]sidelevel

type sidelevel struct {
	price decimal.Decimal
	size  decimal.Decimal
}

// Book reconstructs and maintains a single (exchange, symbol) order book.
type Book struct {
	mu      sync.Mutex
	variant Variant

	bids side
	asks side

	lastUpdateID uint64
	bridged      bool // whether the forced bridge to the live stream has occurred
	haveSnapshot bool
}

// New constructs a Book using the given sequence-reconciliation variant.
func New(variant Variant) *Book {
	return &Book{
		variant: variant,
		bids:    make(side),
		asks:    make(side),
	}
}

// InitFromSnapshot replaces book state and records the snapshot's terminal
// sequence id (spec §4.1 init_from_snapshot).
func (b *Book) InitFromSnapshot(bids, asks []Level, lastUpdateID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(side, len(bids))
	b.asks = make(side, len(asks))
	upsertAll(b.bids, bids)
	upsertAll(b.asks, asks)
	b.lastUpdateID = lastUpdateID
	b.bridged = false
	b.haveSnapshot = true
}

// ApplyDelta applies one delta, returning the resulting outcome and, for the
// apply/apply-forced cases, the resulting view (spec §4.1 apply_delta).
func (b *Book) ApplyDelta(d Delta) (Outcome, *View) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.haveSnapshot {
		return OutcomeResync, nil
	}

	if !b.bridged {
		// Skip threshold differs by variant: spot treats u == lastUpdateID
		// as already covered by the snapshot, futures does not (spec §4.1:
		// "u < lastUpdateId on futures variants").
		skip := d.FinalID <= b.lastUpdateID
		if b.variant == VariantFutures {
			skip = d.FinalID < b.lastUpdateID
		}
		if skip {
			return OutcomeSkip, nil
		}

		bridges := false
		switch b.variant {
		case VariantFutures:
			bridges = d.FirstID <= b.lastUpdateID && b.lastUpdateID <= d.FinalID
		default: // VariantSpot
			bridges = d.FirstID <= b.lastUpdateID+1 && b.lastUpdateID+1 <= d.FinalID
		}
		if !bridges {
			return OutcomeResync, nil
		}

		b.applyLocked(d)
		b.lastUpdateID = d.FinalID
		b.bridged = true
		return OutcomeApplyForced, b.viewLocked()
	}

	// After the first forced apply, deltas are applied unconditionally
	// until disconnect (spec §4.1).
	b.applyLocked(d)
	b.lastUpdateID = d.FinalID
	return OutcomeApply, b.viewLocked()
}

// ApplyPush models venues (OKEx/OKCoin-family) that push their own
// authoritative "partial" + "update" frames over the socket with no REST
// snapshot and no U/u sequence pair at all (expansion, spec §9 Open
// Questions: OKCoin handling). The first pushed frame is always forced; all
// subsequent frames unconditionally replace/update levels.
func (b *Book) ApplyPush(bids, asks []Level, isPartial bool) *View {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isPartial {
		b.bids = make(side, len(bids))
		b.asks = make(side, len(asks))
		upsertAll(b.bids, bids)
		upsertAll(b.asks, asks)
		b.haveSnapshot = true
		b.bridged = true
		return b.viewLocked()
	}

	upsertAll(b.bids, bids)
	upsertAll(b.asks, asks)
	return b.viewLocked()
}

// View returns a cheap read of the ordered sides (spec §4.1 book_view).
func (b *Book) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.viewLocked()
}

// Reset clears all book state, used when a session reconnects (spec §4.2
// Close/reconnect: "reset per-symbol book state").
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(side)
	b.asks = make(side)
	b.lastUpdateID = 0
	b.bridged = false
	b.haveSnapshot = false
}

func (b *Book) applyLocked(d Delta) {
	upsertAll(b.bids, d.Bids)
	upsertAll(b.asks, d.Asks)
}

func upsertAll(target side, levels []Level) {
	for _, lvl := range levels {
		key := lvl.Price.String()
		if lvl.Size.Sign() <= 0 {
			delete(target, key)
			continue
		}
		target[key] = sidelevel{price: lvl.Price, size: lvl.Size}
	}
}

func (b *Book) viewLocked() *View {
	return &View{
		Bids: sortedLevels(b.bids, true),
		Asks: sortedLevels(b.asks, false),
	}
}

func sortedLevels(s side, descending bool) []Level {
	if len(s) == 0 {
		return nil
	}
	out := make([]Level, 0, len(s))
	for _, lvl := range s {
		out = append(out, Level{Price: lvl.price, Size: lvl.size})
	}
	sortLevelsInPlace(out, descending)
	return out
}

// sortLevelsInPlace orders levels by price, descending for bids and
// ascending for asks, shared by both the sequenced and order-id-indexed
// book implementations.
func sortLevelsInPlace(levels []Level, descending bool) {
	sort.Slice(levels, func(i, j int) bool {
		cmp := levels[i].Price.Cmp(levels[j].Price)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
}
