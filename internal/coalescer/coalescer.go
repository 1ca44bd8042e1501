// Package coalescer implements the per-order coalescer (spec §4.4): a
// stateful helper that derives unhandled_amount from successive order
// events and guarantees serial read-modify-write per (exchange, symbol,
// order-id) even across concurrent callers.
//
// The source uses one process-wide lock for this; spec §9 Design Notes
// flags that as a bottleneck and asks for a sharded lock table keyed by
// (exchange, symbol, order-id) instead, so concurrent updates to unrelated
// orders never contend.
package coalescer

import (
	"sync"

	"github.com/shopspring/decimal"
)

const shardCount = 64

// record is the persisted per-order state the coalescer tracks.
type record struct {
	filled          decimal.Decimal
	unhandledAmount decimal.Decimal
}

type shard struct {
	mu      sync.Mutex
	records map[string]record
}

// Coalescer derives unhandled_amount across repeated order events, guarded
// by a sharded lock table (spec §9: "sharded lock table keyed by (exchange,
// symbol, order-id) to avoid cross-order contention").
type Coalescer struct {
	shards [shardCount]*shard
}

// New constructs an empty Coalescer.
func New() *Coalescer {
	c := &Coalescer{}
	for i := range c.shards {
		c.shards[i] = &shard{records: make(map[string]record)}
	}
	return c
}

// Result is the coalescer's computed state after processing one event.
type Result struct {
	NewFilled       decimal.Decimal
	UnhandledAmount decimal.Decimal
}

// Process applies one order event's reported `filled` amount, returning the
// incremental fill and running unhandled_amount (spec §4.4: "compute
// new_filled = current_filled - previous_filled; increment the running
// unhandled_amount"). The lock for (exchange, symbol, orderID) is held for
// the duration of the read-modify-write, so two deltas for the same order
// cannot interleave (spec §5).
func (c *Coalescer) Process(exchange, symbol, orderID string, currentFilled decimal.Decimal) Result {
	key := exchange + "|" + symbol + "|" + orderID
	sh := c.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	prev, ok := sh.records[key]
	if !ok {
		prev = record{filled: decimal.Zero, unhandledAmount: decimal.Zero}
	}

	newFilled := currentFilled.Sub(prev.filled)
	if newFilled.IsNegative() {
		// spec §8 invariant 6: unhandled_amount sums only max(0, delta); a
		// duplicate or out-of-order event that reports a smaller filled
		// amount contributes nothing.
		newFilled = decimal.Zero
	}

	updated := record{
		filled:          currentFilled,
		unhandledAmount: prev.unhandledAmount.Add(newFilled),
	}
	sh.records[key] = updated

	return Result{NewFilled: newFilled, UnhandledAmount: updated.unhandledAmount}
}

func (c *Coalescer) shardFor(key string) *shard {
	h := fnv32(key)
	return c.shards[h%shardCount]
}

// fnv32 is a tiny non-cryptographic hash, sufficient for shard selection.
func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
