package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func levels(pairs ...string) []Level {
	out := make([]Level, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, Level{Price: dec(pairs[i]), Size: dec(pairs[i+1])})
	}
	return out
}

// Scenario 1 (spec §8): snapshot+delta bridge, spot variant.
func TestSpotSnapshotBridge(t *testing.T) {
	b := New(VariantSpot)
	b.InitFromSnapshot(levels("10", "1"), nil, 100)

	outcome, _ := b.ApplyDelta(Delta{FirstID: 95, FinalID: 99})
	require.Equal(t, OutcomeSkip, outcome)

	outcome, view := b.ApplyDelta(Delta{FirstID: 100, FinalID: 101})
	require.Equal(t, OutcomeApplyForced, outcome)
	require.Len(t, view.Bids, 1)

	outcome, view = b.ApplyDelta(Delta{
		FirstID: 102, FinalID: 103,
		Bids: levels("10", "0", "9", "2"),
	})
	require.Equal(t, OutcomeApply, outcome)
	require.Len(t, view.Bids, 1)
	require.True(t, view.Bids[0].Price.Equal(dec("9")))
	require.True(t, view.Bids[0].Size.Equal(dec("2")))
}

// Scenario 2 (spec §8): snapshot+delta bridge, futures variant (note the <=
// on lastUpdateId itself).
func TestFuturesSnapshotBridge(t *testing.T) {
	b := New(VariantFutures)
	b.InitFromSnapshot(levels("10", "1"), nil, 100)

	outcome, _ := b.ApplyDelta(Delta{FirstID: 99, FinalID: 100})
	require.Equal(t, OutcomeApplyForced, outcome)
}

// Scenario 3 (spec §8): gap detection.
func TestGapTriggersResync(t *testing.T) {
	b := New(VariantSpot)
	b.InitFromSnapshot(levels("10", "1"), nil, 100)

	outcome, view := b.ApplyDelta(Delta{FirstID: 105, FinalID: 110})
	require.Equal(t, OutcomeResync, outcome)
	require.Nil(t, view)
}

func TestFuturesSkipBoundaryDiffersFromSpot(t *testing.T) {
	// futures: u < lastUpdateId is skip, but u == lastUpdateId is not.
	b := New(VariantFutures)
	b.InitFromSnapshot(nil, nil, 100)
	outcome, _ := b.ApplyDelta(Delta{FirstID: 90, FinalID: 99})
	require.Equal(t, OutcomeSkip, outcome)
	outcome, _ = b.ApplyDelta(Delta{FirstID: 90, FinalID: 100})
	require.Equal(t, OutcomeApplyForced, outcome)

	// spot: u == lastUpdateId is still covered by the snapshot, so skip.
	s := New(VariantSpot)
	s.InitFromSnapshot(nil, nil, 100)
	outcome, _ = s.ApplyDelta(Delta{FirstID: 90, FinalID: 100})
	require.Equal(t, OutcomeSkip, outcome)
}

func TestAfterForcedApplySubsequentDeltasApplyUnconditionally(t *testing.T) {
	b := New(VariantSpot)
	b.InitFromSnapshot(levels("10", "1"), nil, 100)
	_, _ = b.ApplyDelta(Delta{FirstID: 100, FinalID: 101})

	// even a delta whose FinalID looks "old" relative to the first window
	// must still apply once bridged, since the snapshot gate is gone.
	outcome, view := b.ApplyDelta(Delta{FirstID: 50, FinalID: 60, Asks: levels("11", "5")})
	require.Equal(t, OutcomeApply, outcome)
	require.Len(t, view.Asks, 1)
}

func TestApplyDeltaBeforeSnapshotIsResync(t *testing.T) {
	b := New(VariantSpot)
	outcome, view := b.ApplyDelta(Delta{FirstID: 1, FinalID: 2})
	require.Equal(t, OutcomeResync, outcome)
	require.Nil(t, view)
}

func TestSizeZeroRemovesLevel(t *testing.T) {
	b := New(VariantSpot)
	b.InitFromSnapshot(levels("10", "1", "9", "2"), nil, 100)
	_, _ = b.ApplyDelta(Delta{FirstID: 100, FinalID: 101, Bids: levels("10", "0")})
	view := b.View()
	require.Len(t, view.Bids, 1)
	require.True(t, view.Bids[0].Price.Equal(dec("9")))
}

// Applying a size-zero delete twice leaves the book unchanged (spec §8
// round-trip property).
func TestDoubleDeleteIsIdempotent(t *testing.T) {
	b := New(VariantSpot)
	b.InitFromSnapshot(levels("10", "1"), nil, 100)
	_, _ = b.ApplyDelta(Delta{FirstID: 100, FinalID: 101, Bids: levels("10", "0")})
	_, view := b.ApplyDelta(Delta{FirstID: 101, FinalID: 102, Bids: levels("10", "0")})
	require.Empty(t, view.Bids)
}

func TestBooksOrderedCorrectly(t *testing.T) {
	b := New(VariantSpot)
	b.InitFromSnapshot(levels("10", "1", "12", "1", "11", "1"), levels("20", "1", "18", "1", "19", "1"), 100)
	view := b.View()
	require.Equal(t, []string{"12", "11", "10"}, priceStrings(view.Bids))
	require.Equal(t, []string{"18", "19", "20"}, priceStrings(view.Asks))
}

func priceStrings(levels []Level) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = l.Price.String()
	}
	return out
}

// Scenario 4 (spec §8): Bitmex order-id book.
func TestIDBookPartialUpdateDelete(t *testing.T) {
	b := NewIDBook()

	// messages before partial are discarded
	_, ok := b.Apply(IDActionUpdate, []IDLevel{{OrderID: 1, Side: SideBid, Price: dec("10"), Size: dec("1")}})
	require.False(t, ok)

	view, ok := b.Apply(IDActionPartial, []IDLevel{{OrderID: 1, Side: SideBid, Price: dec("10"), Size: dec("5")}})
	require.True(t, ok)
	require.Len(t, view.Bids, 1)
	require.True(t, view.Bids[0].Size.Equal(dec("5")))

	view, ok = b.Apply(IDActionUpdate, []IDLevel{{OrderID: 1, Side: SideBid, Price: dec("10"), Size: dec("3")}})
	require.True(t, ok)
	require.True(t, view.Bids[0].Size.Equal(dec("3")))

	view, ok = b.Apply(IDActionDelete, []IDLevel{{OrderID: 1, Side: SideBid, Price: dec("10")}})
	require.True(t, ok)
	require.Empty(t, view.Bids)
}

func TestBookResetRequiresFreshSnapshot(t *testing.T) {
	b := New(VariantSpot)
	b.InitFromSnapshot(levels("10", "1"), nil, 100)
	b.Reset()
	outcome, _ := b.ApplyDelta(Delta{FirstID: 1, FinalID: 2})
	require.Equal(t, OutcomeResync, outcome)
}
