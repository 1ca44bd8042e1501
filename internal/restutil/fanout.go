package restutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/driftnet-io/marketfeed/internal/dialect"
)

// SnapshotFetcher fetches one (channel, symbol) pair's book snapshot via the
// dialect's REST surface.
type SnapshotFetcher func(ctx context.Context, req dialect.SnapshotRequest) (dialect.Snapshot, error)

// FetchSnapshotsConcurrently fetches one snapshot per pair with bounded
// concurrency, grounded on core/dispatcher/fanout.go's Dispatch (structured
// concurrency via sourcegraph/conc/pool with a worker cap), adapted here for
// the session's Snapshot state (spec §4.2: "concurrently fetch snapshots for
// each subscribed symbol via REST"). maxWorkers <= 0 means unbounded.
func FetchSnapshotsConcurrently(ctx context.Context, pairs []dialect.ChannelSymbol, maxWorkers int, fetch SnapshotFetcher) (map[string]dialect.Snapshot, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	workerLimit := maxWorkers
	if workerLimit <= 0 || workerLimit > len(pairs) {
		workerLimit = len(pairs)
	}

	results := make(map[string]dialect.Snapshot, len(pairs))
	var mu sync.Mutex
	var fetchErrs []error

	p := pool.New().WithMaxGoroutines(workerLimit)
	for _, pair := range pairs {
		pr := pair
		p.Go(func() {
			snap, err := fetch(ctx, dialect.SnapshotRequest{Symbol: pr.Symbol, NativeSym: pr.NativeSym})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fetchErrs = append(fetchErrs, fmt.Errorf("snapshot %s: %w", pr.Symbol, err))
				return
			}
			results[pr.Symbol] = snap
		})
	}
	p.Wait()

	if len(fetchErrs) > 0 {
		return results, fetchErrs[0]
	}
	return results, nil
}
