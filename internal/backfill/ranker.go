package backfill

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"
)

// Ranker derives each token's daily competitive rank from the
// snapshots the engine reconstructed: per date, snapshots are ordered
// by market cap descending and rank = position + 1. Equal market caps
// are broken by cmc_id ascending so the rank is a total order.
type Ranker struct {
	snapshots SnapshotStore
}

func NewRanker(snapshots SnapshotStore) *Ranker {
	return &Ranker{snapshots: snapshots}
}

// ComputeRanks recomputes ranks for every date in [start, end] that has
// at least one snapshot. Each date is persisted as one atomic batch;
// dates are independent, so a failure on one date does not roll back
// earlier dates. Returns the number of dates ranked.
func (r *Ranker) ComputeRanks(ctx context.Context, start, end time.Time) (int, error) {
	dates, err := r.snapshots.FindDistinctDatesInRange(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("find distinct dates: %w", err)
	}

	ranked := 0
	for _, date := range dates {
		if ctx.Err() != nil {
			return ranked, ctx.Err()
		}

		snaps, err := r.snapshots.FindSnapshotsForDate(ctx, date)
		if err != nil {
			return ranked, fmt.Errorf("load snapshots for %s: %w", date.Format("2006-01-02"), err)
		}
		if len(snaps) == 0 {
			continue
		}

		sort.Slice(snaps, func(i, j int) bool {
			if snaps[i].MarketCap != snaps[j].MarketCap {
				return snaps[i].MarketCap > snaps[j].MarketCap
			}
			return snaps[i].CmcID < snaps[j].CmcID
		})

		ranks := make(map[int64]int, len(snaps))
		for i, s := range snaps {
			ranks[s.TokenID] = i + 1
		}

		if err := r.snapshots.BatchUpdateRanks(ctx, date, ranks); err != nil {
			return ranked, fmt.Errorf("persist ranks for %s: %w", date.Format("2006-01-02"), err)
		}
		ranked++
	}

	if ranked > 0 {
		log.Printf("[ranker] Ranked %d date(s) in [%s, %s]", ranked,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return ranked, nil
}
