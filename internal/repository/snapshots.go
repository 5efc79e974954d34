package repository

import (
	"context"
	"fmt"
	"time"

	"rankscan/internal/models"
)

// UpsertSnapshot creates or refreshes the snapshot for (tokenID, date).
// A new row gets rank 0 (placeholder); an existing row keeps whatever
// rank the rank pass assigned — only market fields are overwritten.
// Returns true when a new row was created.
func (r *Repository) UpsertSnapshot(ctx context.Context, s models.DailySnapshot) (bool, error) {
	var inserted bool
	err := r.db.QueryRow(ctx, `
		INSERT INTO daily_snapshots (token_id, snapshot_date, rank, market_cap, price_usd, volume_24h, circulating_supply, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (token_id, snapshot_date) DO UPDATE SET
			market_cap = EXCLUDED.market_cap,
			price_usd = EXCLUDED.price_usd,
			volume_24h = EXCLUDED.volume_24h,
			circulating_supply = EXCLUDED.circulating_supply,
			updated_at = NOW()
		RETURNING (xmax = 0)`,
		s.TokenID, models.Day(s.Date), s.MarketCap, s.PriceUSD, s.Volume24h, s.CirculatingSupply,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert snapshot token=%d date=%s: %w",
			s.TokenID, models.Day(s.Date).Format("2006-01-02"), err)
	}
	return inserted, nil
}

func (r *Repository) FindSnapshotsForDate(ctx context.Context, date time.Time) ([]models.DailySnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.token_id, t.cmc_id, t.symbol, s.snapshot_date, s.rank, s.market_cap, s.price_usd, s.volume_24h, s.circulating_supply
		FROM daily_snapshots s
		JOIN tokens t ON t.id = s.token_id
		WHERE s.snapshot_date = $1
		ORDER BY s.market_cap DESC, t.cmc_id ASC`, models.Day(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// FindDistinctDatesInRange returns every calendar day in [start, end]
// that has at least one snapshot, ascending.
func (r *Repository) FindDistinctDatesInRange(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT snapshot_date
		FROM daily_snapshots
		WHERE snapshot_date >= $1 AND snapshot_date <= $2
		ORDER BY snapshot_date ASC`, models.Day(start), models.Day(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, models.Day(d))
	}
	return dates, rows.Err()
}

// BatchUpdateRanks persists one date's rank assignments in a single
// transaction. Partial rank state for a date is never observable.
func (r *Repository) BatchUpdateRanks(ctx context.Context, date time.Time, ranks map[int64]int) error {
	if len(ranks) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	day := models.Day(date)
	for tokenID, rank := range ranks {
		_, err := tx.Exec(ctx, `
			UPDATE daily_snapshots
			SET rank = $1, updated_at = NOW()
			WHERE token_id = $2 AND snapshot_date = $3`,
			rank, tokenID, day,
		)
		if err != nil {
			return fmt.Errorf("failed to update rank token=%d date=%s: %w", tokenID, day.Format("2006-01-02"), err)
		}
	}

	return tx.Commit(ctx)
}

// FindSnapshotsByCmcID returns a token's daily history inside [start, end],
// oldest first.
func (r *Repository) FindSnapshotsByCmcID(ctx context.Context, cmcID int64, start, end time.Time, limit int) ([]models.DailySnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.token_id, t.cmc_id, t.symbol, s.snapshot_date, s.rank, s.market_cap, s.price_usd, s.volume_24h, s.circulating_supply
		FROM daily_snapshots s
		JOIN tokens t ON t.id = s.token_id
		WHERE t.cmc_id = $1 AND s.snapshot_date >= $2 AND s.snapshot_date <= $3
		ORDER BY s.snapshot_date ASC
		LIMIT $4`, cmcID, models.Day(start), models.Day(end), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// FindRanksForDate returns a date's leaderboard, rank ascending.
// Rows still carrying the rank-0 placeholder are excluded.
func (r *Repository) FindRanksForDate(ctx context.Context, date time.Time, limit int) ([]models.DailySnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.token_id, t.cmc_id, t.symbol, s.snapshot_date, s.rank, s.market_cap, s.price_usd, s.volume_24h, s.circulating_supply
		FROM daily_snapshots s
		JOIN tokens t ON t.id = s.token_id
		WHERE s.snapshot_date = $1 AND s.rank > 0
		ORDER BY s.rank ASC
		LIMIT $2`, models.Day(date), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

type snapshotRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSnapshots(rows snapshotRows) ([]models.DailySnapshot, error) {
	var out []models.DailySnapshot
	for rows.Next() {
		var s models.DailySnapshot
		if err := rows.Scan(&s.ID, &s.TokenID, &s.CmcID, &s.Symbol, &s.Date, &s.Rank,
			&s.MarketCap, &s.PriceUSD, &s.Volume24h, &s.CirculatingSupply); err != nil {
			return nil, err
		}
		s.Date = models.Day(s.Date)
		out = append(out, s)
	}
	return out, rows.Err()
}
