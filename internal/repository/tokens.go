package repository

import (
	"context"
	"fmt"
	"time"

	"rankscan/internal/models"
)

// ListTokensByScope returns up to `scope` tokens ordered by cmc_id
// ascending. This ordering is the contract that makes a backfill
// cursor a valid resume point.
func (r *Repository) ListTokensByScope(ctx context.Context, scope int) ([]models.Token, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, cmc_id, symbol, name
		FROM tokens
		ORDER BY cmc_id ASC
		LIMIT $1`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.ID, &t.CmcID, &t.Symbol, &t.Name); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *Repository) ListTokens(ctx context.Context, limit, offset int) ([]models.Token, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, cmc_id, symbol, name, created_at
		FROM tokens
		ORDER BY cmc_id ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.ID, &t.CmcID, &t.Symbol, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// UpsertToken inserts or refreshes a catalog entry keyed on cmc_id.
// Used by the token import tool.
func (r *Repository) UpsertToken(ctx context.Context, cmcID int64, symbol, name string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tokens (cmc_id, symbol, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cmc_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name`,
		cmcID, symbol, name, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token %d: %w", cmcID, err)
	}
	return nil
}

func (r *Repository) CountTokens(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM tokens").Scan(&count)
	return count, err
}
