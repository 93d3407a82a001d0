package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/jackc/pgx/v5"
)

type richLevelRepo struct{}

// NewRichLevelRepository returns a pgx-backed RichLevelRepository.
func NewRichLevelRepository() RichLevelRepository {
	return &richLevelRepo{}
}

func (r *richLevelRepo) Bracket(ctx context.Context, db DBTX, rp int64) (*domain.RichTier, *domain.RichTier, error) {
	prev, err := r.tier(ctx, db, `SELECT level, amount FROM rich_levels WHERE amount <= $1 ORDER BY amount DESC LIMIT 1`, rp)
	if err != nil {
		return nil, nil, err
	}
	next, err := r.tier(ctx, db, `SELECT level, amount FROM rich_levels WHERE amount >= $1 ORDER BY amount ASC LIMIT 1`, rp)
	if err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

func (r *richLevelRepo) tier(ctx context.Context, db DBTX, query string, rp int64) (*domain.RichTier, error) {
	var t domain.RichTier
	if err := db.QueryRow(ctx, query, rp).Scan(&t.Level, &t.Amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rich tier: %w", err)
	}
	return &t, nil
}
