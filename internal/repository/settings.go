package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/racegame/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type settingsRepo struct{}

// NewSettingsRepository returns a pgx-backed SettingsRepository.
func NewSettingsRepository() SettingsRepository {
	return &settingsRepo{}
}

func (r *settingsRepo) All(ctx context.Context, db DBTX) (map[string]string, error) {
	rows, err := db.Query(ctx, `SELECT setting_key, setting_value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *settingsRepo) PartyRoomGroup(ctx context.Context, db DBTX, roomID int64) (string, error) {
	var group *string
	err := db.QueryRow(ctx, `SELECT group_id FROM party_rooms WHERE id = $1`, roomID).Scan(&group)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read party room group: %w", err)
	}
	if group == nil {
		return "", nil
	}
	return *group, nil
}

// NewSettingsLoader reads the settings table and the company deduction for infra.SettingsStore.
func NewSettingsLoader(settings SettingsRepository, company CompanyWalletRepository, db DBTX) infra.SettingsLoader {
	return func(ctx context.Context) (map[string]string, decimal.Decimal, error) {
		raw, err := settings.All(ctx, db)
		if err != nil {
			return nil, decimal.Zero, err
		}
		pct, err := company.DeductPercentage(ctx, db)
		if err != nil {
			return nil, decimal.Zero, err
		}
		return raw, pct, nil
	}
}
