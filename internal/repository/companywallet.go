package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/racegame/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const companyWalletID = 1

type companyWalletRepo struct{}

// NewCompanyWalletRepository returns a pgx-backed CompanyWalletRepository.
func NewCompanyWalletRepository() CompanyWalletRepository {
	return &companyWalletRepo{}
}

func (r *companyWalletRepo) Credit(ctx context.Context, db DBTX, amount int64) error {
	_, err := db.Exec(ctx, `
		UPDATE company_game_wallets
		SET balance = balance + $1, total_credit = total_credit + $1, updated_at = now()
		WHERE id = $2`, amount, companyWalletID)
	if err != nil {
		return fmt.Errorf("credit company wallet: %w", err)
	}
	return nil
}

func (r *companyWalletRepo) UpsertHistory(ctx context.Context, db DBTX, h CompanyHistory) error {
	_, err := db.Exec(ctx, `
		INSERT INTO company_game_wallet_histories (domain_id, game_id, game_name, credit, day)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain_id, game_id, day) DO UPDATE SET
		  credit = company_game_wallet_histories.credit + EXCLUDED.credit,
		  updated_at = now()`,
		h.DomainID, h.GameID, h.GameName, h.Credit, h.Day)
	if err != nil {
		return fmt.Errorf("upsert company history: %w", err)
	}
	return nil
}

func (r *companyWalletRepo) DeductPercentage(ctx context.Context, db DBTX) (decimal.Decimal, error) {
	var raw pgtype.Numeric
	err := db.QueryRow(ctx, `SELECT deduct_percentage FROM company_game_wallets WHERE id = $1`, companyWalletID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("read deduct percentage: %w", err)
	}
	pct, err := infra.NumericToDecimal(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert deduct percentage: %w", err)
	}
	return pct, nil
}
