package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const ledgerColumns = `id, user_id, call_receiver_id, debit, credit, points, redeem_point,
		       status, settlement_key, created_at`

type ledgerRepo struct{}

// NewLedgerRepository returns a pgx-backed LedgerRepository.
func NewLedgerRepository() LedgerRepository {
	return &ledgerRepo{}
}

func (r *ledgerRepo) Insert(ctx context.Context, db DBTX, params domain.PostLedgerEntryParams, balances domain.Balances) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO wallets
		  (user_id, call_receiver_id, debit, credit, points, redeem_point, status, settlement_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+ledgerColumns,
		params.AccountID,
		params.CounterpartyID,
		infra.Int64ToNumeric(params.Debit),
		infra.Int64ToNumeric(params.Credit),
		infra.Int64ToNumeric(balances.Points),
		infra.Int64ToNumeric(balances.RedeemPoint),
		int(params.Status),
		params.SettlementKey,
	)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		if isUniqueViolation(err) && params.SettlementKey != nil {
			return nil, domain.ErrAlreadyProcessed(*params.SettlementKey)
		}
		return nil, err
	}
	return entry, nil
}

func (r *ledgerRepo) ListByAccount(ctx context.Context, db DBTX, accountID int64) ([]domain.LedgerEntry, error) {
	rows, err := db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM wallets
		WHERE user_id = $1
		ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var status int
	var debitNum, creditNum, pointsNum, redeemNum pgtype.Numeric
	err := row.Scan(&e.ID, &e.AccountID, &e.CounterpartyID, &debitNum, &creditNum,
		&pointsNum, &redeemNum, &status, &e.SettlementKey, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	e.Status = domain.StatusCode(status)

	var convErr error
	if e.Debit, convErr = infra.NumericToInt64(debitNum); convErr != nil {
		return nil, fmt.Errorf("convert debit: %w", convErr)
	}
	if e.Credit, convErr = infra.NumericToInt64(creditNum); convErr != nil {
		return nil, fmt.Errorf("convert credit: %w", convErr)
	}
	if e.PointsAfter, convErr = infra.NumericToInt64(pointsNum); convErr != nil {
		return nil, fmt.Errorf("convert points: %w", convErr)
	}
	if e.RedeemAfter, convErr = infra.NumericToInt64(redeemNum); convErr != nil {
		return nil, fmt.Errorf("convert redeem_point: %w", convErr)
	}
	return &e, nil
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
