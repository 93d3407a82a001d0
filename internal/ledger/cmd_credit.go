package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ExecuteCredit adds amount to the account's points, and to redeem_point as
// well when AccrueRedeem is set. A repeated SettlementKey fails with
// AlreadyProcessed and the caller's transaction must roll back.
func (e *Engine) ExecuteCredit(ctx context.Context, tx pgx.Tx, params domain.CreditParams) (*domain.CommandResult, error) {
	if err := domain.ValidateNonNegativeAmount(params.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	if _, err := e.LockAccountForUpdate(ctx, tx, params.AccountID); err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}

	delta := domain.BalanceDelta{Points: params.Amount}
	if params.AccrueRedeem {
		delta.RedeemPoint = params.Amount
	}

	entry, updated, err := e.PostLedgerEntry(ctx, tx, domain.PostLedgerEntryParams{
		AccountID:      params.AccountID,
		CounterpartyID: params.CounterpartyID,
		Credit:         params.Amount,
		Delta:          delta,
		Status:         params.Status,
		SettlementKey:  strPtr(params.SettlementKey),
	})
	if err != nil {
		if domain.IsCode(err, domain.CodeAlreadyProcessed) {
			return nil, err
		}
		return nil, fmt.Errorf("credit post: %w", err)
	}

	return &domain.CommandResult{
		Entry:   entry,
		Account: updated,
		Events:  []domain.OutboxDraft{domain.NewLedgerEntryPostedEvent(entry)},
	}, nil
}
