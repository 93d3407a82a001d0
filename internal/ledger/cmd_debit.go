package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ExecuteDebit takes amount from the account's points. The balance check
// runs under the row lock, so it is the authoritative one.
func (e *Engine) ExecuteDebit(ctx context.Context, tx pgx.Tx, params domain.DebitParams) (*domain.CommandResult, error) {
	if err := domain.ValidateNonNegativeAmount(params.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	account, err := e.LockAccountForUpdate(ctx, tx, params.AccountID)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}
	if account.Points < params.Amount {
		return nil, domain.ErrInsufficientBalance()
	}

	entry, updated, err := e.PostLedgerEntry(ctx, tx, domain.PostLedgerEntryParams{
		AccountID:      params.AccountID,
		CounterpartyID: params.CounterpartyID,
		Debit:          params.Amount,
		Delta:          domain.BalanceDelta{Points: -params.Amount},
		Status:         params.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("debit post: %w", err)
	}

	return &domain.CommandResult{
		Entry:   entry,
		Account: updated,
		Events:  []domain.OutboxDraft{domain.NewLedgerEntryPostedEvent(entry)},
	}, nil
}
