package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/jackc/pgx/v5"
)

// TransferParams moves points from one account to another, e.g. a tip paid
// out of a winner's credit to the room host.
type TransferParams struct {
	FromID       int64
	ToID         int64
	Amount       int64
	DebitStatus  domain.StatusCode
	CreditStatus domain.StatusCode
	// AccrueRedeem adds the amount to the receiver's redeem_point too.
	AccrueRedeem bool
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Debit  *domain.CommandResult
	Credit *domain.CommandResult
}

// ExecuteTransfer locks both accounts in ascending id order, then debits the
// sender and credits the receiver. Concurrent transfers between the same two
// accounts therefore never deadlock.
func (e *Engine) ExecuteTransfer(ctx context.Context, tx pgx.Tx, params TransferParams) (*TransferResult, error) {
	if params.FromID == params.ToID {
		return nil, domain.ErrValidation("transfer requires two distinct accounts")
	}

	first, second := params.FromID, params.ToID
	if second < first {
		first, second = second, first
	}
	if _, err := e.LockAccountForUpdate(ctx, tx, first); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	if _, err := e.LockAccountForUpdate(ctx, tx, second); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	debit, err := e.ExecuteDebit(ctx, tx, domain.DebitParams{
		AccountID:      params.FromID,
		Amount:         params.Amount,
		Status:         params.DebitStatus,
		CounterpartyID: int64Ptr(params.ToID),
	})
	if err != nil {
		return nil, err
	}
	credit, err := e.ExecuteCredit(ctx, tx, domain.CreditParams{
		AccountID:      params.ToID,
		Amount:         params.Amount,
		Status:         params.CreditStatus,
		CounterpartyID: int64Ptr(params.FromID),
		AccrueRedeem:   params.AccrueRedeem,
	})
	if err != nil {
		return nil, err
	}
	return &TransferResult{Debit: debit, Credit: credit}, nil
}
