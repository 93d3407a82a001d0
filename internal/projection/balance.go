package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/racegame/internal/domain"
)

// Balance is the last known balance of an account as seen on the ledger
// event stream.
type Balance struct {
	AccountID   int64             `json:"account_id"`
	Points      int64             `json:"points"`
	RedeemPoint int64             `json:"redeem_point"`
	LastEntryID int64             `json:"last_entry_id"`
	LastStatus  domain.StatusCode `json:"last_status"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func balanceKey(accountID int64) string {
	return fmt.Sprintf("projection:balance:%d", accountID)
}

// ApplyLedgerEntry folds a posted entry into the account's projection. Entries
// at or below the last applied id are redeliveries and are skipped.
func ApplyLedgerEntry(ctx context.Context, store Store, e domain.LedgerEntry) (bool, error) {
	current, err := GetBalance(ctx, store, e.AccountID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if current != nil && e.ID <= current.LastEntryID {
		return false, nil
	}

	b := Balance{
		AccountID:   e.AccountID,
		Points:      e.PointsAfter,
		RedeemPoint: e.RedeemAfter,
		LastEntryID: e.ID,
		LastStatus:  e.Status,
		UpdatedAt:   e.CreatedAt,
	}
	if err := SetJSON(ctx, store, balanceKey(e.AccountID), b, 0); err != nil {
		return false, err
	}
	return true, nil
}

// GetBalance returns the projected balance of an account.
func GetBalance(ctx context.Context, store Store, accountID int64) (*Balance, error) {
	var b Balance
	if err := GetJSON(ctx, store, balanceKey(accountID), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// InvalidateBalance drops an account's projection.
func InvalidateBalance(ctx context.Context, store Store, accountID int64) error {
	return store.Delete(ctx, balanceKey(accountID))
}
