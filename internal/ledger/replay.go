package ledger

import (
	"context"
	"fmt"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/repository"
)

// ReplayResult holds the outcome of replaying an account's ledger.
type ReplayResult struct {
	AccountID      int64            `json:"account_id"`
	EntryCount     int              `json:"entry_count"`
	OpeningPoints  int64            `json:"opening_points"`
	ReplayedPoints int64            `json:"replayed_points"`
	FinalBalances  domain.Balances  `json:"final_balances"`
	Invariants     []InvariantCheck `json:"invariants"`
	AllPassed      bool             `json:"all_passed"`
}

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// ReplayAccount loads the account and its wallets rows and validates them.
// The opening balance is inferred from the first entry.
func (e *Engine) ReplayAccount(ctx context.Context, db repository.DBTX, accountID int64) (*ReplayResult, error) {
	account, err := e.accounts.FindByID(ctx, db, accountID)
	if err != nil {
		return nil, fmt.Errorf("replay load account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrNotFound("account", fmt.Sprint(accountID))
	}
	entries, err := e.ledger.ListByAccount(ctx, db, accountID)
	if err != nil {
		return nil, fmt.Errorf("replay load ledger: %w", err)
	}
	return Replay(account, entries), nil
}

// Replay folds entries in posting order and checks:
//  1. balance_non_negative: no snapshot and not the account row is below zero
//  2. chain_continuity: each snapshot equals the previous one plus the signed amount
//  3. ledger_parity: the last snapshot matches the account row
//  4. sum_parity: opening + sum of signed amounts equals the account's points
func Replay(account *domain.Account, entries []domain.LedgerEntry) *ReplayResult {
	res := &ReplayResult{
		AccountID:     account.ID,
		EntryCount:    len(entries),
		FinalBalances: account.Balances,
	}
	if len(entries) == 0 {
		res.OpeningPoints = account.Points
		res.ReplayedPoints = account.Points
		res.Invariants = []InvariantCheck{
			{Name: "balance_non_negative", Passed: account.Points >= 0, Detail: fmt.Sprintf("points=%d", account.Points)},
			{Name: "ledger_parity", Passed: true, Detail: "no entries (empty ledger)"},
		}
		res.AllPassed = account.Points >= 0
		return res
	}

	opening := entries[0].PointsAfter - entries[0].SignedAmount()
	res.OpeningPoints = opening

	running := opening
	nonNegative := account.Points >= 0 && opening >= 0
	continuity := true
	brokenAt := int64(0)
	for i := range entries {
		running += entries[i].SignedAmount()
		if entries[i].PointsAfter < 0 {
			nonNegative = false
		}
		if continuity && running != entries[i].PointsAfter {
			continuity = false
			brokenAt = entries[i].ID
		}
		if !continuity {
			running = entries[i].PointsAfter
		}
	}
	last := entries[len(entries)-1]

	var sum int64
	for i := range entries {
		sum += entries[i].SignedAmount()
	}
	res.ReplayedPoints = opening + sum

	continuityDetail := "all snapshots chain"
	if !continuity {
		continuityDetail = fmt.Sprintf("chain breaks at entry %d", brokenAt)
	}
	res.Invariants = []InvariantCheck{
		{
			Name:   "balance_non_negative",
			Passed: nonNegative,
			Detail: fmt.Sprintf("points=%d opening=%d", account.Points, opening),
		},
		{
			Name:   "chain_continuity",
			Passed: continuity,
			Detail: continuityDetail,
		},
		{
			Name:   "ledger_parity",
			Passed: last.PointsAfter == account.Points && last.RedeemAfter == account.RedeemPoint,
			Detail: fmt.Sprintf("account=[%d,%d] last=[%d,%d]",
				account.Points, account.RedeemPoint, last.PointsAfter, last.RedeemAfter),
		},
		{
			Name:   "sum_parity",
			Passed: res.ReplayedPoints == account.Points,
			Detail: fmt.Sprintf("opening=%d sum=%d points=%d", opening, sum, account.Points),
		},
	}

	res.AllPassed = true
	for _, inv := range res.Invariants {
		if !inv.Passed {
			res.AllPassed = false
		}
	}
	return res
}
