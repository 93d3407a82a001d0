package domain

import "time"

// StatusCode is the business reason recorded on a wallets row.
type StatusCode int

// Car race status codes. Third-party games carry their own codes in GameCatalog.
const (
	StatusCarBetPlaced   StatusCode = 54
	StatusCarBetWon      StatusCode = 55
	StatusCarTipReceived StatusCode = 83
)

// LedgerEntry represents a wallets row (append-only ledger entry).
// Exactly one of Debit and Credit is non-zero.
type LedgerEntry struct {
	ID             int64      `json:"id"`
	AccountID      int64      `json:"user_id"`
	CounterpartyID *int64     `json:"call_receiver_id,omitempty"`
	Debit          int64      `json:"debit"`
	Credit         int64      `json:"credit"`
	PointsAfter    int64      `json:"points"`
	RedeemAfter    int64      `json:"redeem_point"`
	Status         StatusCode `json:"status"`
	SettlementKey  *string    `json:"settlement_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SignedAmount is the entry's effect on points.
func (e *LedgerEntry) SignedAmount() int64 {
	return e.Credit - e.Debit
}

// BalanceDelta describes which users columns to update and by how much.
// Used by PostLedgerEntry to build the dynamic UPDATE statement.
type BalanceDelta struct {
	Points      int64
	RedeemPoint int64
}

// HasPointsDelta returns true if points change.
func (d BalanceDelta) HasPointsDelta() bool { return d.Points != 0 }

// HasRedeemDelta returns true if redeem_point changes.
func (d BalanceDelta) HasRedeemDelta() bool { return d.RedeemPoint != 0 }

// PostLedgerEntryParams is the input to the atomic PostLedgerEntry operation.
type PostLedgerEntryParams struct {
	AccountID      int64
	CounterpartyID *int64
	Debit          int64
	Credit         int64
	Delta          BalanceDelta
	Status         StatusCode
	SettlementKey  *string
}

// DebitParams holds the input for ExecuteDebit.
type DebitParams struct {
	AccountID      int64
	Amount         int64
	Status         StatusCode
	CounterpartyID *int64
}

// CreditParams holds the input for ExecuteCredit.
type CreditParams struct {
	AccountID      int64
	Amount         int64
	Status         StatusCode
	CounterpartyID *int64
	// AccrueRedeem also adds Amount to redeem_point (tips).
	AccrueRedeem bool
	// SettlementKey is unique across the ledger; a repeat maps to AlreadyProcessed.
	SettlementKey string
}

// CommandResult is the return value from the ledger commands.
type CommandResult struct {
	Entry   *LedgerEntry
	Account *Account
	Events  []OutboxDraft
}
