package domain

// ContestPayout is the pre-split payout delivered by the settlement webhook.
type ContestPayout struct {
	TotalWon           int64 `json:"total_won"`
	Profit             int64 `json:"profit"`
	AvgShare           int64 `json:"avg_share"`
	CompanyWalletShare int64 `json:"company_wallet_share"`
	SystemShare        int64 `json:"system_share"`
}

// ProfitFlag is 1 when the payout reports a profit, else 0.
func (p ContestPayout) ProfitFlag() int64 {
	if p.Profit > 0 {
		return 1
	}
	return 0
}

// Shares are the cuts taken from a winner's profit.
type Shares struct {
	Room    int64 `json:"room_share"`
	System  int64 `json:"system_share"`
	Company int64 `json:"company_wallet_share"`
}

// Total is the sum of all shares.
func (s Shares) Total() int64 { return s.Room + s.System + s.Company }

// LuckyGiftSplit divides a lucky-gift bot's winnings into the part credited to
// its balance and the excess over its stake tracked as a withdrawal.
func LuckyGiftSplit(totalWon, totalBet int64) (credited, withdrawal int64) {
	withdrawal = totalWon - totalBet
	if withdrawal < 0 {
		withdrawal = 0
	}
	return totalWon - withdrawal, withdrawal
}

// SettlementOutcome describes how a settle call ended.
type SettlementOutcome string

const (
	OutcomeSettled          SettlementOutcome = "settled"
	OutcomeAlreadyProcessed SettlementOutcome = "already_processed"
)

// RichTier is a rich_levels row.
type RichTier struct {
	Level  int   `json:"level"`
	Amount int64 `json:"amount"`
}

// ResolveRichLevel derives the tier for redeem points rp from the closest tier at
// or below (prev) and at or above (next). The level never decreases.
func ResolveRichLevel(current int, rp int64, prev, next *RichTier) int {
	matched := 0
	switch {
	case prev != nil && rp > prev.Amount:
		matched = prev.Level
	case next != nil:
		matched = next.Level
	}
	if matched > current {
		return matched
	}
	return current
}
