package settlement

import (
	"fmt"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/shopspring/decimal"
)

// SplitInput carries what a policy needs to carve shares out of a win.
type SplitInput struct {
	GameID int
	RoomID string
	// Profit is the amount credited minus the round's total stake.
	Profit int64
	// Declared holds shares computed upstream (contest payouts).
	Declared domain.Shares
	// Deduction is the company_game_wallets deduct percentage.
	Deduction decimal.Decimal
	// ExistingTips is the tip already recorded on the round.
	ExistingTips int64
	// Bot marks simulated and lucky-gift accounts, which never fund shares.
	Bot bool
}

// Policy decides the room, system and company shares of a settlement.
type Policy interface {
	Name() string
	Split(in SplitInput) domain.Shares
}

// PrecomputedPolicy trusts the shares delivered with the payout.
type PrecomputedPolicy struct{}

func (PrecomputedPolicy) Name() string { return "precomputed" }

func (PrecomputedPolicy) Split(in SplitInput) domain.Shares {
	if in.Bot {
		return domain.Shares{System: in.Declared.System, Company: in.Declared.Company}
	}
	return in.Declared
}

// PercentagePolicy takes a percentage of the profit for the room host, the
// system and the company wallet.
type PercentagePolicy struct {
	RoomPct   decimal.Decimal
	SystemPct decimal.Decimal
}

// NewPercentagePolicy returns the 1% room / 1% system split.
func NewPercentagePolicy() PercentagePolicy {
	return PercentagePolicy{RoomPct: decimal.NewFromInt(1), SystemPct: decimal.NewFromInt(1)}
}

func (PercentagePolicy) Name() string { return "percentage" }

// Percentages applies the company deduction: the company takes ded and the
// room and system percentages each give up ded/2 when they exceed ded.
func (p PercentagePolicy) Percentages(ded decimal.Decimal) (room, system, company decimal.Decimal) {
	room, system, company = p.RoomPct, p.SystemPct, decimal.Zero
	if !ded.IsPositive() {
		return room, system, company
	}
	company = ded
	half := ded.Div(decimal.NewFromInt(2))
	if room.GreaterThan(ded) {
		room = room.Sub(half)
	}
	if system.GreaterThan(ded) {
		system = system.Sub(half)
	}
	return room, system, company
}

func (p PercentagePolicy) Split(in SplitInput) domain.Shares {
	if in.Profit <= 0 || domain.ShareExemptGames[in.GameID] {
		return domain.Shares{}
	}
	room, system, company := p.Percentages(in.Deduction)
	profit := decimal.NewFromInt(in.Profit)
	shares := domain.Shares{
		System:  percentOf(system, profit),
		Company: percentOf(company, profit),
	}
	if !in.Bot {
		shares.Room = percentOf(room, profit)
	}
	return shares
}

// WinnerFundedTipPolicy leaves the credit whole and has the winner pay the
// room host a one-off tip out of the round's profit.
type WinnerFundedTipPolicy struct {
	TipPct decimal.Decimal
}

// NewWinnerFundedTipPolicy returns the 1% tip policy.
func NewWinnerFundedTipPolicy() WinnerFundedTipPolicy {
	return WinnerFundedTipPolicy{TipPct: decimal.NewFromInt(1)}
}

func (WinnerFundedTipPolicy) Name() string { return "winner_funded_tip" }

func (p WinnerFundedTipPolicy) Split(in SplitInput) domain.Shares {
	if in.Bot || in.Profit <= 0 || in.RoomID == "" || in.ExistingTips != 0 {
		return domain.Shares{}
	}
	return domain.Shares{Room: percentOf(p.TipPct, decimal.NewFromInt(in.Profit))}
}

// PolicyFor selects the settlement policy of an integration.
func PolicyFor(integration domain.Integration) (Policy, error) {
	switch integration {
	case domain.IntegrationCarGame, domain.IntegrationCarGameGlobal:
		return PrecomputedPolicy{}, nil
	case domain.IntegrationBaishun:
		return NewPercentagePolicy(), nil
	case domain.IntegrationJoy:
		return NewWinnerFundedTipPolicy(), nil
	default:
		return nil, fmt.Errorf("no settlement policy for integration %q", integration)
	}
}

// percentOf returns floor(pct/100 * amount).
func percentOf(pct, amount decimal.Decimal) int64 {
	return pct.Mul(amount).Div(decimal.NewFromInt(100)).Floor().IntPart()
}
