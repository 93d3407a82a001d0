package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/attaboy/racegame/internal/betrecord"
	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/ledger"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/jackc/pgx/v5"
)

// RoundSettlement is a third-party game result for one round.
type RoundSettlement struct {
	Integration domain.Integration
	UserID      int64
	GameID      int
	RoundID     string
	RoomID      string
	// Reference is the partner's order or transaction id. It is the
	// settlement key and is required.
	Reference string
	Coin      int64
	Movement  domain.Movement
	// At defaults to the clock's current time.
	At time.Time
}

func (s RoundSettlement) key() string {
	return string(s.Integration) + ":" + s.Reference
}

func (s RoundSettlement) roundKey() domain.RoundKey {
	return domain.RoundKey{Integration: s.Integration, UserID: s.UserID, RoundID: s.RoundID, GameID: s.GameID}
}

// SettleRound credits a third-party round result under the integration's
// policy: percentage shares for Baishun, a winner-funded host tip for Joy.
func (r *Reconciler) SettleRound(ctx context.Context, s RoundSettlement) (*Result, error) {
	started := time.Now()
	policy, err := PolicyFor(s.Integration)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	codes, ok := domain.LookupGame(s.Integration, s.GameID)
	if !ok {
		return nil, domain.ErrValidation("Invalid gameId")
	}
	s.Reference = strings.TrimSpace(s.Reference)
	if s.Reference == "" {
		return nil, domain.ErrValidation("settlement reference is required")
	}
	if s.Coin < 0 {
		s.Coin = 0
	}

	winner, err := r.repos.Accounts.FindByID(ctx, r.db, s.UserID)
	if err != nil {
		return nil, fmt.Errorf("load winner: %w", err)
	}
	if winner == nil {
		return nil, domain.ErrNotFound("user", fmt.Sprint(s.UserID))
	}

	var res *Result
	switch p := policy.(type) {
	case PercentagePolicy:
		res, err = r.settlePercentage(ctx, p, s, codes, winner)
	case WinnerFundedTipPolicy:
		res, err = r.settleWinnerFunded(ctx, p, s, codes, winner)
	default:
		err = fmt.Errorf("policy %s cannot settle rounds", policy.Name())
	}
	if err != nil {
		if domain.IsCode(err, domain.CodeAlreadyProcessed) {
			r.metrics.ObserveSettlement(string(s.Integration), string(domain.OutcomeAlreadyProcessed), started)
			return alreadyProcessed(), nil
		}
		r.metrics.ObserveSettlement(string(s.Integration), "failed", started)
		return nil, fmt.Errorf("settle %s round %s user %d: %w", s.Integration, s.RoundID, s.UserID, err)
	}
	r.metrics.ObserveSettlement(string(s.Integration), string(domain.OutcomeSettled), started)
	return res, nil
}

// settlePercentage credits the win net of shares and finalizes the round in
// one transaction. The company share and the host tip follow separately, so
// their failure never undoes the winner's credit.
func (r *Reconciler) settlePercentage(ctx context.Context, policy PercentagePolicy, s RoundSettlement, codes domain.GameCodes, winner *domain.Account) (*Result, error) {
	bet, err := r.records.FindRound(ctx, r.db, s.roundKey(), s.At)
	if err != nil {
		return nil, err
	}
	var totalBet int64
	if bet != nil {
		totalBet = bet.TotalBet
	}

	profit := s.Coin - totalBet
	shares := policy.Split(SplitInput{
		GameID:    s.GameID,
		RoomID:    s.RoomID,
		Profit:    profit,
		Deduction: r.settings.Snapshot().CompanyDeduction(),
		Bot:       winner.IsBot(),
	})
	net := s.Coin - shares.Total()
	res := &Result{Outcome: domain.OutcomeSettled, Credited: net, Shares: shares}

	err = infra.InTx(ctx, r.db, func(tx pgx.Tx) error {
		credit, err := r.engine.ExecuteCredit(ctx, tx, domain.CreditParams{
			AccountID:     winner.ID,
			Amount:        net,
			Status:        codes.Credit,
			SettlementKey: s.key(),
		})
		if err != nil {
			return err
		}
		res.Balance = credit.Account.Points

		if bet != nil {
			err := r.records.FinalizeRound(ctx, tx, bet, betrecord.Finalization{
				Won:      net,
				Shares:   shares,
				Movement: s.Movement,
			})
			if err != nil {
				return err
			}
		}
		return r.insertSettledEvent(ctx, tx, s.Integration, s.key(), winner.ID, res)
	})
	if err != nil {
		return nil, err
	}

	r.engine.ApplyEnergy(ctx, r.db, winner.ID, net)
	if shares.Company > 0 && winner.LoginType != domain.LoginCarGameBot {
		r.bestEffortDB(ctx, "company_wallet", func(db repository.DBTX) error {
			return r.creditCompany(ctx, db, repository.CompanyHistory{
				GameID:   s.GameID,
				GameName: codes.Name,
				Credit:   shares.Company,
			})
		})
	}

	var fx effects
	host, err := r.findHost(ctx, r.db, domain.RoomProfileID(s.RoomID))
	if err != nil {
		r.logger.Warn("room host lookup failed", "room_id", s.RoomID, "error", err)
	}
	if host != nil && shares.Room > 0 && profit > 0 && !domain.ShareExemptGames[s.GameID] {
		counterparty := winner.ID
		err := infra.InTx(ctx, r.db, func(tx pgx.Tx) error {
			_, err := r.engine.ExecuteCredit(ctx, tx, domain.CreditParams{
				AccountID:      host.ID,
				Amount:         shares.Room,
				Status:         codes.Tips,
				CounterpartyID: &counterparty,
				AccrueRedeem:   true,
			})
			return err
		})
		if err != nil {
			r.metrics.ObserveBestEffortFailure("host_tip")
			r.logger.Error("host tip failed", "host_id", host.ID, "user_id", winner.ID, "amount", shares.Room, "error", err)
		} else {
			fx.recomputeRichLevel(host.ID)
			if host.HasGroup() {
				fx.notify(host.ID, "In %s Game get tips %d by %s", codes.Name, shares.Room, winner.Name)
			}
		}
	}
	if host != nil && host.HasGroup() {
		fx.notify(host.ID, "%s won %d diamonds in %s", winner.Name, net, codes.Name)
	}
	r.flush(ctx, &fx)
	return res, nil
}

// errRoundTipped aborts a tip transfer when another result tipped the round first.
var errRoundTipped = errors.New("round already tipped")

// settleWinnerFunded credits the full result and, when the round made a
// profit and has not tipped yet, moves a tip from the winner to the host.
func (r *Reconciler) settleWinnerFunded(ctx context.Context, policy WinnerFundedTipPolicy, s RoundSettlement, codes domain.GameCodes, winner *domain.Account) (*Result, error) {
	bet, err := r.records.FindRound(ctx, r.db, s.roundKey(), s.At)
	if err != nil {
		return nil, err
	}
	res := &Result{Outcome: domain.OutcomeSettled, Credited: s.Coin}

	err = infra.InTx(ctx, r.db, func(tx pgx.Tx) error {
		credit, err := r.engine.ExecuteCredit(ctx, tx, domain.CreditParams{
			AccountID:     winner.ID,
			Amount:        s.Coin,
			Status:        codes.Credit,
			SettlementKey: s.key(),
		})
		if err != nil {
			return err
		}
		res.Balance = credit.Account.Points

		if bet != nil {
			err := r.records.FinalizeRound(ctx, tx, bet, betrecord.Finalization{
				Won:      s.Coin,
				Movement: s.Movement,
			})
			if err != nil {
				return err
			}
		}
		return r.insertSettledEvent(ctx, tx, s.Integration, s.key(), winner.ID, res)
	})
	if err != nil {
		return nil, err
	}

	r.engine.ApplyEnergy(ctx, r.db, winner.ID, s.Coin)
	if bet == nil {
		return res, nil
	}

	var fx effects
	host, err := r.findHost(ctx, r.db, domain.RoomProfileID(s.RoomID))
	if err != nil {
		r.logger.Warn("room host lookup failed", "room_id", s.RoomID, "error", err)
	}

	// bet holds the committed totals including this result, so the tip is
	// taken on the round's profit after the credit.
	tip := policy.Split(SplitInput{
		GameID:       s.GameID,
		RoomID:       s.RoomID,
		Profit:       bet.TotalWon - bet.TotalBet,
		ExistingTips: bet.Tips,
		Bot:          winner.IsBot(),
	}).Room
	if host != nil && host.ID != winner.ID && tip > 0 {
		// Accounts before the round row, the same lock order as the credit.
		err := infra.InTx(ctx, r.db, func(tx pgx.Tx) error {
			transfer, err := r.engine.ExecuteTransfer(ctx, tx, ledger.TransferParams{
				FromID:       winner.ID,
				ToID:         host.ID,
				Amount:       tip,
				DebitStatus:  codes.TipsDebit,
				CreditStatus: codes.Tips,
				AccrueRedeem: true,
			})
			if err != nil {
				return err
			}
			added, err := r.records.AddTips(ctx, tx, bet, tip)
			if err != nil {
				return err
			}
			if !added {
				return errRoundTipped
			}
			res.Balance = transfer.Debit.Account.Points
			return nil
		})
		switch {
		case errors.Is(err, errRoundTipped):
			r.logger.Info("round already tipped", "round_id", s.RoundID, "user_id", winner.ID)
		case err != nil:
			r.metrics.ObserveBestEffortFailure("host_tip")
			r.logger.Error("winner-funded tip failed", "host_id", host.ID, "user_id", winner.ID, "amount", tip, "error", err)
		default:
			res.Shares.Room = tip
			fx.recomputeRichLevel(host.ID)
			if host.HasGroup() {
				fx.notify(host.ID, "In %s Game get tips %d by %s", codes.Name, tip, winner.Name)
			}
		}
	}
	if host != nil && host.HasGroup() {
		fx.notify(host.ID, "%s won %d diamonds in %s", winner.Name, s.Coin, codes.Name)
	}
	r.flush(ctx, &fx)
	return res, nil
}
