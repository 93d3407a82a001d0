package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/jackc/pgx/v5"
)

// largeWinThreshold is the win above which a group broadcast is queued.
const largeWinThreshold = 3000

// ContestSettlement is a winner payout for one (user, contest) bet.
type ContestSettlement struct {
	Variant        domain.ContestVariant
	DomainID       int
	BetID          int64
	UserID         int64
	ContestID      string
	RoomID         string
	PartySeatUsers string
	WinningColumn  string
	WinningCar     string
	TotalBet       int64
	Stakes         domain.CarStakes
	Payout         domain.ContestPayout
	CarNames       [3]string
}

func (s ContestSettlement) key() string {
	return fmt.Sprintf("%s:%s:%d", s.Variant.Integration(), s.ContestID, s.UserID)
}

// SettleContest applies a contest payout with the shares declared upstream.
// The bet row, winner credit, tips, company share and aggregates commit
// together; a second call for the same bet reports AlreadyProcessed.
func (r *Reconciler) SettleContest(ctx context.Context, s ContestSettlement) (*Result, error) {
	started := time.Now()
	integration := s.Variant.Integration()
	policy, err := PolicyFor(integration)
	if err != nil {
		return nil, err
	}
	tiers := r.settings.Snapshot().Tiers()

	var (
		fx  effects
		res = &Result{Outcome: domain.OutcomeSettled}
	)
	err = infra.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := r.markContestSettled(ctx, tx, s); err != nil {
			return err
		}

		winner, err := r.repos.Accounts.FindByID(ctx, tx, s.UserID)
		if err != nil {
			return fmt.Errorf("load winner: %w", err)
		}
		if winner == nil {
			return domain.ErrNotFound("user", fmt.Sprint(s.UserID))
		}

		shares := policy.Split(SplitInput{
			RoomID: s.RoomID,
			Profit: s.Payout.Profit,
			Declared: domain.Shares{
				Room:    s.Payout.AvgShare,
				System:  s.Payout.SystemShare,
				Company: s.Payout.CompanyWalletShare,
			},
			Bot: winner.IsBot(),
		})
		if err := checkShares(s, shares); err != nil {
			return err
		}
		res.Shares = shares

		if winner.LoginType != domain.LoginCarGameBot {
			if err := r.creditContestWinner(ctx, tx, s, winner, res); err != nil {
				return err
			}
			r.bestEffort(ctx, tx, "energy", func(db repository.DBTX) error {
				return r.repos.Stats.AddEnergy(ctx, db, winner.ID, s.Payout.TotalWon)
			})
			if shares.Company > 0 {
				err := r.creditCompany(ctx, tx, repository.CompanyHistory{
					DomainID: s.DomainID,
					GameID:   domain.CarGameID,
					GameName: domain.CarGameName,
					Credit:   shares.Company,
				})
				if err != nil {
					return fmt.Errorf("company wallet: %w", err)
				}
			}
		}

		host, err := r.findHost(ctx, tx, s.RoomID)
		if err != nil {
			return err
		}
		if s.RoomID != "" && shares.Room >= 1 {
			if err := r.payContestTips(ctx, tx, s, winner, host, shares.Room, &fx); err != nil {
				return err
			}
		}

		if winner.IsBot() {
			return r.insertSettledEvent(ctx, tx, integration, s.key(), winner.ID, res)
		}

		r.bestEffort(ctx, tx, "day_spend", func(db repository.DBTX) error {
			return r.addDaySpendWins(ctx, db, tiers, s)
		})

		if host != nil && host.HasGroup() {
			fx.notify(host.ID, "%s won %d diamonds in Car Race Game", winner.Name, s.Payout.TotalWon)
			if s.Payout.TotalWon > largeWinThreshold {
				r.bestEffort(ctx, tx, "group_notification", func(db repository.DBTX) error {
					return r.repos.Stats.QueueGroupNotification(ctx, db, domain.GroupNotification{
						GameID:      domain.CarGameID,
						GameName:    "car race",
						RoomGroupID: host.GroupID,
						Message:     fmt.Sprintf("%s won %d diamonds in Car Race Game", winner.Name, s.Payout.TotalWon),
						UserID:      winner.ID,
						Coin:        s.Payout.TotalWon,
					})
				})
			}
		}
		return r.insertSettledEvent(ctx, tx, integration, s.key(), winner.ID, res)
	})
	if err != nil {
		if domain.IsCode(err, domain.CodeAlreadyProcessed) {
			r.metrics.ObserveSettlement(string(integration), string(domain.OutcomeAlreadyProcessed), started)
			return alreadyProcessed(), nil
		}
		r.metrics.ObserveSettlement(string(integration), "failed", started)
		return nil, fmt.Errorf("settle contest %s user %d: %w", s.ContestID, s.UserID, err)
	}

	r.metrics.ObserveSettlement(string(integration), string(domain.OutcomeSettled), started)
	r.flush(ctx, &fx)
	return res, nil
}

// checkShares rejects a payout whose carve-outs exceed its profit. The room
// share is paid to the host and again to every party seat, so it counts once
// per recipient.
func checkShares(s ContestSettlement, shares domain.Shares) error {
	if shares.Room < 0 || shares.System < 0 || shares.Company < 0 {
		return domain.ErrValidation("negative share in payout")
	}
	outlay := shares.System + shares.Company
	if s.RoomID != "" && shares.Room >= 1 {
		recipients := int64(1 + len(domain.SplitList(s.PartySeatUsers, s.RoomID)))
		outlay += shares.Room * recipients
	}
	profit := max(s.Payout.Profit, 0)
	if outlay > profit {
		return domain.ErrValidation(fmt.Sprintf("shares %d exceed profit %d", outlay, profit))
	}
	return nil
}

// markContestSettled flips the bet row to settled. Zero affected rows means
// either a repeat (already settled) or a missing bet.
func (r *Reconciler) markContestSettled(ctx context.Context, tx pgx.Tx, s ContestSettlement) error {
	n, err := r.repos.ContestBets.Settle(ctx, tx, s.Variant, repository.ContestSettleRow{
		UserID:             s.UserID,
		ContestID:          s.ContestID,
		TotalWon:           s.Payout.TotalWon,
		Winning:            s.WinningColumn,
		ProfitFlag:         s.Payout.ProfitFlag(),
		Tips:               s.Payout.AvgShare,
		SystemShare:        s.Payout.SystemShare,
		CompanyWalletShare: s.Payout.CompanyWalletShare,
		CarNames:           s.CarNames,
		WinningCar:         s.WinningCar,
	})
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	existing, err := r.repos.ContestBets.Find(ctx, tx, s.Variant, s.UserID, s.ContestID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == domain.BetSettled {
		return domain.ErrAlreadyProcessed(s.key())
	}
	return fmt.Errorf("%s bet not updated bet_id=%d contest=%s user=%d",
		s.Variant, s.BetID, s.ContestID, s.UserID)
}

func (r *Reconciler) creditContestWinner(ctx context.Context, tx pgx.Tx, s ContestSettlement, winner *domain.Account, res *Result) error {
	amount := s.Payout.TotalWon
	var withdrawal int64
	if winner.LoginType == domain.LoginLuckyGiftBot {
		amount, withdrawal = domain.LuckyGiftSplit(s.Payout.TotalWon, s.TotalBet)
	}

	credit, err := r.engine.ExecuteCredit(ctx, tx, domain.CreditParams{
		AccountID:     winner.ID,
		Amount:        amount,
		Status:        domain.StatusCarBetWon,
		SettlementKey: s.key(),
	})
	if err != nil {
		return err
	}
	res.Credited = amount
	res.Balance = credit.Account.Points

	if withdrawal > 0 {
		if err := r.repos.Stats.AddLuckyGiftWithdrawal(ctx, tx, winner.ID, withdrawal, withdrawal); err != nil {
			return fmt.Errorf("lucky gift withdrawal: %w", err)
		}
	}
	return nil
}

// payContestTips credits the room host and every party seat the same share.
func (r *Reconciler) payContestTips(ctx context.Context, tx pgx.Tx, s ContestSettlement, winner, host *domain.Account, share int64, fx *effects) error {
	counterparty := winner.ID
	tip := func(id int64) error {
		_, err := r.engine.ExecuteCredit(ctx, tx, domain.CreditParams{
			AccountID:      id,
			Amount:         share,
			Status:         domain.StatusCarTipReceived,
			CounterpartyID: &counterparty,
			AccrueRedeem:   true,
		})
		if err != nil {
			return fmt.Errorf("tip %d: %w", id, err)
		}
		fx.recomputeRichLevel(id)
		return nil
	}

	if host != nil {
		if err := tip(host.ID); err != nil {
			return err
		}
		if host.HasGroup() {
			fx.notify(host.ID, "In Car Game get tips %d by %s", share, winner.Name)
		}
	}

	for _, profileID := range domain.SplitList(s.PartySeatUsers, s.RoomID) {
		seat, err := r.repos.Accounts.FindByProfileID(ctx, tx, profileID)
		if err != nil {
			return fmt.Errorf("find party seat %s: %w", profileID, err)
		}
		if seat == nil {
			continue
		}
		if err := tip(seat.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) addDaySpendWins(ctx context.Context, db repository.DBTX, tiers infra.SpendTiers, s ContestSettlement) error {
	won, flag := s.Payout.TotalWon, s.Payout.ProfitFlag()
	var errs []error
	if s.TotalBet > tiers.MinDaily {
		errs = append(errs, r.repos.Stats.AddDaySpendWin(ctx, db, repository.DaySpendDaily, s.UserID, won, flag))
	}
	if s.TotalBet > tiers.MinStandard && s.TotalBet <= tiers.MaxStandard {
		errs = append(errs, r.repos.Stats.AddDaySpendWin(ctx, db, repository.DaySpendStandard, s.UserID, won, flag))
	}
	if s.TotalBet > tiers.MinPro && s.TotalBet <= tiers.MaxPro {
		errs = append(errs, r.repos.Stats.AddDaySpendWin(ctx, db, repository.DaySpendPro, s.UserID, won, flag))
	}
	return errors.Join(errs...)
}

func (r *Reconciler) insertSettledEvent(ctx context.Context, tx pgx.Tx, integration domain.Integration, key string, userID int64, res *Result) error {
	if err := r.repos.Outbox.Insert(ctx, tx, domain.NewBetSettledEvent(integration, key, userID, res.Credited, res.Shares)); err != nil {
		return fmt.Errorf("insert settled event: %w", err)
	}
	return nil
}
