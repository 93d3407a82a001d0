package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attaboy/racegame/internal/betrecord"
	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/ledger"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/attaboy/racegame/internal/settlement"
	"github.com/jackc/pgx/v5"
)

// RoundSettler settles third-party round results.
type RoundSettler interface {
	SettleRound(ctx context.Context, s settlement.RoundSettlement) (*settlement.Result, error)
}

// ThirdPartyService backs the wallet callbacks of the Baishun and Joy games.
type ThirdPartyService struct {
	db         repository.TxDB
	engine     *ledger.Engine
	records    *betrecord.Manager
	reconciler RoundSettler
	accounts   repository.AccountRepository
	clock      *infra.Clock
	logger     *slog.Logger
}

// NewThirdPartyService creates a ThirdPartyService.
func NewThirdPartyService(
	db repository.TxDB,
	engine *ledger.Engine,
	records *betrecord.Manager,
	reconciler RoundSettler,
	repos repository.Repos,
	clock *infra.Clock,
	logger *slog.Logger,
) *ThirdPartyService {
	return &ThirdPartyService{
		db:         db,
		engine:     engine,
		records:    records,
		reconciler: reconciler,
		accounts:   repos.Accounts,
		clock:      clock,
		logger:     logger,
	}
}

// PlayerInfo is an account with the balance a game may spend.
type PlayerInfo struct {
	Account *domain.Account
	// Spendable is points minus the pending charge of an open mic session.
	Spendable int64
}

// PlayerInfo loads an account for a game partner.
func (s *ThirdPartyService) PlayerInfo(ctx context.Context, userID int64) (*PlayerInfo, error) {
	account, err := s.accounts.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("load player: %w", err)
	}
	if account == nil {
		return nil, domain.ErrNotFound("user", fmt.Sprint(userID))
	}
	mic, err := s.accounts.FindOpenMicSession(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("load mic session: %w", err)
	}
	return &PlayerInfo{
		Account:   account,
		Spendable: domain.SpendableBalance(account.Points, mic, s.clock.Now()),
	}, nil
}

// RoundBet is a bet movement reported by a game partner.
type RoundBet struct {
	Integration domain.Integration
	UserID      int64
	GameID      int
	RoundID     string
	RoomID      string
	Amount      int64
	Movement    domain.Movement
}

// PlaceRoundBet debits the stake and appends it to the day's round record in
// one transaction. Returns the points left.
func (s *ThirdPartyService) PlaceRoundBet(ctx context.Context, b RoundBet) (int64, error) {
	codes, ok := domain.LookupGame(b.Integration, b.GameID)
	if !ok {
		return 0, domain.ErrValidation("Invalid gameId")
	}
	if b.Amount < 0 {
		b.Amount = -b.Amount
	}

	account, err := s.accounts.FindByID(ctx, s.db, b.UserID)
	if err != nil {
		return 0, fmt.Errorf("load player: %w", err)
	}
	if account == nil {
		return 0, domain.ErrNotFound("user", fmt.Sprint(b.UserID))
	}
	if account.Points < b.Amount {
		return 0, domain.ErrInsufficientBalance()
	}

	var points int64
	err = infra.InTx(ctx, s.db, func(tx pgx.Tx) error {
		debit, err := s.engine.ExecuteDebit(ctx, tx, domain.DebitParams{
			AccountID: b.UserID,
			Amount:    b.Amount,
			Status:    codes.Debit,
		})
		if err != nil {
			return err
		}
		points = debit.Account.Points

		_, err = s.records.AppendWager(ctx, tx, betrecord.WagerParams{
			Integration: b.Integration,
			UserID:      b.UserID,
			RoundID:     b.RoundID,
			GameID:      b.GameID,
			RoomID:      b.RoomID,
			Amount:      b.Amount,
			Movement:    b.Movement,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	s.engine.ApplyEnergy(ctx, s.db, b.UserID, -b.Amount)
	s.logger.Info("round bet placed",
		"integration", b.Integration,
		"user_id", b.UserID,
		"game_id", b.GameID,
		"round_id", b.RoundID,
		"amount", b.Amount)
	return points, nil
}

// SettleRoundResult settles a round and returns the winner's points. A
// repeated result is acknowledged with the current balance.
func (s *ThirdPartyService) SettleRoundResult(ctx context.Context, rs settlement.RoundSettlement) (int64, error) {
	res, err := s.reconciler.SettleRound(ctx, rs)
	if err != nil {
		return 0, err
	}
	if res.Outcome != domain.OutcomeAlreadyProcessed {
		return res.Balance, nil
	}

	s.logger.Info("round result already processed",
		"integration", rs.Integration,
		"user_id", rs.UserID,
		"reference", rs.Reference)
	account, err := s.accounts.FindByID(ctx, s.db, rs.UserID)
	if err != nil {
		return 0, fmt.Errorf("reload player: %w", err)
	}
	if account == nil {
		return 0, domain.ErrNotFound("user", fmt.Sprint(rs.UserID))
	}
	return account.Points, nil
}
