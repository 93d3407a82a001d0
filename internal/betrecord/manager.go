// Package betrecord keeps the durable bet rows: one contest row per
// (user, contest) and one round row per (integration, user, round, game,
// local day) with its movement journal.
package betrecord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/repository"
)

// Manager writes bet records within the caller's transaction.
type Manager struct {
	rounds   repository.RoundBetRepository
	contests repository.ContestBetRepository
	clock    *infra.Clock
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(repos repository.Repos, clock *infra.Clock, metrics *infra.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		rounds:   repos.RoundBets,
		contests: repos.ContestBets,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// WagerParams describes one bet movement on a round.
type WagerParams struct {
	Integration domain.Integration
	UserID      int64
	RoundID     string
	GameID      int
	RoomID      string
	Amount      int64
	Movement    domain.Movement
	// At defaults to the clock's current time.
	At time.Time
}

func (p WagerParams) key() domain.RoundKey {
	return domain.RoundKey{Integration: p.Integration, UserID: p.UserID, RoundID: p.RoundID, GameID: p.GameID}
}

// Ref points at a round record after a write.
type Ref struct {
	ID       int64
	Created  bool
	TotalBet int64
	Journal  domain.Journal
}

// FindRound returns the round row for key on the local day containing at, or nil.
func (m *Manager) FindRound(ctx context.Context, db repository.DBTX, key domain.RoundKey, at time.Time) (*domain.RoundBet, error) {
	if at.IsZero() {
		at = m.clock.Now()
	}
	from, to := m.clock.DayBounds(at)
	key.Day = from
	bet, err := m.rounds.FindLatest(ctx, db, key, from, to)
	if err != nil {
		return nil, fmt.Errorf("find round: %w", err)
	}
	return bet, nil
}

// AppendWager creates the day's round record or adds the wager to it.
func (m *Manager) AppendWager(ctx context.Context, db repository.DBTX, p WagerParams) (*Ref, error) {
	existing, err := m.FindRound(ctx, db, p.key(), p.At)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		journal := domain.Journal{}.Append(p.Movement)
		id, err := m.rounds.Insert(ctx, db, &domain.RoundBet{
			Integration: p.Integration,
			UserID:      p.UserID,
			GameID:      p.GameID,
			RoundID:     p.RoundID,
			RoomID:      p.RoomID,
			TotalBet:    p.Amount,
			Journal:     journal,
		})
		if err != nil {
			return nil, fmt.Errorf("append wager: %w", err)
		}
		return &Ref{ID: id, Created: true, TotalBet: p.Amount, Journal: journal}, nil
	}

	if existing.Settled() {
		m.metrics.ObserveSettledAppend(string(p.Integration))
		m.logger.Warn("wager appended to settled round",
			"integration", p.Integration,
			"user_id", p.UserID,
			"round_id", p.RoundID,
			"game_id", p.GameID,
			"bet_id", existing.ID)
	}

	journal := existing.Journal.Append(p.Movement)
	if err := m.rounds.AddWager(ctx, db, existing.ID, p.Amount, journal); err != nil {
		return nil, fmt.Errorf("append wager: %w", err)
	}
	return &Ref{ID: existing.ID, TotalBet: existing.TotalBet + p.Amount, Journal: journal}, nil
}

// Finalization is one result added onto a round record.
type Finalization struct {
	// Won is what this result credited; it adds to the round's total_won.
	Won      int64
	Shares   domain.Shares
	Movement domain.Movement
}

// FinalizeRound adds a result to the round and marks it settled. bet is
// refreshed from the committed totals, which include results written by
// other transactions.
func (m *Manager) FinalizeRound(ctx context.Context, db repository.DBTX, bet *domain.RoundBet, f Finalization) error {
	totals, err := m.rounds.Finalize(ctx, db, bet.ID, f.Won, f.Shares, f.Movement)
	if err != nil {
		return fmt.Errorf("finalize round %d: %w", bet.ID, err)
	}
	bet.TotalBet = totals.TotalBet
	bet.TotalWon = totals.TotalWon
	bet.Tips = totals.Tips
	bet.SystemShare += f.Shares.System
	bet.CompanyWalletShare += f.Shares.Company
	bet.Status = domain.BetSettled
	bet.Journal = bet.Journal.Append(f.Movement)
	return nil
}

// AddTips records a winner-funded tip on a round that has none. It reports
// false, changing nothing, when the round was already tipped.
func (m *Manager) AddTips(ctx context.Context, db repository.DBTX, bet *domain.RoundBet, tips int64) (bool, error) {
	added, err := m.rounds.AddTips(ctx, db, bet.ID, tips)
	if err != nil {
		return false, fmt.Errorf("add tips to round %d: %w", bet.ID, err)
	}
	if added {
		bet.Tips += tips
	}
	return added, nil
}

// PlaceContestWager folds a wager into the (user, contest) row and reports
// whether the row was created by this call.
func (m *Manager) PlaceContestWager(ctx context.Context, db repository.DBTX, variant domain.ContestVariant, w domain.ContestWager) (bool, error) {
	inserted, err := m.contests.UpsertWager(ctx, db, variant, w)
	if err != nil {
		return false, fmt.Errorf("place %s contest wager: %w", variant, err)
	}
	return inserted, nil
}

// ContestRecordCount counts stored results for a contest id.
func (m *Manager) ContestRecordCount(ctx context.Context, db repository.DBTX, contestID string) (int, error) {
	n, err := m.contests.CountContestRecords(ctx, db, contestID)
	if err != nil {
		return 0, fmt.Errorf("count contest records: %w", err)
	}
	return n, nil
}
