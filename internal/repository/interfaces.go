package repository

import (
	"context"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxDB is a DBTX that can open transactions. *pgxpool.Pool satisfies it.
type TxDB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repos bundles every repository the services depend on.
type Repos struct {
	Accounts      AccountRepository
	Ledger        LedgerRepository
	Outbox        OutboxRepository
	RoundBets     RoundBetRepository
	ContestBets   ContestBetRepository
	Stats         StatsRepository
	CompanyWallet CompanyWalletRepository
	Settings      SettingsRepository
	RichLevels    RichLevelRepository
}

// NewRepos returns the pgx-backed implementations.
func NewRepos() Repos {
	return Repos{
		Accounts:      NewAccountRepository(),
		Ledger:        NewLedgerRepository(),
		Outbox:        NewOutboxRepository(),
		RoundBets:     NewRoundBetRepository(),
		ContestBets:   NewContestBetRepository(),
		Stats:         NewStatsRepository(),
		CompanyWallet: NewCompanyWalletRepository(),
		Settings:      NewSettingsRepository(),
		RichLevels:    NewRichLevelRepository(),
	}
}

// AccountRepository provides access to users and the tables hanging off it.
type AccountRepository interface {
	// FindByID returns an account by ID, or nil if absent.
	FindByID(ctx context.Context, db DBTX, id int64) (*domain.Account, error)

	// FindByProfileID resolves a public profile id (room ids are host profile ids).
	FindByProfileID(ctx context.Context, db DBTX, profileID string) (*domain.Account, error)

	// FindByGroupID returns the account hosting the given chat group.
	FindByGroupID(ctx context.Context, db DBTX, groupID string) (*domain.Account, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the account.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error)

	// UpdateBalances atomically updates balance columns using server-side arithmetic.
	UpdateBalances(ctx context.Context, tx pgx.Tx, id int64, delta domain.BalanceDelta) (*domain.Account, error)

	// SetRichLevel writes rich_level, mirroring it to females when asked.
	SetRichLevel(ctx context.Context, db DBTX, id int64, level int, mirrorFemale bool) error

	// FindOpenMicSession returns the caller's latest mic join if it has not ended.
	FindOpenMicSession(ctx context.Context, db DBTX, callerID int64) (*domain.MicSession, error)
}

// LedgerRepository provides access to wallets.
type LedgerRepository interface {
	// Insert creates a new ledger entry with balance snapshot. A duplicate
	// settlement key is reported as domain.ErrAlreadyProcessed.
	Insert(ctx context.Context, db DBTX, params domain.PostLedgerEntryParams, balances domain.Balances) (*domain.LedgerEntry, error)

	// ListByAccount returns an account's entries in posting order.
	ListByAccount(ctx context.Context, db DBTX, accountID int64) ([]domain.LedgerEntry, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the ledger entry).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in sequence order.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished stamps published_at on the given sequence ids.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error

	// PurgePublished deletes events published before cutoff and reports how many went.
	PurgePublished(ctx context.Context, db DBTX, cutoff time.Time) (int64, error)
}

// RoundBetRepository provides access to third_party_bets.
type RoundBetRepository interface {
	// FindLatest returns the newest row for key created within [from, to).
	FindLatest(ctx context.Context, db DBTX, key domain.RoundKey, from, to time.Time) (*domain.RoundBet, error)

	// Insert creates an open round bet and returns its id.
	Insert(ctx context.Context, db DBTX, bet *domain.RoundBet) (int64, error)

	// AddWager increments total_bet and replaces the journal.
	AddWager(ctx context.Context, db DBTX, id, amount int64, journal domain.Journal) error

	// Finalize adds one result to the row (won, shares, journal movement),
	// marks it settled and returns the committed totals. Concurrent results
	// on one round accumulate.
	Finalize(ctx context.Context, db DBTX, id, won int64, shares domain.Shares, movement domain.Movement) (domain.RoundTotals, error)

	// AddTips records a tip on a row that has none yet. It reports false
	// when a tip was already recorded.
	AddTips(ctx context.Context, db DBTX, id, tips int64) (bool, error)
}

// ContestSettleRow carries the columns written when a contest bet settles.
type ContestSettleRow struct {
	UserID             int64
	ContestID          string
	TotalWon           int64
	Winning            string
	ProfitFlag         int64
	Tips               int64
	SystemShare        int64
	CompanyWalletShare int64
	CarNames           [3]string
	WinningCar         string
}

// ContestBetRepository provides access to cargame_bet and cargame_bet_global.
type ContestBetRepository interface {
	// UpsertWager folds a wager into the (user, contest) row and reports whether it was created.
	UpsertWager(ctx context.Context, db DBTX, variant domain.ContestVariant, w domain.ContestWager) (bool, error)

	// Settle applies the payout guarded by status != settled and returns rows affected.
	Settle(ctx context.Context, db DBTX, variant domain.ContestVariant, row ContestSettleRow) (int64, error)

	// Find returns the (user, contest) row or nil.
	Find(ctx context.Context, db DBTX, variant domain.ContestVariant, userID int64, contestID string) (*domain.ContestBet, error)

	// CountContestRecords counts cargame_contest_record rows for a contest.
	CountContestRecords(ctx context.Context, db DBTX, contestID string) (int, error)

	// RoomSummaries aggregates winning rows per room for a contest.
	RoomSummaries(ctx context.Context, db DBTX, variant domain.ContestVariant, contestID string) ([]domain.RoomWinSummary, error)

	// ListWinners returns rows with total_won > 0 for a contest.
	ListWinners(ctx context.Context, db DBTX, variant domain.ContestVariant, contestID string) ([]domain.ContestBet, error)
}

// DaySpendTier selects one of the daily spend aggregate tables.
type DaySpendTier string

const (
	DaySpendDaily    DaySpendTier = "cargame_current_day_spend"
	DaySpendStandard DaySpendTier = "cargame_current_day_spend_standard"
	DaySpendPro      DaySpendTier = "cargame_current_day_spend_pro"
)

// StatsRepository provides access to the advisory aggregates. Callers treat
// every write as best effort.
type StatsRepository interface {
	// AddEnergy accumulates delta into user_energies.total_return.
	AddEnergy(ctx context.Context, db DBTX, userID, delta int64) error

	// TotalRecharge reads user_energies.total_recharge (0 when absent).
	TotalRecharge(ctx context.Context, db DBTX, userID int64) (int64, error)

	// AddDaySpendBet accumulates a bet; newGame bumps game_count.
	AddDaySpendBet(ctx context.Context, db DBTX, tier DaySpendTier, userID, bet int64, newGame bool) error

	// AddDaySpendWin accumulates a win and the profit flag.
	AddDaySpendWin(ctx context.Context, db DBTX, tier DaySpendTier, userID, won, profitFlag int64) error

	// MarkPlayed records that the user played the car game.
	MarkPlayed(ctx context.Context, db DBTX, userID int64) error

	// AddLuckyGiftWithdrawal accumulates a lucky-gift bot's withdrawal aggregate.
	AddLuckyGiftWithdrawal(ctx context.Context, db DBTX, userID, amount, redeem int64) error

	// QueueGroupNotification inserts a large-win broadcast row.
	QueueGroupNotification(ctx context.Context, db DBTX, n domain.GroupNotification) error
}

// CompanyHistory is one additive company_game_wallet_histories upsert.
type CompanyHistory struct {
	DomainID int
	GameID   int
	GameName string
	Credit   int64
	Day      string
}

// CompanyWalletRepository provides access to the company game wallet.
type CompanyWalletRepository interface {
	// Credit adds amount to balance and total_credit of wallet 1.
	Credit(ctx context.Context, db DBTX, amount int64) error

	// UpsertHistory adds credit to the (domain, game, day) history row.
	UpsertHistory(ctx context.Context, db DBTX, h CompanyHistory) error

	// DeductPercentage reads the configured company deduction.
	DeductPercentage(ctx context.Context, db DBTX) (decimal.Decimal, error)
}

// SettingsRepository provides access to settings and reference rows.
type SettingsRepository interface {
	// All returns every settings row as key/value.
	All(ctx context.Context, db DBTX) (map[string]string, error)

	// PartyRoomGroup returns the chat group of a party room ("" when unset).
	PartyRoomGroup(ctx context.Context, db DBTX, roomID int64) (string, error)
}

// RichLevelRepository provides access to rich_levels.
type RichLevelRepository interface {
	// Bracket returns the highest tier with amount <= rp and the lowest with amount >= rp.
	Bracket(ctx context.Context, db DBTX, rp int64) (prev, next *domain.RichTier, err error)
}
