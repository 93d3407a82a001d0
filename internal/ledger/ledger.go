package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Engine provides the foundational balance operations:
//  1. LockAccountForUpdate: row-level pessimistic lock
//  2. PostLedgerEntry: atomic balance update + append-only insert + outbox event
//  3. ExecuteDebit / ExecuteCredit / ExecuteTransfer built on the two above
//
// Every operation runs inside the caller's transaction.
type Engine struct {
	accounts repository.AccountRepository
	ledger   repository.LedgerRepository
	outbox   repository.OutboxRepository
	stats    repository.StatsRepository
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(repos repository.Repos, metrics *infra.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		accounts: repos.Accounts,
		ledger:   repos.Ledger,
		outbox:   repos.Outbox,
		stats:    repos.Stats,
		metrics:  metrics,
		logger:   logger,
	}
}

// LockAccountForUpdate acquires a row-level lock and returns the account.
// Must be called within a transaction.
func (e *Engine) LockAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*domain.Account, error) {
	account, err := e.accounts.LockForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrNotFound("account", fmt.Sprint(accountID))
	}
	return account, nil
}

// PostLedgerEntry atomically updates balances and appends a ledger entry.
// This is the core write primitive; every command delegates to it.
//
// Steps:
//  1. Update users balances using server-side arithmetic (dynamic SET clauses)
//  2. Insert the wallets row with the post-update balance snapshot
//  3. Insert the outbox event
func (e *Engine) PostLedgerEntry(ctx context.Context, tx pgx.Tx, params domain.PostLedgerEntryParams) (*domain.LedgerEntry, *domain.Account, error) {
	updated, err := e.accounts.UpdateBalances(ctx, tx, params.AccountID, params.Delta)
	if err != nil {
		return nil, nil, fmt.Errorf("update balances: %w", err)
	}
	if updated == nil {
		return nil, nil, domain.ErrNotFound("account", fmt.Sprint(params.AccountID))
	}

	entry, err := e.ledger.Insert(ctx, tx, params, updated.Balances)
	if err != nil {
		return nil, nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := e.outbox.Insert(ctx, tx, domain.NewLedgerEntryPostedEvent(entry)); err != nil {
		return nil, nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return entry, updated, nil
}

// ApplyEnergy accumulates delta into the account's energy aggregate. The
// aggregate is advisory, so failures are logged and dropped.
func (e *Engine) ApplyEnergy(ctx context.Context, db repository.DBTX, accountID, delta int64) {
	if delta == 0 {
		return
	}
	if err := e.stats.AddEnergy(ctx, db, accountID, delta); err != nil {
		e.metrics.ObserveBestEffortFailure("energy")
		e.logger.Warn("energy update failed", "user_id", accountID, "delta", delta, "error", err)
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func int64Ptr(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
