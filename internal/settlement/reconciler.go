// Package settlement turns payout events into ledger movements. Every
// settlement flips its bet record from open to settled at most once and
// splits the win between the winner, the room host, the system and the
// company wallet according to the integration's policy.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/attaboy/racegame/internal/betrecord"
	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/ledger"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Notifier delivers a chat message to an account or group. Delivery is
// best effort and must not block settlement.
type Notifier interface {
	Notify(ctx context.Context, receiverID, message string)
}

// Result describes a finished settle call.
type Result struct {
	Outcome  domain.SettlementOutcome
	Credited int64
	Shares   domain.Shares
	// Balance is the winner's points after the credit.
	Balance int64
}

func alreadyProcessed() *Result {
	return &Result{Outcome: domain.OutcomeAlreadyProcessed}
}

// Reconciler settles contest and round bets.
type Reconciler struct {
	db       repository.TxDB
	engine   *ledger.Engine
	records  *betrecord.Manager
	repos    repository.Repos
	settings *infra.SettingsStore
	notifier Notifier
	clock    *infra.Clock
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	db repository.TxDB,
	engine *ledger.Engine,
	records *betrecord.Manager,
	repos repository.Repos,
	settings *infra.SettingsStore,
	notifier Notifier,
	clock *infra.Clock,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		db:       db,
		engine:   engine,
		records:  records,
		repos:    repos,
		settings: settings,
		notifier: notifier,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

type notification struct {
	receiver string
	message  string
}

// effects collects work that must only happen once the transaction commits.
type effects struct {
	notifications []notification
	richLevels    []int64
}

func (e *effects) notify(receiverID int64, format string, args ...any) {
	e.notifications = append(e.notifications, notification{
		receiver: strconv.FormatInt(receiverID, 10),
		message:  fmt.Sprintf(format, args...),
	})
}

func (e *effects) recomputeRichLevel(accountID int64) {
	e.richLevels = append(e.richLevels, accountID)
}

// flush sends queued notifications and recomputes rich levels. Failures are
// logged and never reach the caller.
func (r *Reconciler) flush(ctx context.Context, fx *effects) {
	if r.notifier != nil {
		for _, n := range fx.notifications {
			r.notifier.Notify(ctx, n.receiver, n.message)
		}
	}
	seen := make(map[int64]bool, len(fx.richLevels))
	for _, id := range fx.richLevels {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := r.RecomputeRichLevel(ctx, id); err != nil {
			r.metrics.ObserveBestEffortFailure("rich_level")
			r.logger.Warn("rich level recompute failed", "user_id", id, "error", err)
		}
	}
}

// bestEffort runs fn inside a savepoint so that a failed advisory write does
// not abort the surrounding transaction.
func (r *Reconciler) bestEffort(ctx context.Context, tx pgx.Tx, effect string, fn func(db repository.DBTX) error) {
	sp, err := tx.Begin(ctx)
	if err == nil {
		if err = fn(sp); err == nil {
			err = sp.Commit(ctx)
		} else {
			_ = sp.Rollback(ctx)
		}
	}
	if err != nil {
		r.metrics.ObserveBestEffortFailure(effect)
		r.logger.Warn("best-effort write failed", "effect", effect, "error", err)
	}
}

// bestEffortDB is bestEffort for writes made after commit.
func (r *Reconciler) bestEffortDB(ctx context.Context, effect string, fn func(db repository.DBTX) error) {
	if err := fn(r.db); err != nil {
		r.metrics.ObserveBestEffortFailure(effect)
		r.logger.Warn("best-effort write failed", "effect", effect, "error", err)
	}
}

// findHost resolves the room host from a room id's profile id, or nil.
func (r *Reconciler) findHost(ctx context.Context, db repository.DBTX, profileID string) (*domain.Account, error) {
	if profileID == "" {
		return nil, nil
	}
	host, err := r.repos.Accounts.FindByProfileID(ctx, db, profileID)
	if err != nil {
		return nil, fmt.Errorf("find room host %s: %w", profileID, err)
	}
	return host, nil
}

func (r *Reconciler) creditCompany(ctx context.Context, db repository.DBTX, h repository.CompanyHistory) error {
	if err := r.repos.CompanyWallet.Credit(ctx, db, h.Credit); err != nil {
		return err
	}
	h.Day = r.clock.DayKey(r.clock.Now())
	return r.repos.CompanyWallet.UpsertHistory(ctx, db, h)
}
