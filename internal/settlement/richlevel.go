package settlement

import (
	"context"
	"fmt"

	"github.com/attaboy/racegame/internal/domain"
)

// RecomputeRichLevel raises an account's rich level to the tier its redeem
// points have reached. Levels never go down.
func (r *Reconciler) RecomputeRichLevel(ctx context.Context, accountID int64) error {
	account, err := r.repos.Accounts.FindByID(ctx, r.db, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return domain.ErrNotFound("user", fmt.Sprint(accountID))
	}

	prev, next, err := r.repos.RichLevels.Bracket(ctx, r.db, account.RedeemPoint)
	if err != nil {
		return fmt.Errorf("rich level bracket: %w", err)
	}
	level := domain.ResolveRichLevel(account.RichLevel, account.RedeemPoint, prev, next)
	if level == account.RichLevel {
		return nil
	}
	if err := r.repos.Accounts.SetRichLevel(ctx, r.db, account.ID, level, !account.IsMale()); err != nil {
		return err
	}
	r.logger.Debug("rich level raised", "user_id", account.ID, "from", account.RichLevel, "to", level)
	return nil
}
