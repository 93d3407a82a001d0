package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/jackc/pgx/v5"
)

type statsRepo struct{}

// NewStatsRepository returns a pgx-backed StatsRepository.
func NewStatsRepository() StatsRepository {
	return &statsRepo{}
}

func (r *statsRepo) AddEnergy(ctx context.Context, db DBTX, userID, delta int64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO user_energies (user_id, total_return)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
		  total_return = user_energies.total_return + EXCLUDED.total_return,
		  updated_at = now()`, userID, delta)
	if err != nil {
		return fmt.Errorf("add energy: %w", err)
	}
	return nil
}

func (r *statsRepo) TotalRecharge(ctx context.Context, db DBTX, userID int64) (int64, error) {
	var total int64
	err := db.QueryRow(ctx, `SELECT total_recharge FROM user_energies WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read total recharge: %w", err)
	}
	return total, nil
}

func (r *statsRepo) AddDaySpendBet(ctx context.Context, db DBTX, tier DaySpendTier, userID, bet int64, newGame bool) error {
	games := 0
	if newGame {
		games = 1
	}
	_, err := db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (user_id, game_id, total_bet, game_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, game_id) DO UPDATE SET
		  total_bet = %[1]s.total_bet + EXCLUDED.total_bet,
		  game_count = %[1]s.game_count + EXCLUDED.game_count,
		  updated_at = now()`, string(tier)),
		userID, domain.CarGameID, bet, games)
	if err != nil {
		return fmt.Errorf("add day spend bet (%s): %w", tier, err)
	}
	return nil
}

func (r *statsRepo) AddDaySpendWin(ctx context.Context, db DBTX, tier DaySpendTier, userID, won, profitFlag int64) error {
	_, err := db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (user_id, game_id, total_won, profit_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, game_id) DO UPDATE SET
		  total_won = %[1]s.total_won + EXCLUDED.total_won,
		  profit_count = %[1]s.profit_count + EXCLUDED.profit_count,
		  updated_at = now()`, string(tier)),
		userID, domain.CarGameID, won, profitFlag)
	if err != nil {
		return fmt.Errorf("add day spend win (%s): %w", tier, err)
	}
	return nil
}

func (r *statsRepo) MarkPlayed(ctx context.Context, db DBTX, userID int64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO cargame_played_users (user_id, game_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, game_id) DO NOTHING`, userID, domain.CarGameID)
	if err != nil {
		return fmt.Errorf("mark played: %w", err)
	}
	return nil
}

func (r *statsRepo) AddLuckyGiftWithdrawal(ctx context.Context, db DBTX, userID, amount, redeem int64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO users_luckygiftbots (user_id, withdrawal_amount, withdrawal_redeem_amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
		  withdrawal_amount = users_luckygiftbots.withdrawal_amount + EXCLUDED.withdrawal_amount,
		  withdrawal_redeem_amount = users_luckygiftbots.withdrawal_redeem_amount + EXCLUDED.withdrawal_redeem_amount,
		  updated_at = now()`, userID, amount, redeem)
	if err != nil {
		return fmt.Errorf("add lucky gift withdrawal: %w", err)
	}
	return nil
}

func (r *statsRepo) QueueGroupNotification(ctx context.Context, db DBTX, n domain.GroupNotification) error {
	_, err := db.Exec(ctx, `
		INSERT INTO send_notifi_tencent_grps (game_id, game_name, room_group_id, message, user_id, coin)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.GameID, n.GameName, n.RoomGroupID, n.Message, n.UserID, n.Coin)
	if err != nil {
		return fmt.Errorf("queue group notification: %w", err)
	}
	return nil
}
