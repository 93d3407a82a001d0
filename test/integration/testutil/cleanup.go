//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every table the services write to. The company wallet
// keeps its single row with a zeroed balance.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		// Outbox and notifications
		"event_outbox",
		"send_notifi_tencent_grps",

		// Bets
		"cargame_bet",
		"cargame_bet_global",
		"cargame_contest_record",
		"third_party_bets",

		// Aggregates
		"user_energies",
		"cargame_current_day_spend",
		"cargame_current_day_spend_standard",
		"cargame_current_day_spend_pro",
		"cargame_played_users",
		"company_game_wallet_histories",
		"users_luckygiftbots",
		"mic_join_details",

		// Accounts
		"wallets",
		"profile_images",
		"females",
		"users",
	}
	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY CASCADE")
	}
	_, _ = env.Pool.Exec(ctx, "UPDATE company_game_wallets SET balance = 0, total_credit = 0")
}
