package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/jackc/pgx/v5"
)

type roundBetRepo struct{}

// NewRoundBetRepository returns a pgx-backed RoundBetRepository.
func NewRoundBetRepository() RoundBetRepository {
	return &roundBetRepo{}
}

func (r *roundBetRepo) FindLatest(ctx context.Context, db DBTX, key domain.RoundKey, from, to time.Time) (*domain.RoundBet, error) {
	row := db.QueryRow(ctx, `
		SELECT id, integration, user_id, game_id, round_id, room_id, total_bet, total_won, tips,
		       system_share, company_wallet_share, status, json_data, created_at, updated_at
		FROM third_party_bets
		WHERE integration = $1 AND user_id = $2 AND round_id = $3 AND game_id = $4
		  AND created_at >= $5 AND created_at < $6
		ORDER BY id DESC
		LIMIT 1`,
		string(key.Integration), key.UserID, key.RoundID, key.GameID, from, to)

	var b domain.RoundBet
	var integration string
	var status int
	var raw []byte
	err := row.Scan(&b.ID, &integration, &b.UserID, &b.GameID, &b.RoundID, &b.RoomID,
		&b.TotalBet, &b.TotalWon, &b.Tips, &b.SystemShare, &b.CompanyWalletShare,
		&status, &raw, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan round bet: %w", err)
	}
	b.Integration = domain.Integration(integration)
	b.Status = domain.BetStatus(status)
	if b.Journal, err = domain.ParseJournal(raw); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *roundBetRepo) Insert(ctx context.Context, db DBTX, bet *domain.RoundBet) (int64, error) {
	journal, err := json.Marshal(bet.Journal)
	if err != nil {
		return 0, fmt.Errorf("marshal journal: %w", err)
	}
	var id int64
	err = db.QueryRow(ctx, `
		INSERT INTO third_party_bets
		  (integration, user_id, game_id, round_id, room_id, total_bet, status, json_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		string(bet.Integration), bet.UserID, bet.GameID, bet.RoundID, bet.RoomID,
		bet.TotalBet, int(domain.BetOpen), journal,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert round bet: %w", err)
	}
	return id, nil
}

func (r *roundBetRepo) AddWager(ctx context.Context, db DBTX, id, amount int64, journal domain.Journal) error {
	raw, err := json.Marshal(journal)
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	_, err = db.Exec(ctx, `
		UPDATE third_party_bets
		SET total_bet = total_bet + $1, json_data = $2, updated_at = now()
		WHERE id = $3`, amount, raw, id)
	if err != nil {
		return fmt.Errorf("add wager: %w", err)
	}
	return nil
}

// Finalize increments in place so two results racing on one round both land;
// the row lock taken by the UPDATE orders them.
func (r *roundBetRepo) Finalize(ctx context.Context, db DBTX, id, won int64, shares domain.Shares, movement domain.Movement) (domain.RoundTotals, error) {
	raw, err := json.Marshal(domain.Journal{movement})
	if err != nil {
		return domain.RoundTotals{}, fmt.Errorf("marshal movement: %w", err)
	}
	var t domain.RoundTotals
	err = db.QueryRow(ctx, `
		UPDATE third_party_bets
		SET total_won = total_won + $1,
		    tips = tips + $2,
		    system_share = system_share + $3,
		    company_wallet_share = company_wallet_share + $4,
		    status = $5,
		    json_data = json_data || $6::jsonb,
		    updated_at = now()
		WHERE id = $7
		RETURNING total_bet, total_won, tips`,
		won, shares.Room, shares.System, shares.Company, int(domain.BetSettled), string(raw), id,
	).Scan(&t.TotalBet, &t.TotalWon, &t.Tips)
	if err != nil {
		return domain.RoundTotals{}, fmt.Errorf("finalize round bet: %w", err)
	}
	return t, nil
}

func (r *roundBetRepo) AddTips(ctx context.Context, db DBTX, id, tips int64) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE third_party_bets SET tips = tips + $1, updated_at = now()
		WHERE id = $2 AND tips = 0`, tips, id)
	if err != nil {
		return false, fmt.Errorf("add tips: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
