package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/jackc/pgx/v5"
)

type contestBetRepo struct{}

// NewContestBetRepository returns a pgx-backed ContestBetRepository.
func NewContestBetRepository() ContestBetRepository {
	return &contestBetRepo{}
}

func contestTable(variant domain.ContestVariant) string {
	if variant == domain.ContestGlobal {
		return "cargame_bet_global"
	}
	return "cargame_bet"
}

// UpsertWager adds the stakes onto an existing row. xmax = 0 identifies a fresh insert.
func (r *contestBetRepo) UpsertWager(ctx context.Context, db DBTX, variant domain.ContestVariant, w domain.ContestWager) (bool, error) {
	var inserted bool
	err := db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s AS b
		  (user_id, contestid, room_id, car1, car2, car3, total_bet, party_seat_users, group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, contestid) DO UPDATE SET
		  car1 = b.car1 + EXCLUDED.car1,
		  car2 = b.car2 + EXCLUDED.car2,
		  car3 = b.car3 + EXCLUDED.car3,
		  total_bet = b.total_bet + EXCLUDED.total_bet,
		  room_id = EXCLUDED.room_id,
		  party_seat_users = EXCLUDED.party_seat_users,
		  group_id = EXCLUDED.group_id,
		  updated_at = now()
		RETURNING (xmax = 0)`, contestTable(variant)),
		w.UserID, w.ContestID, w.RoomID,
		w.Stakes.Car1, w.Stakes.Car2, w.Stakes.Car3, w.Stakes.Total(),
		strings.Join(w.PartySeatUsers, ","), strings.Join(w.GroupIDs, ","),
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert contest wager: %w", err)
	}
	return inserted, nil
}

func (r *contestBetRepo) Settle(ctx context.Context, db DBTX, variant domain.ContestVariant, row ContestSettleRow) (int64, error) {
	tag, err := db.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET total_won = $1, winning = $2, profit = $3, tips = $4,
		    system_share = $5, company_wallet_share = $6,
		    car1_name = $7, car2_name = $8, car3_name = $9, winning_car = $10,
		    status = $11, updated_at = now()
		WHERE contestid = $12 AND user_id = $13 AND status != $11`, contestTable(variant)),
		row.TotalWon, row.Winning, row.ProfitFlag, row.Tips,
		row.SystemShare, row.CompanyWalletShare,
		row.CarNames[0], row.CarNames[1], row.CarNames[2], row.WinningCar,
		int(domain.BetSettled), row.ContestID, row.UserID)
	if err != nil {
		return 0, fmt.Errorf("settle contest bet: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *contestBetRepo) Find(ctx context.Context, db DBTX, variant domain.ContestVariant, userID int64, contestID string) (*domain.ContestBet, error) {
	row := db.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, user_id, contestid, room_id, car1, car2, car3, total_bet, total_won, tips,
		       party_seat_users, group_id, status, system_share, company_wallet_share
		FROM %s
		WHERE user_id = $1 AND contestid = $2`, contestTable(variant)), userID, contestID)
	b, err := scanContestBet(row)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *contestBetRepo) CountContestRecords(ctx context.Context, db DBTX, contestID string) (int, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM cargame_contest_record WHERE contestid = $1`, contestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contest records: %w", err)
	}
	return n, nil
}

func (r *contestBetRepo) RoomSummaries(ctx context.Context, db DBTX, variant domain.ContestVariant, contestID string) ([]domain.RoomWinSummary, error) {
	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT room_id, COUNT(*), COALESCE(SUM(total_won), 0), COALESCE(SUM(tips), 0),
		       COALESCE(MAX(party_seat_users), '')
		FROM %s
		WHERE contestid = $1 AND total_won > 0 AND room_id != ''
		GROUP BY room_id`, contestTable(variant)), contestID)
	if err != nil {
		return nil, fmt.Errorf("query room summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.RoomWinSummary
	for rows.Next() {
		var s domain.RoomWinSummary
		if err := rows.Scan(&s.RoomID, &s.Winners, &s.TotalWon, &s.TotalTips, &s.PartySeatUsers); err != nil {
			return nil, fmt.Errorf("scan room summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *contestBetRepo) ListWinners(ctx context.Context, db DBTX, variant domain.ContestVariant, contestID string) ([]domain.ContestBet, error) {
	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT id, user_id, contestid, room_id, car1, car2, car3, total_bet, total_won, tips,
		       party_seat_users, group_id, status, system_share, company_wallet_share
		FROM %s
		WHERE contestid = $1 AND total_won > 0
		ORDER BY id ASC`, contestTable(variant)), contestID)
	if err != nil {
		return nil, fmt.Errorf("query contest winners: %w", err)
	}
	defer rows.Close()

	var out []domain.ContestBet
	for rows.Next() {
		b, err := scanContestBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanContestBet(row pgx.Row) (*domain.ContestBet, error) {
	var b domain.ContestBet
	var status int
	err := row.Scan(&b.ID, &b.UserID, &b.ContestID, &b.RoomID,
		&b.Stakes.Car1, &b.Stakes.Car2, &b.Stakes.Car3, &b.TotalBet, &b.TotalWon, &b.Tips,
		&b.PartySeatUsers, &b.GroupID, &status, &b.SystemShare, &b.CompanyWalletShare)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan contest bet: %w", err)
	}
	b.Status = domain.BetStatus(status)
	return &b, nil
}
