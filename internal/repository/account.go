package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const accountColumns = `u.id, u.profile_id, u.name, u.gender, u.login_type, u.points, u.redeem_point,
		       u.rich_level, COALESCE(u.group_id, ''),
		       COALESCE((SELECT p.image_name FROM profile_images p
		                 WHERE p.user_id = u.id AND p.is_profile_image = 1
		                 ORDER BY p.id DESC LIMIT 1), ''),
		       u.updated_at`

type accountRepo struct{}

// NewAccountRepository returns a pgx-backed AccountRepository.
func NewAccountRepository() AccountRepository {
	return &accountRepo{}
}

func (r *accountRepo) FindByID(ctx context.Context, db DBTX, id int64) (*domain.Account, error) {
	row := db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users u WHERE u.id = $1`, id)
	return scanAccount(row)
}

func (r *accountRepo) FindByProfileID(ctx context.Context, db DBTX, profileID string) (*domain.Account, error) {
	row := db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users u WHERE u.profile_id = $1 LIMIT 1`, profileID)
	return scanAccount(row)
}

func (r *accountRepo) FindByGroupID(ctx context.Context, db DBTX, groupID string) (*domain.Account, error) {
	row := db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users u WHERE u.group_id = $1 ORDER BY u.id LIMIT 1`, groupID)
	return scanAccount(row)
}

func (r *accountRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error) {
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM users u WHERE u.id = $1 FOR UPDATE OF u`, id)
	return scanAccount(row)
}

// UpdateBalances uses server-side arithmetic with dynamic SET clauses.
func (r *accountRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, id int64, delta domain.BalanceDelta) (*domain.Account, error) {
	setClauses := []string{"updated_at = now()"}
	args := []interface{}{}
	argIdx := 1

	if delta.HasPointsDelta() {
		setClauses = append(setClauses, fmt.Sprintf("points = points + $%d", argIdx))
		args = append(args, infra.Int64ToNumeric(delta.Points))
		argIdx++
	}
	if delta.HasRedeemDelta() {
		setClauses = append(setClauses, fmt.Sprintf("redeem_point = redeem_point + $%d", argIdx))
		args = append(args, infra.Int64ToNumeric(delta.RedeemPoint))
		argIdx++
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE users u SET %s
		WHERE u.id = $%d
		RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, accountColumns)

	row := tx.QueryRow(ctx, query, args...)
	return scanAccount(row)
}

func (r *accountRepo) SetRichLevel(ctx context.Context, db DBTX, id int64, level int, mirrorFemale bool) error {
	if _, err := db.Exec(ctx, `UPDATE users SET rich_level = $1, updated_at = now() WHERE id = $2`, level, id); err != nil {
		return fmt.Errorf("update rich level: %w", err)
	}
	if !mirrorFemale {
		return nil
	}
	if _, err := db.Exec(ctx, `UPDATE females SET rich_level = $1 WHERE id = $2`, level, id); err != nil {
		return fmt.Errorf("update female rich level: %w", err)
	}
	return nil
}

func (r *accountRepo) FindOpenMicSession(ctx context.Context, db DBTX, callerID int64) (*domain.MicSession, error) {
	var startMs int64
	var endMs *int64
	var rate pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT start_time, end_time, call_rate
		FROM mic_join_details
		WHERE caller_id = $1
		ORDER BY id DESC
		LIMIT 1`, callerID).Scan(&startMs, &endMs, &rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan mic session: %w", err)
	}
	if endMs != nil && *endMs != 0 {
		return nil, nil
	}
	if startMs <= 0 {
		return nil, nil
	}

	callRate, err := infra.NumericToDecimal(rate)
	if err != nil {
		return nil, fmt.Errorf("convert call_rate: %w", err)
	}
	return &domain.MicSession{
		UserID:    callerID,
		CallRate:  callRate.InexactFloat64(),
		StartedAt: time.UnixMilli(startMs),
	}, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var loginType string
	var pointsNum, redeemNum pgtype.Numeric
	err := row.Scan(&a.ID, &a.ProfileID, &a.Name, &a.Gender, &loginType, &pointsNum, &redeemNum,
		&a.RichLevel, &a.GroupID, &a.ImageName, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.LoginType = domain.LoginType(loginType)

	var convErr error
	a.Points, convErr = infra.NumericToInt64(pointsNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert points: %w", convErr)
	}
	a.RedeemPoint, convErr = infra.NumericToInt64(redeemNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert redeem_point: %w", convErr)
	}

	return &a, nil
}
