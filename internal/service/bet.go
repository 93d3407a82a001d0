package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/attaboy/racegame/internal/betrecord"
	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/ledger"
	"github.com/attaboy/racegame/internal/provider"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Client-facing bet rejections.
const (
	MsgEncryptedRequired = "encryptedData field is required!"
	MsgInvalidRequest    = "invalid request data required!"
	MsgFillAllFields     = "Please Fill All The Fields"
	MsgNegativeBet       = "Negative value bet"
	MsgInvalidContest    = "Invalid contest"
	MsgInvalidUser       = "Invalid User"
	MsgBetTooLow         = "Bet coin too low"
	MsgBalanceTooLowPre  = "Balance too low 1"
	MsgNoMoreBet         = "No More bet"
	MsgBetAdded          = "Betting added successfully !!"
)

// ContestOracle reports the running contest of a variant.
type ContestOracle interface {
	Snapshot(ctx context.Context, variant domain.ContestVariant) (*domain.ContestSnapshot, error)
}

// GlobalPartner registers global contest bets with the tournament partner.
type GlobalPartner interface {
	PlaceBet(ctx context.Context, bet provider.GlobalBetRequest) error
}

// BetService places contest bets from encrypted client envelopes.
type BetService struct {
	db       repository.TxDB
	codec    *provider.EnvelopeCodec
	engine   *ledger.Engine
	records  *betrecord.Manager
	repos    repository.Repos
	settings *infra.SettingsStore
	oracle   ContestOracle
	partner  GlobalPartner
	async    *AsyncRunner
	imageDir string
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewBetService creates a BetService. partner may be nil when the global
// contest is not deployed; global bets are then refused.
func NewBetService(
	db repository.TxDB,
	codec *provider.EnvelopeCodec,
	engine *ledger.Engine,
	records *betrecord.Manager,
	repos repository.Repos,
	settings *infra.SettingsStore,
	oracle ContestOracle,
	partner GlobalPartner,
	async *AsyncRunner,
	imageDir string,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		db:       db,
		codec:    codec,
		engine:   engine,
		records:  records,
		repos:    repos,
		settings: settings,
		oracle:   oracle,
		partner:  partner,
		async:    async,
		imageDir: imageDir,
		metrics:  metrics,
		logger:   logger,
	}
}

// BetResult is returned for an accepted bet.
type BetResult struct {
	NewPoints int64 `json:"new_points"`
}

type betPayload struct {
	UserID         provider.FlexString `json:"user_id"`
	RoomID         provider.FlexString `json:"room_id"`
	ContestID      provider.FlexString `json:"contest_id"`
	Car1           provider.FlexString `json:"car1"`
	Car2           provider.FlexString `json:"car2"`
	Car3           provider.FlexString `json:"car3"`
	PartySeatUsers provider.FlexString `json:"party_seat_users"`
	GroupID        provider.FlexString `json:"group_id"`
}

// PlaceBet validates and books a contest bet. Rejections are validation
// errors whose message is shown to the client as is; the debit and the
// contest row commit together.
func (s *BetService) PlaceBet(ctx context.Context, variant domain.ContestVariant, encrypted string) (*BetResult, error) {
	res, err := s.placeBet(ctx, variant, encrypted)
	switch {
	case err == nil:
		s.metrics.ObserveBet(string(variant), "accepted")
	case domain.IsCode(err, domain.CodeValidation), domain.IsCode(err, domain.CodeInsufficientBalance):
		s.metrics.ObserveBet(string(variant), "rejected")
	default:
		s.metrics.ObserveBet(string(variant), "failed")
	}
	return res, err
}

func (s *BetService) placeBet(ctx context.Context, variant domain.ContestVariant, encrypted string) (*BetResult, error) {
	encrypted = strings.TrimSpace(encrypted)
	if encrypted == "" {
		return nil, domain.ErrValidation(MsgEncryptedRequired)
	}
	p, err := s.decode(encrypted)
	if err != nil {
		s.logger.Warn("bet envelope rejected", "variant", variant, "error", err)
		return nil, domain.ErrValidation(MsgInvalidRequest)
	}

	userID := p.UserID.Int()
	contestID := p.ContestID.String()
	roomID := p.RoomID.String()
	stakes := domain.CarStakes{Car1: p.Car1.Int(), Car2: p.Car2.Int(), Car3: p.Car3.Int()}

	if userID <= 0 || contestID == "" || (stakes.Car1 <= 0 && stakes.Car2 <= 0 && stakes.Car3 <= 0) {
		return nil, domain.ErrValidation(MsgFillAllFields)
	}
	if stakes.Car1 < 0 || stakes.Car2 < 0 || stakes.Car3 < 0 {
		return nil, domain.ErrValidation(MsgNegativeBet)
	}

	if variant == domain.ContestMain {
		n, err := s.records.ContestRecordCount(ctx, s.db, contestID)
		if err != nil {
			return nil, err
		}
		if n > 1 {
			return nil, domain.ErrValidation(MsgInvalidContest)
		}
	}

	account, err := s.repos.Accounts.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("load bettor: %w", err)
	}
	if account == nil {
		return nil, domain.ErrValidation(MsgInvalidUser)
	}

	amount := stakes.Total()
	if amount <= 0 {
		return nil, domain.ErrValidation(MsgBetTooLow)
	}
	if account.Points < amount {
		return nil, domain.ErrValidation(MsgBalanceTooLowPre)
	}

	wager := domain.ContestWager{
		UserID:         userID,
		ContestID:      contestID,
		RoomID:         roomID,
		Stakes:         stakes,
		PartySeatUsers: domain.SplitList(p.PartySeatUsers.String(), roomID),
		GroupIDs:       domain.SplitList(p.GroupID.String()),
	}

	snap, err := s.oracle.Snapshot(ctx, variant)
	if err != nil {
		s.logger.Warn("contest oracle unavailable", "variant", variant, "contest_id", contestID, "error", err)
		return nil, domain.ErrValidation(MsgNoMoreBet)
	}
	if !snap.Accepts(contestID) {
		return nil, domain.ErrValidation(MsgNoMoreBet)
	}

	if variant == domain.ContestGlobal {
		if err := s.registerGlobal(ctx, account, wager); err != nil {
			return nil, err
		}
	}

	var (
		newPoints int64
		inserted  bool
	)
	err = infra.InTx(ctx, s.db, func(tx pgx.Tx) error {
		debit, err := s.engine.ExecuteDebit(ctx, tx, domain.DebitParams{
			AccountID: userID,
			Amount:    amount,
			Status:    domain.StatusCarBetPlaced,
		})
		if err != nil {
			return err
		}
		newPoints = debit.Account.Points

		inserted, err = s.records.PlaceContestWager(ctx, tx, variant, wager)
		if err != nil {
			return err
		}
		if err := s.repos.Outbox.Insert(ctx, tx, domain.NewContestBetPlacedEvent(variant, wager, newPoints)); err != nil {
			return fmt.Errorf("insert bet event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("contest bet placed",
		"variant", variant,
		"user_id", userID,
		"contest_id", contestID,
		"amount", amount,
		"new_points", newPoints)

	if !account.IsBot() {
		s.async.Go(ctx, "bet_stats", func(ctx context.Context) error {
			return s.recordBetStats(ctx, userID, amount, inserted)
		})
	}
	return &BetResult{NewPoints: newPoints}, nil
}

func (s *BetService) decode(encrypted string) (*betPayload, error) {
	var fields map[string]json.RawMessage
	if err := s.codec.Decrypt(encrypted, &fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.New("empty bet payload")
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("re-encode bet payload: %w", err)
	}
	var p betPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode bet payload: %w", err)
	}
	return &p, nil
}

// registerGlobal forwards the bet to the tournament partner. The partner's
// rejection message is passed through to the client.
func (s *BetService) registerGlobal(ctx context.Context, account *domain.Account, w domain.ContestWager) error {
	if s.partner == nil {
		return domain.ErrValidation(MsgNoMoreBet)
	}
	recharge, err := s.repos.Stats.TotalRecharge(ctx, s.db, account.ID)
	if err != nil {
		return fmt.Errorf("load total recharge: %w", err)
	}
	err = s.partner.PlaceBet(ctx, provider.GlobalBetRequest{
		ContestID:      w.ContestID,
		RoomID:         w.RoomID,
		UserID:         strconv.FormatInt(account.ID, 10),
		DomainID:       s.settings.Snapshot().GlobalDomainID(),
		GroupID:        strings.Join(w.GroupIDs, ","),
		Car1:           w.Stakes.Car1,
		Car2:           w.Stakes.Car2,
		Car3:           w.Stakes.Car3,
		PartySeatUsers: strings.Join(w.PartySeatUsers, ","),
		BalPoints:      account.Points,
		ProfileID:      account.ProfileID,
		Name:           account.Name,
		Image:          account.AvatarURL(s.imageDir),
		TotalRecharge:  recharge,
	})
	if err != nil {
		s.logger.Warn("global partner rejected bet",
			"user_id", account.ID,
			"contest_id", w.ContestID,
			"error", err)
		return err
	}
	return nil
}

// recordBetStats feeds the daily spend tiers, energy and played-user marker.
func (s *BetService) recordBetStats(ctx context.Context, userID, amount int64, newGame bool) error {
	var errs []error
	for _, tier := range []repository.DaySpendTier{
		repository.DaySpendDaily,
		repository.DaySpendStandard,
		repository.DaySpendPro,
	} {
		if err := s.repos.Stats.AddDaySpendBet(ctx, s.db, tier, userID, amount, newGame); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tier, err))
		}
	}
	s.engine.ApplyEnergy(ctx, s.db, userID, -amount)
	if err := s.repos.Stats.MarkPlayed(ctx, s.db, userID); err != nil {
		errs = append(errs, fmt.Errorf("played users: %w", err))
	}
	return errors.Join(errs...)
}
