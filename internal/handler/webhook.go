package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/guard"
	"github.com/attaboy/racegame/internal/provider"
	"github.com/attaboy/racegame/internal/settlement"
	"github.com/google/uuid"
)

// ContestSettler applies contest winner payouts.
type ContestSettler interface {
	SettleContest(ctx context.Context, s settlement.ContestSettlement) (*settlement.Result, error)
}

// WinNotifier fans out the result messages of a settled contest.
type WinNotifier interface {
	FanOutWinNotifications(ctx context.Context, variant domain.ContestVariant, contestID string) (int, error)
}

// Advisor broadcasts advisor messages.
type Advisor interface {
	BroadcastAdvice(ctx context.Context, message string) (bool, error)
}

// JobRunner runs work after the response has been written.
type JobRunner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error) bool
}

// WebhookHandler handles the signed callbacks of the contest engine.
type WebhookHandler struct {
	signer   *provider.WebhookSigner
	events   *guard.IdempotencyGuard
	settler  ContestSettler
	notifier WinNotifier
	advisor  Advisor
	jobs     JobRunner
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(
	signer *provider.WebhookSigner,
	events *guard.IdempotencyGuard,
	settler ContestSettler,
	notifier WinNotifier,
	advisor Advisor,
	jobs JobRunner,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		signer:   signer,
		events:   events,
		settler:  settler,
		notifier: notifier,
		advisor:  advisor,
		jobs:     jobs,
		logger:   logger,
	}
}

type webhookReply struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	TraceID string `json:"traceId,omitempty"`
}

type signedRequest struct {
	body     []byte
	domainID string
	eventID  string
}

func (s signedRequest) eventKey() string {
	return s.domainID + ":" + s.eventID
}

// verify reads the raw body and checks the headers and signature. On failure
// the response has been written and ok is false.
func (h *WebhookHandler) verify(w http.ResponseWriter, r *http.Request, traceID string) (signedRequest, bool) {
	eventID := r.Header.Get("X-Event-Id")
	domainID := r.Header.Get("X-Domain-Id")
	ts := r.Header.Get("X-Timestamp")
	sig := r.Header.Get("X-Signature")
	if eventID == "" || domainID == "" || ts == "" || sig == "" {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Missing required headers", TraceID: traceID})
		return signedRequest{}, false
	}

	body, err := ReadBody(r)
	if err != nil || !json.Valid(body) {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Invalid JSON body", TraceID: traceID})
		return signedRequest{}, false
	}

	if !h.signer.Verify(domainID, eventID, ts, body, sig) {
		h.logger.Warn("webhook signature mismatch",
			"path", r.URL.Path,
			"domain_id", domainID,
			"event_id", eventID,
			"trace_id", traceID)
		RespondJSON(w, http.StatusUnauthorized, webhookReply{Code: 1, Msg: "Invalid signature", TraceID: traceID})
		return signedRequest{}, false
	}
	return signedRequest{body: body, domainID: domainID, eventID: eventID}, true
}

type winnerPayload struct {
	BetID          provider.FlexString `json:"bet_id"`
	UserID         provider.FlexString `json:"user_id"`
	ContestID      provider.FlexString `json:"contest_id"`
	RoomID         provider.FlexString `json:"room_id"`
	PartySeatUsers provider.FlexString `json:"party_seat_users"`
	WinningColumn  provider.FlexString `json:"winning_column"`
	WinningCar     provider.FlexString `json:"winning_car"`
	Variant        provider.FlexString `json:"variant"`
	Bet            struct {
		TotalBet provider.FlexString `json:"total_bet"`
		Car1     provider.FlexString `json:"car1"`
		Car2     provider.FlexString `json:"car2"`
		Car3     provider.FlexString `json:"car3"`
	} `json:"bet"`
	Payout struct {
		TotalWon           provider.FlexString `json:"total_won"`
		Profit             provider.FlexString `json:"profit"`
		AvgShare           provider.FlexString `json:"avg_share"`
		CompanyWalletShare provider.FlexString `json:"company_wallet_share"`
		SystemShare        provider.FlexString `json:"system_share"`
	} `json:"payout"`
	Car1Name provider.FlexString `json:"car1_name"`
	Car2Name provider.FlexString `json:"car2_name"`
	Car3Name provider.FlexString `json:"car3_name"`
}

// variant defaults to the global contest, the only one the engine settles
// by webhook today.
func (p winnerPayload) variant() (domain.ContestVariant, bool) {
	switch v := strings.ToLower(p.Variant.String()); v {
	case "", string(domain.ContestGlobal):
		return domain.ContestGlobal, true
	case string(domain.ContestMain):
		return domain.ContestMain, true
	default:
		return "", false
	}
}

func (p winnerPayload) settlement(variant domain.ContestVariant, domainID string) settlement.ContestSettlement {
	return settlement.ContestSettlement{
		Variant:        variant,
		DomainID:       int(provider.FlexString(domainID).Int()),
		BetID:          p.BetID.Int(),
		UserID:         p.UserID.Int(),
		ContestID:      p.ContestID.String(),
		RoomID:         p.RoomID.String(),
		PartySeatUsers: p.PartySeatUsers.String(),
		WinningColumn:  p.WinningColumn.String(),
		WinningCar:     p.WinningCar.String(),
		TotalBet:       p.Bet.TotalBet.Int(),
		Stakes: domain.CarStakes{
			Car1: p.Bet.Car1.Int(),
			Car2: p.Bet.Car2.Int(),
			Car3: p.Bet.Car3.Int(),
		},
		Payout: domain.ContestPayout{
			TotalWon:           p.Payout.TotalWon.Int(),
			Profit:             p.Payout.Profit.Int(),
			AvgShare:           p.Payout.AvgShare.Int(),
			CompanyWalletShare: p.Payout.CompanyWalletShare.Int(),
			SystemShare:        p.Payout.SystemShare.Int(),
		},
		CarNames: [3]string{p.Car1Name.String(), p.Car2Name.String(), p.Car3Name.String()},
	}
}

// HandleWinner handles POST /api/cargame/handle-webhook-winner.
func (h *WebhookHandler) HandleWinner(w http.ResponseWriter, r *http.Request) {
	req, ok := h.verify(w, r, "")
	if !ok {
		return
	}

	var p winnerPayload
	if err := json.Unmarshal(req.body, &p); err != nil {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Invalid JSON body"})
		return
	}
	if p.BetID.Int() == 0 || p.UserID.Int() == 0 || p.ContestID.String() == "" {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Missing bet_id/user_id/contest_id"})
		return
	}
	variant, ok := p.variant()
	if !ok {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Invalid variant"})
		return
	}

	key := req.eventKey()
	if res := h.events.Check(r.Context(), key); !res.Allowed {
		h.logger.Info("webhook event already seen", "event", key, "reason", res.Reason)
		RespondJSON(w, http.StatusOK, webhookReply{Code: 0, Msg: "already processed"})
		return
	}

	s := p.settlement(variant, req.domainID)
	result, err := h.settler.SettleContest(r.Context(), s)
	if appErr, ok := domain.AsAppError(err); ok && appErr.Code == domain.CodeValidation {
		h.events.Release(key)
		h.logger.Warn("contest payout rejected",
			"event", key,
			"contest_id", s.ContestID,
			"user_id", s.UserID,
			"error", err)
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: appErr.Message})
		return
	}
	if err != nil {
		h.events.Release(key)
		h.logger.Error("contest settlement failed",
			"event", key,
			"variant", variant,
			"contest_id", s.ContestID,
			"user_id", s.UserID,
			"error", err)
		RespondJSON(w, http.StatusInternalServerError, webhookReply{Code: 1, Msg: "Internal server error"})
		return
	}
	if result.Outcome == domain.OutcomeAlreadyProcessed {
		RespondJSON(w, http.StatusOK, webhookReply{Code: 0, Msg: "already processed"})
		return
	}
	RespondJSON(w, http.StatusOK, webhookReply{Code: 0, Msg: "ok"})
}

// HandleWinNotify handles POST /api/cargame/handle-win-notify. The fan-out
// runs after the acknowledgement.
func (h *WebhookHandler) HandleWinNotify(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.NewString()
	req, ok := h.verify(w, r, traceID)
	if !ok {
		return
	}

	var p struct {
		ContestID provider.FlexString `json:"contest_id"`
		Variant   provider.FlexString `json:"variant"`
	}
	if err := json.Unmarshal(req.body, &p); err != nil {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Invalid JSON body", TraceID: traceID})
		return
	}
	contestID := p.ContestID.String()
	if contestID == "" {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Missing contest_id", TraceID: traceID})
		return
	}
	variant, ok := winnerPayload{Variant: p.Variant}.variant()
	if !ok {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Invalid variant", TraceID: traceID})
		return
	}

	RespondJSON(w, http.StatusOK, webhookReply{Code: 0, Msg: "queued", TraceID: traceID})

	h.jobs.Go(r.Context(), "win_notify", func(ctx context.Context) error {
		sent, err := h.notifier.FanOutWinNotifications(ctx, variant, contestID)
		if err != nil {
			return err
		}
		h.logger.Info("win notify job done", "trace_id", traceID, "contest_id", contestID, "sent", sent)
		return nil
	})
}

// HandleAIAdvisor handles POST /api/cargame/handle-ai-advisor-notify.
func (h *WebhookHandler) HandleAIAdvisor(w http.ResponseWriter, r *http.Request) {
	req, ok := h.verify(w, r, "")
	if !ok {
		return
	}

	var p struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(req.body, &p); err != nil {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Invalid JSON body"})
		return
	}
	message := strings.TrimSpace(p.Message)
	if message == "" {
		RespondJSON(w, http.StatusBadRequest, webhookReply{Code: 1, Msg: "Missing message"})
		return
	}

	RespondJSON(w, http.StatusOK, webhookReply{Code: 0, Msg: "ok"})

	h.jobs.Go(r.Context(), "ai_advisor", func(ctx context.Context) error {
		_, err := h.advisor.BroadcastAdvice(ctx, message)
		return err
	})
}
