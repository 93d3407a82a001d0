package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/service"
)

// BetPlacer books contest bets from encrypted envelopes.
type BetPlacer interface {
	PlaceBet(ctx context.Context, variant domain.ContestVariant, encrypted string) (*service.BetResult, error)
}

// BetHandler serves the car game bet endpoints.
type BetHandler struct {
	bets   BetPlacer
	logger *slog.Logger
}

// NewBetHandler creates a new BetHandler.
func NewBetHandler(bets BetPlacer, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

type betResponse struct {
	Status    bool   `json:"status"`
	Message   string `json:"message"`
	NewPoints *int64 `json:"new_points,omitempty"`
}

// PlaceMainBet handles GET|POST /api/cargame/bet.
func (h *BetHandler) PlaceMainBet(w http.ResponseWriter, r *http.Request) {
	h.place(w, r, domain.ContestMain)
}

// PlaceGlobalBet handles GET|POST /api/cargame/bet-global.
func (h *BetHandler) PlaceGlobalBet(w http.ResponseWriter, r *http.Request) {
	h.place(w, r, domain.ContestGlobal)
}

// place always answers 200; the outcome is carried in the envelope.
func (h *BetHandler) place(w http.ResponseWriter, r *http.Request, variant domain.ContestVariant) {
	res, err := h.bets.PlaceBet(r.Context(), variant, encryptedData(r))
	if err != nil {
		msg := "Internal server error"
		if appErr, ok := domain.AsAppError(err); ok && (appErr.Code == domain.CodeValidation || appErr.Code == domain.CodeInsufficientBalance) {
			msg = appErr.Message
		} else {
			h.logger.Error("place bet failed", "variant", variant, "error", err, "request_id", GetRequestID(r.Context()))
		}
		RespondJSON(w, http.StatusOK, betResponse{Message: msg})
		return
	}
	RespondJSON(w, http.StatusOK, betResponse{
		Status:    true,
		Message:   service.MsgBetAdded,
		NewPoints: &res.NewPoints,
	})
}

// encryptedData reads the envelope from a JSON or form body, then the query.
func encryptedData(r *http.Request) string {
	if r.Body != nil && r.ContentLength != 0 {
		ct := r.Header.Get("Content-Type")
		switch {
		case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
			if err := r.ParseForm(); err == nil {
				if v := r.PostForm.Get("encryptedData"); v != "" {
					return v
				}
			}
		default:
			var body struct {
				EncryptedData string `json:"encryptedData"`
			}
			if err := DecodeJSON(r, &body); err == nil && body.EncryptedData != "" {
				return body.EncryptedData
			}
		}
	}
	return r.URL.Query().Get("encryptedData")
}
