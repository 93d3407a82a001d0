package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/attaboy/racegame/internal/auth"
	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/ledger"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/go-chi/chi/v5"
)

// AccountAuditor replays an account's ledger.
type AccountAuditor interface {
	ReplayAccount(ctx context.Context, db repository.DBTX, accountID int64) (*ledger.ReplayResult, error)
}

// SettingsRefresher reloads runtime settings.
type SettingsRefresher interface {
	Refresh(ctx context.Context) error
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	db       repository.DBTX
	auditor  AccountAuditor
	settings SettingsRefresher
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(db repository.DBTX, auditor AccountAuditor, settings SettingsRefresher, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{db: db, auditor: auditor, settings: settings, logger: logger}
}

// AuditAccount handles GET /admin/accounts/{id}/audit.
func (h *AdminHandler) AuditAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(w, domain.ErrValidation("invalid account id"))
		return
	}

	res, err := h.auditor.ReplayAccount(r.Context(), h.db, id)
	if err != nil {
		if _, ok := domain.AsAppError(err); !ok {
			h.logger.Error("account audit failed", "account_id", id, "error", err)
		}
		RespondError(w, err)
		return
	}
	h.logger.Info("account audited",
		"account_id", id,
		"operator", auth.SubjectFromContext(r.Context()),
		"all_passed", res.AllPassed)
	RespondJSON(w, http.StatusOK, res)
}

// RefreshSettings handles POST /admin/settings/refresh.
func (h *AdminHandler) RefreshSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Refresh(r.Context()); err != nil {
		h.logger.Error("settings refresh failed", "error", err)
		RespondError(w, domain.ErrInternal("settings refresh", err))
		return
	}
	h.logger.Info("settings refreshed", "operator", auth.SubjectFromContext(r.Context()))
	RespondJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
