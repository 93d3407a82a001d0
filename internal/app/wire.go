package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/attaboy/racegame/internal/auth"
	"github.com/attaboy/racegame/internal/guard"
	"github.com/attaboy/racegame/internal/handler"
	"github.com/attaboy/racegame/internal/provider"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/go-chi/chi/v5"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	DB    repository.DBTX
	Ready func(ctx context.Context) error

	Bets     handler.BetPlacer
	Settler  handler.ContestSettler
	Notifier handler.WinNotifier
	Advisor  handler.Advisor
	Jobs     handler.JobRunner
	Auditor  handler.AccountAuditor
	Settings handler.SettingsRefresher

	Signer       *provider.WebhookSigner
	Events       *guard.IdempotencyGuard
	JWTMgr       *auth.JWTManager
	AdminLimiter *guard.RateLimiter
	Metrics      http.Handler

	CORSOrigins string
	Logger      *slog.Logger
}

// NewRouter assembles the game API chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger

	betHandler := handler.NewBetHandler(deps.Bets, logger)
	webhookHandler := handler.NewWebhookHandler(deps.Signer, deps.Events, deps.Settler, deps.Notifier, deps.Advisor, deps.Jobs, logger)
	adminHandler := handler.NewAdminHandler(deps.DB, deps.Auditor, deps.Settings, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSOrigins))
	r.Use(handler.JSONContentType)

	r.Get("/health", handler.HealthHandler())
	r.Get("/health/db", handler.ReadinessHandler(deps.Ready))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/cargame", func(r chi.Router) {
		// Clients send the envelope as a query parameter or in the body.
		r.Get("/bet", betHandler.PlaceMainBet)
		r.Post("/bet", betHandler.PlaceMainBet)
		r.Get("/bet-global", betHandler.PlaceGlobalBet)
		r.Post("/bet-global", betHandler.PlaceGlobalBet)

		// Contest engine callbacks, HMAC signed over the raw body.
		r.Post("/handle-webhook-winner", webhookHandler.HandleWinner)
		r.Post("/handle-win-notify", webhookHandler.HandleWinNotify)
		r.Post("/handle-ai-advisor-notify", webhookHandler.HandleAIAdvisor)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(handler.RateLimit(deps.AdminLimiter, logger))
		r.Use(auth.AuthenticateOps(deps.JWTMgr))

		r.Get("/accounts/{id}/audit", adminHandler.AuditAccount)
		r.With(auth.RequireRole(auth.WriteRoles()...)).Post("/settings/refresh", adminHandler.RefreshSettings)
	})

	r.NotFound(handler.NotFound)
	return r
}
