package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/racegame/internal/betrecord"
	"github.com/attaboy/racegame/internal/guard"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/ledger"
	"github.com/attaboy/racegame/internal/provider"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/attaboy/racegame/internal/service"
	"github.com/attaboy/racegame/internal/settlement"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	asyncJobLimit   = 64
	asyncJobTimeout = 30 * time.Second
)

// Services is the object graph shared by the API and wallet server binaries.
type Services struct {
	Repos      repository.Repos
	Clock      *infra.Clock
	Metrics    *infra.Metrics
	Settings   *infra.SettingsStore
	Engine     *ledger.Engine
	Records    *betrecord.Manager
	Reconciler *settlement.Reconciler
	Async      *service.AsyncRunner
	Notifier   *provider.HTTPNotifier

	Bets       *service.BetService
	ThirdParty *service.ThirdPartyService
	Notify     *service.NotifyService
}

// NewServices builds the services on top of db. The settings store starts
// empty; callers refresh it before serving.
func NewServices(cfg *infra.Config, db repository.TxDB, reg prometheus.Registerer, logger *slog.Logger) (*Services, error) {
	codec, err := provider.NewEnvelopeCodec(cfg.CargameAESKey, cfg.CargameAESIV)
	if err != nil {
		return nil, fmt.Errorf("envelope codec: %w", err)
	}

	repos := repository.NewRepos()
	clock := infra.NewClock(cfg.Location())
	metrics := infra.NewMetrics(reg)
	settings := infra.NewSettingsStore(repository.NewSettingsLoader(repos.Settings, repos.CompanyWallet, db))

	// External providers
	out := provider.NewOutbound(cfg.OutboundTimeout, guard.NewCircuitBreaker(5, 30*time.Second), metrics)
	oracle := provider.NewContestOracle(out, cfg.MainOracleURL, cfg.GlobalOracleURL, cfg.OracleAuthToken)
	notifier := provider.NewHTTPNotifier(out, cfg.NotifierURL, cfg.OutboundTimeout, logger)
	messenger := provider.NewGroupMessenger(out, cfg.TencentSDKAppID, cfg.TencentSecretKey, cfg.TencentAdminID, cfg.TencentAPIBaseURL)

	// An unset partner must stay a nil interface, not a nil pointer.
	var partner service.GlobalPartner
	if cfg.GlobalBetURL != "" {
		partner = provider.NewGlobalPartner(out, cfg.GlobalBetURL, cfg.GlobalBetSecret)
	}

	engine := ledger.NewEngine(repos, metrics, logger)
	records := betrecord.NewManager(repos, clock, metrics, logger)
	reconciler := settlement.NewReconciler(db, engine, records, repos, settings, notifier, clock, metrics, logger)
	async := service.NewAsyncRunner(asyncJobLimit, asyncJobTimeout, metrics, logger)

	return &Services{
		Repos:      repos,
		Clock:      clock,
		Metrics:    metrics,
		Settings:   settings,
		Engine:     engine,
		Records:    records,
		Reconciler: reconciler,
		Async:      async,
		Notifier:   notifier,
		Bets:       service.NewBetService(db, codec, engine, records, repos, settings, oracle, partner, async, cfg.ImageBaseURL, metrics, logger),
		ThirdParty: service.NewThirdPartyService(db, engine, records, reconciler, repos, clock, logger),
		Notify:     service.NewNotifyService(db, repos, settings, notifier, messenger, metrics, logger),
	}, nil
}

// Wait blocks until background jobs and queued notifications have finished.
func (s *Services) Wait() {
	s.Async.Wait()
	s.Notifier.Wait()
}
