//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/racegame/internal/app"
	"github.com/attaboy/racegame/internal/auth"
	"github.com/attaboy/racegame/internal/guard"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/provider"
	"github.com/attaboy/racegame/internal/walletserver"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	TestJWTSecret     = "integration-test-secret-integration-test"
	TestWebhookSecret = "integration-webhook-secret"
	TestAESKey        = "0123456789abcdef0123456789abcdef"
	TestAESIV         = "abcdef9876543210"
	TestAppKey        = "integration-app-key"
	TestDBHost        = "localhost"
	TestDBPort        = 5435
	TestDBUser        = "racegame"
	TestDBPass        = "racegame"
	TestDBName        = "racegame_test"
)

// TestEnv holds all resources for an integration test: the game API, the
// wallet server and a fake upstream for the oracle, partner and notifier.
type TestEnv struct {
	Server   *httptest.Server
	Wallet   *httptest.Server
	Upstream *FakeUpstream
	Pool     *pgxpool.Pool
	Services *app.Services
	Codec    *provider.EnvelopeCodec
	Signer   *provider.WebhookSigner
	JWTMgr   *auth.JWTManager
	t        *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "racegame")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to the main database to create the test database
	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		if _, err := bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}
		if err := infra.RunMigrations(testDSN(), os.Getenv("MIGRATIONS_DIR"), testLogger()); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// NewTestEnv wires the real services against the test database and serves
// both the game API and the wallet server.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	logger := testLogger()
	upstream := NewFakeUpstream()
	t.Cleanup(upstream.Close)

	cfg := &infra.Config{
		Timezone:          "Asia/Kolkata",
		CargameAESKey:     TestAESKey,
		CargameAESIV:      TestAESIV,
		WebhookSecret:     TestWebhookSecret,
		AppKey:            TestAppKey,
		SSTokenCode:       "timilive",
		MainOracleURL:     upstream.URL() + "/main",
		GlobalOracleURL:   upstream.URL() + "/global",
		GlobalBetURL:      upstream.URL() + "/partner",
		GlobalBetSecret:   "partner-secret",
		NotifierURL:       upstream.URL() + "/notify",
		TencentAPIBaseURL: upstream.URL() + "/im",
		ImageBaseURL:      "https://img.test/",
		OutboundTimeout:   2 * time.Second,
	}

	reg := prometheus.NewRegistry()
	svcs, err := app.NewServices(cfg, pool, reg, logger)
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	codec, err := provider.NewEnvelopeCodec(TestAESKey, TestAESIV)
	if err != nil {
		t.Fatalf("NewEnvelopeCodec: %v", err)
	}

	jwtMgr := auth.NewJWTManager(TestJWTSecret, time.Hour)
	signer := provider.NewWebhookSigner(TestWebhookSecret)

	router := app.NewRouter(app.RouterDeps{
		DB:           pool,
		Ready:        func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) },
		Bets:         svcs.Bets,
		Settler:      svcs.Reconciler,
		Notifier:     svcs.Notify,
		Advisor:      svcs.Notify,
		Jobs:         svcs.Async,
		Auditor:      svcs.Engine,
		Settings:     svcs.Settings,
		Signer:       signer,
		Events:       guard.NewIdempotencyGuard(time.Hour),
		JWTMgr:       jwtMgr,
		AdminLimiter: guard.NewRateLimiter(1000, time.Minute),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSOrigins:  "*",
		Logger:       logger,
	})
	wallet := walletserver.NewRouter(walletserver.Deps{
		Games:    svcs.ThirdParty,
		Baishun:  provider.NewBaishunAdapter(TestAppKey, cfg.SSTokenCode),
		ImageDir: cfg.ImageBaseURL,
		Now:      svcs.Clock.Now,
		Logger:   logger,
	})

	env := &TestEnv{
		Server:   httptest.NewServer(router),
		Wallet:   httptest.NewServer(wallet),
		Upstream: upstream,
		Pool:     pool,
		Services: svcs,
		Codec:    codec,
		Signer:   signer,
		JWTMgr:   jwtMgr,
		t:        t,
	}

	// Clean before test to ensure isolation
	env.CleanAll()
	if err := svcs.Settings.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh settings: %v", err)
	}

	t.Cleanup(func() {
		env.Server.Close()
		env.Wallet.Close()
		svcs.Wait()
		env.CleanAll()
	})
	return env
}
