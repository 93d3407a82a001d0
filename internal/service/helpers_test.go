package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/racegame/internal/betrecord"
	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/ledger"
	"github.com/attaboy/racegame/internal/provider"
	"github.com/attaboy/racegame/internal/repository/memrepo"
	"github.com/attaboy/racegame/internal/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testAESKey = "0123456789abcdef0123456789abcdef"
	testAESIV  = "abcdef9876543210"
)

var (
	kolkata = time.FixedZone("IST", 5*3600+1800)
	now     = time.Date(2026, 3, 1, 12, 0, 0, 0, kolkata)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOracle struct {
	snap   *domain.ContestSnapshot
	err    error
	before func()
	calls  int
}

func (o *fakeOracle) Snapshot(_ context.Context, _ domain.ContestVariant) (*domain.ContestSnapshot, error) {
	o.calls++
	if o.before != nil {
		o.before()
	}
	return o.snap, o.err
}

type fakePartner struct {
	mu   sync.Mutex
	bets []provider.GlobalBetRequest
	err  error
}

func (p *fakePartner) PlaceBet(_ context.Context, bet provider.GlobalBetRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bets = append(p.bets, bet)
	return p.err
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) {}

type sentMessage struct {
	receiver string
	message  string
}

type recordingSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor string
}

func (s *recordingSender) Send(_ context.Context, receiverID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if receiverID == s.failFor {
		return errRelayDown
	}
	s.sent = append(s.sent, sentMessage{receiverID, message})
	return nil
}

type recordingMessenger struct {
	groups   []string
	messages []string
	err      error
}

func (m *recordingMessenger) SendAdvisorMessage(_ context.Context, groupID, msg string) error {
	m.groups = append(m.groups, groupID)
	m.messages = append(m.messages, msg)
	return m.err
}

var errRelayDown = &domain.AppError{Code: domain.CodeInternal, Message: "relay down"}

type fixture struct {
	store    *memrepo.Store
	codec    *provider.EnvelopeCodec
	oracle   *fakeOracle
	partner  *fakePartner
	async    *AsyncRunner
	engine   *ledger.Engine
	records  *betrecord.Manager
	clock    *infra.Clock
	settings *infra.SettingsStore
	bets     *BetService
	games    *ThirdPartyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memrepo.New()
	store.Now = func() time.Time { return now }
	repos := store.Repos()
	logger := discardLogger()
	clock := infra.NewFixedClock(kolkata, now)
	settings := infra.NewStaticSettings(map[string]string{
		infra.SettingGlobalDomainID: "3",
	}, decimal.Zero)

	codec, err := provider.NewEnvelopeCodec(testAESKey, testAESIV)
	require.NoError(t, err)

	engine := ledger.NewEngine(repos, nil, logger)
	records := betrecord.NewManager(repos, clock, nil, logger)
	reconciler := settlement.NewReconciler(store, engine, records, repos, settings, nopNotifier{}, clock, nil, logger)
	oracle := &fakeOracle{snap: &domain.ContestSnapshot{Status: domain.ContestStatusOpen, ContestID: "c-1"}}
	partner := &fakePartner{}
	async := NewAsyncRunner(4, time.Second, nil, logger)

	store.AddAccount(domain.Account{ID: 7, ProfileID: "P7", Name: "Ravi", Gender: "male", ImageName: "ravi.png", Balances: domain.Balances{Points: 1000}})
	store.AddAccount(domain.Account{ID: 20, ProfileID: "H20", Name: "Meera", Gender: "female", GroupID: "grp-20"})

	return &fixture{
		store:    store,
		codec:    codec,
		oracle:   oracle,
		partner:  partner,
		async:    async,
		engine:   engine,
		records:  records,
		clock:    clock,
		settings: settings,
		bets:     NewBetService(store, codec, engine, records, repos, settings, oracle, partner, async, "https://img.test/", nil, logger),
		games:    NewThirdPartyService(store, engine, records, reconciler, repos, clock, logger),
	}
}

func (f *fixture) envelope(t *testing.T, v any) string {
	t.Helper()
	enc, err := f.codec.Encrypt(v)
	require.NoError(t, err)
	return enc
}
