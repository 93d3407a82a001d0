// Package memrepo is an in-memory, transaction-aware implementation of the
// repository interfaces for unit tests. Row locks are held until the owning
// transaction commits or rolls back, and a rollback undoes every write the
// transaction made, so concurrency and atomicity tests behave as they would
// against PostgreSQL.
package memrepo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrUnsupported is returned by the raw SQL methods, which the fakes never use.
var ErrUnsupported = errors.New("memrepo: raw SQL not supported")

// DaySpend mirrors a cargame_current_day_spend row.
type DaySpend struct {
	TotalBet    int64
	TotalWon    int64
	GameCount   int64
	ProfitCount int64
}

// LuckyGift mirrors a users_luckygiftbots row.
type LuckyGift struct {
	Withdrawal       int64
	WithdrawalRedeem int64
}

// ContestRow is a stored contest bet plus the columns written at settlement.
type ContestRow struct {
	Bet    domain.ContestBet
	Settle repository.ContestSettleRow
}

type contestKey struct {
	variant   domain.ContestVariant
	userID    int64
	contestID string
}

type historyKey struct {
	domainID int
	gameID   int
	day      string
}

// Store holds every table in memory.
type Store struct {
	mu       sync.Mutex
	lockMu   sync.Mutex
	rowLocks map[string]*sync.Mutex

	// Now stamps created_at on round bets.
	Now func() time.Time

	seq            int64
	accounts       map[int64]*domain.Account
	females        map[int64]int
	entries        []domain.LedgerEntry
	settlementKeys map[string]bool
	events         []domain.OutboxDraft
	published      map[int64]time.Time
	rounds         map[int64]*domain.RoundBet
	contests       map[contestKey]*ContestRow
	contestSeq     int64
	contestRecords map[string]int
	energy         map[int64]int64
	recharge       map[int64]int64
	daySpend       map[repository.DaySpendTier]map[int64]*DaySpend
	played         map[int64]bool
	luckyGift      map[int64]*LuckyGift
	notifications  []domain.GroupNotification
	companyBalance int64
	companyTotal   int64
	deduction      decimal.Decimal
	history        map[historyKey]*repository.CompanyHistory
	settings       map[string]string
	partyRooms     map[int64]string
	tiers          []domain.RichTier
	mic            map[int64]*domain.MicSession
	failures       map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		rowLocks:       make(map[string]*sync.Mutex),
		Now:            time.Now,
		accounts:       make(map[int64]*domain.Account),
		females:        make(map[int64]int),
		settlementKeys: make(map[string]bool),
		published:      make(map[int64]time.Time),
		rounds:         make(map[int64]*domain.RoundBet),
		contests:       make(map[contestKey]*ContestRow),
		contestRecords: make(map[string]int),
		energy:         make(map[int64]int64),
		recharge:       make(map[int64]int64),
		daySpend:       make(map[repository.DaySpendTier]map[int64]*DaySpend),
		played:         make(map[int64]bool),
		luckyGift:      make(map[int64]*LuckyGift),
		deduction:      decimal.Zero,
		history:        make(map[historyKey]*repository.CompanyHistory),
		settings:       make(map[string]string),
		partyRooms:     make(map[int64]string),
		mic:            make(map[int64]*domain.MicSession),
		failures:       make(map[string]error),
	}
}

// Repos returns repository implementations backed by the store.
func (s *Store) Repos() repository.Repos {
	return repository.Repos{
		Accounts:      &accounts{s},
		Ledger:        &ledger{s},
		Outbox:        &outbox{s},
		RoundBets:     &rounds{s},
		ContestBets:   &contests{s},
		Stats:         &stats{s},
		CompanyWallet: &company{s},
		Settings:      &settings{s},
		RichLevels:    &richLevels{s},
	}
}

// Fail makes the named operation return err until cleared with a nil err.
// Names are "<repo>.<Method>" (e.g. "stats.AddEnergy") plus "begin" and "commit".
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// failure must be called with s.mu held.
func (s *Store) failure(op string) error {
	return s.failures[op]
}

// Exec, Query and QueryRow let the store stand in for a pool.
func (s *Store) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrUnsupported
}

func (s *Store) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, ErrUnsupported
}

func (s *Store) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return errRow{ErrUnsupported}
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

// Begin opens a transaction.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	s.mu.Lock()
	err := s.failure("begin")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &Tx{store: s, held: make(map[string]*sync.Mutex)}, nil
}

// Tx is a store transaction. Nested Begin calls create savepoints.
type Tx struct {
	pgx.Tx
	store  *Store
	parent *Tx
	held   map[string]*sync.Mutex
	undo   []func()
	closed bool
}

func (t *Tx) root() *Tx {
	r := t
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Begin opens a savepoint.
func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	if t.closed {
		return nil, pgx.ErrTxClosed
	}
	return &Tx{store: t.store, parent: t}, nil
}

// Commit makes the writes permanent (or folds a savepoint into its parent).
func (t *Tx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	if t.parent != nil {
		t.closed = true
		t.parent.undo = append(t.parent.undo, t.undo...)
		return nil
	}
	t.store.mu.Lock()
	err := t.store.failure("commit")
	t.store.mu.Unlock()
	if err != nil {
		_ = t.Rollback(ctx)
		return err
	}
	t.closed = true
	t.release()
	return nil
}

// Rollback reverts every write made in the transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.store.mu.Unlock()
	if t.parent == nil {
		t.release()
	}
	return nil
}

func (t *Tx) release() {
	for key, m := range t.held {
		delete(t.held, key)
		m.Unlock()
	}
}

// lockRow takes a row lock for the life of db's transaction. Outside a
// transaction it waits for the row to be free and returns immediately.
// Must be called without s.mu held.
func (s *Store) lockRow(db repository.DBTX, key string) {
	s.lockMu.Lock()
	m, ok := s.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[key] = m
	}
	s.lockMu.Unlock()

	tx, ok := db.(*Tx)
	if !ok {
		m.Lock()
		m.Unlock() //nolint:staticcheck
		return
	}
	root := tx.root()
	if _, held := root.held[key]; held {
		return
	}
	m.Lock()
	root.held[key] = m
}

// record registers an undo step for db's transaction. Must be called with s.mu held.
func record(db repository.DBTX, undo func()) {
	if tx, ok := db.(*Tx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// --- Seeding ---

// AddAccount inserts or replaces an account.
func (s *Store) AddAccount(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.accounts[a.ID] = &cp
	if !cp.IsMale() {
		s.females[a.ID] = cp.RichLevel
	}
}

// SetMicSession records an open mic join for the caller.
func (s *Store) SetMicSession(m domain.MicSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m
	s.mic[m.UserID] = &cp
}

// SetSetting writes a settings row.
func (s *Store) SetSetting(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
}

// SetDeduction sets company_game_wallets.deduct_percentage.
func (s *Store) SetDeduction(pct decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deduction = pct
}

// SetPartyRoom sets a party room's chat group.
func (s *Store) SetPartyRoom(id int64, groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partyRooms[id] = groupID
}

// AddRichTier appends a rich_levels row.
func (s *Store) AddRichTier(t domain.RichTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers = append(s.tiers, t)
}

// AddContestRecord appends a cargame_contest_record row.
func (s *Store) AddContestRecord(contestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contestRecords[contestID]++
}

// SetRecharge sets user_energies.total_recharge.
func (s *Store) SetRecharge(userID, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recharge[userID] = total
}

// --- Inspection ---

// Account returns a copy of the account.
func (s *Store) Account(id int64) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, false
	}
	return *a, true
}

// Points returns the account's points (0 when absent).
func (s *Store) Points(id int64) int64 {
	a, _ := s.Account(id)
	return a.Points
}

// FemaleRichLevel returns the mirrored rich level of a non-male account.
func (s *Store) FemaleRichLevel(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.females[id]
}

// Entries returns the account's ledger in posting order.
func (s *Store) Entries(accountID int64) []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

// Events returns every outbox event.
func (s *Store) Events() []domain.OutboxDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxDraft(nil), s.events...)
}

// RoundBets returns every round bet ordered by id.
func (s *Store) RoundBets() []domain.RoundBet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoundBet, 0, len(s.rounds))
	for _, b := range s.rounds {
		cp := *b
		cp.Journal = append(domain.Journal(nil), b.Journal...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Contest returns the stored contest row.
func (s *Store) Contest(variant domain.ContestVariant, userID int64, contestID string) (ContestRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.contests[contestKey{variant, userID, contestID}]
	if !ok {
		return ContestRow{}, false
	}
	return *row, true
}

// SeedContestBet stores a contest bet directly.
func (s *Store) SeedContestBet(variant domain.ContestVariant, b domain.ContestBet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contestSeq++
	if b.ID == 0 {
		b.ID = s.contestSeq
	}
	s.contests[contestKey{variant, b.UserID, b.ContestID}] = &ContestRow{Bet: b}
}

// Energy returns user_energies.total_return.
func (s *Store) Energy(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.energy[userID]
}

// DaySpend returns the aggregate row for a tier.
func (s *Store) DaySpend(tier repository.DaySpendTier, userID int64) DaySpend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows, ok := s.daySpend[tier]; ok {
		if r, ok := rows[userID]; ok {
			return *r
		}
	}
	return DaySpend{}
}

// Played reports whether the user is in cargame_played_users.
func (s *Store) Played(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played[userID]
}

// LuckyGift returns the bot withdrawal aggregate.
func (s *Store) LuckyGift(userID int64) LuckyGift {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.luckyGift[userID]; ok {
		return *r
	}
	return LuckyGift{}
}

// GroupNotifications returns queued large-win broadcasts.
func (s *Store) GroupNotifications() []domain.GroupNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.GroupNotification(nil), s.notifications...)
}

// CompanyWallet returns balance and total_credit.
func (s *Store) CompanyWallet() (balance, totalCredit int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.companyBalance, s.companyTotal
}

// CompanyHistory returns the history rows.
func (s *Store) CompanyHistory() []repository.CompanyHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.CompanyHistory, 0, len(s.history))
	for _, h := range s.history {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}
