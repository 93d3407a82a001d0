package memrepo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

func checkViolation(constraint string) error {
	return &pgconn.PgError{Code: "23514", Message: "new row violates check constraint", ConstraintName: constraint}
}

// --- accounts ---

type accounts struct{ s *Store }

func (r *accounts) find(match func(*domain.Account) bool) *domain.Account {
	ids := make([]int64, 0, len(r.s.accounts))
	for id := range r.s.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if a := r.s.accounts[id]; match(a) {
			cp := *a
			return &cp
		}
	}
	return nil
}

func (r *accounts) FindByID(ctx context.Context, db repository.DBTX, id int64) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("accounts.FindByID"); err != nil {
		return nil, err
	}
	return r.find(func(a *domain.Account) bool { return a.ID == id }), nil
}

func (r *accounts) FindByProfileID(ctx context.Context, db repository.DBTX, profileID string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("accounts.FindByProfileID"); err != nil {
		return nil, err
	}
	return r.find(func(a *domain.Account) bool { return a.ProfileID == profileID }), nil
}

func (r *accounts) FindByGroupID(ctx context.Context, db repository.DBTX, groupID string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.find(func(a *domain.Account) bool { return a.GroupID == groupID }), nil
}

func (r *accounts) LockForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error) {
	r.s.lockRow(tx, fmt.Sprintf("users:%d", id))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("accounts.LockForUpdate"); err != nil {
		return nil, err
	}
	return r.find(func(a *domain.Account) bool { return a.ID == id }), nil
}

func (r *accounts) UpdateBalances(ctx context.Context, tx pgx.Tx, id int64, delta domain.BalanceDelta) (*domain.Account, error) {
	r.s.lockRow(tx, fmt.Sprintf("users:%d", id))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("accounts.UpdateBalances"); err != nil {
		return nil, err
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, nil
	}
	if a.Points+delta.Points < 0 {
		return nil, checkViolation("users_points_check")
	}
	prev := a.Balances
	a.Points += delta.Points
	a.RedeemPoint += delta.RedeemPoint
	record(tx, func() { a.Balances = prev })
	cp := *a
	return &cp, nil
}

func (r *accounts) SetRichLevel(ctx context.Context, db repository.DBTX, id int64, level int, mirrorFemale bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("accounts.SetRichLevel"); err != nil {
		return err
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return nil
	}
	a.RichLevel = level
	if mirrorFemale {
		r.s.females[id] = level
	}
	return nil
}

func (r *accounts) FindOpenMicSession(ctx context.Context, db repository.DBTX, callerID int64) (*domain.MicSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.mic[callerID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// --- ledger ---

type ledger struct{ s *Store }

func (r *ledger) Insert(ctx context.Context, db repository.DBTX, params domain.PostLedgerEntryParams, balances domain.Balances) (*domain.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("ledger.Insert"); err != nil {
		return nil, err
	}
	if params.SettlementKey != nil {
		key := *params.SettlementKey
		if r.s.settlementKeys[key] {
			return nil, domain.ErrAlreadyProcessed(key)
		}
		r.s.settlementKeys[key] = true
		record(db, func() { delete(r.s.settlementKeys, key) })
	}
	e := domain.LedgerEntry{
		ID:             r.s.nextID(),
		AccountID:      params.AccountID,
		CounterpartyID: params.CounterpartyID,
		Debit:          params.Debit,
		Credit:         params.Credit,
		PointsAfter:    balances.Points,
		RedeemAfter:    balances.RedeemPoint,
		Status:         params.Status,
		SettlementKey:  params.SettlementKey,
		CreatedAt:      r.s.Now(),
	}
	r.s.entries = append(r.s.entries, e)
	record(db, func() { r.s.entries = removeEntry(r.s.entries, e.ID) })
	return &e, nil
}

func removeEntry(entries []domain.LedgerEntry, id int64) []domain.LedgerEntry {
	for i := range entries {
		if entries[i].ID == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

func (r *ledger) ListByAccount(ctx context.Context, db repository.DBTX, accountID int64) ([]domain.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range r.s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- outbox ---

type outbox struct{ s *Store }

func (r *outbox) Insert(ctx context.Context, db repository.DBTX, draft domain.OutboxDraft) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("outbox.Insert"); err != nil {
		return err
	}
	draft.SeqID = r.s.nextID()
	r.s.events = append(r.s.events, draft)
	record(db, func() {
		for i := len(r.s.events) - 1; i >= 0; i-- {
			if r.s.events[i].SeqID == draft.SeqID {
				r.s.events = append(r.s.events[:i], r.s.events[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *outbox) FetchUnpublished(ctx context.Context, db repository.DBTX, limit int) ([]domain.OutboxDraft, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.OutboxDraft
	for _, e := range r.s.events {
		if _, done := r.s.published[e.SeqID]; done {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outbox) MarkPublished(ctx context.Context, db repository.DBTX, ids []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if _, done := r.s.published[id]; !done {
			r.s.published[id] = r.s.Now()
		}
	}
	return nil
}

func (r *outbox) PurgePublished(ctx context.Context, db repository.DBTX, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.events[:0]
	var purged int64
	for _, e := range r.s.events {
		if at, done := r.s.published[e.SeqID]; done && at.Before(cutoff) {
			delete(r.s.published, e.SeqID)
			purged++
			continue
		}
		kept = append(kept, e)
	}
	r.s.events = kept
	return purged, nil
}

// --- round bets ---

type rounds struct{ s *Store }

func copyRound(b *domain.RoundBet) *domain.RoundBet {
	cp := *b
	cp.Journal = append(domain.Journal(nil), b.Journal...)
	return &cp
}

func (r *rounds) FindLatest(ctx context.Context, db repository.DBTX, key domain.RoundKey, from, to time.Time) (*domain.RoundBet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("roundbets.FindLatest"); err != nil {
		return nil, err
	}
	var best *domain.RoundBet
	for _, b := range r.s.rounds {
		if b.Integration != key.Integration || b.UserID != key.UserID || b.RoundID != key.RoundID || b.GameID != key.GameID {
			continue
		}
		if b.CreatedAt.Before(from) || !b.CreatedAt.Before(to) {
			continue
		}
		if best == nil || b.ID > best.ID {
			best = b
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyRound(best), nil
}

func (r *rounds) Insert(ctx context.Context, db repository.DBTX, bet *domain.RoundBet) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("roundbets.Insert"); err != nil {
		return 0, err
	}
	b := copyRound(bet)
	b.ID = r.s.nextID()
	b.Status = domain.BetOpen
	b.CreatedAt = r.s.Now()
	b.UpdatedAt = b.CreatedAt
	r.s.rounds[b.ID] = b
	record(db, func() { delete(r.s.rounds, b.ID) })
	return b.ID, nil
}

func (r *rounds) update(db repository.DBTX, op string, id int64, apply func(b *domain.RoundBet)) error {
	r.s.lockRow(db, fmt.Sprintf("third_party_bets:%d", id))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(op); err != nil {
		return err
	}
	b, ok := r.s.rounds[id]
	if !ok {
		return nil
	}
	prev := copyRound(b)
	apply(b)
	b.UpdatedAt = r.s.Now()
	record(db, func() { *b = *prev })
	return nil
}

func (r *rounds) AddWager(ctx context.Context, db repository.DBTX, id, amount int64, journal domain.Journal) error {
	return r.update(db, "roundbets.AddWager", id, func(b *domain.RoundBet) {
		b.TotalBet += amount
		b.Journal = append(domain.Journal(nil), journal...)
	})
}

func (r *rounds) Finalize(ctx context.Context, db repository.DBTX, id, won int64, shares domain.Shares, movement domain.Movement) (domain.RoundTotals, error) {
	var t domain.RoundTotals
	err := r.update(db, "roundbets.Finalize", id, func(b *domain.RoundBet) {
		b.TotalWon += won
		b.Tips += shares.Room
		b.SystemShare += shares.System
		b.CompanyWalletShare += shares.Company
		b.Status = domain.BetSettled
		b.Journal = append(append(domain.Journal(nil), b.Journal...), movement)
		t = domain.RoundTotals{TotalBet: b.TotalBet, TotalWon: b.TotalWon, Tips: b.Tips}
	})
	return t, err
}

func (r *rounds) AddTips(ctx context.Context, db repository.DBTX, id, tips int64) (bool, error) {
	var added bool
	err := r.update(db, "roundbets.AddTips", id, func(b *domain.RoundBet) {
		if b.Tips == 0 {
			b.Tips += tips
			added = true
		}
	})
	return added, err
}

// --- contest bets ---

type contests struct{ s *Store }

func (r *contests) UpsertWager(ctx context.Context, db repository.DBTX, variant domain.ContestVariant, w domain.ContestWager) (bool, error) {
	key := contestKey{variant, w.UserID, w.ContestID}
	r.s.lockRow(db, fmt.Sprintf("contest:%s:%d:%s", variant, w.UserID, w.ContestID))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("contestbets.UpsertWager"); err != nil {
		return false, err
	}
	seats := strings.Join(w.PartySeatUsers, ",")
	groups := strings.Join(w.GroupIDs, ",")
	row, ok := r.s.contests[key]
	if !ok {
		r.s.contestSeq++
		r.s.contests[key] = &ContestRow{Bet: domain.ContestBet{
			ID:             r.s.contestSeq,
			UserID:         w.UserID,
			ContestID:      w.ContestID,
			RoomID:         w.RoomID,
			Stakes:         w.Stakes,
			TotalBet:       w.Stakes.Total(),
			PartySeatUsers: seats,
			GroupID:        groups,
			Status:         domain.BetOpen,
		}}
		record(db, func() { delete(r.s.contests, key) })
		return true, nil
	}
	prev := *row
	b := &row.Bet
	b.Stakes.Car1 += w.Stakes.Car1
	b.Stakes.Car2 += w.Stakes.Car2
	b.Stakes.Car3 += w.Stakes.Car3
	b.TotalBet += w.Stakes.Total()
	b.RoomID = w.RoomID
	b.PartySeatUsers = seats
	b.GroupID = groups
	record(db, func() { *row = prev })
	return false, nil
}

func (r *contests) Settle(ctx context.Context, db repository.DBTX, variant domain.ContestVariant, in repository.ContestSettleRow) (int64, error) {
	key := contestKey{variant, in.UserID, in.ContestID}
	r.s.lockRow(db, fmt.Sprintf("contest:%s:%d:%s", variant, in.UserID, in.ContestID))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("contestbets.Settle"); err != nil {
		return 0, err
	}
	row, ok := r.s.contests[key]
	if !ok || row.Bet.Status == domain.BetSettled {
		return 0, nil
	}
	prev := *row
	row.Bet.TotalWon = in.TotalWon
	row.Bet.Tips = in.Tips
	row.Bet.SystemShare = in.SystemShare
	row.Bet.CompanyWalletShare = in.CompanyWalletShare
	row.Bet.Status = domain.BetSettled
	row.Settle = in
	record(db, func() { *row = prev })
	return 1, nil
}

func (r *contests) Find(ctx context.Context, db repository.DBTX, variant domain.ContestVariant, userID int64, contestID string) (*domain.ContestBet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("contestbets.Find"); err != nil {
		return nil, err
	}
	row, ok := r.s.contests[contestKey{variant, userID, contestID}]
	if !ok {
		return nil, nil
	}
	cp := row.Bet
	return &cp, nil
}

func (r *contests) CountContestRecords(ctx context.Context, db repository.DBTX, contestID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("contestbets.CountContestRecords"); err != nil {
		return 0, err
	}
	return r.s.contestRecords[contestID], nil
}

func (r *contests) winners(variant domain.ContestVariant, contestID string) []domain.ContestBet {
	var out []domain.ContestBet
	for k, row := range r.s.contests {
		if k.variant == variant && k.contestID == contestID && row.Bet.TotalWon > 0 {
			out = append(out, row.Bet)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *contests) RoomSummaries(ctx context.Context, db repository.DBTX, variant domain.ContestVariant, contestID string) ([]domain.RoomWinSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byRoom := make(map[string]*domain.RoomWinSummary)
	var order []string
	for _, b := range r.winners(variant, contestID) {
		if b.RoomID == "" {
			continue
		}
		s, ok := byRoom[b.RoomID]
		if !ok {
			s = &domain.RoomWinSummary{RoomID: b.RoomID}
			byRoom[b.RoomID] = s
			order = append(order, b.RoomID)
		}
		s.Winners++
		s.TotalWon += b.TotalWon
		s.TotalTips += b.Tips
		if b.PartySeatUsers > s.PartySeatUsers {
			s.PartySeatUsers = b.PartySeatUsers
		}
	}
	out := make([]domain.RoomWinSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byRoom[id])
	}
	return out, nil
}

func (r *contests) ListWinners(ctx context.Context, db repository.DBTX, variant domain.ContestVariant, contestID string) ([]domain.ContestBet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.winners(variant, contestID), nil
}

// --- stats ---

type stats struct{ s *Store }

func (r *stats) AddEnergy(ctx context.Context, db repository.DBTX, userID, delta int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("stats.AddEnergy"); err != nil {
		return err
	}
	r.s.energy[userID] += delta
	record(db, func() { r.s.energy[userID] -= delta })
	return nil
}

func (r *stats) TotalRecharge(ctx context.Context, db repository.DBTX, userID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.recharge[userID], nil
}

func (r *stats) row(tier repository.DaySpendTier, userID int64) *DaySpend {
	rows, ok := r.s.daySpend[tier]
	if !ok {
		rows = make(map[int64]*DaySpend)
		r.s.daySpend[tier] = rows
	}
	row, ok := rows[userID]
	if !ok {
		row = &DaySpend{}
		rows[userID] = row
	}
	return row
}

func (r *stats) AddDaySpendBet(ctx context.Context, db repository.DBTX, tier repository.DaySpendTier, userID, bet int64, newGame bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("stats.AddDaySpendBet"); err != nil {
		return err
	}
	row := r.row(tier, userID)
	prev := *row
	row.TotalBet += bet
	if newGame {
		row.GameCount++
	}
	record(db, func() { *row = prev })
	return nil
}

func (r *stats) AddDaySpendWin(ctx context.Context, db repository.DBTX, tier repository.DaySpendTier, userID, won, profitFlag int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("stats.AddDaySpendWin"); err != nil {
		return err
	}
	row := r.row(tier, userID)
	prev := *row
	row.TotalWon += won
	row.ProfitCount += profitFlag
	record(db, func() { *row = prev })
	return nil
}

func (r *stats) MarkPlayed(ctx context.Context, db repository.DBTX, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("stats.MarkPlayed"); err != nil {
		return err
	}
	r.s.played[userID] = true
	return nil
}

func (r *stats) AddLuckyGiftWithdrawal(ctx context.Context, db repository.DBTX, userID, amount, redeem int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("stats.AddLuckyGiftWithdrawal"); err != nil {
		return err
	}
	row, ok := r.s.luckyGift[userID]
	if !ok {
		row = &LuckyGift{}
		r.s.luckyGift[userID] = row
	}
	prev := *row
	row.Withdrawal += amount
	row.WithdrawalRedeem += redeem
	record(db, func() { *row = prev })
	return nil
}

func (r *stats) QueueGroupNotification(ctx context.Context, db repository.DBTX, n domain.GroupNotification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("stats.QueueGroupNotification"); err != nil {
		return err
	}
	r.s.notifications = append(r.s.notifications, n)
	count := len(r.s.notifications)
	record(db, func() { r.s.notifications = r.s.notifications[:count-1] })
	return nil
}

// --- company wallet ---

type company struct{ s *Store }

func (r *company) Credit(ctx context.Context, db repository.DBTX, amount int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("company.Credit"); err != nil {
		return err
	}
	r.s.companyBalance += amount
	r.s.companyTotal += amount
	record(db, func() {
		r.s.companyBalance -= amount
		r.s.companyTotal -= amount
	})
	return nil
}

func (r *company) UpsertHistory(ctx context.Context, db repository.DBTX, h repository.CompanyHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("company.UpsertHistory"); err != nil {
		return err
	}
	key := historyKey{h.DomainID, h.GameID, h.Day}
	row, ok := r.s.history[key]
	if !ok {
		cp := h
		r.s.history[key] = &cp
		record(db, func() { delete(r.s.history, key) })
		return nil
	}
	row.Credit += h.Credit
	record(db, func() { row.Credit -= h.Credit })
	return nil
}

func (r *company) DeductPercentage(ctx context.Context, db repository.DBTX) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("company.DeductPercentage"); err != nil {
		return decimal.Zero, err
	}
	return r.s.deduction, nil
}

// --- settings and reference data ---

type settings struct{ s *Store }

func (r *settings) All(ctx context.Context, db repository.DBTX) (map[string]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("settings.All"); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(r.s.settings))
	for k, v := range r.s.settings {
		out[k] = v
	}
	return out, nil
}

func (r *settings) PartyRoomGroup(ctx context.Context, db repository.DBTX, roomID int64) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.partyRooms[roomID], nil
}

type richLevels struct{ s *Store }

func (r *richLevels) Bracket(ctx context.Context, db repository.DBTX, rp int64) (*domain.RichTier, *domain.RichTier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("richlevels.Bracket"); err != nil {
		return nil, nil, err
	}
	var prev, next *domain.RichTier
	for i := range r.s.tiers {
		t := r.s.tiers[i]
		if t.Amount <= rp && (prev == nil || t.Amount > prev.Amount) {
			cp := t
			prev = &cp
		}
		if t.Amount >= rp && (next == nil || t.Amount < next.Amount) {
			cp := t
			next = &cp
		}
	}
	return prev, next, nil
}
