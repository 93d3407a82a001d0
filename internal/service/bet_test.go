package service

import (
	"context"
	"errors"
	"testing"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/repository"
	"github.com/attaboy/racegame/internal/repository/memrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func betBody(overrides map[string]any) map[string]any {
	body := map[string]any{
		"user_id":          7,
		"contest_id":       "c-1",
		"room_id":          "H20",
		"car1":             "200",
		"car2":             100,
		"car3":             0,
		"party_seat_users": " S21, ,H20,S22,S21",
		"group_id":         "grp-20, grp-30,grp-20",
	}
	for k, v := range overrides {
		if v == nil {
			delete(body, k)
			continue
		}
		body[k] = v
	}
	return body
}

func rejection(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.Message
}

// --- Bet Placement Tests ---

func TestPlaceBet_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.bets.PlaceBet(ctx, domain.ContestMain, f.envelope(t, betBody(nil)))
	require.NoError(t, err)
	assert.Equal(t, int64(700), res.NewPoints)
	assert.Equal(t, int64(700), f.store.Points(7))

	entries := f.store.Entries(7)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(300), entries[0].Debit)
	assert.Equal(t, domain.StatusCarBetPlaced, entries[0].Status)
	assert.Equal(t, int64(700), entries[0].PointsAfter)

	row, ok := f.store.Contest(domain.ContestMain, 7, "c-1")
	require.True(t, ok)
	assert.Equal(t, domain.CarStakes{Car1: 200, Car2: 100}, row.Bet.Stakes)
	assert.Equal(t, int64(300), row.Bet.TotalBet)
	assert.Equal(t, "S21,S22", row.Bet.PartySeatUsers)
	assert.Equal(t, "grp-20,grp-30", row.Bet.GroupID)
	assert.Equal(t, domain.BetOpen, row.Bet.Status)

	var placed int
	for _, e := range f.store.Events() {
		if e.EventType == domain.EventContestBetPlaced {
			placed++
		}
	}
	assert.Equal(t, 1, placed)

	f.async.Wait()
	assert.Equal(t, memrepo.DaySpend{TotalBet: 300, GameCount: 1}, f.store.DaySpend(repository.DaySpendDaily, 7))
	assert.Equal(t, memrepo.DaySpend{TotalBet: 300, GameCount: 1}, f.store.DaySpend(repository.DaySpendStandard, 7))
	assert.Equal(t, memrepo.DaySpend{TotalBet: 300, GameCount: 1}, f.store.DaySpend(repository.DaySpendPro, 7))
	assert.Equal(t, int64(-300), f.store.Energy(7))
	assert.True(t, f.store.Played(7))

	t.Run("second wager folds into the same row", func(t *testing.T) {
		res, err := f.bets.PlaceBet(ctx, domain.ContestMain, f.envelope(t, betBody(map[string]any{"car1": 0, "car2": 0, "car3": 50})))
		require.NoError(t, err)
		assert.Equal(t, int64(650), res.NewPoints)

		row, _ := f.store.Contest(domain.ContestMain, 7, "c-1")
		assert.Equal(t, domain.CarStakes{Car1: 200, Car2: 100, Car3: 50}, row.Bet.Stakes)
		assert.Equal(t, int64(350), row.Bet.TotalBet)

		f.async.Wait()
		assert.Equal(t, memrepo.DaySpend{TotalBet: 350, GameCount: 1}, f.store.DaySpend(repository.DaySpendDaily, 7))
	})
}

func TestPlaceBet_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		payload func(f *fixture, t *testing.T) string
		want    string
	}{
		{
			name:    "missing envelope",
			payload: func(*fixture, *testing.T) string { return "  " },
			want:    MsgEncryptedRequired,
		},
		{
			name:    "undecryptable envelope",
			payload: func(*fixture, *testing.T) string { return "bm90LWEtY2lwaGVydGV4dA==" },
			want:    MsgInvalidRequest,
		},
		{
			name:    "empty object",
			payload: func(f *fixture, t *testing.T) string { return f.envelope(t, map[string]any{}) },
			want:    MsgInvalidRequest,
		},
		{
			name:    "no user",
			payload: func(f *fixture, t *testing.T) string { return f.envelope(t, betBody(map[string]any{"user_id": nil})) },
			want:    MsgFillAllFields,
		},
		{
			name:    "no contest",
			payload: func(f *fixture, t *testing.T) string { return f.envelope(t, betBody(map[string]any{"contest_id": ""})) },
			want:    MsgFillAllFields,
		},
		{
			name: "no positive car",
			payload: func(f *fixture, t *testing.T) string {
				return f.envelope(t, betBody(map[string]any{"car1": 0, "car2": "0", "car3": -5}))
			},
			want: MsgFillAllFields,
		},
		{
			name: "negative car",
			payload: func(f *fixture, t *testing.T) string {
				return f.envelope(t, betBody(map[string]any{"car2": -50}))
			},
			want: MsgNegativeBet,
		},
		{
			name: "contest already recorded twice",
			setup: func(f *fixture) {
				f.store.AddContestRecord("c-1")
				f.store.AddContestRecord("c-1")
			},
			payload: func(f *fixture, t *testing.T) string { return f.envelope(t, betBody(nil)) },
			want:    MsgInvalidContest,
		},
		{
			name:    "unknown user",
			payload: func(f *fixture, t *testing.T) string { return f.envelope(t, betBody(map[string]any{"user_id": 999})) },
			want:    MsgInvalidUser,
		},
		{
			name: "balance pre-check",
			payload: func(f *fixture, t *testing.T) string {
				return f.envelope(t, betBody(map[string]any{"car1": 1000, "car2": 1}))
			},
			want: MsgBalanceTooLowPre,
		},
		{
			name:    "contest closed",
			setup:   func(f *fixture) { f.oracle.snap.Status = "closed" },
			payload: func(f *fixture, t *testing.T) string { return f.envelope(t, betBody(nil)) },
			want:    MsgNoMoreBet,
		},
		{
			name:    "contest id mismatch",
			setup:   func(f *fixture) { f.oracle.snap.ContestID = "c-2" },
			payload: func(f *fixture, t *testing.T) string { return f.envelope(t, betBody(nil)) },
			want:    MsgNoMoreBet,
		},
		{
			name:    "oracle unavailable",
			setup:   func(f *fixture) { f.oracle.snap, f.oracle.err = nil, errors.New("timeout") },
			payload: func(f *fixture, t *testing.T) string { return f.envelope(t, betBody(nil)) },
			want:    MsgNoMoreBet,
		},
		{
			name: "balance drained before the lock",
			setup: func(f *fixture) {
				f.oracle.before = func() {
					a, _ := f.store.Account(7)
					a.Points = 100
					f.store.AddAccount(a)
				}
			},
			payload: func(f *fixture, t *testing.T) string { return f.envelope(t, betBody(nil)) },
			want:    "Balance too low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			before := f.store.Points(7)

			_, err := f.bets.PlaceBet(context.Background(), domain.ContestMain, tt.payload(f, t))
			assert.Equal(t, tt.want, rejection(t, err))

			assert.Equal(t, before, f.store.Points(7))
			assert.Empty(t, f.store.Entries(7))
			_, ok := f.store.Contest(domain.ContestMain, 7, "c-1")
			assert.False(t, ok)
		})
	}
}

func TestPlaceBet_BotSkipsStats(t *testing.T) {
	f := newFixture(t)
	f.store.AddAccount(domain.Account{ID: 9, ProfileID: "B9", LoginType: domain.LoginCarGameBot, Balances: domain.Balances{Points: 500}})

	res, err := f.bets.PlaceBet(context.Background(), domain.ContestMain, f.envelope(t, betBody(map[string]any{"user_id": "9"})))
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.NewPoints)

	f.async.Wait()
	assert.Equal(t, memrepo.DaySpend{}, f.store.DaySpend(repository.DaySpendDaily, 9))
	assert.Zero(t, f.store.Energy(9))
	assert.False(t, f.store.Played(9))
}

func TestPlaceBet_StoreFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.Fail("contestbets.UpsertWager", errors.New("disk full"))

	_, err := f.bets.PlaceBet(context.Background(), domain.ContestMain, f.envelope(t, betBody(nil)))
	require.Error(t, err)
	_, isApp := domain.AsAppError(err)
	assert.False(t, isApp)
	assert.Equal(t, int64(1000), f.store.Points(7))
	assert.Empty(t, f.store.Entries(7))
}

// --- Global Bet Tests ---

func TestPlaceBet_GlobalForwardsToPartner(t *testing.T) {
	f := newFixture(t)
	f.store.SetRecharge(7, 4200)

	res, err := f.bets.PlaceBet(context.Background(), domain.ContestGlobal, f.envelope(t, betBody(nil)))
	require.NoError(t, err)
	assert.Equal(t, int64(700), res.NewPoints)

	require.Len(t, f.partner.bets, 1)
	bet := f.partner.bets[0]
	assert.Equal(t, "c-1", bet.ContestID)
	assert.Equal(t, "H20", bet.RoomID)
	assert.Equal(t, "7", bet.UserID)
	assert.Equal(t, 3, bet.DomainID)
	assert.Equal(t, "grp-20,grp-30", bet.GroupID)
	assert.Equal(t, "S21,S22", bet.PartySeatUsers)
	assert.Equal(t, int64(200), bet.Car1)
	assert.Equal(t, int64(100), bet.Car2)
	assert.Equal(t, int64(1000), bet.BalPoints)
	assert.Equal(t, "P7", bet.ProfileID)
	assert.Equal(t, "Ravi", bet.Name)
	assert.Equal(t, "https://img.test/ravi.png", bet.Image)
	assert.Equal(t, int64(4200), bet.TotalRecharge)

	_, ok := f.store.Contest(domain.ContestGlobal, 7, "c-1")
	assert.True(t, ok)
	_, ok = f.store.Contest(domain.ContestMain, 7, "c-1")
	assert.False(t, ok)
}

func TestPlaceBet_GlobalPartnerRejects(t *testing.T) {
	t.Run("partner message reaches the client", func(t *testing.T) {
		f := newFixture(t)
		f.partner.err = domain.ErrValidation("Contest full")

		_, err := f.bets.PlaceBet(context.Background(), domain.ContestGlobal, f.envelope(t, betBody(nil)))
		assert.Equal(t, "Contest full", rejection(t, err))
		assert.Equal(t, int64(1000), f.store.Points(7))
		assert.Empty(t, f.store.Entries(7))
	})

	t.Run("transport failure is an internal error", func(t *testing.T) {
		f := newFixture(t)
		f.partner.err = domain.ErrUpstreamUnavailable("global partner", errors.New("refused"))

		_, err := f.bets.PlaceBet(context.Background(), domain.ContestGlobal, f.envelope(t, betBody(nil)))
		require.Error(t, err)
		assert.True(t, domain.IsCode(err, domain.CodeUpstreamUnavailable))
		assert.Equal(t, int64(1000), f.store.Points(7))
	})

	t.Run("contest record count only guards the main contest", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddContestRecord("c-1")
		f.store.AddContestRecord("c-1")

		_, err := f.bets.PlaceBet(context.Background(), domain.ContestGlobal, f.envelope(t, betBody(nil)))
		require.NoError(t, err)
	})
}
