package betrecord

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/repository/memrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kolkata = time.FixedZone("IST", 5*3600+1800)

func newTestManager(t *testing.T, now time.Time) (*Manager, *memrepo.Store) {
	t.Helper()
	store := memrepo.New()
	store.Now = func() time.Time { return now }
	clock := infra.NewFixedClock(kolkata, now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(store.Repos(), clock, nil, logger), store
}

func baishunWager(orderID string, coin int64) WagerParams {
	return WagerParams{
		Integration: domain.IntegrationBaishun,
		UserID:      7,
		RoundID:     "r-1",
		GameID:      1016,
		RoomID:      "Zeeplive42",
		Amount:      coin,
		Movement:    domain.Movement{OrderID: orderID, Coin: coin, DiffMsg: "bet", RoomID: "Zeeplive42"},
	}
}

// --- AppendWager Tests ---

func TestAppendWager(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, kolkata)

	t.Run("creates then accumulates", func(t *testing.T) {
		m, store := newTestManager(t, now)

		ref, err := m.AppendWager(ctx, store, baishunWager("o-1", 100))
		require.NoError(t, err)
		assert.True(t, ref.Created)

		ref2, err := m.AppendWager(ctx, store, baishunWager("o-2", 50))
		require.NoError(t, err)
		assert.False(t, ref2.Created)
		assert.Equal(t, ref.ID, ref2.ID)
		assert.Equal(t, int64(150), ref2.TotalBet)

		bets := store.RoundBets()
		require.Len(t, bets, 1)
		assert.Equal(t, int64(150), bets[0].TotalBet)
		require.Len(t, bets[0].Journal, 2)
		assert.Equal(t, "o-1", bets[0].Journal[0].OrderID)
		assert.Equal(t, "o-2", bets[0].Journal[1].OrderID)
		assert.Equal(t, domain.BetOpen, bets[0].Status)
	})

	t.Run("different game is a different round", func(t *testing.T) {
		m, store := newTestManager(t, now)
		_, err := m.AppendWager(ctx, store, baishunWager("o-1", 100))
		require.NoError(t, err)

		other := baishunWager("o-2", 50)
		other.GameID = 1017
		ref, err := m.AppendWager(ctx, store, other)
		require.NoError(t, err)
		assert.True(t, ref.Created)
		assert.Len(t, store.RoundBets(), 2)
	})

	t.Run("next local day starts a new record", func(t *testing.T) {
		late := time.Date(2026, 3, 1, 23, 50, 0, 0, kolkata)
		m, store := newTestManager(t, late)
		_, err := m.AppendWager(ctx, store, baishunWager("o-1", 100))
		require.NoError(t, err)

		next := baishunWager("o-2", 50)
		next.At = late.Add(20 * time.Minute)
		ref, err := m.AppendWager(ctx, store, next)
		require.NoError(t, err)
		assert.True(t, ref.Created)
	})

	t.Run("append to settled round is allowed", func(t *testing.T) {
		m, store := newTestManager(t, now)
		_, err := m.AppendWager(ctx, store, baishunWager("o-1", 100))
		require.NoError(t, err)

		bet, err := m.FindRound(ctx, store, baishunWager("", 0).key(), time.Time{})
		require.NoError(t, err)
		require.NoError(t, m.FinalizeRound(ctx, store, bet, Finalization{
			Won:      400,
			Movement: domain.Movement{OrderID: "o-3", Coin: 400, DiffMsg: "result", RoomID: "Zeeplive42"},
		}))

		ref, err := m.AppendWager(ctx, store, baishunWager("o-4", 20))
		require.NoError(t, err)
		assert.False(t, ref.Created)
		assert.Equal(t, int64(120), store.RoundBets()[0].TotalBet)
		assert.Equal(t, domain.BetSettled, store.RoundBets()[0].Status)
	})
}

// --- FinalizeRound Tests ---

func TestFinalizeRound(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, kolkata)
	m, store := newTestManager(t, now)

	_, err := m.AppendWager(ctx, store, baishunWager("o-1", 100))
	require.NoError(t, err)
	_, err = m.AppendWager(ctx, store, baishunWager("o-2", 50))
	require.NoError(t, err)

	bet, err := m.FindRound(ctx, store, baishunWager("", 0).key(), now)
	require.NoError(t, err)
	require.NotNil(t, bet)

	err = m.FinalizeRound(ctx, store, bet, Finalization{
		Won:      380,
		Shares:   domain.Shares{Room: 10, System: 10},
		Movement: domain.Movement{OrderID: "o-3", Coin: 400, DiffMsg: "result", RoomID: "Zeeplive42"},
	})
	require.NoError(t, err)

	stored := store.RoundBets()[0]
	assert.Equal(t, domain.BetSettled, stored.Status)
	assert.Equal(t, int64(380), stored.TotalWon)
	assert.Equal(t, int64(10), stored.Tips)
	assert.Equal(t, int64(10), stored.SystemShare)

	raw, err := json.Marshal(stored.Journal)
	require.NoError(t, err)
	back, err := domain.ParseJournal(raw)
	require.NoError(t, err)
	require.Len(t, back, 3)
	assert.Equal(t, []string{"o-1", "o-2", "o-3"}, []string{back[0].OrderID, back[1].OrderID, back[2].OrderID})

	t.Run("results from a stale read accumulate", func(t *testing.T) {
		stale, err := m.FindRound(ctx, store, baishunWager("", 0).key(), now)
		require.NoError(t, err)
		other := *stale

		require.NoError(t, m.FinalizeRound(ctx, store, stale, Finalization{
			Won:      50,
			Movement: domain.Movement{OrderID: "o-4", Coin: 50, DiffMsg: "result"},
		}))
		require.NoError(t, m.FinalizeRound(ctx, store, &other, Finalization{
			Won:      70,
			Movement: domain.Movement{OrderID: "o-5", Coin: 70, DiffMsg: "result"},
		}))

		stored := store.RoundBets()[0]
		assert.Equal(t, int64(380+50+70), stored.TotalWon)
		assert.Equal(t, stored.TotalWon, other.TotalWon)
		assert.Len(t, stored.Journal, 5)
	})
}

// --- AddTips Tests ---

func TestAddTips(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, kolkata)
	m, store := newTestManager(t, now)

	w := baishunWager("", 100)
	w.Integration = domain.IntegrationJoy
	w.GameID = 14
	w.Movement = domain.Movement{TransactionID: "t-1", Coin: 100, Type: 1}
	_, err := m.AppendWager(ctx, store, w)
	require.NoError(t, err)

	bet, err := m.FindRound(ctx, store, w.key(), now)
	require.NoError(t, err)
	added, err := m.AddTips(ctx, store, bet, 9)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, int64(9), bet.Tips)
	assert.Equal(t, int64(9), store.RoundBets()[0].Tips)

	added, err = m.AddTips(ctx, store, bet, 4)
	require.NoError(t, err)
	assert.False(t, added, "a round is tipped once")
	assert.Equal(t, int64(9), store.RoundBets()[0].Tips)
}

// --- PlaceContestWager Tests ---

func TestPlaceContestWager(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, time.Now())

	w := domain.ContestWager{
		UserID:         7,
		ContestID:      "c-1",
		RoomID:         "42",
		Stakes:         domain.CarStakes{Car1: 100, Car3: 200},
		PartySeatUsers: []string{"11", "12"},
		GroupIDs:       []string{"g1"},
	}
	inserted, err := m.PlaceContestWager(ctx, store, domain.ContestMain, w)
	require.NoError(t, err)
	assert.True(t, inserted)

	w.Stakes = domain.CarStakes{Car2: 50}
	inserted, err = m.PlaceContestWager(ctx, store, domain.ContestMain, w)
	require.NoError(t, err)
	assert.False(t, inserted)

	row, ok := store.Contest(domain.ContestMain, 7, "c-1")
	require.True(t, ok)
	assert.Equal(t, domain.CarStakes{Car1: 100, Car2: 50, Car3: 200}, row.Bet.Stakes)
	assert.Equal(t, int64(350), row.Bet.TotalBet)
	assert.Equal(t, "11,12", row.Bet.PartySeatUsers)

	_, ok = store.Contest(domain.ContestGlobal, 7, "c-1")
	assert.False(t, ok)
}

func TestContestRecordCount(t *testing.T) {
	m, store := newTestManager(t, time.Now())
	store.AddContestRecord("c-1")
	store.AddContestRecord("c-1")

	n, err := m.ContestRecordCount(context.Background(), store, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
