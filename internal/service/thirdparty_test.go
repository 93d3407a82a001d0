package service

import (
	"context"
	"testing"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Player Info Tests ---

func TestPlayerInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("no mic session", func(t *testing.T) {
		f := newFixture(t)
		info, err := f.games.PlayerInfo(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "Ravi", info.Account.Name)
		assert.Equal(t, int64(1000), info.Spendable)
	})

	t.Run("open mic session reduces spendable", func(t *testing.T) {
		f := newFixture(t)
		f.store.SetMicSession(domain.MicSession{UserID: 7, CallRate: 12.5, StartedAt: now.Add(-150 * time.Second)})

		info, err := f.games.PlayerInfo(ctx, 7)
		require.NoError(t, err)
		// 3 started minutes at 12.5 is 37.5, rounded up
		assert.Equal(t, int64(962), info.Spendable)
		assert.Equal(t, int64(1000), info.Account.Points)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.games.PlayerInfo(ctx, 404)
		assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	})
}

// --- Round Bet Tests ---

func TestPlaceRoundBet(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown game", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.games.PlaceRoundBet(ctx, RoundBet{Integration: domain.IntegrationBaishun, UserID: 7, GameID: 99999, Amount: 10})
		assert.Equal(t, "Invalid gameId", rejection(t, err))
	})

	t.Run("insufficient balance", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.games.PlaceRoundBet(ctx, RoundBet{Integration: domain.IntegrationBaishun, UserID: 7, GameID: 1016, RoundID: "r-1", Amount: 1001})
		assert.True(t, domain.IsCode(err, domain.CodeInsufficientBalance))
		assert.Equal(t, int64(1000), f.store.Points(7))
		assert.Empty(t, f.store.RoundBets())
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.games.PlaceRoundBet(ctx, RoundBet{Integration: domain.IntegrationJoy, UserID: 404, GameID: 16, Amount: 10})
		assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	})

	t.Run("debits and journals the movement", func(t *testing.T) {
		f := newFixture(t)
		mv := domain.Movement{OrderID: "o-1", Coin: -250, RoomID: "ZeepliveH20"}

		points, err := f.games.PlaceRoundBet(ctx, RoundBet{
			Integration: domain.IntegrationBaishun,
			UserID:      7,
			GameID:      1016,
			RoundID:     "r-1",
			RoomID:      "ZeepliveH20",
			Amount:      -250,
			Movement:    mv,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(750), points)

		entries := f.store.Entries(7)
		require.Len(t, entries, 1)
		assert.Equal(t, int64(250), entries[0].Debit)
		assert.Equal(t, domain.BaishunGames[1016].Debit, entries[0].Status)

		rounds := f.store.RoundBets()
		require.Len(t, rounds, 1)
		assert.Equal(t, int64(250), rounds[0].TotalBet)
		assert.Equal(t, domain.Journal{mv}, rounds[0].Journal)
		assert.Equal(t, int64(-250), f.store.Energy(7))
	})
}

// --- Round Result Tests ---

func TestSettleRoundResult_Baishun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.games.PlaceRoundBet(ctx, RoundBet{
		Integration: domain.IntegrationBaishun,
		UserID:      7,
		GameID:      1016,
		RoundID:     "r-9",
		RoomID:      "ZeepliveH20",
		Amount:      1000,
		Movement:    domain.Movement{OrderID: "bet-9", Coin: -1000},
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), f.store.Points(7))

	result := settlement.RoundSettlement{
		Integration: domain.IntegrationBaishun,
		UserID:      7,
		GameID:      1016,
		RoundID:     "r-9",
		RoomID:      "ZeepliveH20",
		Reference:   "win-9",
		Coin:        2000,
		Movement:    domain.Movement{OrderID: "win-9", Coin: 2000},
	}

	points, err := f.games.SettleRoundResult(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, int64(1980), points)
	assert.Equal(t, int64(10), f.store.Points(20))

	t.Run("repeat result returns the current balance", func(t *testing.T) {
		again, err := f.games.SettleRoundResult(ctx, result)
		require.NoError(t, err)
		assert.Equal(t, int64(1980), again)
		assert.Equal(t, int64(10), f.store.Points(20))

		var credits int
		for _, e := range f.store.Entries(7) {
			if e.Credit > 0 {
				credits++
			}
		}
		assert.Equal(t, 1, credits)
	})
}
