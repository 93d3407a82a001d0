//go:build integration

package integration

import (
	"testing"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func betPayload(userID int64, contestID string, car1, car2 int64) map[string]any {
	return map[string]any{
		"user_id":    userID,
		"room_id":    "",
		"contest_id": contestID,
		"car1":       car1,
		"car2":       car2,
		"car3":       0,
	}
}

// ─── Contest Bet Tests ─────────────────────────────────────────────────────

func TestBet_MainDebitsAndRecords(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Upstream.OpenContest("main", "C-100")
	userID := env.CreateAccount("1001", 1000, domain.LoginNormal)

	reply := env.PlaceBet(domain.ContestMain, betPayload(userID, "C-100", 100, 50))

	require.True(t, reply.Status, reply.Message)
	require.NotNil(t, reply.NewPoints)
	assert.Equal(t, int64(850), *reply.NewPoints)
	testutil.AssertPoints(t, env, userID, 850, 0)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, env, userID))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, userID, string(domain.EventContestBetPlaced)))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, userID, string(domain.EventLedgerEntryPosted)))
}

func TestBet_RepeatWagersFoldIntoOneRow(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Upstream.OpenContest("main", "C-101")
	userID := env.CreateAccount("1002", 1000, domain.LoginNormal)

	require.True(t, env.PlaceBet(domain.ContestMain, betPayload(userID, "C-101", 100, 0)).Status)
	require.True(t, env.PlaceBet(domain.ContestMain, betPayload(userID, "C-101", 0, 200)).Status)

	bet, err := env.Services.Repos.ContestBets.Find(t.Context(), env.Pool, domain.ContestMain, userID, "C-101")
	require.NoError(t, err)
	require.NotNil(t, bet)
	assert.Equal(t, int64(300), bet.TotalBet)
	testutil.AssertPoints(t, env, userID, 700, 0)
}

func TestBet_Rejections(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Upstream.OpenContest("main", "C-102")
	userID := env.CreateAccount("1003", 100, domain.LoginNormal)

	tests := []struct {
		name    string
		payload map[string]any
		wantMsg string
	}{
		{"balance below stake", betPayload(userID, "C-102", 500, 0), "Balance too low 1"},
		{"contest not running", betPayload(userID, "C-999", 10, 0), "No More bet"},
		{"unknown user", betPayload(999999, "C-102", 10, 0), "Invalid User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := env.PlaceBet(domain.ContestMain, tt.payload)
			assert.False(t, reply.Status)
			assert.Contains(t, reply.Message, tt.wantMsg)
		})
	}

	testutil.AssertPoints(t, env, userID, 100, 0)
	assert.Zero(t, testutil.CountLedgerEntries(t, env, userID))
}

func TestBet_GlobalRegistersWithPartner(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Upstream.OpenContest("global", "G-1")
	userID := env.CreateAccount("1004", 1000, domain.LoginNormal)

	reply := env.PlaceBet(domain.ContestGlobal, betPayload(userID, "G-1", 300, 0))

	require.True(t, reply.Status, reply.Message)
	testutil.AssertPoints(t, env, userID, 700, 0)
	bets := env.Upstream.PartnerBets()
	require.Len(t, bets, 1)
	assert.Equal(t, "G-1", bets[0]["contest_id"])
}

func TestBet_GlobalPartnerRejectionLeavesBalance(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Upstream.OpenContest("global", "G-2")
	env.Upstream.RejectPartnerBets("Tournament closed")
	userID := env.CreateAccount("1005", 1000, domain.LoginNormal)

	reply := env.PlaceBet(domain.ContestGlobal, betPayload(userID, "G-2", 300, 0))

	assert.False(t, reply.Status)
	assert.Equal(t, "Tournament closed", reply.Message)
	testutil.AssertPoints(t, env, userID, 1000, 0)
}
