//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/attaboy/racegame/internal/auth"
	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Admin Tests ───────────────────────────────────────────────────────────

func TestAdmin_AuditAfterBetAndWin(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Upstream.OpenContest("global", "G-20")
	userID := env.CreateAccount("4001", 1000, domain.LoginNormal)
	require.True(t, env.PlaceBet(domain.ContestGlobal, betPayload(userID, "G-20", 250, 0)).Status)
	resp := env.PostWebhook("/api/cargame/handle-webhook-winner", "evt-20", testutil.WinnerPayload(userID, "G-20", 250, 500))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.AuthGET(fmt.Sprintf("/admin/accounts/%d/audit", userID), env.OpsToken(auth.RoleViewer))
	var audit struct {
		EntryCount int  `json:"entry_count"`
		AllPassed  bool `json:"all_passed"`
		Final      struct {
			Points int64 `json:"points"`
		} `json:"final_balances"`
	}
	testutil.AssertStatus(t, resp, http.StatusOK)
	testutil.DecodeJSON(t, resp, &audit)

	assert.Equal(t, 2, audit.EntryCount)
	assert.True(t, audit.AllPassed)
	assert.Equal(t, int64(1250), audit.Final.Points)
}

func TestAdmin_RequiresToken(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.GET("/admin/accounts/1/audit")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdmin_SettingsRefreshNeedsOperator(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.AuthPOST("/admin/settings/refresh", env.OpsToken(auth.RoleViewer))
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.AuthPOST("/admin/settings/refresh", env.OpsToken(auth.RoleOperator))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth_Database(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.GET("/health/db")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
