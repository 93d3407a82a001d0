//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/attaboy/racegame/internal/auth"
	"github.com/attaboy/racegame/internal/domain"
)

// CreateAccount inserts a user with the given balance and returns its id.
func (env *TestEnv) CreateAccount(profileID string, points int64, loginType domain.LoginType) int64 {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id int64
	err := env.Pool.QueryRow(ctx, `
		INSERT INTO users (profile_id, name, login_type, points)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, profileID, "player-"+profileID, string(loginType), points).Scan(&id)
	if err != nil {
		env.t.Fatalf("CreateAccount: %v", err)
	}
	return id
}

// SetGroup gives an account a chat group so it receives host notifications.
func (env *TestEnv) SetGroup(accountID int64, groupID string) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := env.Pool.Exec(ctx, `UPDATE users SET group_id = $1 WHERE id = $2`, groupID, accountID); err != nil {
		env.t.Fatalf("SetGroup: %v", err)
	}
}

// GET performs an unauthenticated GET request against the game API.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer " + token})
}

// AuthPOST performs an authenticated POST request without a body.
func (env *TestEnv) AuthPOST(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, nil, map[string]string{"Authorization": "Bearer " + token})
}

// RawPOST posts body unchanged with the given headers.
func (env *TestEnv) RawPOST(path string, body []byte, headers map[string]string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, headers)
}

func (env *TestEnv) do(method, path string, body []byte, headers map[string]string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(method, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// OpsToken returns an operator-realm token with role.
func (env *TestEnv) OpsToken(role string) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmOps, "ops-integration", role)
	if err != nil {
		env.t.Fatalf("OpsToken: %v", err)
	}
	return token
}

// BetReply is the client-facing bet answer.
type BetReply struct {
	Status    bool   `json:"status"`
	Message   string `json:"message"`
	NewPoints *int64 `json:"new_points"`
}

// PlaceBet encrypts payload and posts it to the variant's bet endpoint.
func (env *TestEnv) PlaceBet(variant domain.ContestVariant, payload map[string]any) BetReply {
	env.t.Helper()
	encrypted, err := env.Codec.Encrypt(payload)
	if err != nil {
		env.t.Fatalf("PlaceBet: encrypt: %v", err)
	}
	path := "/api/cargame/bet"
	if variant == domain.ContestGlobal {
		path = "/api/cargame/bet-global"
	}
	form := url.Values{"encryptedData": {encrypted}}
	resp := env.do(http.MethodPost, path, []byte(form.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})

	var reply BetReply
	AssertStatus(env.t, resp, http.StatusOK)
	DecodeJSON(env.t, resp, &reply)
	return reply
}

// PostWebhook signs body the way the contest engine does and posts it.
func (env *TestEnv) PostWebhook(path, eventID string, body any) *http.Response {
	env.t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		env.t.Fatalf("PostWebhook: encode: %v", err)
	}
	domainID := "3"
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return env.do(http.MethodPost, path, raw, map[string]string{
		"Content-Type": "application/json",
		"X-Event-Id":   eventID,
		"X-Domain-Id":  domainID,
		"X-Timestamp":  ts,
		"X-Signature":  env.Signer.Sign(domainID, eventID, ts, raw),
	})
}

// WinnerPayload builds a winner callback for a contest bet.
func WinnerPayload(userID int64, contestID string, totalBet, totalWon int64) map[string]any {
	return map[string]any{
		"bet_id":         fmt.Sprint(userID),
		"user_id":        userID,
		"contest_id":     contestID,
		"room_id":        "",
		"winning_column": "car1",
		"winning_car":    "Red",
		"bet":            map[string]any{"total_bet": totalBet, "car1": totalBet},
		"payout": map[string]any{
			"total_won": totalWon,
			"profit":    totalWon - totalBet,
		},
	}
}
