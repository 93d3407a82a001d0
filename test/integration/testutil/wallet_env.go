//go:build integration

package testutil

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FakeUpstream stands in for the contest oracle, the global tournament
// partner, the chat notifier and the IM REST API.
type FakeUpstream struct {
	server *httptest.Server

	mu            sync.Mutex
	contests      map[string]string
	partnerReject string
	notifications []map[string]any
	partnerBets   []map[string]any
}

// NewFakeUpstream starts the fake with no open contests.
func NewFakeUpstream() *FakeUpstream {
	f := &FakeUpstream{contests: map[string]string{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// URL is the base URL of the fake.
func (f *FakeUpstream) URL() string { return f.server.URL }

// Close stops the fake.
func (f *FakeUpstream) Close() { f.server.Close() }

// OpenContest makes the oracle report contestID as open for variant ("main" or "global").
func (f *FakeUpstream) OpenContest(variant, contestID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contests[variant] = contestID
}

// RejectPartnerBets makes the partner refuse bets with message.
func (f *FakeUpstream) RejectPartnerBets(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partnerReject = message
}

// PartnerBets returns the bodies the partner received.
func (f *FakeUpstream) PartnerBets() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.partnerBets...)
}

// Notifications returns the bodies the notifier received.
func (f *FakeUpstream) Notifications() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.notifications...)
}

func (f *FakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(r.URL.Path, "/main-contest.json"):
		variant := strings.Trim(strings.TrimSuffix(r.URL.Path, "/main-contest.json"), "/")
		id, ok := f.contests[variant]
		status := "closed"
		if ok {
			status = "open"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "contestid": id})
	case r.URL.Path == "/partner":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.partnerReject != "" {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": false, "message": f.partnerReject})
			return
		}
		f.partnerBets = append(f.partnerBets, body)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": true, "message": "ok"})
	case r.URL.Path == "/notify":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.notifications = append(f.notifications, body)
		_, _ = w.Write([]byte(`{"status":true}`))
	default:
		_, _ = w.Write([]byte(`{"ActionStatus":"OK","ErrorCode":0}`))
	}
}

// BaishunBody returns a signed Baishun callback body for userID with the
// given extra fields.
func BaishunBody(userID int64, extra map[string]any) map[string]any {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := "nonce-" + ts
	sum := md5.Sum([]byte(nonce + TestAppKey + ts))
	body := map[string]any{
		"app_id":          "5001",
		"user_id":         userID,
		"ss_token":        "integration-token",
		"game_id":         1016,
		"game_round_id":   "round-1",
		"room_id":         "",
		"signature_nonce": nonce,
		"timestamp":       ts,
		"signature":       hex.EncodeToString(sum[:]),
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

// WalletPOST posts a JSON body to the wallet server.
func (env *TestEnv) WalletPOST(path string, body any) *http.Response {
	env.t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		env.t.Fatalf("WalletPOST %s: encode: %v", path, err)
	}
	resp, err := http.Post(env.Wallet.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		env.t.Fatalf("WalletPOST %s: %v", path, err)
	}
	return resp
}
