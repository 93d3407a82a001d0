package provider

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newTestOutbound() *Outbound {
	return NewOutbound(2*time.Second, guard.NewCircuitBreaker(2, time.Minute), nil)
}

// --- Outbound Tests ---

func TestOutbound_OpensAfterServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	out := newTestOutbound()
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := out.Do(req, TargetOracle)
		require.NoError(t, err)
		resp.Body.Close()
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := out.Do(req, TargetOracle)
	assert.True(t, domain.IsCode(err, domain.CodeUpstreamUnavailable))
	assert.Equal(t, 2, calls, "open circuit short-circuits the call")
}

func TestOutbound_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := newTestOutbound().Do(req, TargetNotifier)
	assert.True(t, domain.IsCode(err, domain.CodeUpstreamUnavailable))
}

// --- ContestOracle Tests ---

func TestContestOracle_Snapshot(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.URL.Query().Get("auth")
		fmt.Fprint(w, `{"status":"open","contestid":12345}`)
	}))
	defer srv.Close()

	oracle := NewContestOracle(newTestOutbound(), srv.URL+"/", srv.URL, "tok")
	snap, err := oracle.Snapshot(context.Background(), domain.ContestMain)
	require.NoError(t, err)

	assert.Equal(t, "/main-contest.json", gotPath)
	assert.Equal(t, "tok", gotAuth)
	assert.Equal(t, "open", snap.Status)
	assert.Equal(t, "12345", snap.ContestID, "numeric contest ids become strings")
	assert.True(t, snap.Accepts("12345"))
}

func TestContestOracle_SelectsDatabase(t *testing.T) {
	mainSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"open","contestid":"M1"}`)
	}))
	defer mainSrv.Close()
	globalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"closed","contestid":"G1"}`)
	}))
	defer globalSrv.Close()

	oracle := NewContestOracle(newTestOutbound(), mainSrv.URL, globalSrv.URL, "")

	snap, err := oracle.Snapshot(context.Background(), domain.ContestGlobal)
	require.NoError(t, err)
	assert.Equal(t, "G1", snap.ContestID)
	assert.False(t, snap.Accepts("G1"))

	snap, err = oracle.Snapshot(context.Background(), domain.ContestMain)
	require.NoError(t, err)
	assert.Equal(t, "M1", snap.ContestID)
}

func TestContestOracle_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `not json`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			oracle := NewContestOracle(newTestOutbound(), srv.URL, srv.URL, "")
			_, err := oracle.Snapshot(context.Background(), domain.ContestMain)
			assert.True(t, domain.IsCode(err, domain.CodeUpstreamUnavailable))
		})
	}
}

// --- HTTPNotifier Tests ---

func TestHTTPNotifier_Send(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b map[string]any
		_ = json.NewDecoder(r.Body).Decode(&b)
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()
	}))
	defer srv.Close()

	n := NewHTTPNotifier(newTestOutbound(), srv.URL, time.Second, testLogger())
	require.NoError(t, n.Send(context.Background(), "20", "Ravi won 900 diamonds in Car Race Game"))
	n.Notify(context.Background(), "grp-20", "hello group")
	n.Wait()

	require.Len(t, bodies, 2)
	assert.Equal(t, float64(20), bodies[0]["receiver_id"], "numeric receivers stay numeric")
	assert.Equal(t, "Ravi won 900 diamonds in Car Race Game", bodies[0]["message"])
	assert.Equal(t, "grp-20", bodies[1]["receiver_id"])
}

func TestHTTPNotifier_NotifySurvivesCancelledRequest(t *testing.T) {
	done := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done <- struct{}{}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewHTTPNotifier(newTestOutbound(), srv.URL, time.Second, testLogger())
	n.Notify(ctx, "7", "late")
	n.Wait()

	select {
	case <-done:
	default:
		t.Fatal("notification was not delivered")
	}
}

func TestHTTPNotifier_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(newTestOutbound(), srv.URL, time.Second, testLogger())
	assert.Error(t, n.Send(context.Background(), "7", "x"))
	n.Notify(context.Background(), "7", "x")
	n.Wait()
}

// --- GlobalPartner Tests ---

func TestGlobalPartner_PlaceBet(t *testing.T) {
	var gotTS, gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTS = r.Header.Get("X-Timestamp")
		gotSig = r.Header.Get("X-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"status":true,"message":"ok"}`)
	}))
	defer srv.Close()

	p := NewGlobalPartner(newTestOutbound(), srv.URL, "partner-secret")
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	err := p.PlaceBet(context.Background(), GlobalBetRequest{ContestID: "G1", UserID: "7", DomainID: 3, Car1: 300})
	require.NoError(t, err)

	assert.Equal(t, "1700000000", gotTS)
	mac := hmac.New(sha256.New, []byte("partner-secret"))
	mac.Write([]byte("1700000000." + string(gotBody)))
	assert.Equal(t, "sha256="+fmt.Sprintf("%x", mac.Sum(nil)), gotSig)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	assert.Equal(t, "G1", sent["contest_id"])
	assert.Equal(t, float64(3), sent["domain_id"])
	assert.Equal(t, float64(300), sent["car1"])
}

func TestGlobalPartner_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"status false", http.StatusOK, `{"status":false,"message":"Contest closed"}`, "Contest closed"},
		{"http error", http.StatusForbidden, `{"message":"Bad signature"}`, "Bad signature"},
		{"not json", http.StatusOK, `oops`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			p := NewGlobalPartner(newTestOutbound(), srv.URL, "s")
			err := p.PlaceBet(context.Background(), GlobalBetRequest{ContestID: "G1"})
			appErr, ok := domain.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, domain.CodeValidation, appErr.Code)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

// --- GroupMessenger Tests ---

func decodeUserSig(t *testing.T, sig string) map[string]any {
	t.Helper()
	std := strings.NewReplacer("*", "+", "-", "/", "_", "=").Replace(sig)
	compressed, err := base64.StdEncoding.DecodeString(std)
	require.NoError(t, err)
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestUserSig_Gen(t *testing.T) {
	now := time.Unix(1700000000, 0)
	sig, err := NewUserSig(1400000001, "im-key").Gen("administrator", 86400, now)
	require.NoError(t, err)
	assert.NotContains(t, sig, "+")
	assert.NotContains(t, sig, "/")
	assert.NotContains(t, sig, "=")

	doc := decodeUserSig(t, sig)
	assert.Equal(t, "2.0", doc["TLS.ver"])
	assert.Equal(t, "administrator", doc["TLS.identifier"])
	assert.Equal(t, float64(1400000001), doc["TLS.sdkappid"])
	assert.Equal(t, float64(86400), doc["TLS.expire"])
	assert.Equal(t, float64(1700000000), doc["TLS.time"])

	mac := hmac.New(sha256.New, []byte("im-key"))
	mac.Write([]byte("TLS.identifier:administrator\nTLS.sdkappid:1400000001\nTLS.time:1700000000\nTLS.expire:86400\n"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), doc["TLS.sig"])
}

func TestGroupMessenger_SendAdvisorMessage(t *testing.T) {
	var gotQuery map[string][]string
	var gotPath string
	var body struct {
		GroupId string
		Random  int64
		MsgBody []struct {
			MsgType    string
			MsgContent struct{ Text string }
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_ = json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, `{"ActionStatus":"OK","ErrorCode":0}`)
	}))
	defer srv.Close()

	m := NewGroupMessenger(newTestOutbound(), 1400000001, "im-key", "administrator", srv.URL)
	m.now = func() time.Time { return time.UnixMilli(1700000000123) }

	require.NoError(t, m.SendAdvisorMessage(context.Background(), "@TGS#party1", "Car 2 looks strong"))

	assert.Equal(t, "/v4/group_open_http_svc/send_group_msg", gotPath)
	assert.Equal(t, "1400000001", gotQuery["sdkappid"][0])
	assert.Equal(t, "administrator", gotQuery["identifier"][0])
	assert.Equal(t, "json", gotQuery["contenttype"][0])
	assert.Equal(t, fmt.Sprint(body.Random), gotQuery["random"][0])
	assert.GreaterOrEqual(t, body.Random, int64(10000000))
	assert.NotEmpty(t, decodeUserSig(t, gotQuery["usersig"][0])["TLS.sig"])

	assert.Equal(t, "@TGS#party1", body.GroupId)
	require.Len(t, body.MsgBody, 1)
	assert.Equal(t, "TIMTextElem", body.MsgBody[0].MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(body.MsgBody[0].MsgContent.Text), &content))
	assert.Equal(t, "ai_gameadvisor", content["type"])
	assert.Equal(t, `{"msg":"Car 2 looks strong"}`, content["message"])
	assert.Equal(t, "@TGS#party1", content["from"])
	assert.Equal(t, "Streamers Broadcast", content["fromName"])
	assert.Equal(t, "1700000000123", content["time_stamp"])
}

func TestGroupMessenger_ErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ActionStatus":"FAIL","ErrorCode":10010,"ErrorInfo":"group dismissed"}`)
	}))
	defer srv.Close()

	m := NewGroupMessenger(newTestOutbound(), 1, "k", "administrator", srv.URL)
	err := m.SendGroupMessage(context.Background(), "g", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group dismissed")
}
