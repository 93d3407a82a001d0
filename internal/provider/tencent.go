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
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	userSigExpiry      = 86400
	advisorMessageType = "ai_gameadvisor"
	advisorSenderName  = "Streamers Broadcast"
	advisorSenderImage = "https://zeeplive.blr1.digitaloceanspaces.com/zeepliveFileResource/1717565665.webp"
)

// UserSig issues TLS-Sig v2 signatures for the IM REST API.
type UserSig struct {
	appID int64
	key   string
}

// NewUserSig creates a UserSig signer.
func NewUserSig(appID int64, key string) *UserSig {
	return &UserSig{appID: appID, key: key}
}

// Gen returns a user signature for identifier valid for expire seconds from now.
func (s *UserSig) Gen(identifier string, expire int64, now time.Time) (string, error) {
	ts := now.Unix()
	content := fmt.Sprintf("TLS.identifier:%s\nTLS.sdkappid:%d\nTLS.time:%d\nTLS.expire:%d\n",
		identifier, s.appID, ts, expire)
	mac := hmac.New(sha256.New, []byte(s.key))
	mac.Write([]byte(content))

	doc, err := json.Marshal(map[string]any{
		"TLS.ver":        "2.0",
		"TLS.identifier": identifier,
		"TLS.sdkappid":   s.appID,
		"TLS.expire":     expire,
		"TLS.time":       ts,
		"TLS.sig":        base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	})
	if err != nil {
		return "", fmt.Errorf("marshal usersig: %w", err)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(doc); err != nil {
		return "", fmt.Errorf("compress usersig: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress usersig: %w", err)
	}
	return base64URLSig(buf.Bytes()), nil
}

// base64URLSig is the IM flavour of url-safe base64: + * / - = _.
func base64URLSig(b []byte) string {
	return strings.NewReplacer("+", "*", "/", "-", "=", "_").Replace(base64.StdEncoding.EncodeToString(b))
}

// GroupMessenger posts custom messages to chat groups through the IM REST API.
type GroupMessenger struct {
	out     *Outbound
	sig     *UserSig
	appID   int64
	adminID string
	baseURL string
	now     func() time.Time
}

// NewGroupMessenger creates a GroupMessenger.
func NewGroupMessenger(out *Outbound, appID int64, secretKey, adminID, baseURL string) *GroupMessenger {
	return &GroupMessenger{
		out:     out,
		sig:     NewUserSig(appID, secretKey),
		appID:   appID,
		adminID: adminID,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// SendAdvisorMessage broadcasts an advisor line to groupID.
func (m *GroupMessenger) SendAdvisorMessage(ctx context.Context, groupID, msg string) error {
	inner, err := json.Marshal(map[string]string{"msg": msg})
	if err != nil {
		return fmt.Errorf("marshal advisor message: %w", err)
	}
	now := m.now()
	content, err := json.Marshal(map[string]string{
		"type":            advisorMessageType,
		"message":         string(inner),
		"group_user_name": "Admin",
		"from":            groupID,
		"fromName":        advisorSenderName,
		"fromImage":       advisorSenderImage,
		"time_stamp":      strconv.FormatInt(now.UnixMilli(), 10),
	})
	if err != nil {
		return fmt.Errorf("marshal advisor content: %w", err)
	}
	return m.SendGroupMessage(ctx, groupID, string(content))
}

// SendGroupMessage posts a text element to groupID.
func (m *GroupMessenger) SendGroupMessage(ctx context.Context, groupID, text string) error {
	usersig, err := m.sig.Gen(m.adminID, userSigExpiry, m.now())
	if err != nil {
		return err
	}
	random, err := randomInt(10000000, 99999999)
	if err != nil {
		return fmt.Errorf("message random: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"GroupId": groupID,
		"Random":  random,
		"MsgBody": []map[string]any{{
			"MsgType":    "TIMTextElem",
			"MsgContent": map[string]string{"Text": text},
		}},
	})
	if err != nil {
		return fmt.Errorf("marshal group message: %w", err)
	}

	q := url.Values{}
	q.Set("sdkappid", strconv.FormatInt(m.appID, 10))
	q.Set("identifier", m.adminID)
	q.Set("usersig", usersig)
	q.Set("random", strconv.FormatInt(random, 10))
	q.Set("contenttype", "json")
	u := m.baseURL + "/v4/group_open_http_svc/send_group_msg?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build group message: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.out.Do(req, TargetTencent)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		ActionStatus string `json:"ActionStatus"`
		ErrorCode    int    `json:"ErrorCode"`
		ErrorInfo    string `json:"ErrorInfo"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send_group_msg status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &out); err == nil && out.ErrorCode != 0 {
		return fmt.Errorf("send_group_msg error %d: %s", out.ErrorCode, out.ErrorInfo)
	}
	return nil
}
