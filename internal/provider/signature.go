package provider

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// WebhookSigner signs and verifies settlement webhooks:
// hex(HMAC-SHA256(secret, "{domainId}.{eventId}.{ts}.{body}")).
type WebhookSigner struct {
	secret []byte
}

// NewWebhookSigner creates a WebhookSigner.
func NewWebhookSigner(secret string) *WebhookSigner {
	return &WebhookSigner{secret: []byte(secret)}
}

// Sign computes the signature. Domain and event ids are taken as integers,
// so "03" and "3" sign the same.
func (s *WebhookSigner) Sign(domainID, eventID, ts string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d.%d.%s.", atoiLoose(domainID), atoiLoose(eventID), ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether provided matches the expected signature.
func (s *WebhookSigner) Verify(domainID, eventID, ts string, body []byte, provided string) bool {
	expected := s.Sign(domainID, eventID, ts, body)
	return hmac.Equal([]byte(expected), []byte(provided))
}

// SignPartnerRequest returns the X-Signature header value for an outbound
// partner call: "sha256=" + hex(HMAC-SHA256(secret, ts + "." + body)).
func SignPartnerRequest(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// atoiLoose parses a leading integer, returning 0 when there is none.
func atoiLoose(s string) int64 {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func md5Hex(parts ...string) string {
	h := md5.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
