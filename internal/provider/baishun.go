package provider

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// SSTokenLifetime is how long an issued Baishun session token is reported valid.
const SSTokenLifetime = 365 * 24 * time.Hour

// FlexString accepts a JSON string or number and keeps its text form.
// Partners send ids either way.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the trimmed text form.
func (f FlexString) String() string { return strings.TrimSpace(string(f)) }

// Int parses a leading integer the lenient way: "12abc" is 12, "" is 0.
func (f FlexString) Int() int64 {
	s := f.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return atoiLoose(s)
}

// BaishunAdapter holds the shared secrets of the Baishun game platform.
type BaishunAdapter struct {
	appKey      string
	ssTokenCode string
}

// NewBaishunAdapter creates a BaishunAdapter.
func NewBaishunAdapter(appKey, ssTokenCode string) *BaishunAdapter {
	return &BaishunAdapter{appKey: appKey, ssTokenCode: ssTokenCode}
}

// Sign returns md5(nonce + appKey + timestamp).
func (a *BaishunAdapter) Sign(nonce, timestamp string) string {
	return md5Hex(nonce, a.appKey, timestamp)
}

// VerifySignature checks a callback signature.
func (a *BaishunAdapter) VerifySignature(nonce, timestamp, signature string) bool {
	return a.Sign(nonce, timestamp) == strings.ToLower(strings.TrimSpace(signature))
}

// SSToken derives the session token for a user. An empty code falls back to
// the configured one.
func (a *BaishunAdapter) SSToken(appID, userID, code string) string {
	if code == "" {
		code = a.ssTokenCode
	}
	return md5Hex(appID, userID, code)
}

// SSTokenExpiry returns ts + one year in unix seconds.
func SSTokenExpiry(ts int64) int64 {
	return ts + int64(SSTokenLifetime/time.Second)
}

// BaishunRequest is the signed body of /baishun/getuserinfo and /baishun/updatebalance.
type BaishunRequest struct {
	AppID          FlexString `json:"app_id"`
	UserID         FlexString `json:"user_id"`
	SSToken        FlexString `json:"ss_token"`
	GameID         FlexString `json:"game_id"`
	RoundID        FlexString `json:"game_round_id"`
	RoomID         FlexString `json:"room_id"`
	CurrencyDiff   FlexString `json:"currency_diff"`
	DiffMsg        FlexString `json:"diff_msg"`
	OrderID        FlexString `json:"order_id"`
	Signature      FlexString `json:"signature"`
	SignatureNonce FlexString `json:"signature_nonce"`
	Timestamp      FlexString `json:"timestamp"`
}

// MissingRequired reports whether a mandatory field is absent.
func (r BaishunRequest) MissingRequired() bool {
	for _, v := range []FlexString{r.AppID, r.UserID, r.SSToken, r.GameID, r.Signature, r.SignatureNonce, r.Timestamp} {
		if v.String() == "" || v.String() == "0" {
			return true
		}
	}
	return false
}

// BaishunTokenRequest is the body of the token and user-info endpoints.
type BaishunTokenRequest struct {
	AppID     FlexString `json:"app_id"`
	UserID    FlexString `json:"user_id"`
	Code      FlexString `json:"code"`
	SSToken   FlexString `json:"ss_token"`
	Timestamp FlexString `json:"timestamp"`
}

// MissingRequired reports whether app_id, user_id or timestamp is absent.
func (r BaishunTokenRequest) MissingRequired() bool {
	return r.AppID.String() == "" || r.UserID.String() == "" || r.Timestamp.String() == ""
}
