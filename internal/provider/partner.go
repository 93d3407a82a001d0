package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/attaboy/racegame/internal/domain"
)

// GlobalBetRequest is forwarded to the global tournament partner before a
// global contest bet is accepted.
type GlobalBetRequest struct {
	ContestID      string `json:"contest_id"`
	RoomID         string `json:"room_id"`
	UserID         string `json:"user_id"`
	DomainID       int    `json:"domain_id"`
	GroupID        string `json:"group_id"`
	Car1           int64  `json:"car1"`
	Car2           int64  `json:"car2"`
	Car3           int64  `json:"car3"`
	PartySeatUsers string `json:"party_seat_users"`
	BalPoints      int64  `json:"balpoints"`
	ProfileID      string `json:"profile_id"`
	Name           string `json:"name"`
	Image          string `json:"image"`
	TotalRecharge  int64  `json:"total_recharge"`
}

// GlobalPartner calls the partner's bet endpoint with a signed body.
type GlobalPartner struct {
	out    *Outbound
	url    string
	secret string
	now    func() time.Time
}

// NewGlobalPartner creates a GlobalPartner.
func NewGlobalPartner(out *Outbound, url, secret string) *GlobalPartner {
	return &GlobalPartner{out: out, url: url, secret: secret, now: time.Now}
}

// PlaceBet registers the bet with the partner. A non-2xx answer or a false
// status rejects the bet; the partner's message is returned as a validation
// error so it reaches the client unchanged.
func (p *GlobalPartner) PlaceBet(ctx context.Context, bet GlobalBetRequest) error {
	body, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("marshal global bet: %w", err)
	}
	ts := p.now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build global bet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", SignPartnerRequest(p.secret, ts, body))

	resp, err := p.out.Do(req, TargetPartner)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.ErrUpstreamUnavailable("global partner", err)
	}
	var out struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.Status {
		return domain.ErrValidation(out.Message)
	}
	return nil
}
