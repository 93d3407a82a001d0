package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/attaboy/racegame/internal/domain"
)

const contestNode = "main-contest"

// ContestOracle reads the running contest from the two realtime databases
// over their REST interface.
type ContestOracle struct {
	out       *Outbound
	mainURL   string
	globalURL string
	authToken string
}

// NewContestOracle creates a ContestOracle.
func NewContestOracle(out *Outbound, mainURL, globalURL, authToken string) *ContestOracle {
	return &ContestOracle{
		out:       out,
		mainURL:   strings.TrimRight(mainURL, "/"),
		globalURL: strings.TrimRight(globalURL, "/"),
		authToken: authToken,
	}
}

// Snapshot returns the contest state for the variant. Any failure is an
// UpstreamUnavailable error; callers treat it as a closed contest.
func (o *ContestOracle) Snapshot(ctx context.Context, variant domain.ContestVariant) (*domain.ContestSnapshot, error) {
	base := o.mainURL
	if variant == domain.ContestGlobal {
		base = o.globalURL
	}
	u := base + "/" + contestNode + ".json"
	if o.authToken != "" {
		u += "?auth=" + url.QueryEscape(o.authToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build oracle request: %w", err)
	}
	resp, err := o.out.Do(req, TargetOracle)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.ErrUpstreamUnavailable("contest oracle", fmt.Errorf("status %d", resp.StatusCode))
	}

	var node struct {
		Status    string     `json:"status"`
		ContestID FlexString `json:"contestid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
		return nil, domain.ErrUpstreamUnavailable("contest oracle", fmt.Errorf("decode: %w", err))
	}
	return &domain.ContestSnapshot{Status: node.Status, ContestID: node.ContestID.String()}, nil
}
