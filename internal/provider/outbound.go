// Package provider holds the clients and codecs for everything outside the
// process: request envelopes, partner signatures, the contest oracle, chat
// notifications and the global tournament partner.
package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/guard"
	"github.com/attaboy/racegame/internal/infra"
)

// Outbound target names, used as circuit breaker keys and metric labels.
const (
	TargetOracle   = "oracle"
	TargetNotifier = "notifier"
	TargetPartner  = "global_partner"
	TargetTencent  = "tencent_im"
)

// Outbound is an HTTP client guarded by a per-target circuit breaker.
type Outbound struct {
	client  *http.Client
	breaker *guard.CircuitBreaker
	metrics *infra.Metrics
}

// NewOutbound creates an Outbound. A nil breaker gets a default of five
// failures with a 30s reset.
func NewOutbound(timeout time.Duration, breaker *guard.CircuitBreaker, metrics *infra.Metrics) *Outbound {
	if breaker == nil {
		breaker = guard.NewCircuitBreaker(5, 30*time.Second)
	}
	return &Outbound{
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		metrics: metrics,
	}
}

// Do sends req unless the target's circuit is open. Transport errors and 5xx
// responses count as failures; the response is returned either way.
func (o *Outbound) Do(req *http.Request, target string) (*http.Response, error) {
	if res := o.breaker.Check(req.Context(), target); !res.Allowed {
		err := domain.ErrUpstreamUnavailable(res.Reason, nil)
		o.metrics.ObserveOutbound(target, err)
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		o.breaker.RecordFailure(target)
		o.metrics.ObserveOutbound(target, err)
		return nil, domain.ErrUpstreamUnavailable(target+" unreachable", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		o.breaker.RecordFailure(target)
		o.metrics.ObserveOutbound(target, fmt.Errorf("status %d", resp.StatusCode))
		return resp, nil
	}
	o.breaker.RecordSuccess(target)
	o.metrics.ObserveOutbound(target, nil)
	return resp, nil
}
