package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// HTTPNotifier posts chat notifications ({receiver_id, message}) to the
// messaging relay. Receivers are host user ids or chat group ids.
type HTTPNotifier struct {
	out     *Outbound
	url     string
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewHTTPNotifier creates an HTTPNotifier.
func NewHTTPNotifier(out *Outbound, url string, timeout time.Duration, logger *slog.Logger) *HTTPNotifier {
	return &HTTPNotifier{out: out, url: url, timeout: timeout, logger: logger}
}

// Send delivers one notification and waits for the relay.
func (n *HTTPNotifier) Send(ctx context.Context, receiverID, message string) error {
	payload := map[string]any{"receiver_id": receiverValue(receiverID), "message": message}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.out.Do(req, TargetNotifier)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier status %d", resp.StatusCode)
	}
	return nil
}

// Notify sends in the background. The request context may already be gone,
// so the send gets its own deadline. Failures are logged only.
func (n *HTTPNotifier) Notify(ctx context.Context, receiverID, message string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.Send(sendCtx, receiverID, message); err != nil {
			n.logger.Warn("notification failed", "receiver_id", receiverID, "error", err)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *HTTPNotifier) Wait() {
	n.wg.Wait()
}

// receiverValue keeps numeric ids numeric on the wire.
func receiverValue(id string) any {
	if v, err := strconv.ParseInt(id, 10, 64); err == nil {
		return v
	}
	return id
}
