//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertPoints queries the users table and asserts the account's balances.
func AssertPoints(t *testing.T, env *TestEnv, accountID, points, redeem int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var p, r int64
	err := env.Pool.QueryRow(ctx,
		"SELECT points, redeem_point FROM users WHERE id = $1", accountID).Scan(&p, &r)
	if err != nil {
		t.Fatalf("AssertPoints: query: %v", err)
	}
	if p != points {
		t.Errorf("points: expected %d, got %d", points, p)
	}
	if r != redeem {
		t.Errorf("redeem_point: expected %d, got %d", redeem, r)
	}
}

// CountLedgerEntries returns the number of wallets rows for an account.
func CountLedgerEntries(t *testing.T, env *TestEnv, accountID int64) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM wallets WHERE user_id = $1", accountID).Scan(&count)
	if err != nil {
		t.Fatalf("CountLedgerEntries: %v", err)
	}
	return count
}

// CountOutboxEvents returns the number of outbox events of eventType for an account.
func CountOutboxEvents(t *testing.T, env *TestEnv, accountID int64, eventType string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_outbox WHERE partition_key = $1 AND event_type = $2`,
		strconv.FormatInt(accountID, 10), eventType).Scan(&count)
	if err != nil {
		t.Fatalf("CountOutboxEvents: %v", err)
	}
	return count
}
