package infra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxSource struct {
	events []domain.OutboxDraft
	marked []int64
}

func (f *fakeOutboxSource) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxDraft, error) {
	return f.events, nil
}

func (f *fakeOutboxSource) MarkPublished(ctx context.Context, ids []int64) error {
	f.marked = append(f.marked, ids...)
	return nil
}

type fakePublisher struct {
	topics []string
	keys   []string
	failAt int
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	if f.failAt > 0 && len(f.topics)+1 == f.failAt {
		return errors.New("broker unavailable")
	}
	var msg OutboxMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, string(key))
	return nil
}

func draft(seq int64, userID string) domain.OutboxDraft {
	return domain.OutboxDraft{
		SeqID:         seq,
		EventID:       uuid.New(),
		AggregateType: domain.AggregateWallet,
		AggregateID:   userID,
		EventType:     domain.EventLedgerEntryPosted,
		PartitionKey:  userID,
		Payload:       json.RawMessage(`{}`),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxPoller_PublishesAndMarks(t *testing.T) {
	src := &fakeOutboxSource{events: []domain.OutboxDraft{draft(1, "7"), draft(2, "8")}}
	pub := &fakePublisher{}
	p := NewOutboxPoller(src, pub, "racegame", nil, quietLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, src.marked)
	assert.Equal(t, []string{"racegame.wallet.ledger.entry.posted", "racegame.wallet.ledger.entry.posted"}, pub.topics)
	assert.Equal(t, []string{"7", "8"}, pub.keys)
}

func TestOutboxPoller_StopsAtFirstFailure(t *testing.T) {
	src := &fakeOutboxSource{events: []domain.OutboxDraft{draft(1, "7"), draft(2, "7"), draft(3, "7")}}
	pub := &fakePublisher{failAt: 2}
	p := NewOutboxPoller(src, pub, "racegame", nil, quietLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, src.marked)
}

func TestOutboxPoller_Empty(t *testing.T) {
	src := &fakeOutboxSource{}
	p := NewOutboxPoller(src, &fakePublisher{}, "racegame", nil, quietLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, src.marked)
}

type fakePurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestOutboxPurgeJob(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	purger := &fakePurger{n: 12}
	job := OutboxPurgeJob(purger, 72*time.Hour, func() time.Time { return now }, logger)
	require.NoError(t, job(context.Background()))
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), purger.cutoff)

	purger.err = errors.New("relation locked")
	assert.ErrorContains(t, job(context.Background()), "purge outbox")
}
