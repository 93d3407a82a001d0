package memrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Outbox Tests ---

func TestOutbox_PurgeKeepsUnpublished(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := New()
	store.Now = func() time.Time { return clock }
	repo := store.Repos().Outbox

	for _, id := range []string{"7", "8", "9"} {
		require.NoError(t, repo.Insert(ctx, store, domain.OutboxDraft{AggregateID: id, PartitionKey: id}))
	}
	events, err := repo.FetchUnpublished(ctx, store, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.NoError(t, repo.MarkPublished(ctx, store, []int64{events[0].SeqID, events[1].SeqID}))

	clock = clock.Add(time.Hour)
	require.NoError(t, repo.MarkPublished(ctx, store, []int64{events[0].SeqID}))

	n, err := repo.PurgePublished(ctx, store, clock)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "re-marking does not move the publish time")

	left := store.Events()
	require.Len(t, left, 1)
	assert.Equal(t, "9", left[0].AggregateID)
}

func TestOutbox_RollbackAfterPurge(t *testing.T) {
	ctx := context.Background()
	store := New()
	repo := store.Repos().Outbox

	require.NoError(t, repo.Insert(ctx, store, domain.OutboxDraft{AggregateID: "1"}))
	require.NoError(t, repo.MarkPublished(ctx, store, []int64{store.Events()[0].SeqID}))

	errAbort := errors.New("abort")
	err := infra.InTx(ctx, store, func(tx pgx.Tx) error {
		if err := repo.Insert(ctx, tx, domain.OutboxDraft{AggregateID: "2"}); err != nil {
			return err
		}
		if _, err := repo.PurgePublished(ctx, store, time.Now().Add(time.Minute)); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	assert.Empty(t, store.Events(), "rolled back insert is removed after the purge shifted the queue")
}
