package repository

import (
	"context"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
)

type outboxSource struct {
	repo OutboxRepository
	db   DBTX
}

// OutboxStore is the outbox as seen by the relay: read, acknowledge, purge.
type OutboxStore interface {
	infra.OutboxSource
	infra.OutboxPurger
}

// NewOutboxSource binds an OutboxRepository to a connection for the outbox
// poller and the purge job.
func NewOutboxSource(repo OutboxRepository, db DBTX) OutboxStore {
	return &outboxSource{repo: repo, db: db}
}

func (s *outboxSource) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxDraft, error) {
	return s.repo.FetchUnpublished(ctx, s.db, limit)
}

func (s *outboxSource) MarkPublished(ctx context.Context, ids []int64) error {
	return s.repo.MarkPublished(ctx, s.db, ids)
}

func (s *outboxSource) PurgePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.PurgePublished(ctx, s.db, cutoff)
}
