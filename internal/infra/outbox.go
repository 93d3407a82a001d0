package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/racegame/internal/domain"
)

// OutboxSource is the slice of outbox storage the poller reads and acknowledges.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxDraft, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// OutboxPurger deletes events that were published before a cutoff.
type OutboxPurger interface {
	PurgePublished(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxPurgeJob returns a scheduler job dropping events published more than
// retention ago. Unpublished events are kept however old they are.
func OutboxPurgeJob(purger OutboxPurger, retention time.Duration, now func() time.Time, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		cutoff := now().Add(-retention)
		n, err := purger.PurgePublished(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("purge outbox: %w", err)
		}
		if n > 0 {
			logger.Info("outbox purged", "events", n, "published_before", cutoff)
		}
		return nil
	}
}

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxMessage is the envelope published for every outbox row.
type OutboxMessage struct {
	EventID       string          `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
type OutboxPoller struct {
	source      OutboxSource
	producer    Publisher
	logger      *slog.Logger
	metrics     *Metrics
	topicPrefix string
	interval    time.Duration
	batchSize   int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(source OutboxSource, producer Publisher, topicPrefix string, metrics *Metrics, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		source:      source,
		producer:    producer,
		logger:      logger,
		metrics:     metrics,
		topicPrefix: topicPrefix,
		interval:    500 * time.Millisecond,
		batchSize:   100,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if _, err := p.PollOnce(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

// PollOnce publishes one batch in sequence order and returns how many were acknowledged.
// Publishing stops at the first failure so later events never overtake an earlier one.
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	events, err := p.source.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(events))
	for _, e := range events {
		msg, err := json.Marshal(OutboxMessage{
			EventID:       e.EventID.String(),
			AggregateType: string(e.AggregateType),
			AggregateID:   e.AggregateID,
			EventType:     string(e.EventType),
			Payload:       e.Payload,
			OccurredAt:    e.OccurredAt,
		})
		if err != nil {
			p.logger.Error("encode outbox event", "event_id", e.EventID, "error", err)
			break
		}
		if err := p.producer.Publish(ctx, e.Topic(p.topicPrefix), []byte(e.PartitionKey), msg); err != nil {
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
			break
		}
		published = append(published, e.SeqID)
	}

	if err := p.source.MarkPublished(ctx, published); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}
	p.metrics.ObserveOutboxPublished(len(published))
	p.logger.Debug("outbox poll complete", "published", len(published))
	return len(published), nil
}
