package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/segmentio/kafka-go"
)

// LedgerTopic is the topic ledger entries are published to by the outbox poller.
func LedgerTopic(prefix string) string {
	return domain.OutboxDraft{
		AggregateType: domain.AggregateWallet,
		EventType:     domain.EventLedgerEntryPosted,
	}.Topic(prefix)
}

// Projector keeps balance projections current from the ledger topic.
type Projector struct {
	store  Store
	logger *slog.Logger
}

// NewProjector creates a Projector writing to store.
func NewProjector(store Store, logger *slog.Logger) *Projector {
	return &Projector{store: store, logger: logger}
}

// HandleMessage applies one outbox message. Events other than posted ledger
// entries are ignored.
func (p *Projector) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var env infra.OutboxMessage
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return fmt.Errorf("decode outbox message: %w", err)
	}
	if env.EventType != string(domain.EventLedgerEntryPosted) {
		return nil
	}

	var entry domain.LedgerEntry
	if err := json.Unmarshal(env.Payload, &entry); err != nil {
		return fmt.Errorf("decode ledger entry %s: %w", env.EventID, err)
	}
	applied, err := ApplyLedgerEntry(ctx, p.store, entry)
	if err != nil {
		return fmt.Errorf("apply ledger entry %d: %w", entry.ID, err)
	}
	if !applied {
		p.logger.Debug("stale ledger entry skipped", "entry_id", entry.ID, "user_id", entry.AccountID)
	}
	return nil
}
