package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewLedgerEntryPostedEvent creates the standard wallet event for a ledger entry.
func NewLedgerEntryPostedEvent(entry *LedgerEntry) OutboxDraft {
	payload, _ := json.Marshal(entry)
	id := strconv.FormatInt(entry.AccountID, 10)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   id,
		EventType:     EventLedgerEntryPosted,
		PartitionKey:  id,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewContestBetPlacedEvent records a wager folded into a contest bet.
func NewContestBetPlacedEvent(variant ContestVariant, w ContestWager, newPoints int64) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"variant":    variant,
		"user_id":    w.UserID,
		"contest_id": w.ContestID,
		"room_id":    w.RoomID,
		"stakes":     w.Stakes,
		"new_points": newPoints,
	})
	id := strconv.FormatInt(w.UserID, 10)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateBet,
		AggregateID:   string(variant.Integration()) + ":" + w.ContestID + ":" + id,
		EventType:     EventContestBetPlaced,
		PartitionKey:  id,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewBetSettledEvent records a bet moving to SETTLED.
func NewBetSettledEvent(integration Integration, betKey string, userID, credited int64, shares Shares) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"integration": integration,
		"bet_key":     betKey,
		"user_id":     userID,
		"credited":    credited,
		"shares":      shares,
	})
	id := strconv.FormatInt(userID, 10)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateBet,
		AggregateID:   string(integration) + ":" + betKey,
		EventType:     EventBetSettled,
		PartitionKey:  id,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
