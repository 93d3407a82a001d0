package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/infra"
	"github.com/attaboy/racegame/internal/repository"
)

// advisorPartyRoom is the party room whose group carries advisor broadcasts.
const advisorPartyRoom = 1

// MessageSender delivers one chat message and reports the outcome.
type MessageSender interface {
	Send(ctx context.Context, receiverID, message string) error
}

// AdvisorMessenger posts an advisor message into a chat group.
type AdvisorMessenger interface {
	SendAdvisorMessage(ctx context.Context, groupID, msg string) error
}

// NotifyService sends the contest result and advisor broadcasts.
type NotifyService struct {
	db        repository.DBTX
	repos     repository.Repos
	settings  *infra.SettingsStore
	sender    MessageSender
	messenger AdvisorMessenger
	metrics   *infra.Metrics
	logger    *slog.Logger
}

// NewNotifyService creates a NotifyService.
func NewNotifyService(
	db repository.DBTX,
	repos repository.Repos,
	settings *infra.SettingsStore,
	sender MessageSender,
	messenger AdvisorMessenger,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *NotifyService {
	return &NotifyService{
		db:        db,
		repos:     repos,
		settings:  settings,
		sender:    sender,
		messenger: messenger,
		metrics:   metrics,
		logger:    logger,
	}
}

// FanOutWinNotifications tells every winning room how much its players won
// and what each seat earned in tips, then tells each group the winner named
// which tip it received. Returns the number of messages delivered.
func (s *NotifyService) FanOutWinNotifications(ctx context.Context, variant domain.ContestVariant, contestID string) (int, error) {
	rooms, err := s.repos.ContestBets.RoomSummaries(ctx, s.db, variant, contestID)
	if err != nil {
		return 0, fmt.Errorf("room summaries: %w", err)
	}

	sent := 0
	for _, room := range rooms {
		host, err := s.repos.Accounts.FindByProfileID(ctx, s.db, room.RoomID)
		if err != nil {
			return sent, fmt.Errorf("find room host %s: %w", room.RoomID, err)
		}
		if host == nil || !host.HasGroup() {
			continue
		}
		sent += s.send(ctx, host.GroupID,
			fmt.Sprintf("In car game, %d players have won %d diamonds as reward.", room.Winners, room.TotalWon))
		if each := room.TipsPerSeat(); each > 0 {
			sent += s.send(ctx, host.GroupID,
				fmt.Sprintf("Each party seat member has received %d diamonds as tips in car game", each))
		}
	}

	winners, err := s.repos.ContestBets.ListWinners(ctx, s.db, variant, contestID)
	if err != nil {
		return sent, fmt.Errorf("list winners: %w", err)
	}
	for _, bet := range winners {
		each := domain.RoomWinSummary{
			RoomID:         bet.RoomID,
			TotalTips:      bet.Tips,
			PartySeatUsers: bet.PartySeatUsers,
		}.TipsPerSeat()
		if each <= 0 {
			continue
		}
		name := "User"
		if winner, err := s.repos.Accounts.FindByID(ctx, s.db, bet.UserID); err == nil && winner != nil && strings.TrimSpace(winner.Name) != "" {
			name = winner.Name
		}
		for _, groupID := range domain.SplitList(bet.GroupID) {
			host, err := s.repos.Accounts.FindByGroupID(ctx, s.db, groupID)
			if err != nil {
				return sent, fmt.Errorf("find group host %s: %w", groupID, err)
			}
			if host == nil || !host.HasGroup() {
				continue
			}
			sent += s.send(ctx, groupID,
				fmt.Sprintf("%s: Tips %d diamonds earned in Car Game from %s", host.Name, each, name))
		}
	}

	s.logger.Info("win notifications sent",
		"variant", variant,
		"contest_id", contestID,
		"rooms", len(rooms),
		"winners", len(winners),
		"sent", sent)
	return sent, nil
}

func (s *NotifyService) send(ctx context.Context, receiverID, message string) int {
	if err := s.sender.Send(ctx, receiverID, message); err != nil {
		s.metrics.ObserveBestEffortFailure("win_notify")
		s.logger.Warn("win notification failed", "receiver_id", receiverID, "error", err)
		return 0
	}
	return 1
}

// BroadcastAdvice posts an advisor message to the advisor party room's group
// when the global contest and its AI speech are both enabled. Reports
// whether a message went out.
func (s *NotifyService) BroadcastAdvice(ctx context.Context, message string) (bool, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return false, nil
	}
	if !s.settings.Snapshot().AIAdvisorEnabled() {
		return false, nil
	}
	groupID, err := s.repos.Settings.PartyRoomGroup(ctx, s.db, advisorPartyRoom)
	if err != nil {
		return false, fmt.Errorf("advisor party room: %w", err)
	}
	if groupID == "" {
		return false, nil
	}
	if err := s.messenger.SendAdvisorMessage(ctx, groupID, message); err != nil {
		return false, fmt.Errorf("send advisor message: %w", err)
	}
	return true, nil
}
