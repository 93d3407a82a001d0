package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// BetStatus is the settlement state of a bet row.
type BetStatus int

const (
	BetOpen    BetStatus = 0
	BetSettled BetStatus = 2
)

// Integration identifies the game integration a bet belongs to.
type Integration string

const (
	IntegrationCarGame       Integration = "cargame"
	IntegrationCarGameGlobal Integration = "cargame_global"
	IntegrationBaishun       Integration = "baishun"
	IntegrationJoy           Integration = "joy"
)

// Movement is one journal line of a round bet.
type Movement struct {
	OrderID       string `json:"orderId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Coin          int64  `json:"coin"`
	DiffMsg       string `json:"diff_msg,omitempty"`
	Type          int    `json:"type,omitempty"`
	RoomID        string `json:"roomId"`
}

// Journal is the ordered movement list stored in json_data.
type Journal []Movement

// Append returns the journal with m added at the end.
func (j Journal) Append(m Movement) Journal {
	return append(j, m)
}

// MarshalJSON encodes an empty journal as [] rather than null.
func (j Journal) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Movement(j))
}

// ParseJournal decodes json_data. A blank or null column yields an empty journal.
func ParseJournal(raw []byte) (Journal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Journal{}, nil
	}
	var j []Movement
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("parse journal: %w", err)
	}
	return Journal(j), nil
}

// RoundKey scopes a third-party round bet. Day is the local calendar day.
type RoundKey struct {
	Integration Integration
	UserID      int64
	RoundID     string
	GameID      int
	Day         time.Time
}

// RoundBet represents a third_party_bets row.
type RoundBet struct {
	ID                 int64       `json:"id"`
	Integration        Integration `json:"integration"`
	UserID             int64       `json:"user_id"`
	GameID             int         `json:"game_id"`
	RoundID            string      `json:"round_id"`
	RoomID             string      `json:"room_id"`
	TotalBet           int64       `json:"total_bet"`
	TotalWon           int64       `json:"total_won"`
	Tips               int64       `json:"tips"`
	SystemShare        int64       `json:"system_share"`
	CompanyWalletShare int64       `json:"company_wallet_share"`
	Status             BetStatus   `json:"status"`
	Journal            Journal     `json:"json_data"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// RoundTotals are the committed figures of a round row after an update.
type RoundTotals struct {
	TotalBet int64
	TotalWon int64
	Tips     int64
}

// Settled reports whether the round has been finalized.
func (b *RoundBet) Settled() bool { return b.Status == BetSettled }

// ContestVariant selects the contest bet table.
type ContestVariant string

const (
	ContestMain   ContestVariant = "main"
	ContestGlobal ContestVariant = "global"
)

// Integration maps a contest variant to its settlement integration.
func (v ContestVariant) Integration() Integration {
	if v == ContestGlobal {
		return IntegrationCarGameGlobal
	}
	return IntegrationCarGame
}

// CarStakes is the stake split across the three cars.
type CarStakes struct {
	Car1 int64 `json:"car1"`
	Car2 int64 `json:"car2"`
	Car3 int64 `json:"car3"`
}

// Total is the sum of the three stakes.
func (s CarStakes) Total() int64 { return s.Car1 + s.Car2 + s.Car3 }

// ContestWager is one placement folded into a contest bet row.
type ContestWager struct {
	UserID         int64
	ContestID      string
	RoomID         string
	Stakes         CarStakes
	PartySeatUsers []string
	GroupIDs       []string
}

// ContestBet represents a cargame_bet / cargame_bet_global row.
type ContestBet struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	ContestID          string    `json:"contestid"`
	RoomID             string    `json:"room_id"`
	Stakes             CarStakes `json:"stakes"`
	TotalBet           int64     `json:"total_bet"`
	TotalWon           int64     `json:"total_won"`
	Tips               int64     `json:"tips"`
	PartySeatUsers     string    `json:"party_seat_users"`
	GroupID            string    `json:"group_id"`
	Status             BetStatus `json:"status"`
	SystemShare        int64     `json:"system_share"`
	CompanyWalletShare int64     `json:"company_wallet_share"`
}

// ContestStatusOpen is the oracle status that admits new bets.
const ContestStatusOpen = "open"

// ContestSnapshot is the oracle's view of the running contest.
type ContestSnapshot struct {
	Status    string `json:"status"`
	ContestID string `json:"contestid"`
}

// Accepts reports whether a bet on contestID may be placed.
func (s *ContestSnapshot) Accepts(contestID string) bool {
	return s != nil && s.Status == ContestStatusOpen && s.ContestID == contestID
}

// RoomWinSummary aggregates a contest's winning bets per room.
type RoomWinSummary struct {
	RoomID         string
	Winners        int
	TotalWon       int64
	TotalTips      int64
	PartySeatUsers string
}

// TipsPerSeat splits the room's tips between the host and each party seat.
func (s RoomWinSummary) TipsPerSeat() int64 {
	seats := SeatCount(s.PartySeatUsers, s.RoomID)
	return s.TotalTips / int64(1+seats)
}

// GroupNotification is a queued large-win broadcast (send_notifi_tencent_grps).
type GroupNotification struct {
	GameID      int
	GameName    string
	RoomGroupID string
	Message     string
	UserID      int64
	Coin        int64
}
