package domain

import (
	"strings"
	"time"
)

// LoginType tags how an account participates in settlement.
type LoginType string

const (
	LoginNormal       LoginType = ""
	LoginCarGameBot   LoginType = "cargamebot"
	LoginLuckyGiftBot LoginType = "luckygiftbot"
)

// DefaultAvatar is used when an account has no image on record.
const DefaultAvatar = "1.jpeg"

// Balances is the two-column balance model of a users row.
type Balances struct {
	Points      int64 `json:"points"`
	RedeemPoint int64 `json:"redeem_point"`
}

// Account represents a users row.
type Account struct {
	ID        int64     `json:"id"`
	ProfileID string    `json:"profile_id"`
	Name      string    `json:"name"`
	Gender    string    `json:"gender"`
	LoginType LoginType `json:"login_type"`
	Balances
	RichLevel int       `json:"rich_level"`
	GroupID   string    `json:"group_id,omitempty"`
	ImageName string    `json:"image_name,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsBot reports whether the account is simulated or a lucky-gift bot.
// Bots receive their raw credit but never feed tips, room shares or daily spend.
func (a *Account) IsBot() bool {
	return a.LoginType == LoginCarGameBot || a.LoginType == LoginLuckyGiftBot
}

// IsMale reports whether the account's gender is recorded as male.
func (a *Account) IsMale() bool {
	return strings.EqualFold(strings.TrimSpace(a.Gender), "male")
}

// HasGroup reports whether the account hosts a chat group.
func (a *Account) HasGroup() bool {
	return strings.TrimSpace(a.GroupID) != ""
}

// AvatarURL joins the image directory with the account's image name.
func (a *Account) AvatarURL(imageDir string) string {
	if a.ImageName == "" {
		return imageDir + DefaultAvatar
	}
	return imageDir + a.ImageName
}

// MicSession is an ongoing paid mic join (mic_join_details) whose charge is
// still pending and reduces the spendable balance shown to game partners.
type MicSession struct {
	UserID    int64
	CallRate  float64
	StartedAt time.Time
}

// PendingCharge returns ceil(rate * ceil(elapsed minutes)).
func (m *MicSession) PendingCharge(now time.Time) int64 {
	if m == nil || m.CallRate <= 0 {
		return 0
	}
	elapsed := now.Sub(m.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	minutes := int64(elapsed / time.Minute)
	if elapsed%time.Minute != 0 {
		minutes++
	}
	charge := m.CallRate * float64(minutes)
	whole := int64(charge)
	if float64(whole) < charge {
		whole++
	}
	return whole
}

// SpendableBalance subtracts a pending mic charge from points, floored at zero.
func SpendableBalance(points int64, mic *MicSession, now time.Time) int64 {
	bal := points - mic.PendingCharge(now)
	if bal < 0 {
		return 0
	}
	return bal
}
