package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsStore_Defaults(t *testing.T) {
	s := NewSettingsStore(nil).Snapshot()

	assert.Equal(t, SpendTiers{1, 1, 1, 1, 1}, s.Tiers())
	assert.Equal(t, 3, s.GlobalDomainID())
	assert.False(t, s.AIAdvisorEnabled())
	assert.True(t, s.CompanyDeduction().IsZero())
}

func TestSettingsStore_Refresh(t *testing.T) {
	calls := 0
	loader := func(ctx context.Context) (map[string]string, decimal.Decimal, error) {
		calls++
		return map[string]string{
			SettingMinBetDaily:    "500",
			SettingGlobalDomainID: " 7 ",
			SettingAISpeech:       "1",
			SettingMaxBetPro:      "not-a-number",
		}, decimal.RequireFromString("2.5"), nil
	}
	store := NewSettingsStore(loader)
	require.NoError(t, store.Refresh(context.Background()))

	snap := store.Snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(500), snap.Tiers().MinDaily)
	assert.Equal(t, int64(1), snap.Tiers().MaxPro, "unparseable value keeps default")
	assert.Equal(t, 7, snap.GlobalDomainID())
	assert.True(t, snap.AIAdvisorEnabled())
	assert.Equal(t, "2.5", snap.CompanyDeduction().String())
}

func TestSettingsStore_RefreshFailureKeepsSnapshot(t *testing.T) {
	fail := false
	loader := func(ctx context.Context) (map[string]string, decimal.Decimal, error) {
		if fail {
			return nil, decimal.Zero, errors.New("db down")
		}
		return map[string]string{SettingMinBetDaily: "9"}, decimal.Zero, nil
	}
	store := NewSettingsStore(loader)
	require.NoError(t, store.Refresh(context.Background()))

	fail = true
	assert.Error(t, store.Refresh(context.Background()))
	assert.Equal(t, int64(9), store.Snapshot().Tiers().MinDaily)
}
