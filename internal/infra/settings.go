package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Keys of the settings table read by the bet backend.
const (
	SettingMinBetDaily    = "CARGAME_MINBET_DAILY_CONTEST"
	SettingMinBetStandard = "CARGAME_MINBET_DAILY_STANDARD_CONTEST"
	SettingMaxBetStandard = "CARGAME_MAXBET_DAILY_STANDARD_CONTEST"
	SettingMinBetPro      = "CARGAME_MINBET_DAILY_PRO_CONTEST"
	SettingMaxBetPro      = "CARGAME_MAXBET_DAILY_PRO_CONTEST"
	SettingGlobalDomainID = "cargame_global_domain_id"
	SettingGlobalEnabled  = "cargame_global_enabled"
	SettingAISpeech       = "enabled_ai_speech_cargame_global"
)

var settingDefaults = map[string]int64{
	SettingMinBetDaily:    1,
	SettingMinBetStandard: 1,
	SettingMaxBetStandard: 1,
	SettingMinBetPro:      1,
	SettingMaxBetPro:      1,
	SettingGlobalDomainID: 3,
	SettingGlobalEnabled:  1,
	SettingAISpeech:       0,
}

// SettingsLoader reads the raw settings rows and the company deduction percentage.
type SettingsLoader func(ctx context.Context) (map[string]string, decimal.Decimal, error)

// SpendTiers holds the daily contest bet thresholds.
type SpendTiers struct {
	MinDaily    int64
	MinStandard int64
	MaxStandard int64
	MinPro      int64
	MaxPro      int64
}

// SettingsSnapshot is an immutable view of runtime settings.
type SettingsSnapshot struct {
	values    map[string]int64
	deduction decimal.Decimal
}

// Int returns the integer value of key or its default.
func (s SettingsSnapshot) Int(key string) int64 {
	if v, ok := s.values[key]; ok {
		return v
	}
	return settingDefaults[key]
}

// Tiers returns the daily spend thresholds.
func (s SettingsSnapshot) Tiers() SpendTiers {
	return SpendTiers{
		MinDaily:    s.Int(SettingMinBetDaily),
		MinStandard: s.Int(SettingMinBetStandard),
		MaxStandard: s.Int(SettingMaxBetStandard),
		MinPro:      s.Int(SettingMinBetPro),
		MaxPro:      s.Int(SettingMaxBetPro),
	}
}

// GlobalDomainID is the domain id stamped on global contest history rows.
func (s SettingsSnapshot) GlobalDomainID() int {
	return int(s.Int(SettingGlobalDomainID))
}

// AIAdvisorEnabled reports whether the global contest and its AI speech are both on.
func (s SettingsSnapshot) AIAdvisorEnabled() bool {
	return s.Int(SettingGlobalEnabled) == 1 && s.Int(SettingAISpeech) == 1
}

// CompanyDeduction is the configured company wallet percentage.
func (s SettingsSnapshot) CompanyDeduction() decimal.Decimal {
	return s.deduction
}

// SettingsStore caches settings behind an RWMutex and reloads them on Refresh.
type SettingsStore struct {
	mu     sync.RWMutex
	snap   SettingsSnapshot
	loader SettingsLoader
}

// NewSettingsStore creates a store serving defaults until the first Refresh.
func NewSettingsStore(loader SettingsLoader) *SettingsStore {
	return &SettingsStore{
		snap:   SettingsSnapshot{values: map[string]int64{}, deduction: decimal.Zero},
		loader: loader,
	}
}

// NewStaticSettings builds a store from fixed values. Used by tests and tools.
func NewStaticSettings(values map[string]string, deduction decimal.Decimal) *SettingsStore {
	s := NewSettingsStore(nil)
	s.snap = buildSnapshot(values, deduction)
	return s
}

// Snapshot returns the current settings.
func (s *SettingsStore) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Refresh reloads settings. On failure the previous snapshot stays in place.
func (s *SettingsStore) Refresh(ctx context.Context) error {
	if s.loader == nil {
		return nil
	}
	raw, deduction, err := s.loader(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	snap := buildSnapshot(raw, deduction)

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

func buildSnapshot(raw map[string]string, deduction decimal.Decimal) SettingsSnapshot {
	values := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			continue
		}
		values[strings.TrimSpace(k)] = n
	}
	return SettingsSnapshot{values: values, deduction: deduction}
}
