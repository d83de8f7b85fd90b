package game

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// CatchTier covers capture rates from the previous tier's MaxCaptureRate+1 up to MaxCaptureRate inclusive.
type CatchTier struct {
	MaxCaptureRate int   `yaml:"max_capture_rate" json:"max_capture_rate"`
	Cost           int64 `yaml:"cost" json:"cost"`
	MinLevel       int   `yaml:"min_level" json:"min_level"`
	MaxLevel       int   `yaml:"max_level" json:"max_level"`
}

type TierTable []CatchTier

func DefaultTierTable() TierTable {
	return TierTable{
		{MaxCaptureRate: 44, Cost: 5000, MinLevel: 30, MaxLevel: 50},
		{MaxCaptureRate: 119, Cost: 3000, MinLevel: 15, MaxLevel: 35},
		{MaxCaptureRate: 189, Cost: 2000, MinLevel: 8, MaxLevel: 20},
		{MaxCaptureRate: 255, Cost: 1000, MinLevel: 1, MaxLevel: 10},
	}
}

type balanceFile struct {
	CatchTiers []CatchTier `yaml:"catch_tiers"`
}

func ParseTierTable(raw []byte) (TierTable, error) {
	var f balanceFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse balance file: %w", err)
	}
	table := TierTable(f.CatchTiers)
	sort.Slice(table, func(i, j int) bool { return table[i].MaxCaptureRate < table[j].MaxCaptureRate })
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// LoadTierTable returns the default table when path is empty.
func LoadTierTable(path string) (TierTable, error) {
	if path == "" {
		return DefaultTierTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read balance file: %w", err)
	}
	return ParseTierTable(raw)
}

func (t TierTable) Validate() error {
	if len(t) == 0 {
		return errors.New("catch tier table is empty")
	}
	prev := -1
	for i, tier := range t {
		if tier.MaxCaptureRate <= prev {
			return fmt.Errorf("catch tier %d: max_capture_rate %d must be greater than %d", i, tier.MaxCaptureRate, prev)
		}
		if tier.Cost <= 0 {
			return fmt.Errorf("catch tier %d: cost must be positive", i)
		}
		if tier.MinLevel < 1 || tier.MinLevel > tier.MaxLevel {
			return fmt.Errorf("catch tier %d: level range %d-%d is invalid", i, tier.MinLevel, tier.MaxLevel)
		}
		prev = tier.MaxCaptureRate
	}
	if prev != MaxCaptureRate {
		return fmt.Errorf("catch tiers must end at capture rate %d, got %d", MaxCaptureRate, prev)
	}
	return nil
}

func (t TierTable) ForCaptureRate(rate int) (CatchTier, error) {
	if rate < 0 || rate > MaxCaptureRate {
		return CatchTier{}, fmt.Errorf("%w: capture rate %d out of range", ErrInvalidInput, rate)
	}
	for _, tier := range t {
		if rate <= tier.MaxCaptureRate {
			return tier, nil
		}
	}
	return CatchTier{}, fmt.Errorf("no catch tier covers capture rate %d", rate)
}
