package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/MJE43/arenacore/internal/economy"
	"github.com/MJE43/arenacore/internal/runs"
	"github.com/MJE43/arenacore/internal/settlement"
	"github.com/MJE43/arenacore/internal/sim"
	"github.com/MJE43/arenacore/internal/tournament"
	"github.com/MJE43/arenacore/internal/vault"
)

// Tuning is the game balance table.
type Tuning struct {
	Arenas      sim.Arenas        `yaml:"arenas"`
	RewardRates map[string]string `yaml:"reward_rates"`
	RunTTLs     runs.TTLs         `yaml:"run_ttls"`
	PrizeSplit  []int             `yaml:"prize_split"`
	ClaimMaxTTL time.Duration     `yaml:"claim_max_ttl"`
	Economy     EconomySeed       `yaml:"economy"`
}

// EconomySeed is the cap configuration installed when the database has none.
// It goes through the same sanitizer as the admin endpoint.
type EconomySeed struct {
	Caps    map[string]any `yaml:"caps"`
	Windows map[string]any `yaml:"emission_windows_utc"`
}

// DefaultTuning is the table used when no file is configured.
func DefaultTuning() Tuning {
	rates := make(map[string]string)
	for league, rate := range settlement.DefaultRewardRates() {
		rates[string(league)] = rate.String()
	}
	return Tuning{
		Arenas:      sim.DefaultArenas(),
		RewardRates: rates,
		RunTTLs:     runs.DefaultTTLs(),
		PrizeSplit:  append([]int(nil), tournament.DefaultPrizeSplit...),
		ClaimMaxTTL: vault.DefaultMaxClaimTTL,
	}
}

// LoadTuning reads path over the defaults. An empty path returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	return parseTuning(raw, t)
}

func parseTuning(raw []byte, t Tuning) (Tuning, error) {
	var file Tuning
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	if len(file.Arenas) > 0 {
		t.Arenas = file.Arenas
	}
	if len(file.RewardRates) > 0 {
		t.RewardRates = file.RewardRates
	}
	if file.RunTTLs.InProgress > 0 {
		t.RunTTLs.InProgress = file.RunTTLs.InProgress
	}
	if file.RunTTLs.Completed > 0 {
		t.RunTTLs.Completed = file.RunTTLs.Completed
	}
	if file.RunTTLs.Failed > 0 {
		t.RunTTLs.Failed = file.RunTTLs.Failed
	}
	if len(file.PrizeSplit) > 0 {
		t.PrizeSplit = file.PrizeSplit
	}
	if file.ClaimMaxTTL > 0 {
		t.ClaimMaxTTL = file.ClaimMaxTTL
	}
	t.Economy = file.Economy
	if err := t.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Validate checks weights, rates and the prize split.
func (t Tuning) Validate() error {
	if len(t.Arenas) == 0 {
		return fmt.Errorf("at least one arena is required")
	}
	if err := t.Arenas.Validate(); err != nil {
		return err
	}
	if _, err := t.Rates(); err != nil {
		return err
	}
	return tournament.ValidateSplit(t.PrizeSplit)
}

// Rates parses the reward rate table.
func (t Tuning) Rates() (settlement.RewardRates, error) {
	out := make(settlement.RewardRates, len(t.RewardRates))
	for name, raw := range t.RewardRates {
		league, err := sim.ParseLeague(name)
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("reward rate %s: %w", name, err)
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("reward rate %s must not be negative", name)
		}
		out[league] = rate
	}
	return out, nil
}

// AllowedKeys lists every arena and arena:league pair the economy sanitizer accepts.
func (t Tuning) AllowedKeys() economy.AllowedKeys {
	var pairs []economy.ArenaLeague
	for _, arena := range t.Arenas.Names() {
		for _, league := range sim.Leagues() {
			pairs = append(pairs, economy.ArenaLeague{Arena: arena, League: string(league)})
		}
	}
	return economy.NewAllowedKeys(pairs, economy.SystemArenas)
}

// EconomyConfig sanitizes the seed economy section.
func (t Tuning) EconomyConfig() economy.CapConfiguration {
	return economy.Sanitize(economy.RawConfig{Caps: t.Economy.Caps, Windows: t.Economy.Windows}, t.AllowedKeys())
}
