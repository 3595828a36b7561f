package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/arenacore/internal/sim"
)

func TestLoadEnvDefaults(t *testing.T) {
	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if e.Addr != ":8080" || e.ClaimTTL != 15*time.Minute || e.JanitorInterval != time.Minute {
		t.Errorf("LoadEnv() = %+v", e)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ARENA_ADDR", "127.0.0.1:9000")
	t.Setenv("ARENA_CLAIM_TTL", "1h")
	t.Setenv("ARENA_SEED_KEY", "k")
	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if e.Addr != "127.0.0.1:9000" || e.ClaimTTL != time.Hour || e.SeedKey != "k" {
		t.Errorf("LoadEnv() = %+v", e)
	}

	t.Setenv("ARENA_CLAIM_TTL", "-1s")
	if _, err := LoadEnv(); err == nil {
		t.Error("LoadEnv() accepted a negative claim ttl")
	}
	t.Setenv("ARENA_CLAIM_TTL", "soon")
	if _, err := LoadEnv(); err == nil {
		t.Error("LoadEnv() accepted an unparsable duration")
	}
}

func TestDefaultTuningValid(t *testing.T) {
	tu, err := LoadTuning("")
	if err != nil {
		t.Fatal(err)
	}
	if err := tu.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	rates, err := tu.Rates()
	if err != nil {
		t.Fatal(err)
	}
	if !rates[sim.LeaguePro].Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("pro rate = %s", rates[sim.LeaguePro])
	}
}

func TestLoadTuningFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := `
arenas:
  sprint:
    intelligence: 0.1
    speed: 0.8
    risk: 0.1
reward_rates:
  rookie: 2
  elite: "2.5"
run_ttls:
  completed: 48h
prize_split: [70, 30]
claim_max_ttl: 6h
economy:
  caps:
    sprint: 500
    "sprint:pro": 10
    chess: 1
  emission_windows_utc:
    sprint:
      start_hour_utc: 8
      end_hour_utc: 20
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	tu, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning() error = %v", err)
	}
	if _, ok := tu.Arenas["sprint"]; !ok || len(tu.Arenas) != 1 {
		t.Errorf("arenas = %+v", tu.Arenas)
	}
	if tu.RunTTLs.Completed != 48*time.Hour || tu.RunTTLs.InProgress != 2*time.Minute {
		t.Errorf("run ttls = %+v", tu.RunTTLs)
	}
	if tu.ClaimMaxTTL != 6*time.Hour || len(tu.PrizeSplit) != 2 {
		t.Errorf("tuning = %+v", tu)
	}

	rates, err := tu.Rates()
	if err != nil {
		t.Fatal(err)
	}
	if !rates[sim.LeagueElite].Equal(decimal.RequireFromString("2.5")) || !rates[sim.LeagueRookie].Equal(decimal.NewFromInt(2)) {
		t.Errorf("rates = %v", rates)
	}

	cfg := tu.EconomyConfig()
	if len(cfg.Caps) != 1 || cfg.Caps["sprint"] != 500 {
		t.Errorf("caps = %v, want only sprint", cfg.Caps)
	}
	if w := cfg.Windows["sprint"]; w.StartHourUTC != 8 || w.EndHourUTC != 20 {
		t.Errorf("windows = %v", cfg.Windows)
	}
}

func TestLoadTuningRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad weights", "arenas:\n  a:\n    intelligence: 0.9\n    speed: 0.9\n    risk: 0\n"},
		{"unknown league rate", "reward_rates:\n  legend: 3\n"},
		{"negative rate", "reward_rates:\n  pro: -1\n"},
		{"split over 100", "prize_split: [90, 20]\n"},
		{"not yaml", "arenas: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseTuning([]byte(tt.body), DefaultTuning()); err == nil {
				t.Fatal("parseTuning() succeeded")
			}
		})
	}
	if _, err := LoadTuning(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadTuning(missing) succeeded")
	}
}
