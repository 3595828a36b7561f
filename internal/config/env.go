// Package config loads process settings from the environment and game
// tuning from an optional YAML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env is the process configuration read from ARENA_* variables.
type Env struct {
	Addr            string        `env:"ARENA_ADDR" envDefault:":8080"`
	DBPath          string        `env:"ARENA_DB_PATH" envDefault:"arenacore.db"`
	TuningPath      string        `env:"ARENA_TUNING_PATH"`
	JournalDir      string        `env:"ARENA_JOURNAL_DIR"`
	Deployment      string        `env:"ARENA_DEPLOYMENT" envDefault:"default"`
	SeedKey         string        `env:"ARENA_SEED_KEY"`
	OracleKey       string        `env:"ARENA_ORACLE_KEY"`
	VaultID         string        `env:"ARENA_VAULT_ID" envDefault:"0x0000000000000000000000000000000000000001"`
	AssetID         string        `env:"ARENA_ASSET_ID" envDefault:"0x0000000000000000000000000000000000000002"`
	ClaimTTL        time.Duration `env:"ARENA_CLAIM_TTL" envDefault:"15m"`
	ClaimScale      string        `env:"ARENA_CLAIM_SCALE" envDefault:"1"`
	KeyringService  string        `env:"ARENA_KEYRING_SERVICE" envDefault:"arenacore"`
	SecretsFallback string        `env:"ARENA_SECRETS_FALLBACK"`
	JanitorInterval time.Duration `env:"ARENA_JANITOR_INTERVAL" envDefault:"1m"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv parses and checks Env.
func LoadEnv() (Env, error) {
	var e Env
	if err := ParseEnv(&e); err != nil {
		return Env{}, err
	}
	if strings.TrimSpace(e.Addr) == "" {
		return Env{}, fmt.Errorf("ARENA_ADDR must not be empty")
	}
	if e.ClaimTTL <= 0 {
		return Env{}, fmt.Errorf("ARENA_CLAIM_TTL must be positive")
	}
	if e.JanitorInterval <= 0 {
		return Env{}, fmt.Errorf("ARENA_JANITOR_INTERVAL must be positive")
	}
	return e, nil
}
