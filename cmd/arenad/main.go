// Command arenad serves the settlement core over HTTP.
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/arenacore/internal/api"
	"github.com/MJE43/arenacore/internal/config"
	"github.com/MJE43/arenacore/internal/journal"
	"github.com/MJE43/arenacore/internal/runs"
	"github.com/MJE43/arenacore/internal/secrets"
	"github.com/MJE43/arenacore/internal/settlement"
	"github.com/MJE43/arenacore/internal/store"
	"github.com/MJE43/arenacore/internal/tournament"
	"github.com/MJE43/arenacore/internal/vault"
)

const (
	logFlags        = log.LstdFlags | log.LUTC
	shutdownTimeout = 10 * time.Second
	minSeedKeyBytes = 16
)

func main() {
	log.SetPrefix("[ARENAD] ")
	log.SetFlags(logFlags)

	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("load env: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, env); err != nil {
		log.Fatalf("arenad: %v", err)
	}
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, logFlags)
}

func run(ctx context.Context, env config.Env) (err error) {
	tuning, err := config.LoadTuning(env.TuningPath)
	if err != nil {
		return err
	}
	rates, err := tuning.Rates()
	if err != nil {
		return err
	}

	keys := secrets.NewKeyringStore(env.KeyringService, env.SecretsFallback)
	seedKey, err := loadSeedKey(env, keys)
	if err != nil {
		return err
	}
	oracleKey, err := loadOracleKey(env, keys)
	if err != nil {
		return err
	}
	vaultID, err := vault.ParseAddress("vault_id", env.VaultID)
	if err != nil {
		return err
	}
	assetID, err := vault.ParseAddress("asset_id", env.AssetID)
	if err != nil {
		return err
	}
	scale, err := vault.ParseAmount(env.ClaimScale)
	if err != nil {
		return fmt.Errorf("ARENA_CLAIM_SCALE: %w", err)
	}

	db, err := store.Open(ctx, env.DBPath, store.Options{Logger: newLogger("[STORE] ")})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	if err := db.SeedConfig(ctx, tuning.EconomyConfig()); err != nil {
		return fmt.Errorf("seed economy config: %w", err)
	}

	var rec journal.Recorder = journal.Nop{}
	if dir := strings.TrimSpace(env.JournalDir); dir != "" {
		w := journal.NewWriter(dir, "arenad")
		defer func() { err = multierr.Append(err, w.Close()) }()
		rec = w
	}

	tracker := runs.NewTracker(db, tuning.RunTTLs, runs.WithLogger(newLogger("[RUNS] ")))
	oracle, err := vault.NewOracle(oracleKey, vaultID, assetID, env.ClaimTTL, tuning.ClaimMaxTTL)
	if err != nil {
		return err
	}
	vaultLogger := newLogger("[VAULT] ")

	deps := api.Deps{
		Settlement: settlement.NewService(settlement.Config{
			SeedKey:     seedKey,
			Arenas:      tuning.Arenas,
			RewardRates: rates,
		}, tracker, db, db, rec, newLogger("[SETTLE] ")),
		Tracker:     tracker,
		Tournaments: tournament.NewOrchestrator(db, db, tuning.Arenas, tuning.PrizeSplit, rec, newLogger("[TOURNAMENT] ")),
		Issuer:      vault.NewIssuer(oracle, tracker, db, db, scale, rec, vaultLogger),
		Vault:       vault.NewVault(vaultID, oracle.Address(), db.VaultLedger(), rec, vaultLogger),
		AssetID:     assetID,
		Ledger:      db,
		Balances:    db,
		Configs:     db,
		Allowed:     tuning.AllowedKeys(),
		Arenas:      tuning.Arenas,
		Journal:     rec,
		Database:    db,
	}
	server := api.NewServer(deps)
	httpServer := &http.Server{
		Addr:              env.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("starting addr=%s db=%s oracle=%s vault=%s version=%s",
		env.Addr, env.DBPath, oracle.Address().Hex(), vaultID.Hex(), api.ServiceVersion)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return runs.NewJanitor(tracker, env.JanitorInterval, newLogger("[JANITOR] ")).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Printf("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadSeedKey(env config.Env, keys *secrets.KeyringStore) ([]byte, error) {
	raw, err := secrets.Resolve(env.SeedKey, keys.SeedKey, env.Deployment)
	if err != nil {
		return nil, fmt.Errorf("seed key: set ARENA_SEED_KEY or run keygen -store: %w", err)
	}
	return parseSeedKey(raw)
}

func loadOracleKey(env config.Env, keys *secrets.KeyringStore) (*ecdsa.PrivateKey, error) {
	raw, err := secrets.Resolve(env.OracleKey, keys.OracleKey, env.Deployment)
	if err != nil {
		return nil, fmt.Errorf("oracle key: set ARENA_ORACLE_KEY or run keygen -store: %w", err)
	}
	return parseOracleKey(raw)
}

// parseSeedKey decodes a hex HMAC key of at least 16 bytes.
func parseSeedKey(raw string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("seed key is not hex: %w", err)
	}
	if len(key) < minSeedKeyBytes {
		return nil, fmt.Errorf("seed key must be at least %d bytes, got %d", minSeedKeyBytes, len(key))
	}
	return key, nil
}

func parseOracleKey(raw string) (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("oracle key: %w", err)
	}
	return key, nil
}
