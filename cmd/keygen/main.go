// Command keygen creates a seed HMAC key and an oracle keypair. With -store
// both secrets are written to the OS keyring (or the fallback file) for the
// given deployment; otherwise they are printed as env assignments.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/MJE43/arenacore/internal/config"
	"github.com/MJE43/arenacore/internal/secrets"
)

const seedKeyBytes = 32

// Keys is one generated secret set.
type Keys struct {
	SeedKey       string
	OracleKey     string
	OracleAddress string
}

func main() {
	log.SetPrefix("[KEYGEN] ")
	log.SetFlags(0)

	var (
		store      = flag.Bool("store", false, "store the keys in the keyring instead of printing them")
		deployment = flag.String("deployment", "", "deployment name (default: ARENA_DEPLOYMENT)")
	)
	flag.Parse()

	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("load env: %v", err)
	}
	if *deployment == "" {
		*deployment = env.Deployment
	}

	keys, err := generate(rand.Reader)
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	if !*store {
		printEnv(os.Stdout, keys)
		return
	}

	ks := secrets.NewKeyringStore(env.KeyringService, env.SecretsFallback)
	if err := ks.SetSeedKey(*deployment, keys.SeedKey); err != nil {
		log.Fatalf("store seed key: %v", err)
	}
	if err := ks.SetOracleKey(*deployment, keys.OracleKey); err != nil {
		log.Fatalf("store oracle key: %v", err)
	}
	fmt.Printf("stored keys for deployment %q\noracle address: %s\n", *deployment, keys.OracleAddress)
}

func generate(random io.Reader) (Keys, error) {
	seed := make([]byte, seedKeyBytes)
	if _, err := io.ReadFull(random, seed); err != nil {
		return Keys{}, fmt.Errorf("read seed key: %w", err)
	}
	oracle, err := ethcrypto.GenerateKey()
	if err != nil {
		return Keys{}, fmt.Errorf("generate oracle key: %w", err)
	}
	return Keys{
		SeedKey:       hex.EncodeToString(seed),
		OracleKey:     hex.EncodeToString(ethcrypto.FromECDSA(oracle)),
		OracleAddress: ethcrypto.PubkeyToAddress(oracle.PublicKey).Hex(),
	}, nil
}

func printEnv(w io.Writer, k Keys) {
	fmt.Fprintf(w, "ARENA_SEED_KEY=%s\n", k.SeedKey)
	fmt.Fprintf(w, "ARENA_ORACLE_KEY=%s\n", k.OracleKey)
	fmt.Fprintf(w, "# oracle address: %s\n", k.OracleAddress)
}
