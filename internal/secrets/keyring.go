// Package secrets keeps the seed HMAC key and the oracle signing key out of
// config files: the OS keychain first, a 0600 JSON file when no keychain exists.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	partSeedKey   = "seed_key"
	partOracleKey = "oracle_key"
)

// DefaultService is the keychain service name used when none is configured.
const DefaultService = "arenacore"

// ErrNotFound is returned when a secret is in neither backend.
var ErrNotFound = keyring.ErrNotFound

// KeyringStore wraps the OS keychain with an optional file fallback.
type KeyringStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewKeyringStore creates a keyring wrapper.
func NewKeyringStore(serviceName, fallbackPath string) *KeyringStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = DefaultService
	}
	return &KeyringStore{
		service:      serviceName,
		fallbackPath: fallbackPath,
	}
}

func (k *KeyringStore) key(deployment, part string) string {
	return fmt.Sprintf("%s/%s", deployment, part)
}

func (k *KeyringStore) SetSeedKey(deployment, value string) error {
	return k.setSecret(deployment, partSeedKey, value)
}

// SeedKey returns the HMAC key seeds are derived with.
func (k *KeyringStore) SeedKey(deployment string) (string, error) {
	return k.getSecret(deployment, partSeedKey)
}

func (k *KeyringStore) SetOracleKey(deployment, value string) error {
	return k.setSecret(deployment, partOracleKey, value)
}

// OracleKey returns the hex secp256k1 key claims are signed with.
func (k *KeyringStore) OracleKey(deployment string) (string, error) {
	return k.getSecret(deployment, partOracleKey)
}

// DeleteAll removes both secrets for deployment from every backend.
func (k *KeyringStore) DeleteAll(deployment string) error {
	var errs []error
	for _, part := range []string{partSeedKey, partOracleKey} {
		if err := keyring.Delete(k.service, k.key(deployment, part)); err != nil &&
			!errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
			errs = append(errs, err)
		}
	}
	if ferr := k.deleteFallbackDeployment(deployment); ferr != nil {
		errs = append(errs, ferr)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("secrets: delete failed: %w", errors.Join(errs...))
}

// Resolve returns explicit when set, otherwise what lookup finds for deployment.
func Resolve(explicit string, lookup func(deployment string) (string, error), deployment string) (string, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return v, nil
	}
	return lookup(deployment)
}

func (k *KeyringStore) setSecret(deployment, part, value string) error {
	deployment = strings.TrimSpace(deployment)
	if deployment == "" {
		return fmt.Errorf("secrets: deployment id is required")
	}

	if err := keyring.Set(k.service, k.key(deployment, part), value); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("secrets: keyring set %s: %w", part, err)
	}

	return k.setFallback(deployment, part, value)
}

func (k *KeyringStore) getSecret(deployment, part string) (string, error) {
	deployment = strings.TrimSpace(deployment)
	if deployment == "" {
		return "", fmt.Errorf("secrets: deployment id is required")
	}

	val, err := keyring.Get(k.service, k.key(deployment, part))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("secrets: keyring get %s: %w", part, err)
	}

	fallback, ferr := k.getFallback(deployment, part)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackSecrets map[string]map[string]string

func (k *KeyringStore) setFallback(deployment, part, value string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("secrets: keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[deployment]; !ok {
		data[deployment] = map[string]string{}
	}
	data[deployment][part] = value
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) getFallback(deployment, part string) (string, error) {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return "", fmt.Errorf("secrets: fallback path not configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[deployment][part]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (k *KeyringStore) deleteFallbackDeployment(deployment string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[deployment]; !ok {
		return nil
	}
	delete(data, deployment)
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) readFallbackUnlocked() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("secrets: read fallback file: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("secrets: decode fallback file: %w", err)
	}
	return out, nil
}

func (k *KeyringStore) writeFallbackUnlocked(data fallbackSecrets) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("secrets: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("secrets: encode fallback file: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("secrets: write fallback file: %w", err)
	}
	return nil
}
