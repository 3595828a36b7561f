// Package engine derives match seeds and drives the deterministic stream
// every simulation draws from.
package engine

import (
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Seed is the 32-bit value a Generator is started from.
type Seed = uint32

// SeedMessage identifies one logical match. Every field takes part in the
// derived seed, including ModeKey when it repeats Arena, so the same request
// id cannot be replayed across modes.
type SeedMessage struct {
	ActorID        string `json:"actor_id"`
	SubjectID      string `json:"subject_id"`
	ModeKey        string `json:"mode_key"`
	Arena          string `json:"arena"`
	League         string `json:"league"`
	RequestID      string `json:"request_id"`
	CounterpartyID string `json:"counterparty_id"`
}

// Canonical serializes the message fields in fixed order joined by ':'.
func (m SeedMessage) Canonical() string {
	return strings.Join([]string{
		m.ActorID,
		m.SubjectID,
		m.ModeKey,
		m.Arena,
		m.League,
		m.RequestID,
		m.CounterpartyID,
	}, ":")
}

// DeriveSeed returns the big-endian uint32 taken from the first four bytes of
// HMAC-SHA256(key, m.Canonical()).
func DeriveSeed(key []byte, m SeedMessage) Seed {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(m.Canonical()))
	return binary.BigEndian.Uint32(h.Sum(nil)[:4])
}

// SeedFromString resolves a free-form seed string. Strings of at least eight
// hex characters use their first eight characters directly; anything else is
// content-hashed with SHA-256.
func SeedFromString(s string) Seed {
	if isHexString(s) {
		v, err := strconv.ParseUint(s[:8], 16, 32)
		if err == nil {
			return Seed(v)
		}
	}
	sum := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint32(sum[:4])
}

// SubSeed derives the seed of one directed pairing inside a bracket.
func SubSeed(base string, i, j int) Seed {
	return SeedFromString(fmt.Sprintf("%s%d-%d", base, i, j))
}

// NewSeedHex returns 16 random bytes as lowercase hex.
func NewSeedHex() (string, error) {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// HashSeed returns a short SHA-256 prefix safe to log in place of a seed.
func HashSeed(seed string) string {
	if seed == "" {
		return "empty"
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:16]
}

func isHexString(s string) bool {
	if len(s) < 8 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
