package vault

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/MJE43/arenacore/internal/apperr"
)

// DefaultMaxClaimTTL bounds how far in the future a claim may expire.
const DefaultMaxClaimTTL = 24 * time.Hour

// Oracle signs claims for one vault and asset.
type Oracle struct {
	key     *ecdsa.PrivateKey
	address common.Address
	vaultID common.Address
	assetID common.Address
	ttl     time.Duration
	now     func() time.Time
}

// NewOracle returns an Oracle whose claims expire ttl after signing.
// ttl must be positive and at most maxTTL.
func NewOracle(key *ecdsa.PrivateKey, vaultID, assetID common.Address, ttl, maxTTL time.Duration) (*Oracle, error) {
	if key == nil {
		return nil, apperr.Validation("oracle_key", "oracle key is required")
	}
	if maxTTL <= 0 {
		maxTTL = DefaultMaxClaimTTL
	}
	if ttl <= 0 || ttl > maxTTL {
		return nil, apperr.Validation("claim_ttl", fmt.Sprintf("claim ttl must be in (0, %s]", maxTTL))
	}
	return &Oracle{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		vaultID: vaultID,
		assetID: assetID,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Address is the oracle's signing address, the one vaults trust.
func (o *Oracle) Address() common.Address { return o.address }

// VaultID is the vault claims are signed for.
func (o *Oracle) VaultID() common.Address { return o.vaultID }

// AssetID is the asset claims pay out.
func (o *Oracle) AssetID() common.Address { return o.assetID }

// Sign builds and signs a claim valid until now+ttl.
func (o *Oracle) Sign(recipient common.Address, amount *uint256.Int, seqno uint64) (SignedClaim, error) {
	if recipient == (common.Address{}) {
		return SignedClaim{}, apperr.Validation("recipient", "recipient is required")
	}
	if amount == nil || amount.IsZero() {
		return SignedClaim{}, apperr.Validation("amount", "amount must be positive")
	}
	c := Claim{
		VaultID:    o.vaultID,
		AssetID:    o.assetID,
		Recipient:  recipient,
		Amount:     new(uint256.Int).Set(amount),
		Seqno:      seqno,
		ValidUntil: uint64(o.now().Add(o.ttl).Unix()),
	}
	sig, err := SignDigest(c.Digest(), o.key)
	if err != nil {
		return SignedClaim{}, err
	}
	return SignedClaim{Claim: c, Signature: sig}, nil
}
