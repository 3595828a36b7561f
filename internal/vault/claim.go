// Package vault implements signed reward claims: an oracle signs a claim
// off-chain and a vault verifier redeems it exactly once, to its recipient
// only, before it expires.
package vault

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/MJE43/arenacore/internal/apperr"
)

// DomainTag prefixes every encoded claim so a claim signature cannot be
// replayed as any other signed message.
const DomainTag = "arena-vault-claim/v1"

// EncodedClaimSize is len(DomainTag) + 3 addresses + amount + seqno + validUntil.
const EncodedClaimSize = len(DomainTag) + 3*common.AddressLength + 32 + 8 + 8

// Claim is the signed payload.
type Claim struct {
	VaultID    common.Address
	AssetID    common.Address
	Recipient  common.Address
	Amount     *uint256.Int
	Seqno      uint64
	ValidUntil uint64
}

// Encode returns the canonical fixed-width encoding.
func (c Claim) Encode() []byte {
	buf := make([]byte, 0, EncodedClaimSize)
	buf = append(buf, DomainTag...)
	buf = append(buf, c.VaultID.Bytes()...)
	buf = append(buf, c.AssetID.Bytes()...)
	buf = append(buf, c.Recipient.Bytes()...)

	amount := new(uint256.Int)
	if c.Amount != nil {
		amount = c.Amount
	}
	word := amount.Bytes32()
	buf = append(buf, word[:]...)
	buf = binary.BigEndian.AppendUint64(buf, c.Seqno)
	buf = binary.BigEndian.AppendUint64(buf, c.ValidUntil)
	return buf
}

// Digest is keccak256 of the canonical encoding.
func (c Claim) Digest() common.Hash {
	return ethcrypto.Keccak256Hash(c.Encode())
}

// DecodeClaim parses a canonical encoding.
func DecodeClaim(b []byte) (Claim, error) {
	if len(b) != EncodedClaimSize {
		return Claim{}, apperr.Validation("payload", fmt.Sprintf("claim payload must be %d bytes, got %d", EncodedClaimSize, len(b)))
	}
	if string(b[:len(DomainTag)]) != DomainTag {
		return Claim{}, apperr.Validation("payload", "claim payload has the wrong domain tag")
	}
	off := len(DomainTag)
	next := func(n int) []byte {
		out := b[off : off+n]
		off += n
		return out
	}

	var c Claim
	c.VaultID = common.BytesToAddress(next(common.AddressLength))
	c.AssetID = common.BytesToAddress(next(common.AddressLength))
	c.Recipient = common.BytesToAddress(next(common.AddressLength))
	c.Amount = new(uint256.Int).SetBytes32(next(32))
	c.Seqno = binary.BigEndian.Uint64(next(8))
	c.ValidUntil = binary.BigEndian.Uint64(next(8))
	return c, nil
}

// SignedClaim is a claim plus the oracle's 65-byte [R||S||V] signature.
type SignedClaim struct {
	Claim     Claim
	Signature []byte
}

type signedClaimJSON struct {
	VaultID    common.Address `json:"vault_id"`
	AssetID    common.Address `json:"asset_id"`
	Recipient  common.Address `json:"recipient"`
	Amount     string         `json:"amount"`
	Seqno      uint64         `json:"seqno"`
	ValidUntil uint64         `json:"valid_until"`
	Signature  hexutil.Bytes  `json:"signature"`
}

// MarshalJSON renders addresses and the signature as 0x-hex and the amount
// as a decimal string.
func (sc SignedClaim) MarshalJSON() ([]byte, error) {
	amount := "0"
	if sc.Claim.Amount != nil {
		amount = sc.Claim.Amount.Dec()
	}
	return json.Marshal(signedClaimJSON{
		VaultID:    sc.Claim.VaultID,
		AssetID:    sc.Claim.AssetID,
		Recipient:  sc.Claim.Recipient,
		Amount:     amount,
		Seqno:      sc.Claim.Seqno,
		ValidUntil: sc.Claim.ValidUntil,
		Signature:  sc.Signature,
	})
}

// UnmarshalJSON accepts the MarshalJSON form; amount may be decimal or 0x-hex.
func (sc *SignedClaim) UnmarshalJSON(b []byte) error {
	var raw signedClaimJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return err
	}
	*sc = SignedClaim{
		Claim: Claim{
			VaultID:    raw.VaultID,
			AssetID:    raw.AssetID,
			Recipient:  raw.Recipient,
			Amount:     amount,
			Seqno:      raw.Seqno,
			ValidUntil: raw.ValidUntil,
		},
		Signature: raw.Signature,
	}
	return nil
}

// ParseAmount parses a decimal or 0x-prefixed hex amount.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, apperr.Validation("amount", "amount is required")
	}
	var (
		v   *uint256.Int
		err error
	)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err = uint256.FromHex(s)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "invalid amount", err)
	}
	return v, nil
}

// ParseAddress parses a 0x-hex account address.
func ParseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, apperr.Validation(field, "invalid address")
	}
	return common.HexToAddress(s), nil
}
