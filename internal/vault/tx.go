package vault

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/MJE43/arenacore/internal/apperr"
)

// ClaimTx carries a signed claim to the vault. The submitter signs the
// payload and oracle signature together, so the sender is recovered from
// the transaction rather than read from the claim.
type ClaimTx struct {
	Payload   []byte `cramberry:"1"`
	OracleSig []byte `cramberry:"2"`
	SenderSig []byte `cramberry:"3"`
}

// NewClaimTx wraps sc and signs it with the submitter's key.
func NewClaimTx(sc SignedClaim, senderKey *ecdsa.PrivateKey) (ClaimTx, error) {
	tx := ClaimTx{
		Payload:   sc.Claim.Encode(),
		OracleSig: append([]byte(nil), sc.Signature...),
	}
	sig, err := SignDigest(tx.senderDigest(), senderKey)
	if err != nil {
		return ClaimTx{}, err
	}
	tx.SenderSig = sig
	return tx, nil
}

func (tx ClaimTx) senderDigest() common.Hash {
	return ethcrypto.Keccak256Hash(tx.Payload, tx.OracleSig)
}

// Sender recovers the submitting address.
func (tx ClaimTx) Sender() (common.Address, error) {
	addr, err := RecoverAddress(tx.senderDigest(), tx.SenderSig)
	if err != nil {
		return common.Address{}, apperr.Wrap(apperr.CodeSignatureInvalid, "invalid sender signature", err)
	}
	return addr, nil
}

// SignedClaim decodes the carried claim.
func (tx ClaimTx) SignedClaim() (SignedClaim, error) {
	c, err := DecodeClaim(tx.Payload)
	if err != nil {
		return SignedClaim{}, err
	}
	return SignedClaim{Claim: c, Signature: append([]byte(nil), tx.OracleSig...)}, nil
}

// Marshal encodes tx deterministically.
func (tx ClaimTx) Marshal() ([]byte, error) {
	b, err := cramberry.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("cramberry marshal: %w", err)
	}
	return b, nil
}

// DecodeClaimTx parses bytes produced by Marshal.
func DecodeClaimTx(b []byte) (ClaimTx, error) {
	if len(b) == 0 {
		return ClaimTx{}, apperr.Validation("tx", "transaction is empty")
	}
	var tx ClaimTx
	if err := cramberry.Unmarshal(b, &tx); err != nil {
		return ClaimTx{}, apperr.Wrap(apperr.CodeValidation, "decode claim transaction", err)
	}
	return tx, nil
}
