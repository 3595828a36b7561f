package vault

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/MJE43/arenacore/internal/apperr"
)

// SignDigest signs a 32-byte digest, returning [R||S||V] with V in {0,1}.
func SignDigest(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "sign digest", err)
	}
	return sig, nil
}

// RecoverAddress returns the address that produced sig over digest. V may
// be 0/1 or 27/28; high-S signatures are rejected.
func RecoverAddress(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, apperr.New(apperr.CodeSignatureInvalid, "signature must be 65 bytes")
	}
	normalized := make([]byte, ethcrypto.SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !ethcrypto.ValidateSignatureValues(normalized[64], r, s, true) {
		return common.Address{}, apperr.New(apperr.CodeSignatureInvalid, "signature values out of range")
	}

	pub, err := ethcrypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, apperr.Wrap(apperr.CodeSignatureInvalid, "recover signer", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
