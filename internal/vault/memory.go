package vault

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/MJE43/arenacore/internal/apperr"
)

type nonceKey struct {
	vault     common.Address
	recipient common.Address
	seqno     uint64
}

type assetKey struct {
	vault common.Address
	asset common.Address
}

type holderKey struct {
	assetKey
	holder common.Address
}

// MemoryLedger is a Ledger whose atomic section is one mutex.
type MemoryLedger struct {
	mu       sync.Mutex
	consumed map[nonceKey]time.Time
	reserves map[assetKey]*uint256.Int
	balances map[holderKey]*uint256.Int
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		consumed: make(map[nonceKey]time.Time),
		reserves: make(map[assetKey]*uint256.Int),
		balances: make(map[holderKey]*uint256.Int),
	}
}

func (m *MemoryLedger) Consume(_ context.Context, c Claim, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	nk := nonceKey{vault: c.VaultID, recipient: c.Recipient, seqno: c.Seqno}
	if _, used := m.consumed[nk]; used {
		return apperr.ErrReplayedSeqno
	}
	ak := assetKey{vault: c.VaultID, asset: c.AssetID}
	reserve := m.reserves[ak]
	if reserve == nil || reserve.Lt(c.Amount) {
		return apperr.New(apperr.CodeVaultInsufficientReserve, "vault reserve too low")
	}

	m.consumed[nk] = now
	m.reserves[ak] = new(uint256.Int).Sub(reserve, c.Amount)
	hk := holderKey{assetKey: ak, holder: c.Recipient}
	bal := m.balances[hk]
	if bal == nil {
		bal = new(uint256.Int)
	}
	m.balances[hk] = new(uint256.Int).Add(bal, c.Amount)
	return nil
}

func (m *MemoryLedger) Deposit(_ context.Context, vaultID, assetID common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ak := assetKey{vault: vaultID, asset: assetID}
	cur := m.reserves[ak]
	if cur == nil {
		cur = new(uint256.Int)
	}
	sum, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return apperr.Validation("amount", "reserve overflow")
	}
	m.reserves[ak] = sum
	return nil
}

func (m *MemoryLedger) Reserve(_ context.Context, vaultID, assetID common.Address) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.reserves[assetKey{vault: vaultID, asset: assetID}]; r != nil {
		return new(uint256.Int).Set(r), nil
	}
	return new(uint256.Int), nil
}

func (m *MemoryLedger) BalanceOf(_ context.Context, vaultID, assetID, holder common.Address) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.balances[holderKey{assetKey: assetKey{vault: vaultID, asset: assetID}, holder: holder}]; b != nil {
		return new(uint256.Int).Set(b), nil
	}
	return new(uint256.Int), nil
}

func (m *MemoryLedger) IsConsumed(_ context.Context, vaultID, recipient common.Address, seqno uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, used := m.consumed[nonceKey{vault: vaultID, recipient: recipient, seqno: seqno}]
	return used, nil
}

// MemoryClaimStore is a process-local ClaimStore.
type MemoryClaimStore struct {
	mu     sync.Mutex
	seqnos map[[2]common.Address]uint64
	issued map[string]IssuedClaim
}

// NewMemoryClaimStore returns an empty MemoryClaimStore.
func NewMemoryClaimStore() *MemoryClaimStore {
	return &MemoryClaimStore{
		seqnos: make(map[[2]common.Address]uint64),
		issued: make(map[string]IssuedClaim),
	}
}

func (m *MemoryClaimStore) NextSeqno(_ context.Context, vaultID, recipient common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]common.Address{vaultID, recipient}
	m.seqnos[key]++
	return m.seqnos[key], nil
}

func (m *MemoryClaimStore) SaveIssuedClaim(_ context.Context, ic IssuedClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued[ic.ID] = ic
	return nil
}

func (m *MemoryClaimStore) GetIssuedClaim(_ context.Context, id string) (IssuedClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ic, ok := m.issued[id]
	if !ok {
		return IssuedClaim{}, apperr.WithMetadata(apperr.CodeNotFound, "claim not found", map[string]string{"claim_id": id})
	}
	return ic, nil
}
