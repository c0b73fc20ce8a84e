package ledger

import (
	"fmt"
	"math/big"

	"BookLedger/internal/entity"
	"BookLedger/internal/identity"
	"BookLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

// Direction of a balance change.
type Direction int8

const (
	Credit Direction = iota
	Debit
)

func (d Direction) String() string {
	if d == Debit {
		return "debit"
	}
	return "credit"
}

// VaultLedger is the balance-accounting core. It maps (owner, vaultId, token)
// to a running balance and applies atomic credits and debits. For a fixed
// sequence of calls on one identity the resulting balance depends only on
// call order and inputs — no time, randomness, or external reads.
type VaultLedger struct {
	store state.Store
}

func NewVaultLedger(store state.Store) *VaultLedger {
	return &VaultLedger{store: store}
}

// ApplyBalanceChange resolves the vault for (owner, vaultId, token), creating
// it at balance 0 if unseen, applies the change, and persists the updated row
// before returning. The returned balance is the one BEFORE this mutation, so
// callers can record the (old, new) audit pair.
//
// A debit may drive the balance negative: the ledger trusts the event source
// (the protocol enforces non-negativity on-chain) and any occurrence remains
// observable through the audit trail.
func (vl *VaultLedger) ApplyBalanceChange(
	vaultID *big.Int,
	token common.Address,
	amount *big.Int,
	owner common.Address,
	dir Direction,
) (*big.Int, error) {
	if vaultID == nil || amount == nil {
		return nil, fmt.Errorf("apply balance change: nil vaultId or amount")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("apply balance change: negative amount %s", amount)
	}

	id := identity.VaultID(owner, vaultID, token)
	vault, _ := vl.store.GetOrCreateVault(id, func() *entity.Vault {
		return &entity.Vault{
			ID:      id,
			Owner:   owner,
			Token:   token,
			VaultID: new(big.Int).Set(vaultID),
			Balance: new(big.Int),
		}
	})

	old := new(big.Int).Set(vault.Balance)
	if dir == Credit {
		vault.Balance = new(big.Int).Add(old, amount)
	} else {
		vault.Balance = new(big.Int).Sub(old, amount)
	}
	vl.store.PutVault(vault)

	return old, nil
}

// Resolve returns the vault for (owner, vaultId, token), creating it lazily
// at balance 0. Used by order registration, which references vaults without
// moving balances.
func (vl *VaultLedger) Resolve(owner common.Address, vaultID *big.Int, token common.Address) *entity.Vault {
	id := identity.VaultID(owner, vaultID, token)
	vault, _ := vl.store.GetOrCreateVault(id, func() *entity.Vault {
		return &entity.Vault{
			ID:      id,
			Owner:   owner,
			Token:   token,
			VaultID: new(big.Int).Set(vaultID),
			Balance: new(big.Int),
		}
	})
	return vault
}
