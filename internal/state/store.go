package state

import (
	"BookLedger/internal/entity"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the materialized-state abstraction shared by all handlers.
// It is injected into each component; there is no process-wide singleton.
// Consistency model is read-your-writes within one processing step: the
// single-threaded engine owns every entity it touches.
type Store interface {
	GetVault(id string) (*entity.Vault, bool)
	GetOrCreateVault(id string, create func() *entity.Vault) (*entity.Vault, bool)
	PutVault(v *entity.Vault)
	VaultCount() int

	GetOrder(hash common.Hash) (*entity.Order, bool)
	PutOrder(o *entity.Order)
	Orders() []*entity.Order

	GetTransaction(hash common.Hash) (*entity.Transaction, bool)
	PutTransaction(tx *entity.Transaction)

	Vaults() []*entity.Vault
}
