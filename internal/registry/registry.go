// Package registry tracks order existence and activity.
package registry

import (
	"BookLedger/internal/encoding"
	"BookLedger/internal/entity"
	"BookLedger/internal/event"
	"BookLedger/internal/ledger"
	"BookLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

// OrderRegistry registers and deactivates orders against the shared state
// store. Registration is idempotent by construction: re-invoking with the
// same hash overwrites the row (last write wins), which makes event-log
// reprocessing safe without duplicate detection.
type OrderRegistry struct {
	store  state.Store
	vaults *ledger.VaultLedger
}

func NewOrderRegistry(store state.Store, vaults *ledger.VaultLedger) *OrderRegistry {
	return &OrderRegistry{store: store, vaults: vaults}
}

// RegisterOrder creates (or overwrites) the Order row for orderHash with
// active=true. Every input/output IO slot is resolved against the owner to a
// vault identity, creating the vault lazily; slot order is preserved. The
// returned vaults are every row touched, for persistence.
func (r *OrderRegistry) RegisterOrder(orderHash common.Hash, payload event.OrderPayload) (*entity.Order, []*entity.Vault, error) {
	encoded, err := encoding.EncodeOrder(payload)
	if err != nil {
		return nil, nil, err
	}

	touched := make([]*entity.Vault, 0, len(payload.ValidInputs)+len(payload.ValidOutputs))
	inputs := make([]string, len(payload.ValidInputs))
	for i, io := range payload.ValidInputs {
		v := r.vaults.Resolve(payload.Owner, io.VaultID, io.Token)
		inputs[i] = v.ID
		touched = append(touched, v)
	}
	outputs := make([]string, len(payload.ValidOutputs))
	for i, io := range payload.ValidOutputs {
		v := r.vaults.Resolve(payload.Owner, io.VaultID, io.Token)
		outputs[i] = v.ID
		touched = append(touched, v)
	}

	order := &entity.Order{
		Hash:         orderHash,
		Active:       true,
		Owner:        payload.Owner,
		Nonce:        payload.Nonce,
		InputVaults:  inputs,
		OutputVaults: outputs,
		OrderBytes:   encoded,
	}
	r.store.PutOrder(order)

	return order, touched, nil
}

// DeactivateOrder flips the order to inactive if it exists. Removing a hash
// that was never registered is a silent no-op; the caller still writes its
// removal audit record.
func (r *OrderRegistry) DeactivateOrder(orderHash common.Hash) (*entity.Order, bool) {
	order, ok := r.store.GetOrder(orderHash)
	if !ok {
		return nil, false
	}
	order.Active = false
	r.store.PutOrder(order)
	return order, true
}
