package event

import "github.com/ethereum/go-ethereum/common"

// AddOrder registers a new order with its input/output vault references.
type AddOrder struct {
	Meta      TxMeta
	Sender    common.Address
	OrderHash common.Hash
	Order     OrderPayload
}

func (e *AddOrder) EventID() string {
	return e.Meta.EventID()
}

func (e *AddOrder) EventType() EventType {
	return EventTypeAddOrder
}

func (e *AddOrder) Tx() TxMeta {
	return e.Meta
}

// RemoveOrder deactivates an existing order. Removing a hash that was never
// registered is tolerated: the audit record is still written.
type RemoveOrder struct {
	Meta      TxMeta
	Sender    common.Address
	OrderHash common.Hash
}

func (e *RemoveOrder) EventID() string {
	return e.Meta.EventID()
}

func (e *RemoveOrder) EventType() EventType {
	return EventTypeRemoveOrder
}

func (e *RemoveOrder) Tx() TxMeta {
	return e.Meta
}
