package event

import (
	"fmt"
	"math/big"

	"BookLedger/internal/identity"

	"github.com/ethereum/go-ethereum/common"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeAddOrder
	EventTypeRemoveOrder
	EventTypeDeposit
	EventTypeWithdraw
	EventTypeTakeOrder
)

func (et EventType) String() string {
	switch et {
	case EventTypeAddOrder:
		return "AddOrder"
	case EventTypeRemoveOrder:
		return "RemoveOrder"
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdraw:
		return "Withdraw"
	case EventTypeTakeOrder:
		return "TakeOrder"
	default:
		return "Unknown"
	}
}

// LogPos is an event's position in the chain: (block, transaction index,
// log index). The upstream supplies events in strictly increasing LogPos
// order; the engine rejects anything else.
type LogPos struct {
	Block    uint64
	TxIndex  uint
	LogIndex uint
}

// Cmp returns -1, 0 or 1 comparing p against o in (block, tx, log) order.
func (p LogPos) Cmp(o LogPos) int {
	switch {
	case p.Block != o.Block:
		if p.Block < o.Block {
			return -1
		}
		return 1
	case p.TxIndex != o.TxIndex:
		if p.TxIndex < o.TxIndex {
			return -1
		}
		return 1
	case p.LogIndex != o.LogIndex:
		if p.LogIndex < o.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}

func (p LogPos) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Block, p.TxIndex, p.LogIndex)
}

// TxMeta carries the transaction identity every event arrives with.
// BlockTimestamp is a versioned input from the block header — the engine
// never reads the wall clock.
type TxMeta struct {
	TxHash         common.Hash
	Block          uint64
	TxIndex        uint
	LogIndex       uint
	BlockTimestamp uint64
}

// EventID derives the deterministic identity of this event occurrence.
func (m TxMeta) EventID() string {
	return identity.EventID(m.TxHash, m.LogIndex)
}

// Pos returns the event's position in the chain log.
func (m TxMeta) Pos() LogPos {
	return LogPos{Block: m.Block, TxIndex: m.TxIndex, LogIndex: m.LogIndex}
}

// Event is the interface all decoded event payloads implement.
type Event interface {
	// EventID returns the deterministic dedup key
	EventID() string

	// EventType returns the discriminator
	EventType() EventType

	// Tx returns the transaction identity and log position
	Tx() TxMeta
}

// IO is one input or output slot of an order: which token moves through
// which of the owner's vaults.
type IO struct {
	Token    common.Address
	Decimals uint8
	VaultID  *big.Int
}

// Evaluable is the on-chain triple an order is evaluated with. Recorded for
// audit only — evaluation happens on-chain.
type Evaluable struct {
	Interpreter common.Address
	Store       common.Address
	Expression  []byte
}

// OrderPayload is the full order as decoded from the event parameters.
// Vault identities for every IO slot are derivable from (Owner, VaultID,
// Token) and resolve to the same rows deposits and trades touch.
type OrderPayload struct {
	Owner        common.Address
	Nonce        *big.Int
	Evaluable    Evaluable
	ValidInputs  []IO
	ValidOutputs []IO
}
