package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Deposit credits a vault.
type Deposit struct {
	Meta    TxMeta
	Sender  common.Address
	Token   common.Address
	VaultID *big.Int
	Amount  *big.Int
}

func (e *Deposit) EventID() string {
	return e.Meta.EventID()
}

func (e *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (e *Deposit) Tx() TxMeta {
	return e.Meta
}

// Withdraw debits a vault. TargetAmount is the requested amount before any
// protocol-side capping; Amount is what was actually debited.
type Withdraw struct {
	Meta         TxMeta
	Sender       common.Address
	Token        common.Address
	VaultID      *big.Int
	Amount       *big.Int
	TargetAmount *big.Int
}

func (e *Withdraw) EventID() string {
	return e.Meta.EventID()
}

func (e *Withdraw) EventType() EventType {
	return EventTypeWithdraw
}

func (e *Withdraw) Tx() TxMeta {
	return e.Meta
}
