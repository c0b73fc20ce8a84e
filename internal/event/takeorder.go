package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TakeOrder settles an order against a taker. Amounts are from the taker's
// perspective: TakerInput is what the taker received (the order gives its
// output token), TakerOutput is what the taker paid (the order receives its
// input token). Bounty is recorded for audit and moves no vault balance.
type TakeOrder struct {
	Meta          TxMeta
	Sender        common.Address
	OrderHash     common.Hash
	Order         OrderPayload
	InputIOIndex  uint
	OutputIOIndex uint
	TakerInput    *big.Int
	TakerOutput   *big.Int
	Bounty        *big.Int
}

func (e *TakeOrder) EventID() string {
	return e.Meta.EventID()
}

func (e *TakeOrder) EventType() EventType {
	return EventTypeTakeOrder
}

func (e *TakeOrder) Tx() TxMeta {
	return e.Meta
}
