package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Vault is a balance account scoped to one (owner, vaultId, token) triple.
// The balance is the sum of all credits minus all debits applied since the
// vault was first referenced; there is no external source of truth.
type Vault struct {
	ID      string // keccak(owner || token || vaultId)
	Owner   common.Address
	Token   common.Address
	VaultID *big.Int
	Balance *big.Int
}

// Order is a standing instruction referencing input and output vaults.
// Keyed by the protocol-level order hash. Re-adding a removed hash overwrites
// the row and reactivates it.
type Order struct {
	Hash         common.Hash
	Active       bool
	Owner        common.Address
	Nonce        *big.Int
	InputVaults  []string // vault IDs, event order preserved
	OutputVaults []string
	OrderBytes   []byte // canonical audit encoding of the full order
}

// Transaction is the shared, deduplicated record of the transaction that
// emitted one or more events.
type Transaction struct {
	Hash        common.Hash
	BlockNumber uint64
	Timestamp   uint64
}

// Deposit is the immutable audit record of one deposit event.
type Deposit struct {
	ID              string // event identity
	Sender          common.Address
	Token           common.Address
	Vault           string
	Amount          *big.Int
	OldVaultBalance *big.Int
	NewVaultBalance *big.Int
	Transaction     common.Hash
}

// Withdrawal is the immutable audit record of one withdraw event.
// TargetAmount is the originally requested amount; Amount is what was
// actually debited. The two may differ and both are recorded verbatim.
type Withdrawal struct {
	ID              string
	Sender          common.Address
	Token           common.Address
	Vault           string
	Amount          *big.Int
	TargetAmount    *big.Int
	OldVaultBalance *big.Int
	NewVaultBalance *big.Int
	Transaction     common.Hash
}

// AddOrder links an Order to the transaction and sender that registered it.
type AddOrder struct {
	ID          string
	OrderHash   common.Hash
	Sender      common.Address
	Transaction common.Hash
}

// RemoveOrder is written for every remove event, whether or not the targeted
// order existed.
type RemoveOrder struct {
	ID          string
	OrderHash   common.Hash
	Sender      common.Address
	Transaction common.Hash
}

// TakeOrder is the audit record of one take-order event. Bounty is recorded
// verbatim from the event; it produces no balance leg of its own.
type TakeOrder struct {
	ID          string
	Sender      common.Address
	OrderHash   common.Hash
	TakerInput  *big.Int
	TakerOutput *big.Int
	Bounty      *big.Int
	Transaction common.Hash
}

// ChangeDirection marks which way a trade leg moved a vault balance.
type ChangeDirection int8

const (
	DirectionCredit ChangeDirection = iota
	DirectionDebit
)

func (d ChangeDirection) String() string {
	if d == DirectionDebit {
		return "debit"
	}
	return "credit"
}

// TradeVaultBalanceChange captures one leg of a trade settlement, mirroring
// Deposit/Withdrawal semantics but scoped to the trade.
type TradeVaultBalanceChange struct {
	ID          string
	Trade       string
	Vault       string
	Direction   ChangeDirection
	Amount      *big.Int
	OldBalance  *big.Int
	NewBalance  *big.Int
	Transaction common.Hash
}

// Trade links the two balance-change legs produced by one take-order event.
type Trade struct {
	ID           string
	OrderHash    common.Hash
	InputChange  string // credit leg (order receives its input token)
	OutputChange string // debit leg (order gives its output token)
	Transaction  common.Hash
}
