// Package settlement applies take-order events: two correlated vault balance
// changes plus the Trade row linking them.
package settlement

import (
	"errors"
	"fmt"

	"BookLedger/internal/entity"
	"BookLedger/internal/event"
	"BookLedger/internal/identity"
	"BookLedger/internal/ledger"
)

// ErrUnresolvedVault marks a trade whose IO references cannot be resolved.
// Fatal for the event: skipping it would silently drift balance state.
var ErrUnresolvedVault = errors.New("unresolved vault reference")

// Result is everything one take-order event produced.
type Result struct {
	TakeOrder    *entity.TakeOrder
	Trade        *entity.Trade
	InputChange  *entity.TradeVaultBalanceChange
	OutputChange *entity.TradeVaultBalanceChange
	Vaults       []*entity.Vault
}

// TradeSettlement settles trades through the vault ledger.
type TradeSettlement struct {
	vaults *ledger.VaultLedger
}

func NewTradeSettlement(vaults *ledger.VaultLedger) *TradeSettlement {
	return &TradeSettlement{vaults: vaults}
}

// SettleTrade applies one take-order event as a single logical unit:
// a debit of the order owner's output vault (the order gives its output
// token to the taker) and a credit of the order owner's input vault (the
// order receives its input token from the taker). Both references are
// validated before either balance moves, so a failure leaves no partial
// mutation behind.
func (ts *TradeSettlement) SettleTrade(evt *event.TakeOrder) (*Result, error) {
	order := evt.Order
	if int(evt.InputIOIndex) >= len(order.ValidInputs) {
		return nil, fmt.Errorf("%w: input io index %d out of range (%d inputs)",
			ErrUnresolvedVault, evt.InputIOIndex, len(order.ValidInputs))
	}
	if int(evt.OutputIOIndex) >= len(order.ValidOutputs) {
		return nil, fmt.Errorf("%w: output io index %d out of range (%d outputs)",
			ErrUnresolvedVault, evt.OutputIOIndex, len(order.ValidOutputs))
	}
	if evt.TakerInput == nil || evt.TakerOutput == nil {
		return nil, fmt.Errorf("%w: nil taker amount", ErrUnresolvedVault)
	}
	// The ledger rejects negative amounts; both signs must be checked before
	// either leg applies.
	if evt.TakerInput.Sign() < 0 || evt.TakerOutput.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative taker amount (input %s, output %s)",
			ErrUnresolvedVault, evt.TakerInput, evt.TakerOutput)
	}

	inIO := order.ValidInputs[evt.InputIOIndex]
	outIO := order.ValidOutputs[evt.OutputIOIndex]
	if inIO.VaultID == nil || outIO.VaultID == nil {
		return nil, fmt.Errorf("%w: io slot with nil vaultId", ErrUnresolvedVault)
	}

	eventID := evt.EventID()
	txHash := evt.Meta.TxHash

	// Output side: the order gives outIO.Token, debited by what the taker took.
	oldOut, err := ts.vaults.ApplyBalanceChange(outIO.VaultID, outIO.Token, evt.TakerInput, order.Owner, ledger.Debit)
	if err != nil {
		return nil, fmt.Errorf("%w: output leg: %v", ErrUnresolvedVault, err)
	}
	outVaultID := identity.VaultID(order.Owner, outIO.VaultID, outIO.Token)

	// Input side: the order receives inIO.Token, credited by what the taker paid.
	oldIn, err := ts.vaults.ApplyBalanceChange(inIO.VaultID, inIO.Token, evt.TakerOutput, order.Owner, ledger.Credit)
	if err != nil {
		return nil, fmt.Errorf("%w: input leg: %v", ErrUnresolvedVault, err)
	}
	inVaultID := identity.VaultID(order.Owner, inIO.VaultID, inIO.Token)

	outChange := &entity.TradeVaultBalanceChange{
		ID:          identity.Child(eventID, outVaultID),
		Trade:       eventID,
		Vault:       outVaultID,
		Direction:   entity.DirectionDebit,
		Amount:      evt.TakerInput,
		OldBalance:  oldOut,
		NewBalance:  ts.vaults.Resolve(order.Owner, outIO.VaultID, outIO.Token).Balance,
		Transaction: txHash,
	}
	inChange := &entity.TradeVaultBalanceChange{
		ID:          identity.Child(eventID, inVaultID),
		Trade:       eventID,
		Vault:       inVaultID,
		Direction:   entity.DirectionCredit,
		Amount:      evt.TakerOutput,
		OldBalance:  oldIn,
		NewBalance:  ts.vaults.Resolve(order.Owner, inIO.VaultID, inIO.Token).Balance,
		Transaction: txHash,
	}

	trade := &entity.Trade{
		ID:           eventID,
		OrderHash:    evt.OrderHash,
		InputChange:  inChange.ID,
		OutputChange: outChange.ID,
		Transaction:  txHash,
	}
	takeOrder := &entity.TakeOrder{
		ID:          eventID,
		Sender:      evt.Sender,
		OrderHash:   evt.OrderHash,
		TakerInput:  evt.TakerInput,
		TakerOutput: evt.TakerOutput,
		Bounty:      evt.Bounty,
		Transaction: txHash,
	}

	return &Result{
		TakeOrder:    takeOrder,
		Trade:        trade,
		InputChange:  inChange,
		OutputChange: outChange,
		Vaults: []*entity.Vault{
			ts.vaults.Resolve(order.Owner, inIO.VaultID, inIO.Token),
			ts.vaults.Resolve(order.Owner, outIO.VaultID, outIO.Token),
		},
	}, nil
}
