package ledger

import (
	"BookLedger/internal/entity"
	"BookLedger/internal/event"
	"BookLedger/internal/state"
)

// TransactionLedger upserts the lightweight transaction record shared by all
// entities emitted within one transaction. Effectively a deduplicating cache
// keyed by hash: the first event referencing a transaction creates the row,
// later events reuse it.
type TransactionLedger struct {
	store state.Store
}

func NewTransactionLedger(store state.Store) *TransactionLedger {
	return &TransactionLedger{store: store}
}

// Upsert returns the transaction row for meta, creating it on first
// reference. Reports whether this call created the row.
func (tl *TransactionLedger) Upsert(meta event.TxMeta) (*entity.Transaction, bool) {
	if tx, ok := tl.store.GetTransaction(meta.TxHash); ok {
		return tx, false
	}
	tx := &entity.Transaction{
		Hash:        meta.TxHash,
		BlockNumber: meta.Block,
		Timestamp:   meta.BlockTimestamp,
	}
	tl.store.PutTransaction(tx)
	return tx, true
}
