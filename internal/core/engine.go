package core

import (
	"fmt"
	"math/big"
	"sort"
	"sync/atomic"
	"time"

	"BookLedger/internal/entity"
	"BookLedger/internal/event"
	"BookLedger/internal/ledger"
	"BookLedger/internal/observability"
	"BookLedger/internal/registry"
	"BookLedger/internal/settlement"
	"BookLedger/internal/state"
)

// Engine is the single-threaded event processor. Every mutation of the
// materialized state flows through ProcessEvent; downstream consumers see
// the results via the persist and projection channels.
type Engine struct {
	// Atomic so monitoring goroutines can read the sequence while the
	// processing goroutine advances it.
	sequence atomic.Int64

	store state.Store

	vaults     *ledger.VaultLedger
	txs        *ledger.TransactionLedger
	orders     *registry.OrderRegistry
	settlement *settlement.TradeSettlement

	hasher      *StateHasher
	idempotency *IdempotencyChecker
	ordering    *OrderingValidator
	metrics     *observability.Metrics

	persistChan    chan<- Output
	projectionChan chan<- Output
}

// RowSet is every entity row an event produced or touched. Persistence
// writes the whole set in one transaction; projections read what they need.
type RowSet struct {
	Transaction  *entity.Transaction
	Vaults       []*entity.Vault
	Order        *entity.Order
	AddOrder     *entity.AddOrder
	RemoveOrder  *entity.RemoveOrder
	Deposit      *entity.Deposit
	Withdrawal   *entity.Withdrawal
	TakeOrder    *entity.TakeOrder
	Trade        *entity.Trade
	TradeChanges []*entity.TradeVaultBalanceChange
}

// Output is what one processed event emits downstream.
type Output struct {
	Sequence   int64
	EventID    string
	EventType  event.EventType
	Pos        event.LogPos
	Timestamp  uint64 // block timestamp, versioned input
	RawPayload []byte
	StateHash  [32]byte
	PrevHash   [32]byte
	Rows       RowSet
}

func NewEngine(
	store state.Store,
	persistChan, projectionChan chan<- Output,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	lruCapacity int,
) *Engine {
	vaults := ledger.NewVaultLedger(store)

	return &Engine{
		store:          store,
		vaults:         vaults,
		txs:            ledger.NewTransactionLedger(store),
		orders:         registry.NewOrderRegistry(store, vaults),
		settlement:     settlement.NewTradeSettlement(vaults),
		hasher:         NewStateHasher(),
		idempotency:    NewIdempotencyChecker(lruCapacity, dbChecker),
		ordering:       NewOrderingValidator(),
		metrics:        metrics,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// ProcessEvent is the main processing pipeline: dedup, ordering, dispatch,
// state hash, emit, advance. raw is the wire payload as received; it goes
// into the event log verbatim so replay re-parses exactly what was ingested.
func (e *Engine) ProcessEvent(evt event.Event, raw []byte) error {
	start := time.Now()
	eventType := evt.EventType().String()
	eventID := evt.EventID()
	pos := evt.Tx().Pos()

	// Step 1: idempotency check (two-tier)
	isDuplicate := e.idempotency.IsDuplicate(eventType, eventID)

	// Step 2: ordering validation
	if err := e.ordering.Validate(pos, isDuplicate); err != nil {
		if e.metrics != nil {
			e.metrics.EventOutOfOrder.Inc()
			e.metrics.CoreEventsRejected.WithLabelValues(eventType, "out_of_order").Inc()
		}
		return err
	}

	// If duplicate, skip processing entirely: no state change, no rows.
	if isDuplicate {
		if e.metrics != nil {
			e.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: dispatch
	rows, err := e.dispatch(evt)
	if err != nil {
		if e.metrics != nil {
			e.metrics.CoreEventsRejected.WithLabelValues(eventType, "invalid").Inc()
		}
		return fmt.Errorf("dispatch %s %s: %w", eventType, eventID, err)
	}

	// Step 4: state digest and hash chain
	stateDigest := e.computeStateDigest(&rows)
	prevHash := e.hasher.GetPrevHash()
	seq := e.sequence.Load()
	stateHash := e.hasher.ComputeHash(seq, stateDigest)

	output := Output{
		Sequence:   seq,
		EventID:    eventID,
		EventType:  evt.EventType(),
		Pos:        pos,
		Timestamp:  evt.Tx().BlockTimestamp,
		RawPayload: raw,
		StateHash:  stateHash,
		PrevHash:   prevHash,
		Rows:       rows,
	}

	// Step 5: emit. Persistence uses a blocking send so the engine stalls
	// until the writer drains; nothing is lost. Projections are best-effort
	// and rebuildable, so a full channel drops the output.
	if e.persistChan != nil {
		e.persistChan <- output
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.Inc()
			}
		}
	}

	// Step 6: mark processed and advance the head
	e.idempotency.MarkProcessed(eventType, eventID)
	e.ordering.Advance(pos)
	next := e.sequence.Add(1)

	if e.metrics != nil {
		e.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(next))
		e.metrics.CoreHeadBlock.Set(float64(pos.Block))
		e.metrics.VaultCount.Set(float64(e.store.VaultCount()))
	}

	return nil
}

func (e *Engine) dispatch(evt event.Event) (RowSet, error) {
	switch ev := evt.(type) {
	case *event.Deposit:
		return e.handleDeposit(ev)
	case *event.Withdraw:
		return e.handleWithdraw(ev)
	case *event.AddOrder:
		return e.handleAddOrder(ev)
	case *event.RemoveOrder:
		return e.handleRemoveOrder(ev)
	case *event.TakeOrder:
		return e.handleTakeOrder(ev)
	default:
		return RowSet{}, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (e *Engine) handleDeposit(evt *event.Deposit) (RowSet, error) {
	old, err := e.vaults.ApplyBalanceChange(evt.VaultID, evt.Token, evt.Amount, evt.Sender, ledger.Credit)
	if err != nil {
		return RowSet{}, err
	}
	vault := e.vaults.Resolve(evt.Sender, evt.VaultID, evt.Token)
	tx, _ := e.txs.Upsert(evt.Meta)

	return RowSet{
		Transaction: tx,
		Vaults:      []*entity.Vault{vault},
		Deposit: &entity.Deposit{
			ID:              evt.EventID(),
			Sender:          evt.Sender,
			Token:           evt.Token,
			Vault:           vault.ID,
			Amount:          evt.Amount,
			OldVaultBalance: old,
			NewVaultBalance: new(big.Int).Set(vault.Balance),
			Transaction:     evt.Meta.TxHash,
		},
	}, nil
}

func (e *Engine) handleWithdraw(evt *event.Withdraw) (RowSet, error) {
	old, err := e.vaults.ApplyBalanceChange(evt.VaultID, evt.Token, evt.Amount, evt.Sender, ledger.Debit)
	if err != nil {
		return RowSet{}, err
	}
	vault := e.vaults.Resolve(evt.Sender, evt.VaultID, evt.Token)
	tx, _ := e.txs.Upsert(evt.Meta)

	return RowSet{
		Transaction: tx,
		Vaults:      []*entity.Vault{vault},
		Withdrawal: &entity.Withdrawal{
			ID:              evt.EventID(),
			Sender:          evt.Sender,
			Token:           evt.Token,
			Vault:           vault.ID,
			Amount:          evt.Amount,
			TargetAmount:    evt.TargetAmount,
			OldVaultBalance: old,
			NewVaultBalance: new(big.Int).Set(vault.Balance),
			Transaction:     evt.Meta.TxHash,
		},
	}, nil
}

func (e *Engine) handleAddOrder(evt *event.AddOrder) (RowSet, error) {
	order, vaults, err := e.orders.RegisterOrder(evt.OrderHash, evt.Order)
	if err != nil {
		// Encoding failures are fatal for the event: registering a
		// half-described order would corrupt the audit trail.
		return RowSet{}, err
	}
	tx, _ := e.txs.Upsert(evt.Meta)

	if e.metrics != nil {
		e.metrics.OrdersRegistered.Inc()
	}

	return RowSet{
		Transaction: tx,
		Vaults:      vaults,
		Order:       order,
		AddOrder: &entity.AddOrder{
			ID:          evt.EventID(),
			OrderHash:   evt.OrderHash,
			Sender:      evt.Sender,
			Transaction: evt.Meta.TxHash,
		},
	}, nil
}

func (e *Engine) handleRemoveOrder(evt *event.RemoveOrder) (RowSet, error) {
	// Removing an unknown hash is tolerated: the audit record is still
	// written, only the order row is left untouched.
	order, _ := e.orders.DeactivateOrder(evt.OrderHash)
	tx, _ := e.txs.Upsert(evt.Meta)

	if e.metrics != nil {
		e.metrics.OrdersRemoved.Inc()
	}

	return RowSet{
		Transaction: tx,
		Order:       order,
		RemoveOrder: &entity.RemoveOrder{
			ID:          evt.EventID(),
			OrderHash:   evt.OrderHash,
			Sender:      evt.Sender,
			Transaction: evt.Meta.TxHash,
		},
	}, nil
}

func (e *Engine) handleTakeOrder(evt *event.TakeOrder) (RowSet, error) {
	res, err := e.settlement.SettleTrade(evt)
	if err != nil {
		return RowSet{}, err
	}
	tx, _ := e.txs.Upsert(evt.Meta)

	if e.metrics != nil {
		e.metrics.TradesSettled.Inc()
	}

	return RowSet{
		Transaction:  tx,
		Vaults:       res.Vaults,
		TakeOrder:    res.TakeOrder,
		Trade:        res.Trade,
		TradeChanges: []*entity.TradeVaultBalanceChange{res.InputChange, res.OutputChange},
	}, nil
}

// computeStateDigest builds canonical bytes over the state this event
// touched: every affected vault's identity and balance in sorted order,
// plus the order row when one changed. Feeding only the touched rows keeps
// the digest cheap while the hash chain still pins the full history.
func (e *Engine) computeStateDigest(rows *RowSet) []byte {
	vaults := make([]*entity.Vault, len(rows.Vaults))
	copy(vaults, rows.Vaults)
	sort.Slice(vaults, func(i, j int) bool {
		return vaults[i].ID < vaults[j].ID
	})

	digest := make([]byte, 0, len(vaults)*80)
	for _, v := range vaults {
		digest = append(digest, byte(len(v.ID)))
		digest = append(digest, []byte(v.ID)...)

		// Sign byte then magnitude, so -5 and 5 never collide.
		if v.Balance.Sign() < 0 {
			digest = append(digest, 1)
		} else {
			digest = append(digest, 0)
		}
		abs := v.Balance.Bytes()
		digest = append(digest, byte(len(abs)))
		digest = append(digest, abs...)
	}

	if rows.Order != nil {
		digest = append(digest, rows.Order.Hash.Bytes()...)
		if rows.Order.Active {
			digest = append(digest, 1)
		} else {
			digest = append(digest, 0)
		}
	}

	return digest
}

// --- Snapshot & restore ---

// Sequence returns the next sequence number to assign. Safe to read from
// goroutines other than the processing one.
func (e *Engine) Sequence() int64 {
	return e.sequence.Load()
}

// StateHash returns the current hash-chain tip.
func (e *Engine) StateHash() [32]byte {
	return e.hasher.GetPrevHash()
}

// Head returns the log position of the last fully processed event.
func (e *Engine) Head() (event.LogPos, bool) {
	return e.ordering.Head()
}

// IdempotencyKeys returns the cached dedup keys for snapshotting.
func (e *Engine) IdempotencyKeys() []string {
	return e.idempotency.Keys()
}

// Restore seeds sequence, hash chain, head position and the dedup cache
// from a snapshot. Entity state is restored into the store separately.
func (e *Engine) Restore(sequence int64, stateHash [32]byte, head event.LogPos, idempotencyKeys []string) {
	e.sequence.Store(sequence)
	e.hasher.SetPrevHash(stateHash)
	e.ordering.Restore(head)
	e.idempotency.WarmFromKeys(idempotencyKeys)
}

// WarmIdempotency preloads dedup keys into the LRU without touching the
// rest of the engine state. Used on startup with recent keys from the
// event log so early duplicates skip the DB lookup.
func (e *Engine) WarmIdempotency(keys []string) {
	e.idempotency.WarmFromKeys(keys)
}
