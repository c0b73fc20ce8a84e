package core_test

import (
	"math/big"
	"testing"

	"BookLedger/internal/core"
	"BookLedger/internal/event"
	"BookLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

// --- Test helpers ---

var (
	alice  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// newTestEngine creates an Engine with buffered channels and no DB checker.
func newTestEngine() (*core.Engine, state.Store, chan core.Output, chan core.Output) {
	store := state.NewMemoryStore()
	persistChan := make(chan core.Output, 1024)
	projChan := make(chan core.Output, 1024)
	e := core.NewEngine(store, persistChan, projChan, nil, nil, 1024)
	return e, store, persistChan, projChan
}

func meta(block uint64, logIndex uint) event.TxMeta {
	return event.TxMeta{
		TxHash:         common.BigToHash(big.NewInt(int64(block*1000 + uint64(logIndex)))),
		Block:          block,
		TxIndex:        0,
		LogIndex:       logIndex,
		BlockTimestamp: 1700000000 + block,
	}
}

func depositEvt(m event.TxMeta, sender common.Address, token common.Address, vaultID, amount int64) *event.Deposit {
	return &event.Deposit{
		Meta:    m,
		Sender:  sender,
		Token:   token,
		VaultID: big.NewInt(vaultID),
		Amount:  big.NewInt(amount),
	}
}

func withdrawEvt(m event.TxMeta, sender common.Address, token common.Address, vaultID, amount, target int64) *event.Withdraw {
	return &event.Withdraw{
		Meta:         m,
		Sender:       sender,
		Token:        token,
		VaultID:      big.NewInt(vaultID),
		Amount:       big.NewInt(amount),
		TargetAmount: big.NewInt(target),
	}
}

func orderPayload(owner common.Address) event.OrderPayload {
	return event.OrderPayload{
		Owner: owner,
		Nonce: big.NewInt(1),
		ValidInputs: []event.IO{
			{Token: tokenA, Decimals: 18, VaultID: big.NewInt(7)},
		},
		ValidOutputs: []event.IO{
			{Token: tokenB, Decimals: 18, VaultID: big.NewInt(7)},
		},
	}
}

func addOrderEvt(m event.TxMeta, owner common.Address, hash common.Hash) *event.AddOrder {
	return &event.AddOrder{
		Meta:      m,
		Sender:    owner,
		OrderHash: hash,
		Order:     orderPayload(owner),
	}
}

func takeOrderEvt(m event.TxMeta, owner common.Address, hash common.Hash, takerIn, takerOut int64) *event.TakeOrder {
	return &event.TakeOrder{
		Meta:          m,
		Sender:        bob,
		OrderHash:     hash,
		Order:         orderPayload(owner),
		InputIOIndex:  0,
		OutputIOIndex: 0,
		TakerInput:    big.NewInt(takerIn),
		TakerOutput:   big.NewInt(takerOut),
		Bounty:        big.NewInt(0),
	}
}

func drain(ch chan core.Output) []core.Output {
	var out []core.Output
	for {
		select {
		case o := <-ch:
			out = append(out, o)
		default:
			return out
		}
	}
}

// ============================================================================
// End-to-end lifecycle
// ============================================================================

// TestEngine_VaultLifecycle covers the canonical path: deposit 100, withdraw
// 100 with a target of 200, then a trade moving one unit each way.
func TestEngine_VaultLifecycle(t *testing.T) {
	e, store, persistChan, _ := newTestEngine()
	orderHash := common.HexToHash("0x0101")

	// Deposit 100 into (alice, 7, tokenB) — the vault the order gives from.
	dep := &event.Deposit{
		Meta:    meta(100, 0),
		Sender:  alice,
		Token:   tokenB,
		VaultID: big.NewInt(7),
		Amount:  big.NewInt(100),
	}
	if err := e.ProcessEvent(dep, nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	outs := drain(persistChan)
	if len(outs) != 1 {
		t.Fatalf("expected 1 persist output, got %d", len(outs))
	}
	d := outs[0].Rows.Deposit
	if d == nil {
		t.Fatal("deposit row missing")
	}
	if d.OldVaultBalance.Sign() != 0 || d.NewVaultBalance.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("deposit (old,new): got (%s,%s), want (0,100)", d.OldVaultBalance, d.NewVaultBalance)
	}

	// Withdraw with actual amount 100 but requested target 200: the vault
	// returns to zero and both amounts land in the audit row verbatim.
	wd := withdrawEvt(meta(101, 0), alice, tokenB, 7, 100, 200)
	if err := e.ProcessEvent(wd, nil); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	outs = drain(persistChan)
	w := outs[0].Rows.Withdrawal
	if w.Amount.Cmp(big.NewInt(100)) != 0 || w.TargetAmount.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("withdrawal amounts: got (%s,%s), want (100,200)", w.Amount, w.TargetAmount)
	}
	if w.NewVaultBalance.Sign() != 0 {
		t.Errorf("vault should be back at 0, got %s", w.NewVaultBalance)
	}

	// Register the order, then take it for one unit each way.
	if err := e.ProcessEvent(addOrderEvt(meta(102, 0), alice, orderHash), nil); err != nil {
		t.Fatalf("add order: %v", err)
	}
	drain(persistChan)

	if err := e.ProcessEvent(takeOrderEvt(meta(103, 0), alice, orderHash, 1, 1), nil); err != nil {
		t.Fatalf("take order: %v", err)
	}
	outs = drain(persistChan)
	rows := outs[0].Rows
	if rows.Trade == nil || rows.TakeOrder == nil {
		t.Fatal("trade rows missing")
	}
	if len(rows.TradeChanges) != 2 {
		t.Fatalf("expected 2 trade legs, got %d", len(rows.TradeChanges))
	}
	if len(rows.Vaults) != 2 {
		t.Fatalf("expected 2 vaults touched, got %d", len(rows.Vaults))
	}

	// Both IO slots share vault id 7, so only 2 vaults exist in total:
	// (alice, 7, tokenA) and (alice, 7, tokenB).
	if store.VaultCount() != 2 {
		t.Errorf("expected 2 vaults, got %d", store.VaultCount())
	}
}

// ============================================================================
// Idempotency & ordering
// ============================================================================

func TestEngine_DuplicateDeliverySkipped(t *testing.T) {
	e, store, persistChan, _ := newTestEngine()

	dep := depositEvt(meta(10, 0), alice, tokenA, 1, 50)
	if err := e.ProcessEvent(dep, nil); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := e.ProcessEvent(dep, nil); err != nil {
		t.Fatalf("redelivery must be tolerated: %v", err)
	}

	if got := len(drain(persistChan)); got != 1 {
		t.Errorf("duplicate must not emit: got %d outputs", got)
	}
	v, ok := store.GetVault(outVaultID(store))
	if !ok {
		t.Fatal("vault missing")
	}
	if v.Balance.Cmp(big.NewInt(50)) != 0 {
		t.Errorf("duplicate must not re-apply: balance %s, want 50", v.Balance)
	}
	if e.Sequence() != 1 {
		t.Errorf("sequence advanced on duplicate: %d", e.Sequence())
	}
}

func outVaultID(store state.Store) string {
	vaults := store.Vaults()
	if len(vaults) != 1 {
		return ""
	}
	return vaults[0].ID
}

func TestEngine_OutOfOrderRejected(t *testing.T) {
	e, _, _, _ := newTestEngine()

	if err := e.ProcessEvent(depositEvt(meta(20, 5), alice, tokenA, 1, 10), nil); err != nil {
		t.Fatalf("first event: %v", err)
	}

	// A NEW event at an earlier position is an upstream bug, not a replay.
	err := e.ProcessEvent(depositEvt(meta(20, 3), alice, tokenA, 1, 10), nil)
	if err == nil {
		t.Fatal("expected out-of-order rejection")
	}
	if e.Sequence() != 1 {
		t.Errorf("rejected event must not advance sequence: %d", e.Sequence())
	}
}

func TestEngine_OrderAcrossBlocks(t *testing.T) {
	e, _, _, _ := newTestEngine()

	positions := []event.TxMeta{meta(1, 9), meta(2, 0), meta(2, 1), meta(5, 0)}
	for i, m := range positions {
		if err := e.ProcessEvent(depositEvt(m, alice, tokenA, int64(i), 1), nil); err != nil {
			t.Fatalf("event %d (%s): %v", i, m.Pos(), err)
		}
	}
	head, ok := e.Head()
	if !ok || head.Block != 5 {
		t.Errorf("head = %v (%v), want block 5", head, ok)
	}
}

// ============================================================================
// Order lifecycle via engine
// ============================================================================

func TestEngine_RemoveNonexistentOrderIsNoOp(t *testing.T) {
	e, store, persistChan, _ := newTestEngine()

	rm := &event.RemoveOrder{
		Meta:      meta(30, 0),
		Sender:    alice,
		OrderHash: common.HexToHash("0xdead"),
	}
	if err := e.ProcessEvent(rm, nil); err != nil {
		t.Fatalf("remove of unknown hash must not fail: %v", err)
	}

	outs := drain(persistChan)
	rows := outs[0].Rows
	if rows.RemoveOrder == nil {
		t.Error("removal audit record must be written regardless")
	}
	if rows.Order != nil {
		t.Error("no order row should be touched")
	}
	if len(store.Orders()) != 0 {
		t.Error("no order should exist")
	}
}

func TestEngine_ReAddReactivatesOrder(t *testing.T) {
	e, store, _, _ := newTestEngine()
	hash := common.HexToHash("0x0202")

	steps := []event.Event{
		addOrderEvt(meta(40, 0), alice, hash),
		&event.RemoveOrder{Meta: meta(41, 0), Sender: alice, OrderHash: hash},
		addOrderEvt(meta(42, 0), alice, hash),
	}
	for i, evt := range steps {
		if err := e.ProcessEvent(evt, nil); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	order, ok := store.GetOrder(hash)
	if !ok {
		t.Fatal("order missing")
	}
	if !order.Active {
		t.Error("re-added order must be active again")
	}
}

// ============================================================================
// Determinism
// ============================================================================

// TestEngine_ReplayDeterminism replays the same stream through two fresh
// engines and requires identical hash-chain tips at every step.
func TestEngine_ReplayDeterminism(t *testing.T) {
	hash := common.HexToHash("0x0303")
	stream := func() []event.Event {
		return []event.Event{
			depositEvt(meta(50, 0), alice, tokenB, 7, 100),
			addOrderEvt(meta(51, 0), alice, hash),
			takeOrderEvt(meta(52, 0), alice, hash, 1, 1),
			withdrawEvt(meta(53, 0), alice, tokenB, 7, 99, 99),
		}
	}

	run := func() [][32]byte {
		e, _, persistChan, _ := newTestEngine()
		var hashes [][32]byte
		for i, evt := range stream() {
			if err := e.ProcessEvent(evt, nil); err != nil {
				t.Fatalf("event %d: %v", i, err)
			}
			hashes = append(hashes, e.StateHash())
		}
		drain(persistChan)
		return hashes
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("state hash diverged at step %d", i)
		}
	}
}

func TestEngine_FailedDispatchLeavesStateUntouched(t *testing.T) {
	e, store, persistChan, _ := newTestEngine()
	hash := common.HexToHash("0x0404")

	evt := takeOrderEvt(meta(60, 0), alice, hash, 1, 1)
	evt.OutputIOIndex = 9 // dangling reference

	before := e.StateHash()
	if err := e.ProcessEvent(evt, nil); err == nil {
		t.Fatal("expected unresolved-vault failure")
	}
	if e.StateHash() != before {
		t.Error("failed event must not extend the hash chain")
	}
	if store.VaultCount() != 0 {
		t.Error("failed event must not create vaults")
	}
	if len(drain(persistChan)) != 0 {
		t.Error("failed event must not emit")
	}
}

// TestEngine_NegativeTradeAmountLeavesStateUntouched rejects a take order
// whose second leg the ledger would refuse. The first leg must not survive
// the abort.
func TestEngine_NegativeTradeAmountLeavesStateUntouched(t *testing.T) {
	e, store, persistChan, _ := newTestEngine()
	hash := common.HexToHash("0x0505")

	if err := e.ProcessEvent(depositEvt(meta(60, 0), alice, tokenB, 7, 100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := e.ProcessEvent(addOrderEvt(meta(61, 0), alice, hash), nil); err != nil {
		t.Fatalf("add order: %v", err)
	}
	drain(persistChan)
	before := e.StateHash()

	// Output-leg debit of 10 would succeed; the negative input-leg credit
	// cannot. The whole event must abort with the deposit intact.
	if err := e.ProcessEvent(takeOrderEvt(meta(62, 0), alice, hash, 10, -1), nil); err == nil {
		t.Fatal("expected negative-amount failure")
	}

	if e.StateHash() != before {
		t.Error("failed event must not extend the hash chain")
	}
	if len(drain(persistChan)) != 0 {
		t.Error("failed event must not emit")
	}
	for _, v := range store.Vaults() {
		if v.Token == tokenB && v.Balance.Cmp(big.NewInt(100)) != 0 {
			t.Errorf("deposit vault balance = %s, want untouched 100", v.Balance)
		}
	}
}

// ============================================================================
// Snapshot restore
// ============================================================================

func TestEngine_RestoreResumesChain(t *testing.T) {
	e1, _, persistChan, _ := newTestEngine()
	if err := e1.ProcessEvent(depositEvt(meta(70, 0), alice, tokenA, 1, 10), nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	drain(persistChan)
	head, _ := e1.Head()

	e2, _, persistChan2, _ := newTestEngine()
	e2.Restore(e1.Sequence(), e1.StateHash(), head, e1.IdempotencyKeys())

	// The restored engine must reject a fresh event at the old position...
	if err := e2.ProcessEvent(depositEvt(meta(69, 0), alice, tokenA, 1, 10), nil); err == nil {
		t.Error("pre-head event must be rejected after restore")
	}
	// ...skip a redelivery of the snapshotted event...
	if err := e2.ProcessEvent(depositEvt(meta(70, 0), alice, tokenA, 1, 10), nil); err != nil {
		t.Errorf("snapshotted event redelivery must be skipped: %v", err)
	}
	if len(drain(persistChan2)) != 0 {
		t.Error("redelivery after restore must not emit")
	}
	// ...and carry the chain forward from the restored tip.
	prev := e2.StateHash()
	if prev != e1.StateHash() {
		t.Fatal("restored tip mismatch")
	}
	if err := e2.ProcessEvent(depositEvt(meta(71, 0), alice, tokenA, 1, 10), nil); err != nil {
		t.Fatalf("post-restore event: %v", err)
	}
	if e2.StateHash() == prev {
		t.Error("chain must advance past the restored tip")
	}
}
