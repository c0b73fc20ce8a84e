package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"BookLedger/internal/core"
	"BookLedger/internal/ingestion"
	"BookLedger/internal/observability"
	"BookLedger/internal/persistence"
	"BookLedger/internal/state"
)

// TestIngestionLoop_SnapshotCaptureIsConsistent drives the ingestion loop
// with deposits and interleaved snapshot requests. Captures are serviced on
// the same goroutine that mutates the engine, so every snapshot must pair
// the sequence with exactly the balances that sequence produced.
func TestIngestionLoop_SnapshotCaptureIsConsistent(t *testing.T) {
	store := state.NewMemoryStore()
	persistChan := make(chan core.Output, 16)
	projChan := make(chan core.Output, 16)
	metrics := observability.NewMetrics()
	engine := core.NewEngine(store, persistChan, projChan, nil, metrics, 64)

	rawChan := make(chan ingestion.RawEvent, 4)
	snapReqChan := make(chan chan *persistence.SnapshotData)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runIngestionLoop(ctx, rawChan, snapReqChan, engine, store, metrics)

	acked := make(chan struct{}, 4)
	deposit := func(block uint64, amount string) ingestion.RawEvent {
		payload := fmt.Sprintf(
			`{"tx_hash":"0x%064x","block_number":%d,"tx_index":0,"log_index":0,"block_timestamp":1700000000,`+
				`"sender":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",`+
				`"token":"0x00000000000000000000000000000000000000b2",`+
				`"vault_id":"7","amount":"%s"}`,
			block, block, amount)
		return ingestion.RawEvent{
			Subject:   "orderbook.deposit",
			EventType: "Deposit",
			Data:      []byte(payload),
			AckFunc:   func() { acked <- struct{}{} },
			NakFunc:   func() { t.Error("unexpected nak") },
		}
	}

	capture := func() *persistence.SnapshotData {
		reply := make(chan *persistence.SnapshotData, 1)
		select {
		case snapReqChan <- reply:
		case <-time.After(5 * time.Second):
			t.Fatal("loop did not accept snapshot request")
		}
		select {
		case snap := <-reply:
			return snap
		case <-time.After(5 * time.Second):
			t.Fatal("loop did not answer snapshot request")
			return nil
		}
	}

	rawChan <- deposit(100, "100")
	<-acked

	snap := capture()
	if snap.Sequence != 1 {
		t.Fatalf("snapshot sequence = %d, want 1", snap.Sequence)
	}
	if len(snap.Vaults) != 1 || snap.Vaults[0].Balance != "100" {
		t.Fatalf("snapshot vaults = %+v, want one vault at 100", snap.Vaults)
	}

	rawChan <- deposit(101, "50")
	<-acked

	snap = capture()
	if snap.Sequence != 2 {
		t.Fatalf("snapshot sequence = %d, want 2", snap.Sequence)
	}
	if len(snap.Vaults) != 1 || snap.Vaults[0].Balance != "150" {
		t.Fatalf("snapshot vaults = %+v, want one vault at 150", snap.Vaults)
	}
	if snap.Head.Block != 101 {
		t.Errorf("snapshot head block = %d, want 101", snap.Head.Block)
	}
}
