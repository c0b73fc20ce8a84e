package persistence_test

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"testing"
	"time"

	"BookLedger/internal/core"
	"BookLedger/internal/entity"
	"BookLedger/internal/event"
	"BookLedger/internal/persistence"
	"BookLedger/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
)

// ============================================================
// Integration tests against a real Postgres
// (docker compose -f docker-compose.test.yml up -d)
// ============================================================

func setup(t *testing.T) (context.Context, *sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		cleanup()
		t.Fatalf("migrate: %v", err)
	}
	return ctx, db, cleanup
}

func depositOutput(seq int64, block uint64) core.Output {
	txHash := common.HexToHash(fmt.Sprintf("0x%064x", block))
	vaultID := fmt.Sprintf("0xvault%03d", block)
	var stateHash [32]byte
	stateHash[0] = byte(seq)

	return core.Output{
		Sequence:   seq,
		EventID:    fmt.Sprintf("0xevent%03d", seq),
		EventType:  event.EventTypeDeposit,
		Pos:        event.LogPos{Block: block, TxIndex: 0, LogIndex: 0},
		Timestamp:  1700000000 + block,
		RawPayload: []byte(`{"amount":"100"}`),
		StateHash:  stateHash,
		Rows: core.RowSet{
			Transaction: &entity.Transaction{Hash: txHash, BlockNumber: block, Timestamp: 1700000000 + block},
			Vaults: []*entity.Vault{{
				ID:      vaultID,
				Owner:   common.HexToAddress("0xaa"),
				Token:   common.HexToAddress("0xbb"),
				VaultID: big.NewInt(1),
				Balance: big.NewInt(100),
			}},
			Deposit: &entity.Deposit{
				ID:              fmt.Sprintf("0xevent%03d", seq),
				Sender:          common.HexToAddress("0xaa"),
				Token:           common.HexToAddress("0xbb"),
				Vault:           vaultID,
				Amount:          big.NewInt(100),
				OldVaultBalance: big.NewInt(0),
				NewVaultBalance: big.NewInt(100),
				Transaction:     txHash,
			},
		},
	}
}

func TestWriteBatch_Idempotent(t *testing.T) {
	ctx, db, cleanup := setup(t)
	defer cleanup()
	writer := persistence.NewWriter(db)
	snapMgr := persistence.NewSnapshotManager(db)

	batch := []core.Output{depositOutput(1, 10), depositOutput(2, 11)}
	if err := writer.WriteBatch(ctx, batch); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Replaying the same batch must not duplicate any rows.
	if err := writer.WriteBatch(ctx, batch); err != nil {
		t.Fatalf("replayed write: %v", err)
	}

	seq, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if seq != 2 {
		t.Errorf("latest sequence = %d, want 2", seq)
	}

	records, err := snapMgr.LoadEventsAfter(ctx, event.LogPos{}, 100)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("event log rows = %d, want 2", len(records))
	}
	if records[0].Pos.Block != 10 || records[1].Pos.Block != 11 {
		t.Errorf("events out of log order: %+v", records)
	}
}

func TestPostgresIdempotencyChecker(t *testing.T) {
	ctx, db, cleanup := setup(t)
	defer cleanup()

	if err := persistence.NewWriter(db).WriteBatch(ctx, []core.Output{depositOutput(1, 10)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	checker := persistence.NewPostgresIdempotencyChecker(db)

	dup, err := checker.IsDuplicate("Deposit", "0xevent001")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("persisted event not reported as duplicate")
	}

	dup, err = checker.IsDuplicate("Deposit", "0xnosuch")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup {
		t.Error("unknown event reported as duplicate")
	}

	keys, err := checker.RecentKeys(ctx, 10)
	if err != nil {
		t.Fatalf("RecentKeys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "Deposit:0xevent001" {
		t.Errorf("RecentKeys = %v, want [Deposit:0xevent001]", keys)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx, db, cleanup := setup(t)
	defer cleanup()
	snapMgr := persistence.NewSnapshotManager(db)

	snap := &persistence.SnapshotData{
		Sequence:  42,
		StateHash: []byte{1, 2, 3},
		Head:      persistence.HeadSnapshot{Block: 10, TxIndex: 1, LogIndex: 2},
		Vaults: []persistence.VaultSnapshot{{
			ID: "0xv1", Owner: "0xaa", Token: "0xbb", VaultID: "1", Balance: "100",
		}},
		IdempotencyKeys: []string{"Deposit:0xevent001"},
		CreatedAt:       time.Now().UTC(),
	}
	if err := snapMgr.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Unverified snapshots must not be restored from.
	got, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Fatal("loaded an unverified snapshot")
	}

	if err := snapMgr.MarkVerified(ctx, 42); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, err = snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load verified: %v", err)
	}
	if got == nil {
		t.Fatal("verified snapshot not loaded")
	}
	if got.Sequence != 42 || got.Head.Block != 10 || len(got.Vaults) != 1 {
		t.Errorf("snapshot round trip mismatch: %+v", got)
	}
	if got.Vaults[0].Balance != "100" {
		t.Errorf("vault balance = %s, want 100", got.Vaults[0].Balance)
	}
}
