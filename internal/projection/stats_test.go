package projection_test

import (
	"math/big"
	"testing"

	"BookLedger/internal/core"
	"BookLedger/internal/entity"
	"BookLedger/internal/event"
	"BookLedger/internal/projection"

	"github.com/ethereum/go-ethereum/common"
)

// ============================================================================
// Stats aggregate
// ============================================================================

func depositOutput(seq int64, token common.Address, amount int64) core.Output {
	return core.Output{
		Sequence:  seq,
		EventID:   common.BigToHash(big.NewInt(seq)).Hex(),
		EventType: event.EventTypeDeposit,
		Rows: core.RowSet{
			Deposit: &entity.Deposit{
				Token:  token,
				Amount: big.NewInt(amount),
			},
		},
	}
}

func TestStats_TokenVolumes(t *testing.T) {
	stats := projection.NewStats(16)
	tokenA := common.HexToAddress("0xaa")
	tokenB := common.HexToAddress("0xbb")

	stats.Apply(depositOutput(1, tokenA, 100))
	stats.Apply(depositOutput(2, tokenA, 50))
	stats.Apply(depositOutput(3, tokenB, 7))

	volumes := stats.TokenVolumes()
	if got := volumes[tokenA.Hex()].Deposits; got.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("token A deposit volume = %s, want 150", got)
	}
	if got := volumes[tokenB.Hex()].Deposits; got.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("token B deposit volume = %s, want 7", got)
	}

	counts := stats.EventCounts()
	if counts["Deposit"] != 3 {
		t.Errorf("deposit count = %d, want 3", counts["Deposit"])
	}
	if stats.LastSequence() != 3 {
		t.Errorf("last sequence = %d, want 3", stats.LastSequence())
	}
}

func TestStats_TradeVolumeMappedThroughVaults(t *testing.T) {
	stats := projection.NewStats(16)
	token := common.HexToAddress("0xcc")

	stats.Apply(core.Output{
		Sequence:  1,
		EventType: event.EventTypeTakeOrder,
		Rows: core.RowSet{
			Vaults: []*entity.Vault{
				{ID: "vault-1", Token: token, Balance: big.NewInt(0)},
			},
			TradeChanges: []*entity.TradeVaultBalanceChange{
				{Vault: "vault-1", Amount: big.NewInt(25)},
				{Vault: "unknown-vault", Amount: big.NewInt(999)},
			},
		},
	})

	volumes := stats.TokenVolumes()
	if got := volumes[token.Hex()].Trades; got.Cmp(big.NewInt(25)) != 0 {
		t.Errorf("trade volume = %s, want 25 (unknown vault leg skipped)", got)
	}
}

// ============================================================================
// Trade history ring
// ============================================================================

func takeOrderOutput(seq int64, orderHash common.Hash) core.Output {
	return core.Output{
		Sequence:  seq,
		EventID:   common.BigToHash(big.NewInt(seq)).Hex(),
		EventType: event.EventTypeTakeOrder,
		Pos:       event.LogPos{Block: uint64(seq)},
		Rows: core.RowSet{
			TakeOrder: &entity.TakeOrder{
				OrderHash:   orderHash,
				Sender:      common.HexToAddress("0x1"),
				TakerInput:  big.NewInt(10),
				TakerOutput: big.NewInt(20),
				Bounty:      big.NewInt(0),
			},
		},
	}
}

func TestStats_RecentTradesNewestFirst(t *testing.T) {
	stats := projection.NewStats(16)
	hash := common.HexToHash("0xabc")
	other := common.HexToHash("0xdef")

	stats.Apply(takeOrderOutput(1, hash))
	stats.Apply(takeOrderOutput(2, other))
	stats.Apply(takeOrderOutput(3, hash))

	trades := stats.RecentTrades(hash.Hex(), 10)
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].Block != 3 || trades[1].Block != 1 {
		t.Errorf("trades not newest first: blocks %d, %d", trades[0].Block, trades[1].Block)
	}

	all := stats.RecentTrades("", 10)
	if len(all) != 3 {
		t.Errorf("unfiltered query returned %d trades, want 3", len(all))
	}
}

func TestStats_TradeRingBounded(t *testing.T) {
	stats := projection.NewStats(4)
	hash := common.HexToHash("0xabc")

	for i := int64(1); i <= 10; i++ {
		stats.Apply(takeOrderOutput(i, hash))
	}

	trades := stats.RecentTrades(hash.Hex(), 100)
	if len(trades) != 4 {
		t.Fatalf("ring holds %d trades, want 4", len(trades))
	}
	if trades[0].Block != 10 {
		t.Errorf("newest trade block = %d, want 10", trades[0].Block)
	}
}
