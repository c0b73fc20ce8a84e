package projection

import (
	"math/big"
	"testing"

	"BookLedger/internal/core"
	"BookLedger/internal/entity"

	"github.com/ethereum/go-ethereum/common"
)

// A self trade moves the same token on both legs; the per-event delta must
// be the sum of the legs, not the last one seen.
func TestTokenVolumes_SameTokenLegsAccumulate(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	output := core.Output{
		Sequence: 9,
		Rows: core.RowSet{
			Vaults: []*entity.Vault{
				{ID: "0xv-in", Token: token, Balance: big.NewInt(30)},
				{ID: "0xv-out", Token: token, Balance: big.NewInt(70)},
			},
			TradeChanges: []*entity.TradeVaultBalanceChange{
				{Vault: "0xv-in", Amount: big.NewInt(30)},
				{Vault: "0xv-out", Amount: big.NewInt(12)},
			},
		},
	}

	got := tokenVolumes(output)
	vs := got[token.Hex()]
	if vs == nil || vs.trade == nil {
		t.Fatalf("no trade volume extracted: %+v", got)
	}
	if vs.trade.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("trade volume = %s, want 42 (30 + 12)", vs.trade)
	}
}

func TestTokenVolumes_DistinctTokensStaySeparate(t *testing.T) {
	tokenA := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	output := core.Output{
		Rows: core.RowSet{
			Vaults: []*entity.Vault{
				{ID: "0xv-a", Token: tokenA, Balance: big.NewInt(1)},
				{ID: "0xv-b", Token: tokenB, Balance: big.NewInt(2)},
			},
			TradeChanges: []*entity.TradeVaultBalanceChange{
				{Vault: "0xv-a", Amount: big.NewInt(5)},
				{Vault: "0xv-b", Amount: big.NewInt(7)},
			},
		},
	}

	got := tokenVolumes(output)
	if vs := got[tokenA.Hex()]; vs == nil || vs.trade.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("tokenA trade volume = %+v, want 5", vs)
	}
	if vs := got[tokenB.Hex()]; vs == nil || vs.trade.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("tokenB trade volume = %+v, want 7", vs)
	}
}
