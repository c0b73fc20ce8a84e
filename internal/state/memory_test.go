package state_test

import (
	"math/big"
	"testing"

	"BookLedger/internal/entity"
	"BookLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

func newVault(id string, balance int64) *entity.Vault {
	return &entity.Vault{
		ID:      id,
		Owner:   common.HexToAddress("0x1"),
		Token:   common.HexToAddress("0x2"),
		VaultID: big.NewInt(1),
		Balance: big.NewInt(balance),
	}
}

func TestMemoryStore_GetOrCreateVault(t *testing.T) {
	store := state.NewMemoryStore()

	v, created := store.GetOrCreateVault("v1", func() *entity.Vault { return newVault("v1", 0) })
	if !created {
		t.Fatal("first resolve should create")
	}
	if v.Balance.Sign() != 0 {
		t.Errorf("new vault balance = %s, want 0", v.Balance)
	}

	v.Balance = big.NewInt(100)

	again, created := store.GetOrCreateVault("v1", func() *entity.Vault {
		t.Fatal("create called for existing vault")
		return nil
	})
	if created {
		t.Fatal("second resolve should not create")
	}
	if again.Balance.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("existing vault balance = %s, want 100", again.Balance)
	}
	if store.VaultCount() != 1 {
		t.Errorf("vault count = %d, want 1", store.VaultCount())
	}
}

func TestMemoryStore_VaultsSortedByID(t *testing.T) {
	store := state.NewMemoryStore()
	store.PutVault(newVault("ccc", 3))
	store.PutVault(newVault("aaa", 1))
	store.PutVault(newVault("bbb", 2))

	vaults := store.Vaults()
	if len(vaults) != 3 {
		t.Fatalf("got %d vaults, want 3", len(vaults))
	}
	for i, want := range []string{"aaa", "bbb", "ccc"} {
		if vaults[i].ID != want {
			t.Errorf("vaults[%d].ID = %s, want %s", i, vaults[i].ID, want)
		}
	}
}

func TestMemoryStore_OrderOverwrite(t *testing.T) {
	store := state.NewMemoryStore()
	hash := common.HexToHash("0xabc")

	store.PutOrder(&entity.Order{Hash: hash, Active: true, Nonce: big.NewInt(1)})
	store.PutOrder(&entity.Order{Hash: hash, Active: false, Nonce: big.NewInt(2)})

	o, ok := store.GetOrder(hash)
	if !ok {
		t.Fatal("order missing")
	}
	if o.Active || o.Nonce.Int64() != 2 {
		t.Errorf("put should overwrite: active=%v nonce=%s", o.Active, o.Nonce)
	}
	if len(store.Orders()) != 1 {
		t.Errorf("orders = %d, want 1", len(store.Orders()))
	}
}

func TestMemoryStore_Transactions(t *testing.T) {
	store := state.NewMemoryStore()
	hash := common.HexToHash("0xdead")

	if _, ok := store.GetTransaction(hash); ok {
		t.Fatal("unexpected transaction")
	}

	store.PutTransaction(&entity.Transaction{Hash: hash, BlockNumber: 7, Timestamp: 1000})
	tx, ok := store.GetTransaction(hash)
	if !ok || tx.BlockNumber != 7 {
		t.Errorf("transaction not stored: ok=%v tx=%+v", ok, tx)
	}
}
