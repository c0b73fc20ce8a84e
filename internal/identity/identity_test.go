package identity_test

import (
	"BookLedger/internal/identity"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEventID_Deterministic(t *testing.T) {
	txHash := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	a := identity.EventID(txHash, 3)
	b := identity.EventID(txHash, 3)
	if a != b {
		t.Errorf("same inputs produced different ids: %s != %s", a, b)
	}
	if !strings.HasPrefix(a, "0x") || len(a) != 66 {
		t.Errorf("unexpected id format: %s", a)
	}
}

func TestEventID_DistinguishesLogIndex(t *testing.T) {
	txHash := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	if identity.EventID(txHash, 0) == identity.EventID(txHash, 1) {
		t.Error("two events in the same transaction must get distinct ids")
	}
}

func TestVaultID_DistinctPerTriple(t *testing.T) {
	owner := common.HexToAddress("0x0987654321098765432109876543210987654321")
	token := common.HexToAddress("0x1234567890123456789012345678901234567890")

	base := identity.VaultID(owner, big.NewInt(1), token)

	if identity.VaultID(owner, big.NewInt(2), token) == base {
		t.Error("different vaultId should produce a different identity")
	}
	otherToken := common.HexToAddress("0x4444444444444444444444444444444444444444")
	if identity.VaultID(owner, big.NewInt(1), otherToken) == base {
		t.Error("different token should produce a different identity")
	}
	otherOwner := common.HexToAddress("0x5555555555555555555555555555555555555555")
	if identity.VaultID(otherOwner, big.NewInt(1), token) == base {
		t.Error("different owner should produce a different identity")
	}
}

func TestVaultID_WidthIndependent(t *testing.T) {
	owner := common.HexToAddress("0x0987654321098765432109876543210987654321")
	token := common.HexToAddress("0x1234567890123456789012345678901234567890")

	// The same numeric vaultId must hash identically however it was decoded.
	a := identity.VaultID(owner, big.NewInt(7), token)
	b := identity.VaultID(owner, new(big.Int).SetBytes([]byte{0, 0, 7}), token)
	if a != b {
		t.Errorf("numerically equal vault ids diverged: %s != %s", a, b)
	}
}

func TestChild_ScopedAndStable(t *testing.T) {
	parent := identity.EventID(common.HexToHash("0x01"), 0)

	in := identity.Child(parent, "vault-a")
	out := identity.Child(parent, "vault-b")
	if in == out {
		t.Error("different scopes under one parent must differ")
	}
	if in != identity.Child(parent, "vault-a") {
		t.Error("child derivation must be stable")
	}
}
