package identity

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventID derives the canonical identifier for a single on-chain event
// occurrence: keccak-256 over the transaction hash and the big-endian log
// index. The log index distinguishes two otherwise-identical events emitted
// by the same transaction. Same inputs always yield the same key.
func EventID(txHash common.Hash, logIndex uint) string {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(logIndex))
	return hexutil.Encode(crypto.Keccak256(txHash.Bytes(), idx[:]))
}

// VaultID derives the identity of a balance account from its
// (owner, vaultId, token) triple. The vaultId is widened to 32 bytes so that
// numerically equal ids hash identically regardless of their encoded length.
func VaultID(owner common.Address, vaultID *big.Int, token common.Address) string {
	id := common.BigToHash(vaultID)
	return hexutil.Encode(crypto.Keccak256(owner.Bytes(), token.Bytes(), id.Bytes()))
}

// Child derives a sub-identity scoped to a parent key. Used for rows that are
// emitted in pairs from one event, e.g. the two balance-change legs of a
// trade, keyed by the leg's vault.
func Child(parentID string, scope string) string {
	parent := common.FromHex(parentID)
	return hexutil.Encode(crypto.Keccak256(parent, []byte(scope)))
}
