package state

import (
	"sort"

	"BookLedger/internal/entity"

	"github.com/ethereum/go-ethereum/common"
)

// table is the one keyed-row primitive behind every entity kind:
// get, upsert, get-or-create. Not thread-safe — only accessed from the
// single-threaded engine.
type table[K comparable, V any] struct {
	rows map[K]V
}

func newTable[K comparable, V any]() table[K, V] {
	return table[K, V]{rows: make(map[K]V)}
}

func (t *table[K, V]) get(k K) (V, bool) {
	v, ok := t.rows[k]
	return v, ok
}

func (t *table[K, V]) put(k K, v V) {
	t.rows[k] = v
}

func (t *table[K, V]) getOrCreate(k K, create func() V) (V, bool) {
	if v, ok := t.rows[k]; ok {
		return v, false
	}
	v := create()
	t.rows[k] = v
	return v, true
}

// MemoryStore is the in-process implementation of Store.
type MemoryStore struct {
	vaults       table[string, *entity.Vault]
	orders       table[common.Hash, *entity.Order]
	transactions table[common.Hash, *entity.Transaction]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults:       newTable[string, *entity.Vault](),
		orders:       newTable[common.Hash, *entity.Order](),
		transactions: newTable[common.Hash, *entity.Transaction](),
	}
}

func (s *MemoryStore) GetVault(id string) (*entity.Vault, bool) {
	return s.vaults.get(id)
}

func (s *MemoryStore) PutVault(v *entity.Vault) {
	s.vaults.put(v.ID, v)
}

func (s *MemoryStore) VaultCount() int {
	return len(s.vaults.rows)
}

// GetOrCreateVault resolves a vault identity, creating the row lazily.
// Reports whether the vault was created by this call.
func (s *MemoryStore) GetOrCreateVault(id string, create func() *entity.Vault) (*entity.Vault, bool) {
	return s.vaults.getOrCreate(id, create)
}

func (s *MemoryStore) GetOrder(hash common.Hash) (*entity.Order, bool) {
	return s.orders.get(hash)
}

func (s *MemoryStore) PutOrder(o *entity.Order) {
	s.orders.put(o.Hash, o)
}

func (s *MemoryStore) GetTransaction(hash common.Hash) (*entity.Transaction, bool) {
	return s.transactions.get(hash)
}

func (s *MemoryStore) PutTransaction(tx *entity.Transaction) {
	s.transactions.put(tx.Hash, tx)
}

// Vaults returns all vaults sorted by ID, so state digests and snapshots are
// independent of map iteration order.
func (s *MemoryStore) Vaults() []*entity.Vault {
	out := make([]*entity.Vault, 0, len(s.vaults.rows))
	for _, v := range s.vaults.rows {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Orders returns all orders sorted by hash.
func (s *MemoryStore) Orders() []*entity.Order {
	out := make([]*entity.Order, 0, len(s.orders.rows))
	for _, o := range s.orders.rows {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hash.Hex() < out[j].Hash.Hex()
	})
	return out
}
