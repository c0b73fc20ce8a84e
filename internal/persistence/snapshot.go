package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"BookLedger/internal/core"
	"BookLedger/internal/entity"
	"BookLedger/internal/event"
	"BookLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// SnapshotManager creates and loads state snapshots for warm restart: load
// the latest verified snapshot, then replay the event log from the head
// position forward.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the full engine state at a point in time.
type SnapshotData struct {
	Sequence        int64           `json:"sequence"`
	StateHash       []byte          `json:"state_hash"`
	Head            HeadSnapshot    `json:"head"`
	Vaults          []VaultSnapshot `json:"vaults"`
	Orders          []OrderSnapshot `json:"orders"`
	IdempotencyKeys []string        `json:"idempotency_keys"`
	CreatedAt       time.Time       `json:"created_at"`
}

// HeadSnapshot is the serialized log position of the last processed event.
type HeadSnapshot struct {
	Block    uint64 `json:"block"`
	TxIndex  uint   `json:"tx_index"`
	LogIndex uint   `json:"log_index"`
}

// VaultSnapshot is a serializable vault row. Numeric fields are decimal
// strings because they are 256-bit values.
type VaultSnapshot struct {
	ID      string `json:"id"`
	Owner   string `json:"owner"`
	Token   string `json:"token"`
	VaultID string `json:"vault_id"`
	Balance string `json:"balance"`
}

// OrderSnapshot is a serializable order row.
type OrderSnapshot struct {
	Hash         string   `json:"hash"`
	Active       bool     `json:"active"`
	Owner        string   `json:"owner"`
	Nonce        string   `json:"nonce"`
	InputVaults  []string `json:"input_vaults"`
	OutputVaults []string `json:"output_vaults"`
	OrderBytes   string   `json:"order_bytes"` // 0x-hex
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// Capture builds SnapshotData from the live store and engine.
func Capture(store state.Store, engine *core.Engine) *SnapshotData {
	head, _ := engine.Head()
	stateHash := engine.StateHash()

	snap := &SnapshotData{
		Sequence:        engine.Sequence(),
		StateHash:       stateHash[:],
		Head:            HeadSnapshot{Block: head.Block, TxIndex: head.TxIndex, LogIndex: head.LogIndex},
		IdempotencyKeys: engine.IdempotencyKeys(),
		CreatedAt:       time.Now().UTC(),
	}

	for _, v := range store.Vaults() {
		snap.Vaults = append(snap.Vaults, VaultSnapshot{
			ID:      v.ID,
			Owner:   v.Owner.Hex(),
			Token:   v.Token.Hex(),
			VaultID: v.VaultID.String(),
			Balance: v.Balance.String(),
		})
	}
	for _, o := range store.Orders() {
		snap.Orders = append(snap.Orders, OrderSnapshot{
			Hash:         o.Hash.Hex(),
			Active:       o.Active,
			Owner:        o.Owner.Hex(),
			Nonce:        o.Nonce.String(),
			InputVaults:  o.InputVaults,
			OutputVaults: o.OutputVaults,
			OrderBytes:   hexutil.Encode(o.OrderBytes),
		})
	}
	return snap
}

// Restore loads SnapshotData back into the store and engine.
func (snap *SnapshotData) Restore(store state.Store, engine *core.Engine) error {
	for _, vs := range snap.Vaults {
		vaultID, ok := new(big.Int).SetString(vs.VaultID, 10)
		if !ok {
			return fmt.Errorf("snapshot vault %s: bad vault_id %q", vs.ID, vs.VaultID)
		}
		balance, ok := new(big.Int).SetString(vs.Balance, 10)
		if !ok {
			return fmt.Errorf("snapshot vault %s: bad balance %q", vs.ID, vs.Balance)
		}
		store.PutVault(&entity.Vault{
			ID:      vs.ID,
			Owner:   common.HexToAddress(vs.Owner),
			Token:   common.HexToAddress(vs.Token),
			VaultID: vaultID,
			Balance: balance,
		})
	}

	for _, os := range snap.Orders {
		nonce, ok := new(big.Int).SetString(os.Nonce, 10)
		if !ok {
			return fmt.Errorf("snapshot order %s: bad nonce %q", os.Hash, os.Nonce)
		}
		orderBytes, err := hexutil.Decode(os.OrderBytes)
		if err != nil {
			return fmt.Errorf("snapshot order %s: %w", os.Hash, err)
		}
		store.PutOrder(&entity.Order{
			Hash:         common.HexToHash(os.Hash),
			Active:       os.Active,
			Owner:        common.HexToAddress(os.Owner),
			Nonce:        nonce,
			InputVaults:  os.InputVaults,
			OutputVaults: os.OutputVaults,
			OrderBytes:   orderBytes,
		})
	}

	var stateHash [32]byte
	copy(stateHash[:], snap.StateHash)
	engine.Restore(snap.Sequence, stateHash, event.LogPos{
		Block:    snap.Head.Block,
		TxIndex:  snap.Head.TxIndex,
		LogIndex: snap.Head.LogIndex,
	}, snap.IdempotencyKeys)

	return nil
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified before restarts rely on them.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, len(data), snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. Returns nil
// with no error on a cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// EventLogRecord is one persisted event, as needed for replay.
type EventLogRecord struct {
	Sequence  int64
	EventType string
	EventID   string
	Pos       event.LogPos
	Payload   []byte
}

// LoadEventsAfter loads events strictly after pos in log order, for replay on
// warm restart (and from the beginning on cold restart with the zero pos).
func (sm *SnapshotManager) LoadEventsAfter(ctx context.Context, pos event.LogPos, limit int) ([]EventLogRecord, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, event_id, block_number, tx_index, log_index, payload
		FROM event_log.events
		WHERE (block_number, tx_index, log_index) > ($1, $2, $3)
		ORDER BY block_number, tx_index, log_index
		LIMIT $4
	`, pos.Block, pos.TxIndex, pos.LogIndex, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EventLogRecord
	for rows.Next() {
		var r EventLogRecord
		if err := rows.Scan(
			&r.Sequence, &r.EventType, &r.EventID,
			&r.Pos.Block, &r.Pos.TxIndex, &r.Pos.LogIndex, &r.Payload,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
