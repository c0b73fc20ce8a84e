package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Service provides read-only access to the materialized state, audit tables
// and projections. Queries are served over HTTP/JSON from PostgreSQL; every
// state response carries as_of_sequence so callers can reason about
// freshness against the event stream.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetVault returns one vault by its derived identity, or nil if unknown.
func (s *Service) GetVault(ctx context.Context, id string) (*VaultResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var v VaultResponse
	err = s.db.QueryRowContext(ctx, `
		SELECT id, owner, token, vault_id, balance
		FROM orderbook.vaults
		WHERE id = $1
	`, id).Scan(&v.ID, &v.Owner, &v.Token, &v.VaultID, &v.Balance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v.AsOfSequence = asOfSeq
	return &v, nil
}

// ListVaultsByOwner returns all vaults owned by an address.
func (s *Service) ListVaultsByOwner(ctx context.Context, owner string) ([]VaultResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, token, vault_id, balance
		FROM orderbook.vaults
		WHERE owner = $1
		ORDER BY id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vaults []VaultResponse
	for rows.Next() {
		var v VaultResponse
		if err := rows.Scan(&v.ID, &v.Owner, &v.Token, &v.VaultID, &v.Balance); err != nil {
			return nil, err
		}
		v.AsOfSequence = asOfSeq
		vaults = append(vaults, v)
	}

	return vaults, rows.Err()
}

// GetOrder returns one order by hash, or nil if never registered.
func (s *Service) GetOrder(ctx context.Context, hash string) (*OrderResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var o OrderResponse
	err = s.db.QueryRowContext(ctx, `
		SELECT hash, active, owner, nonce, input_vaults, output_vaults, order_bytes
		FROM orderbook.orders
		WHERE hash = $1
	`, hash).Scan(
		&o.Hash, &o.Active, &o.Owner, &o.Nonce,
		pq.Array(&o.InputVaults), pq.Array(&o.OutputVaults), &o.OrderBytes,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	o.AsOfSequence = asOfSeq
	return &o, nil
}

// ListOrders returns orders, optionally filtered by owner and active flag.
func (s *Service) ListOrders(ctx context.Context, owner string, activeOnly bool, limit int) ([]OrderResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT hash, active, owner, nonce, input_vaults, output_vaults, order_bytes
		FROM orderbook.orders
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if owner != "" {
		query += fmt.Sprintf(" AND owner = $%d", argIdx)
		args = append(args, owner)
		argIdx++
	}
	if activeOnly {
		query += " AND active = TRUE"
	}

	query += fmt.Sprintf(" ORDER BY hash LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []OrderResponse
	for rows.Next() {
		var o OrderResponse
		if err := rows.Scan(
			&o.Hash, &o.Active, &o.Owner, &o.Nonce,
			pq.Array(&o.InputVaults), pq.Array(&o.OutputVaults), &o.OrderBytes,
		); err != nil {
			return nil, err
		}
		o.AsOfSequence = asOfSeq
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// ListDeposits returns deposit audit records for a vault, newest tx first.
func (s *Service) ListDeposits(ctx context.Context, vault string, limit int) ([]DepositResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.sender, d.token, d.vault, d.amount,
		       d.old_vault_balance, d.new_vault_balance, d.tx_hash
		FROM orderbook.deposits d
		JOIN orderbook.transactions t ON t.hash = d.tx_hash
		WHERE d.vault = $1
		ORDER BY t.block_number DESC, d.id
		LIMIT $2
	`, vault, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []DepositResponse
	for rows.Next() {
		var d DepositResponse
		if err := rows.Scan(
			&d.ID, &d.Sender, &d.Token, &d.Vault, &d.Amount,
			&d.OldVaultBalance, &d.NewVaultBalance, &d.TxHash,
		); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}

	return deposits, rows.Err()
}

// ListWithdrawals returns withdrawal audit records for a vault, newest tx
// first.
func (s *Service) ListWithdrawals(ctx context.Context, vault string, limit int) ([]WithdrawalResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.sender, w.token, w.vault, w.amount, w.target_amount,
		       w.old_vault_balance, w.new_vault_balance, w.tx_hash
		FROM orderbook.withdrawals w
		JOIN orderbook.transactions t ON t.hash = w.tx_hash
		WHERE w.vault = $1
		ORDER BY t.block_number DESC, w.id
		LIMIT $2
	`, vault, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []WithdrawalResponse
	for rows.Next() {
		var w WithdrawalResponse
		if err := rows.Scan(
			&w.ID, &w.Sender, &w.Token, &w.Vault, &w.Amount, &w.TargetAmount,
			&w.OldVaultBalance, &w.NewVaultBalance, &w.TxHash,
		); err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}

	return withdrawals, rows.Err()
}

// ListTrades returns settled trades for an order hash, newest tx first. An
// empty hash lists across all orders.
func (s *Service) ListTrades(ctx context.Context, orderHash string, limit int) ([]TradeResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT tr.id, tr.order_hash, tk.sender, tk.taker_input, tk.taker_output,
		       tk.bounty, tr.tx_hash
		FROM orderbook.trades tr
		JOIN orderbook.take_orders tk ON tk.tx_hash = tr.tx_hash AND tk.order_hash = tr.order_hash
		JOIN orderbook.transactions t ON t.hash = tr.tx_hash
	`
	args := []interface{}{}
	argIdx := 1

	if orderHash != "" {
		query += fmt.Sprintf(" WHERE tr.order_hash = $%d", argIdx)
		args = append(args, orderHash)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY t.block_number DESC, tr.id LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeResponse
	for rows.Next() {
		var tr TradeResponse
		if err := rows.Scan(
			&tr.ID, &tr.OrderHash, &tr.Sender, &tr.TakerInput, &tr.TakerOutput,
			&tr.Bounty, &tr.TxHash,
		); err != nil {
			return nil, err
		}
		tr.AsOfSequence = asOfSeq
		trades = append(trades, tr)
	}

	return trades, rows.Err()
}

// ListTradeChanges returns the balance-change legs of one trade.
func (s *Service) ListTradeChanges(ctx context.Context, trade string) ([]TradeChangeResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trade, vault, direction, amount, old_balance, new_balance
		FROM orderbook.trade_vault_balance_changes
		WHERE trade = $1
		ORDER BY id
	`, trade)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []TradeChangeResponse
	for rows.Next() {
		var c TradeChangeResponse
		if err := rows.Scan(
			&c.ID, &c.Trade, &c.Vault, &c.Direction, &c.Amount,
			&c.OldBalance, &c.NewBalance,
		); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}

	return changes, rows.Err()
}

// GetStats returns ledger-wide counts plus the projected per-token volumes.
func (s *Service) GetStats(ctx context.Context) (*StatsResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	stats := &StatsResponse{AsOfSequence: asOfSeq}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM orderbook.vaults),
			(SELECT COUNT(*) FROM orderbook.orders),
			(SELECT COUNT(*) FROM orderbook.orders WHERE active),
			(SELECT COUNT(*) FROM orderbook.trades)
	`).Scan(&stats.VaultCount, &stats.OrderCount, &stats.ActiveOrders, &stats.TradeCount)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT token, deposit_volume, withdraw_volume, trade_volume
		FROM projections.token_volume
		ORDER BY token
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tv TokenVolumeResponse
		if err := rows.Scan(&tv.Token, &tv.DepositVolume, &tv.WithdrawVolume, &tv.TradeVolume); err != nil {
			return nil, err
		}
		stats.TokenVolumes = append(stats.TokenVolumes, tv)
	}

	return stats, rows.Err()
}

// VerifyIntegrity checks hash chain continuity over the event log: each
// event's prev_hash must equal the state_hash of the previous sequence.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) FROM event_log.events
	`).Scan(&report.LatestSequence)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
