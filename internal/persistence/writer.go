package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"BookLedger/internal/core"
	"BookLedger/internal/entity"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/lib/pq"
)

// Writer translates engine outputs into Postgres rows and writes them with
// multi-row INSERTs. Every statement is conflict-safe, so replaying a batch
// that was partially committed is harmless:
//
//   - event log and audit rows: ON CONFLICT DO NOTHING (immutable records)
//   - vaults and orders: ON CONFLICT DO UPDATE (materialized state, last
//     write wins — the engine already ordered the events)
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// batchRows is one flush worth of rows, grouped per table. Vaults and orders
// collapse to the final version within the batch so a single upsert per key
// reaches Postgres.
type batchRows struct {
	outputs      []core.Output
	transactions []*entity.Transaction
	vaults       []*entity.Vault
	orders       []*entity.Order
	deposits     []*entity.Deposit
	withdrawals  []*entity.Withdrawal
	addOrders    []*entity.AddOrder
	removeOrders []*entity.RemoveOrder
	takeOrders   []*entity.TakeOrder
	trades       []*entity.Trade
	changes      []*entity.TradeVaultBalanceChange
}

func collect(outputs []core.Output) batchRows {
	var b batchRows
	b.outputs = outputs

	seenTx := make(map[string]bool)
	lastVault := make(map[string]int)
	lastOrder := make(map[string]int)

	for _, o := range outputs {
		r := o.Rows
		if r.Transaction != nil && !seenTx[r.Transaction.Hash.Hex()] {
			seenTx[r.Transaction.Hash.Hex()] = true
			b.transactions = append(b.transactions, r.Transaction)
		}
		for _, v := range r.Vaults {
			if i, ok := lastVault[v.ID]; ok {
				b.vaults[i] = v
			} else {
				lastVault[v.ID] = len(b.vaults)
				b.vaults = append(b.vaults, v)
			}
		}
		if r.Order != nil {
			key := r.Order.Hash.Hex()
			if i, ok := lastOrder[key]; ok {
				b.orders[i] = r.Order
			} else {
				lastOrder[key] = len(b.orders)
				b.orders = append(b.orders, r.Order)
			}
		}
		if r.Deposit != nil {
			b.deposits = append(b.deposits, r.Deposit)
		}
		if r.Withdrawal != nil {
			b.withdrawals = append(b.withdrawals, r.Withdrawal)
		}
		if r.AddOrder != nil {
			b.addOrders = append(b.addOrders, r.AddOrder)
		}
		if r.RemoveOrder != nil {
			b.removeOrders = append(b.removeOrders, r.RemoveOrder)
		}
		if r.TakeOrder != nil {
			b.takeOrders = append(b.takeOrders, r.TakeOrder)
		}
		if r.Trade != nil {
			b.trades = append(b.trades, r.Trade)
		}
		b.changes = append(b.changes, r.TradeChanges...)
	}
	return b
}

// multiInsert builds "INSERT INTO table (cols) VALUES ($1..),($..) suffix"
// for n rows of width w.
func multiInsert(table, cols string, n, w int, suffix string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, cols)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 0; j < w; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*w+j+1)
		}
		sb.WriteByte(')')
	}
	sb.WriteByte(' ')
	sb.WriteString(suffix)
	return sb.String()
}

func (w *Writer) writeEventLog(ctx context.Context, tx *sql.Tx, outputs []core.Output) error {
	if len(outputs) == 0 {
		return nil
	}
	query := multiInsert("event_log.events",
		"sequence, event_type, event_id, block_number, tx_index, log_index, payload, state_hash, prev_hash, block_timestamp",
		len(outputs), 10,
		"ON CONFLICT (event_type, event_id) DO NOTHING")

	args := make([]interface{}, 0, len(outputs)*10)
	for _, o := range outputs {
		payload := o.RawPayload
		if len(payload) == 0 {
			payload = []byte("{}")
		}
		args = append(args,
			o.Sequence, o.EventType.String(), o.EventID,
			o.Pos.Block, o.Pos.TxIndex, o.Pos.LogIndex,
			payload, o.StateHash[:], o.PrevHash[:], o.Timestamp,
		)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeTransactions(ctx context.Context, tx *sql.Tx, txs []*entity.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	query := multiInsert("orderbook.transactions",
		"hash, block_number, block_timestamp",
		len(txs), 3,
		"ON CONFLICT (hash) DO NOTHING")

	args := make([]interface{}, 0, len(txs)*3)
	for _, t := range txs {
		args = append(args, t.Hash.Hex(), t.BlockNumber, t.Timestamp)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeVaults(ctx context.Context, tx *sql.Tx, vaults []*entity.Vault) error {
	if len(vaults) == 0 {
		return nil
	}
	query := multiInsert("orderbook.vaults",
		"id, owner, token, vault_id, balance",
		len(vaults), 5,
		"ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance")

	args := make([]interface{}, 0, len(vaults)*5)
	for _, v := range vaults {
		args = append(args, v.ID, v.Owner.Hex(), v.Token.Hex(), v.VaultID.String(), v.Balance.String())
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeOrders(ctx context.Context, tx *sql.Tx, orders []*entity.Order) error {
	if len(orders) == 0 {
		return nil
	}
	query := multiInsert("orderbook.orders",
		"hash, active, owner, nonce, input_vaults, output_vaults, order_bytes",
		len(orders), 7,
		`ON CONFLICT (hash) DO UPDATE SET
			active = EXCLUDED.active,
			owner = EXCLUDED.owner,
			nonce = EXCLUDED.nonce,
			input_vaults = EXCLUDED.input_vaults,
			output_vaults = EXCLUDED.output_vaults,
			order_bytes = EXCLUDED.order_bytes`)

	args := make([]interface{}, 0, len(orders)*7)
	for _, o := range orders {
		args = append(args,
			o.Hash.Hex(), o.Active, o.Owner.Hex(), o.Nonce.String(),
			pq.Array(o.InputVaults), pq.Array(o.OutputVaults),
			hexutil.Encode(o.OrderBytes),
		)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeDeposits(ctx context.Context, tx *sql.Tx, rows []*entity.Deposit) error {
	if len(rows) == 0 {
		return nil
	}
	query := multiInsert("orderbook.deposits",
		"id, sender, token, vault, amount, old_vault_balance, new_vault_balance, tx_hash",
		len(rows), 8,
		"ON CONFLICT (id) DO NOTHING")

	args := make([]interface{}, 0, len(rows)*8)
	for _, d := range rows {
		args = append(args,
			d.ID, d.Sender.Hex(), d.Token.Hex(), d.Vault,
			d.Amount.String(), d.OldVaultBalance.String(), d.NewVaultBalance.String(),
			d.Transaction.Hex(),
		)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeWithdrawals(ctx context.Context, tx *sql.Tx, rows []*entity.Withdrawal) error {
	if len(rows) == 0 {
		return nil
	}
	query := multiInsert("orderbook.withdrawals",
		"id, sender, token, vault, amount, target_amount, old_vault_balance, new_vault_balance, tx_hash",
		len(rows), 9,
		"ON CONFLICT (id) DO NOTHING")

	args := make([]interface{}, 0, len(rows)*9)
	for _, wd := range rows {
		args = append(args,
			wd.ID, wd.Sender.Hex(), wd.Token.Hex(), wd.Vault,
			wd.Amount.String(), wd.TargetAmount.String(),
			wd.OldVaultBalance.String(), wd.NewVaultBalance.String(),
			wd.Transaction.Hex(),
		)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeAddOrders(ctx context.Context, tx *sql.Tx, rows []*entity.AddOrder) error {
	if len(rows) == 0 {
		return nil
	}
	query := multiInsert("orderbook.add_orders",
		"id, order_hash, sender, tx_hash",
		len(rows), 4,
		"ON CONFLICT (id) DO NOTHING")

	args := make([]interface{}, 0, len(rows)*4)
	for _, r := range rows {
		args = append(args, r.ID, r.OrderHash.Hex(), r.Sender.Hex(), r.Transaction.Hex())
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeRemoveOrders(ctx context.Context, tx *sql.Tx, rows []*entity.RemoveOrder) error {
	if len(rows) == 0 {
		return nil
	}
	query := multiInsert("orderbook.remove_orders",
		"id, order_hash, sender, tx_hash",
		len(rows), 4,
		"ON CONFLICT (id) DO NOTHING")

	args := make([]interface{}, 0, len(rows)*4)
	for _, r := range rows {
		args = append(args, r.ID, r.OrderHash.Hex(), r.Sender.Hex(), r.Transaction.Hex())
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeTakeOrders(ctx context.Context, tx *sql.Tx, rows []*entity.TakeOrder) error {
	if len(rows) == 0 {
		return nil
	}
	query := multiInsert("orderbook.take_orders",
		"id, sender, order_hash, taker_input, taker_output, bounty, tx_hash",
		len(rows), 7,
		"ON CONFLICT (id) DO NOTHING")

	args := make([]interface{}, 0, len(rows)*7)
	for _, r := range rows {
		args = append(args,
			r.ID, r.Sender.Hex(), r.OrderHash.Hex(),
			r.TakerInput.String(), r.TakerOutput.String(), r.Bounty.String(),
			r.Transaction.Hex(),
		)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeTrades(ctx context.Context, tx *sql.Tx, rows []*entity.Trade) error {
	if len(rows) == 0 {
		return nil
	}
	query := multiInsert("orderbook.trades",
		"id, order_hash, input_change, output_change, tx_hash",
		len(rows), 5,
		"ON CONFLICT (id) DO NOTHING")

	args := make([]interface{}, 0, len(rows)*5)
	for _, r := range rows {
		args = append(args, r.ID, r.OrderHash.Hex(), r.InputChange, r.OutputChange, r.Transaction.Hex())
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) writeTradeChanges(ctx context.Context, tx *sql.Tx, rows []*entity.TradeVaultBalanceChange) error {
	if len(rows) == 0 {
		return nil
	}
	query := multiInsert("orderbook.trade_vault_balance_changes",
		"id, trade, vault, direction, amount, old_balance, new_balance, tx_hash",
		len(rows), 8,
		"ON CONFLICT (id) DO NOTHING")

	args := make([]interface{}, 0, len(rows)*8)
	for _, r := range rows {
		args = append(args,
			r.ID, r.Trade, r.Vault, r.Direction.String(),
			r.Amount.String(), r.OldBalance.String(), r.NewBalance.String(),
			r.Transaction.Hex(),
		)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteBatch writes one flush worth of outputs in a single transaction.
func (w *Writer) WriteBatch(ctx context.Context, outputs []core.Output) error {
	b := collect(outputs)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	steps := []func() error{
		func() error { return w.writeEventLog(ctx, tx, b.outputs) },
		func() error { return w.writeTransactions(ctx, tx, b.transactions) },
		func() error { return w.writeVaults(ctx, tx, b.vaults) },
		func() error { return w.writeOrders(ctx, tx, b.orders) },
		func() error { return w.writeDeposits(ctx, tx, b.deposits) },
		func() error { return w.writeWithdrawals(ctx, tx, b.withdrawals) },
		func() error { return w.writeAddOrders(ctx, tx, b.addOrders) },
		func() error { return w.writeRemoveOrders(ctx, tx, b.removeOrders) },
		func() error { return w.writeTakeOrders(ctx, tx, b.takeOrders) },
		func() error { return w.writeTrades(ctx, tx, b.trades) },
		func() error { return w.writeTradeChanges(ctx, tx, b.changes) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	return tx.Commit()
}
