package projection

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"BookLedger/internal/core"
	"BookLedger/internal/observability"
)

var logger = observability.NewLogger("projection")

// Worker updates projection tables and the in-memory stats aggregate from
// processed events. The projection channel is non-blocking with drop: if
// projections fall behind they are rebuilt from the audit tables, never from
// guesswork.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.Output
	stats     *Stats
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan core.Output, stats *Stats) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		stats:     stats,
	}
}

// Run starts the projection worker loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if w.stats != nil {
				w.stats.Apply(output)
			}

			if w.db != nil {
				if err := w.processOutput(ctx, output); err != nil {
					// Continue: projections are eventually consistent.
					logger.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
				}
			}

			w.lastSeq = output.Sequence
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, output core.Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for token, volumes := range tokenVolumes(output) {
		if err := w.bumpTokenVolume(ctx, tx, token, volumes, output.Sequence); err != nil {
			return fmt.Errorf("token volume: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// volumeSet is the per-token deltas one event contributes. Nil means no
// contribution of that kind.
type volumeSet struct {
	deposit  *big.Int
	withdraw *big.Int
	trade    *big.Int
}

// tokenVolumes extracts which token moved how much in this event. Both trade
// legs of a self trade touch the same token, so trade deltas accumulate.
func tokenVolumes(output core.Output) map[string]*volumeSet {
	out := make(map[string]*volumeSet)
	at := func(token string) *volumeSet {
		vs, ok := out[token]
		if !ok {
			vs = &volumeSet{}
			out[token] = vs
		}
		return vs
	}
	r := output.Rows

	if r.Deposit != nil {
		at(r.Deposit.Token.Hex()).deposit = r.Deposit.Amount
	}
	if r.Withdrawal != nil {
		at(r.Withdrawal.Token.Hex()).withdraw = r.Withdrawal.Amount
	}
	if len(r.TradeChanges) > 0 {
		// Map vault id back to its token through the touched vault rows.
		vaultToken := make(map[string]string, len(r.Vaults))
		for _, v := range r.Vaults {
			vaultToken[v.ID] = v.Token.Hex()
		}
		for _, c := range r.TradeChanges {
			token, ok := vaultToken[c.Vault]
			if !ok {
				continue
			}
			vs := at(token)
			if vs.trade == nil {
				vs.trade = new(big.Int)
			}
			vs.trade.Add(vs.trade, c.Amount)
		}
	}
	return out
}

func (w *Worker) bumpTokenVolume(ctx context.Context, tx *sql.Tx, token string, vs *volumeSet, seq int64) error {
	zero := func(v *big.Int) string {
		if v == nil {
			return "0"
		}
		return v.String()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.token_volume
			(token, deposit_volume, withdraw_volume, trade_volume, last_sequence)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5)
		ON CONFLICT (token) DO UPDATE SET
			deposit_volume = projections.token_volume.deposit_volume + $2::numeric,
			withdraw_volume = projections.token_volume.withdraw_volume + $3::numeric,
			trade_volume = projections.token_volume.trade_volume + $4::numeric,
			last_sequence = $5
	`, token, zero(vs.deposit), zero(vs.withdraw), zero(vs.trade), seq)
	return err
}

// Rebuild recomputes all projection tables from the audit tables.
func Rebuild(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`TRUNCATE projections.token_volume`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
		`INSERT INTO projections.token_volume (token, deposit_volume, withdraw_volume, trade_volume, last_sequence)
		 SELECT token, SUM(amount), 0, 0, 0 FROM orderbook.deposits GROUP BY token
		 ON CONFLICT (token) DO UPDATE SET deposit_volume = EXCLUDED.deposit_volume`,
		`INSERT INTO projections.token_volume (token, deposit_volume, withdraw_volume, trade_volume, last_sequence)
		 SELECT token, 0, SUM(amount), 0, 0 FROM orderbook.withdrawals GROUP BY token
		 ON CONFLICT (token) DO UPDATE SET withdraw_volume = EXCLUDED.withdraw_volume`,
		`INSERT INTO projections.token_volume (token, deposit_volume, withdraw_volume, trade_volume, last_sequence)
		 SELECT v.token, 0, 0, SUM(c.amount), 0
		 FROM orderbook.trade_vault_balance_changes c
		 JOIN orderbook.vaults v ON v.id = c.vault
		 GROUP BY v.token
		 ON CONFLICT (token) DO UPDATE SET trade_volume = EXCLUDED.trade_volume`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
	}

	logger.Info().Msg("projection rebuild complete")
	return nil
}
