package projection

import (
	"math/big"
	"sync"

	"BookLedger/internal/core"
)

// TradeHistoryEntry is one settled trade as seen by the stats projection.
type TradeHistoryEntry struct {
	EventID     string
	OrderHash   string
	Sender      string
	TakerInput  *big.Int
	TakerOutput *big.Int
	Bounty      *big.Int
	Block       uint64
	Timestamp   uint64
}

// TokenVolume is the in-memory per-token volume counter.
type TokenVolume struct {
	Deposits    *big.Int
	Withdrawals *big.Int
	Trades      *big.Int
}

// Stats is an in-memory aggregate over processed events, updated by the
// projection worker and read by the query service. It holds counters plus a
// bounded ring of recent trades.
type Stats struct {
	mu sync.RWMutex

	eventsByType map[string]int64
	lastSequence int64
	volumes      map[string]*TokenVolume

	trades    []TradeHistoryEntry
	maxTrades int
}

func NewStats(maxTrades int) *Stats {
	if maxTrades <= 0 {
		maxTrades = 1024
	}
	return &Stats{
		eventsByType: make(map[string]int64),
		volumes:      make(map[string]*TokenVolume),
		maxTrades:    maxTrades,
	}
}

// Apply folds one engine output into the aggregate.
func (s *Stats) Apply(output core.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eventsByType[output.EventType.String()]++
	s.lastSequence = output.Sequence

	r := output.Rows
	if r.Deposit != nil {
		s.volume(r.Deposit.Token.Hex()).Deposits.Add(
			s.volume(r.Deposit.Token.Hex()).Deposits, r.Deposit.Amount)
	}
	if r.Withdrawal != nil {
		s.volume(r.Withdrawal.Token.Hex()).Withdrawals.Add(
			s.volume(r.Withdrawal.Token.Hex()).Withdrawals, r.Withdrawal.Amount)
	}
	if len(r.TradeChanges) > 0 {
		vaultToken := make(map[string]string, len(r.Vaults))
		for _, v := range r.Vaults {
			vaultToken[v.ID] = v.Token.Hex()
		}
		for _, c := range r.TradeChanges {
			if token, ok := vaultToken[c.Vault]; ok {
				s.volume(token).Trades.Add(s.volume(token).Trades, c.Amount)
			}
		}
	}

	if r.TakeOrder != nil {
		s.trades = append(s.trades, TradeHistoryEntry{
			EventID:     output.EventID,
			OrderHash:   r.TakeOrder.OrderHash.Hex(),
			Sender:      r.TakeOrder.Sender.Hex(),
			TakerInput:  new(big.Int).Set(r.TakeOrder.TakerInput),
			TakerOutput: new(big.Int).Set(r.TakeOrder.TakerOutput),
			Bounty:      new(big.Int).Set(r.TakeOrder.Bounty),
			Block:       output.Pos.Block,
			Timestamp:   output.Timestamp,
		})
		if len(s.trades) > s.maxTrades {
			s.trades = s.trades[len(s.trades)-s.maxTrades:]
		}
	}
}

// volume returns the counter for token, creating it at zero. Callers hold mu.
func (s *Stats) volume(token string) *TokenVolume {
	tv, ok := s.volumes[token]
	if !ok {
		tv = &TokenVolume{
			Deposits:    new(big.Int),
			Withdrawals: new(big.Int),
			Trades:      new(big.Int),
		}
		s.volumes[token] = tv
	}
	return tv
}

// EventCounts returns a copy of the per-type event counters.
func (s *Stats) EventCounts() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.eventsByType))
	for k, v := range s.eventsByType {
		out[k] = v
	}
	return out
}

// LastSequence returns the sequence of the most recently folded output.
func (s *Stats) LastSequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSequence
}

// TokenVolumes returns a copy of the per-token volume counters.
func (s *Stats) TokenVolumes() map[string]TokenVolume {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]TokenVolume, len(s.volumes))
	for token, tv := range s.volumes {
		out[token] = TokenVolume{
			Deposits:    new(big.Int).Set(tv.Deposits),
			Withdrawals: new(big.Int).Set(tv.Withdrawals),
			Trades:      new(big.Int).Set(tv.Trades),
		}
	}
	return out
}

// RecentTrades returns up to limit trades for orderHash, newest first. An
// empty orderHash matches every trade.
func (s *Stats) RecentTrades(orderHash string, limit int) []TradeHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]TradeHistoryEntry, 0)
	for i := len(s.trades) - 1; i >= 0 && len(result) < limit; i-- {
		if orderHash == "" || s.trades[i].OrderHash == orderHash {
			result = append(result, s.trades[i])
		}
	}
	return result
}
