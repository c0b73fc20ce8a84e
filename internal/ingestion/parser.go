package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"BookLedger/internal/event"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates and decodes before
// anything reaches the engine, so handler code never sees malformed input.
func ParseRawEvent(raw RawEvent) (event.Event, error) {
	switch raw.EventType {
	case "AddOrder":
		return parseAddOrder(raw.Data)
	case "RemoveOrder":
		return parseRemoveOrder(raw.Data)
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdraw":
		return parseWithdraw(raw.Data)
	case "TakeOrder":
		return parseTakeOrder(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", raw.EventType)
	}
}

// --- JSON wire formats ---
// These structs mirror the payloads the chain indexer publishes. Field names
// use snake_case to match the upstream producer. Amounts and vault ids are
// strings (decimal or 0x-hex) because they are 256-bit values.

type txMetaJSON struct {
	TxHash         string `json:"tx_hash"`
	BlockNumber    uint64 `json:"block_number"`
	TxIndex        uint   `json:"tx_index"`
	LogIndex       uint   `json:"log_index"`
	BlockTimestamp uint64 `json:"block_timestamp"`
}

func (m txMetaJSON) toMeta() (event.TxMeta, error) {
	if m.TxHash == "" {
		return event.TxMeta{}, fmt.Errorf("missing tx_hash")
	}
	return event.TxMeta{
		TxHash:         common.HexToHash(m.TxHash),
		Block:          m.BlockNumber,
		TxIndex:        m.TxIndex,
		LogIndex:       m.LogIndex,
		BlockTimestamp: m.BlockTimestamp,
	}, nil
}

type ioJSON struct {
	Token    string `json:"token"`
	Decimals uint8  `json:"decimals"`
	VaultID  string `json:"vault_id"`
}

type evaluableJSON struct {
	Interpreter string `json:"interpreter"`
	Store       string `json:"store"`
	Expression  string `json:"expression"`
}

type orderJSON struct {
	Owner        string        `json:"owner"`
	Nonce        string        `json:"nonce"`
	Evaluable    evaluableJSON `json:"evaluable"`
	ValidInputs  []ioJSON      `json:"valid_inputs"`
	ValidOutputs []ioJSON      `json:"valid_outputs"`
}

type addOrderJSON struct {
	txMetaJSON
	Sender    string    `json:"sender"`
	OrderHash string    `json:"order_hash"`
	Order     orderJSON `json:"order"`
}

type removeOrderJSON struct {
	txMetaJSON
	Sender    string `json:"sender"`
	OrderHash string `json:"order_hash"`
}

type depositJSON struct {
	txMetaJSON
	Sender  string `json:"sender"`
	Token   string `json:"token"`
	VaultID string `json:"vault_id"`
	Amount  string `json:"amount"`
}

type withdrawJSON struct {
	txMetaJSON
	Sender       string `json:"sender"`
	Token        string `json:"token"`
	VaultID      string `json:"vault_id"`
	Amount       string `json:"amount"`
	TargetAmount string `json:"target_amount"`
}

type takeOrderJSON struct {
	txMetaJSON
	Sender        string    `json:"sender"`
	OrderHash     string    `json:"order_hash"`
	Order         orderJSON `json:"order"`
	InputIOIndex  uint      `json:"input_io_index"`
	OutputIOIndex uint      `json:"output_io_index"`
	TakerInput    string    `json:"taker_input"`
	TakerOutput   string    `json:"taker_output"`
	Bounty        string    `json:"bounty"`
}

// parseBigInt accepts decimal or 0x-prefixed hex. Empty strings are rejected
// rather than defaulted: a producer that omits an amount is broken.
func parseBigInt(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s", field)
	}
	var (
		v  *big.Int
		ok bool
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		v, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", field, s)
	}
	return v, nil
}

func parseOrderPayload(j orderJSON) (event.OrderPayload, error) {
	nonce, err := parseBigInt("nonce", j.Nonce)
	if err != nil {
		return event.OrderPayload{}, err
	}

	var expression []byte
	if j.Evaluable.Expression != "" {
		expression, err = hexutil.Decode(j.Evaluable.Expression)
		if err != nil {
			return event.OrderPayload{}, fmt.Errorf("invalid evaluable expression: %w", err)
		}
	}

	parseIOs := func(kind string, ios []ioJSON) ([]event.IO, error) {
		out := make([]event.IO, len(ios))
		for i, io := range ios {
			vaultID, err := parseBigInt(fmt.Sprintf("%s[%d].vault_id", kind, i), io.VaultID)
			if err != nil {
				return nil, err
			}
			out[i] = event.IO{
				Token:    common.HexToAddress(io.Token),
				Decimals: io.Decimals,
				VaultID:  vaultID,
			}
		}
		return out, nil
	}

	inputs, err := parseIOs("valid_inputs", j.ValidInputs)
	if err != nil {
		return event.OrderPayload{}, err
	}
	outputs, err := parseIOs("valid_outputs", j.ValidOutputs)
	if err != nil {
		return event.OrderPayload{}, err
	}

	return event.OrderPayload{
		Owner: common.HexToAddress(j.Owner),
		Nonce: nonce,
		Evaluable: event.Evaluable{
			Interpreter: common.HexToAddress(j.Evaluable.Interpreter),
			Store:       common.HexToAddress(j.Evaluable.Store),
			Expression:  expression,
		},
		ValidInputs:  inputs,
		ValidOutputs: outputs,
	}, nil
}

func parseAddOrder(data []byte) (*event.AddOrder, error) {
	var j addOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AddOrder: %w", err)
	}
	meta, err := j.toMeta()
	if err != nil {
		return nil, fmt.Errorf("parse AddOrder: %w", err)
	}
	order, err := parseOrderPayload(j.Order)
	if err != nil {
		return nil, fmt.Errorf("parse AddOrder: %w", err)
	}
	return &event.AddOrder{
		Meta:      meta,
		Sender:    common.HexToAddress(j.Sender),
		OrderHash: common.HexToHash(j.OrderHash),
		Order:     order,
	}, nil
}

func parseRemoveOrder(data []byte) (*event.RemoveOrder, error) {
	var j removeOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RemoveOrder: %w", err)
	}
	meta, err := j.toMeta()
	if err != nil {
		return nil, fmt.Errorf("parse RemoveOrder: %w", err)
	}
	return &event.RemoveOrder{
		Meta:      meta,
		Sender:    common.HexToAddress(j.Sender),
		OrderHash: common.HexToHash(j.OrderHash),
	}, nil
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	meta, err := j.toMeta()
	if err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	vaultID, err := parseBigInt("vault_id", j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	amount, err := parseBigInt("amount", j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	return &event.Deposit{
		Meta:    meta,
		Sender:  common.HexToAddress(j.Sender),
		Token:   common.HexToAddress(j.Token),
		VaultID: vaultID,
		Amount:  amount,
	}, nil
}

func parseWithdraw(data []byte) (*event.Withdraw, error) {
	var j withdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	meta, err := j.toMeta()
	if err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	vaultID, err := parseBigInt("vault_id", j.VaultID)
	if err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	amount, err := parseBigInt("amount", j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	target, err := parseBigInt("target_amount", j.TargetAmount)
	if err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	return &event.Withdraw{
		Meta:         meta,
		Sender:       common.HexToAddress(j.Sender),
		Token:        common.HexToAddress(j.Token),
		VaultID:      vaultID,
		Amount:       amount,
		TargetAmount: target,
	}, nil
}

func parseTakeOrder(data []byte) (*event.TakeOrder, error) {
	var j takeOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TakeOrder: %w", err)
	}
	meta, err := j.toMeta()
	if err != nil {
		return nil, fmt.Errorf("parse TakeOrder: %w", err)
	}
	order, err := parseOrderPayload(j.Order)
	if err != nil {
		return nil, fmt.Errorf("parse TakeOrder: %w", err)
	}
	takerInput, err := parseBigInt("taker_input", j.TakerInput)
	if err != nil {
		return nil, fmt.Errorf("parse TakeOrder: %w", err)
	}
	takerOutput, err := parseBigInt("taker_output", j.TakerOutput)
	if err != nil {
		return nil, fmt.Errorf("parse TakeOrder: %w", err)
	}
	// Bounty is optional on the wire; absent means zero.
	bounty := big.NewInt(0)
	if j.Bounty != "" {
		bounty, err = parseBigInt("bounty", j.Bounty)
		if err != nil {
			return nil, fmt.Errorf("parse TakeOrder: %w", err)
		}
	}
	return &event.TakeOrder{
		Meta:          meta,
		Sender:        common.HexToAddress(j.Sender),
		OrderHash:     common.HexToHash(j.OrderHash),
		Order:         order,
		InputIOIndex:  j.InputIOIndex,
		OutputIOIndex: j.OutputIOIndex,
		TakerInput:    takerInput,
		TakerOutput:   takerOutput,
		Bounty:        bounty,
	}, nil
}
