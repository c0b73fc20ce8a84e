// Package encoding produces the canonical audit representation of an order.
// The encoding is order-preserving and reproducible byte-for-byte from the
// same payload; it exists so a stored order can be inspected and replayed
// without re-reading the chain.
package encoding

import (
	"encoding/json"
	"errors"
	"fmt"

	"BookLedger/internal/event"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrMalformedOrder marks a payload that cannot be canonically encoded.
// Fatal for the event carrying it: a half-recorded order would break the
// audit trail.
var ErrMalformedOrder = errors.New("malformed order payload")

type ioEncoded struct {
	Token    string `json:"token"`
	Decimals uint8  `json:"decimals"`
	VaultID  string `json:"vaultId"`
}

type evaluableEncoded struct {
	Interpreter string `json:"interpreter"`
	Store       string `json:"store"`
	Expression  string `json:"expression"`
}

type orderEncoded struct {
	Owner        string           `json:"owner"`
	Nonce        string           `json:"nonce"`
	Evaluable    evaluableEncoded `json:"evaluable"`
	ValidInputs  []ioEncoded      `json:"validInputs"`
	ValidOutputs []ioEncoded      `json:"validOutputs"`
}

// EncodeOrder returns the canonical encoding of an order payload.
// Struct field order fixes the key order, so identical payloads encode to
// identical bytes.
func EncodeOrder(p event.OrderPayload) ([]byte, error) {
	if p.Nonce == nil {
		return nil, fmt.Errorf("%w: nil nonce", ErrMalformedOrder)
	}
	if len(p.ValidInputs) == 0 || len(p.ValidOutputs) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one input and one output", ErrMalformedOrder)
	}

	inputs, err := encodeIOs(p.ValidInputs)
	if err != nil {
		return nil, err
	}
	outputs, err := encodeIOs(p.ValidOutputs)
	if err != nil {
		return nil, err
	}

	enc := orderEncoded{
		Owner: p.Owner.Hex(),
		Nonce: hexutil.EncodeBig(p.Nonce),
		Evaluable: evaluableEncoded{
			Interpreter: p.Evaluable.Interpreter.Hex(),
			Store:       p.Evaluable.Store.Hex(),
			Expression:  hexutil.Encode(p.Evaluable.Expression),
		},
		ValidInputs:  inputs,
		ValidOutputs: outputs,
	}

	out, err := json.Marshal(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}
	return out, nil
}

func encodeIOs(ios []event.IO) ([]ioEncoded, error) {
	out := make([]ioEncoded, len(ios))
	for i, io := range ios {
		if io.VaultID == nil {
			return nil, fmt.Errorf("%w: io %d has nil vaultId", ErrMalformedOrder, i)
		}
		out[i] = ioEncoded{
			Token:    io.Token.Hex(),
			Decimals: io.Decimals,
			VaultID:  hexutil.EncodeBig(io.VaultID),
		}
	}
	return out, nil
}
