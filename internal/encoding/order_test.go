package encoding_test

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"BookLedger/internal/encoding"
	"BookLedger/internal/event"

	"github.com/ethereum/go-ethereum/common"
)

func samplePayload() event.OrderPayload {
	return event.OrderPayload{
		Owner: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Nonce: big.NewInt(1),
		Evaluable: event.Evaluable{
			Interpreter: common.HexToAddress("0x6666666666666666666666666666666666666666"),
			Store:       common.HexToAddress("0x7777777777777777777777777777777777777777"),
			Expression:  common.FromHex("0x8888888888888888888888888888888888888888"),
		},
		ValidInputs: []event.IO{
			{Token: common.HexToAddress("0x3333333333333333333333333333333333333333"), Decimals: 18, VaultID: big.NewInt(1)},
		},
		ValidOutputs: []event.IO{
			{Token: common.HexToAddress("0x4444444444444444444444444444444444444444"), Decimals: 18, VaultID: big.NewInt(1)},
		},
	}
}

func TestEncodeOrder_Deterministic(t *testing.T) {
	a, err := encoding.EncodeOrder(samplePayload())
	if err != nil {
		t.Fatalf("EncodeOrder failed: %v", err)
	}
	b, err := encoding.EncodeOrder(samplePayload())
	if err != nil {
		t.Fatalf("EncodeOrder failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical payloads must encode to identical bytes")
	}
}

func TestEncodeOrder_PreservesIOOrder(t *testing.T) {
	p := samplePayload()
	p.ValidInputs = append(p.ValidInputs, event.IO{
		Token:   common.HexToAddress("0x5555555555555555555555555555555555555555"),
		VaultID: big.NewInt(2),
	})

	a, err := encoding.EncodeOrder(p)
	if err != nil {
		t.Fatalf("EncodeOrder failed: %v", err)
	}

	swapped := samplePayload()
	swapped.ValidInputs = []event.IO{p.ValidInputs[1], p.ValidInputs[0]}
	b, err := encoding.EncodeOrder(swapped)
	if err != nil {
		t.Fatalf("EncodeOrder failed: %v", err)
	}

	if bytes.Equal(a, b) {
		t.Error("input order must be part of the encoding")
	}
}

func TestEncodeOrder_Malformed(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*event.OrderPayload)
	}{
		{"nil nonce", func(p *event.OrderPayload) { p.Nonce = nil }},
		{"no inputs", func(p *event.OrderPayload) { p.ValidInputs = nil }},
		{"no outputs", func(p *event.OrderPayload) { p.ValidOutputs = nil }},
		{"nil io vaultId", func(p *event.OrderPayload) { p.ValidInputs[0].VaultID = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := samplePayload()
			tc.mutate(&p)
			_, err := encoding.EncodeOrder(p)
			if !errors.Is(err, encoding.ErrMalformedOrder) {
				t.Errorf("want ErrMalformedOrder, got %v", err)
			}
		})
	}
}
