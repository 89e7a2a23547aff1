package ledger

import (
	"errors"
	"math/big"
	"testing"
)

func TestPaymentPayloadRoundTrip(t *testing.T) {
	payload := PaymentPayload{
		PayableID: testWallet(0xD1).asID(),
		Payer:     testWallet(0xE9),
		Token:     "USDC",
		Amount:    big.NewInt(123456789),
	}
	raw, err := payload.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodePaymentPayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.PayableID != payload.PayableID || decoded.Payer != payload.Payer {
		t.Fatal("identities did not survive the round trip")
	}
	if decoded.Token != "USDC" {
		t.Fatalf("token mismatch: %q", decoded.Token)
	}
	if decoded.Amount.Cmp(payload.Amount) != 0 {
		t.Fatalf("amount mismatch: %s", decoded.Amount)
	}
}

func TestWithdrawalPayloadRoundTrip(t *testing.T) {
	payload := WithdrawalPayload{
		PayableID: testWallet(0xD2).asID(),
		Host:      testHost,
		Token:     "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Amount:    new(big.Int).Lsh(big.NewInt(1), 200),
	}
	raw, err := payload.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeWithdrawalPayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Host != payload.Host || decoded.Amount.Cmp(payload.Amount) != 0 {
		t.Fatal("payload did not survive the round trip")
	}
	if decoded.Token != "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" {
		t.Fatalf("hex token must arrive lowercased, got %q", decoded.Token)
	}
}

func TestDecodePayloadRejectsMalformedInput(t *testing.T) {
	valid, err := PaymentPayload{
		PayableID: testWallet(0xD1).asID(),
		Payer:     testPayer,
		Token:     "usdc",
		Amount:    big.NewInt(10),
	}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: nil},
		{name: "wrong kind", raw: append([]byte{payloadKindWithdrawal}, valid[1:]...)},
		{name: "truncated header", raw: valid[:40]},
		{name: "truncated amount", raw: valid[:len(valid)-1]},
		{name: "trailing bytes", raw: append(append([]byte(nil), valid...), 0x00)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodePaymentPayload(tc.raw); !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestEncodePayloadValidation(t *testing.T) {
	base := PaymentPayload{PayableID: testWallet(0xD1).asID(), Payer: testPayer, Token: "usdc", Amount: big.NewInt(10)}

	zero := base
	zero.Amount = big.NewInt(0)
	if _, err := zero.Encode(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for zero amount, got %v", err)
	}

	missing := base
	missing.Token = "   "
	if _, err := missing.Encode(); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for blank token, got %v", err)
	}
}
