package ledger

import (
	"math/big"
	"testing"
)

func TestForeignPaymentCountsStaySorted(t *testing.T) {
	payable := &Payable{}
	payable.setForeignPaymentCount(30, 1)
	payable.setForeignPaymentCount(2, 1)
	payable.setForeignPaymentCount(10, 1)
	payable.setForeignPaymentCount(2, 5)

	want := []ChainPaymentCount{{ChainID: 2, Count: 5}, {ChainID: 10, Count: 1}, {ChainID: 30, Count: 1}}
	if len(payable.ForeignPaymentCounts) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(payable.ForeignPaymentCounts))
	}
	for i, entry := range payable.ForeignPaymentCounts {
		if entry != want[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, entry, want[i])
		}
	}
	if got := payable.foreignPaymentCount(10); got != 1 {
		t.Fatalf("expected count 1 for chain 10, got %d", got)
	}
	if got := payable.foreignPaymentCount(99); got != 0 {
		t.Fatalf("expected count 0 for unseen chain, got %d", got)
	}
}

func TestDebitBalancePanicsOnUnderflow(t *testing.T) {
	payable := &Payable{}
	payable.creditBalance("usdc", big.NewInt(10))

	defer func() {
		if recover() == nil {
			t.Fatal("expected underflow to panic")
		}
	}()
	payable.debitBalance("usdc", big.NewInt(11))
}

func TestPayableCloneIsIndependent(t *testing.T) {
	payable := &Payable{
		ID:       testWallet(0xAB).asID(),
		Host:     testHost,
		Balances: []TokenAndAmount{{Token: "usdc", Amount: big.NewInt(100)}},
		AllowedTokensAndAmounts: []TokenAndAmount{
			{Token: "usdc", Amount: big.NewInt(50)},
		},
		ForeignPaymentCounts: []ChainPaymentCount{{ChainID: 2, Count: 1}},
	}
	clone := payable.Clone()

	clone.creditBalance("usdc", big.NewInt(900))
	clone.AllowedTokensAndAmounts[0].Amount.SetInt64(1)
	clone.setForeignPaymentCount(2, 9)

	if balance, _ := payable.BalanceOf("usdc"); balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("clone mutation leaked into balances: %v", balance)
	}
	if payable.AllowedTokensAndAmounts[0].Amount.Cmp(big.NewInt(50)) != 0 {
		t.Fatal("clone mutation leaked into allow list")
	}
	if payable.foreignPaymentCount(2) != 1 {
		t.Fatal("clone mutation leaked into per-chain counts")
	}
}

func TestNormalizeToken(t *testing.T) {
	if _, err := NormalizeToken("   "); err == nil {
		t.Fatal("blank token must be rejected")
	}
	if got, err := NormalizeToken("  USDC  "); err != nil || got != "USDC" {
		t.Fatalf("plain symbols keep their case: %q %v", got, err)
	}
	if got, err := NormalizeToken("0xABCdef"); err != nil || got != "0xabcdef" {
		t.Fatalf("hex identifiers are lowercased: %q %v", got, err)
	}
}

func TestTimestampClampsNegativeReadings(t *testing.T) {
	if got := timestamp(-5); got != 0 {
		t.Fatalf("expected clamp to zero, got %d", got)
	}
	if got := timestamp(1_700_000_000); got != 1_700_000_000 {
		t.Fatalf("expected passthrough, got %d", got)
	}
}
