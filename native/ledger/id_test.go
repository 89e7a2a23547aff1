package ledger

import (
	"errors"
	"testing"
)

func TestDeriveIDDeterminism(t *testing.T) {
	first := DeriveID(KindPayable, testChainID, 1, testHost, 1, 1_700_000_000)
	second := DeriveID(KindPayable, testChainID, 1, testHost, 1, 1_700_000_000)
	if first != second {
		t.Fatal("identical inputs must derive identical identifiers")
	}

	variants := [][32]byte{
		DeriveID(KindWithdrawal, testChainID, 1, testHost, 1, 1_700_000_000),
		DeriveID(KindPayable, testChainID+1, 1, testHost, 1, 1_700_000_000),
		DeriveID(KindPayable, testChainID, 2, testHost, 1, 1_700_000_000),
		DeriveID(KindPayable, testChainID, 1, testPayer, 1, 1_700_000_000),
		DeriveID(KindPayable, testChainID, 1, testHost, 2, 1_700_000_000),
		DeriveID(KindPayable, testChainID, 1, testHost, 1, 1_700_000_001),
	}
	for i, id := range variants {
		if id == first {
			t.Fatalf("variant %d collides with the base identifier", i)
		}
	}
}

func TestParseIDRoundTrip(t *testing.T) {
	id := DeriveID(KindPayable, testChainID, 1, testHost, 1, 1_700_000_000)
	parsed, err := ParseID(FormatID(id))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatal("identifier did not survive the round trip")
	}
	prefixed, err := ParseID("0x" + FormatID(id))
	if err != nil || prefixed != id {
		t.Fatalf("0x-prefixed form must parse: %v", err)
	}

	if _, err := ParseID("abc"); !errors.Is(err, ErrInvalidPayableID) {
		t.Fatalf("expected ErrInvalidPayableID for short input, got %v", err)
	}
	if _, err := ParseID("zz" + FormatID(id)[2:]); !errors.Is(err, ErrInvalidPayableID) {
		t.Fatalf("expected ErrInvalidPayableID for non-hex input, got %v", err)
	}
}

func TestParseWalletRejectsZero(t *testing.T) {
	wallet, err := ParseWallet(FormatWallet(testHost))
	if err != nil || wallet != testHost {
		t.Fatalf("round trip failed: %v", err)
	}
	if _, err := ParseWallet(FormatWallet(Wallet{})); !errors.Is(err, ErrInvalidWallet) {
		t.Fatalf("expected ErrInvalidWallet for the zero wallet, got %v", err)
	}
}

func TestNextCountPanicsOnOverflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected counter overflow to panic")
		}
	}()
	nextCount(^uint64(0))
}
