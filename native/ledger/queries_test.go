package ledger

import (
	"errors"
	"math/big"
	"testing"
)

func TestOrdinalLookups(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	registerTestToken(t, engine, "usdc", 5)

	first, err := engine.CreatePayable(testHost, nil)
	if err != nil {
		t.Fatalf("create payable: %v", err)
	}
	second, err := engine.CreatePayable(testHost, nil)
	if err != nil {
		t.Fatalf("create payable: %v", err)
	}

	if id, err := engine.PayableIDForChainCount(2); err != nil || id != second.ID {
		t.Fatalf("chain-scope lookup: id=%x err=%v", id, err)
	}
	if id, err := engine.PayableIDForHost(testHost, 1); err != nil || id != first.ID {
		t.Fatalf("host-scope lookup: id=%x err=%v", id, err)
	}
	if _, err := engine.PayableIDForChainCount(3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound past the end, got %v", err)
	}
	if _, err := engine.PayableIDForChainCount(0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ordinals are one-based, got %v", err)
	}

	userPayment, payablePayment, err := engine.Pay(testPayer, first.ID, "usdc", big.NewInt(10))
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if id, err := engine.UserPaymentIDForPayer(testPayer, 1); err != nil || id != userPayment.ID {
		t.Fatalf("payer-scope lookup: %v", err)
	}
	if id, err := engine.PayablePaymentIDForPayable(first.ID, 1); err != nil || id != payablePayment.ID {
		t.Fatalf("payable-scope lookup: %v", err)
	}
	if id, err := engine.PayablePaymentIDForPayableChain(first.ID, testChainID, 1); err != nil || id != payablePayment.ID {
		t.Fatalf("payable-chain-scope lookup: %v", err)
	}

	result, err := engine.Withdraw(testHost, first.ID, "usdc", big.NewInt(10))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if id, err := engine.WithdrawalIDForHost(testHost, 1); err != nil || id != result.Withdrawal.ID {
		t.Fatalf("host withdrawal lookup: %v", err)
	}
	if id, err := engine.WithdrawalIDForPayable(first.ID, 1); err != nil || id != result.Withdrawal.ID {
		t.Fatalf("payable withdrawal lookup: %v", err)
	}

	// The host initialized first, the payer second.
	if wallet, err := engine.UserWalletForChainCount(2); err != nil || wallet != testPayer {
		t.Fatalf("user lookup: wallet=%x err=%v", wallet, err)
	}
}

func TestActivityTrail(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	registerTestToken(t, engine, "usdc", 5)
	payable, err := engine.CreatePayable(testHost, nil)
	if err != nil {
		t.Fatalf("create payable: %v", err)
	}
	if _, _, err := engine.Pay(testPayer, payable.ID, "usdc", big.NewInt(10)); err != nil {
		t.Fatalf("pay: %v", err)
	}

	// user initialized (host), payable created, user initialized (payer),
	// payment made.
	if state.stats.ActivitiesCount != 4 {
		t.Fatalf("expected 4 activities, got %d", state.stats.ActivitiesCount)
	}
	id, err := engine.ActivityIDForChainCount(4)
	if err != nil {
		t.Fatalf("activity lookup: %v", err)
	}
	activity, err := engine.ActivityByID(id)
	if err != nil {
		t.Fatalf("activity load: %v", err)
	}
	if activity.Kind != ActivityPaymentMade {
		t.Fatalf("expected payment activity, got %s", activity.Kind)
	}
	if activity.PayableCount == 0 {
		t.Fatal("payment activity must carry a payable ordinal")
	}
}

func TestQueriesReturnNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	missing := testWallet(0x42).asID()

	if _, err := engine.UserByWallet(testWallet(0x42)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
	if _, err := engine.UserPaymentByID(missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown payment, got %v", err)
	}
	if _, err := engine.WithdrawalByID(missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown withdrawal, got %v", err)
	}
	if _, err := engine.ForeignContractFor(99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown contract, got %v", err)
	}
	if consumed, err := engine.HasConsumedMessage(99, 1); err != nil || consumed {
		t.Fatalf("unexpected consumed state: %v %v", consumed, err)
	}
}
