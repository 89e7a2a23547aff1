package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"chainbills/core/events"
)

type consumedKey struct {
	chainID  uint16
	sequence uint64
}

type mockState struct {
	config          *Config
	stats           *ChainStats
	users           map[Wallet]*User
	payables        map[[32]byte]*Payable
	foreignPayables map[[32]byte]*ForeignPayable
	tokens          map[string]*TokenDetails
	userPayments    map[[32]byte]*UserPayment
	payablePayments map[[32]byte]*PayablePayment
	withdrawals     map[[32]byte]*Withdrawal
	activities      map[[32]byte]*ActivityRecord
	consumed        map[consumedKey]*ConsumedMessage
	contracts       map[uint16]*ForeignContract
	lookups         map[string][32]byte
}

func newMockState() *mockState {
	return &mockState{
		users:           make(map[Wallet]*User),
		payables:        make(map[[32]byte]*Payable),
		foreignPayables: make(map[[32]byte]*ForeignPayable),
		tokens:          make(map[string]*TokenDetails),
		userPayments:    make(map[[32]byte]*UserPayment),
		payablePayments: make(map[[32]byte]*PayablePayment),
		withdrawals:     make(map[[32]byte]*Withdrawal),
		activities:      make(map[[32]byte]*ActivityRecord),
		consumed:        make(map[consumedKey]*ConsumedMessage),
		contracts:       make(map[uint16]*ForeignContract),
		lookups:         make(map[string][32]byte),
	}
}

func (m *mockState) Config() (*Config, bool, error) {
	if m.config == nil {
		return nil, false, nil
	}
	return m.config.Clone(), true, nil
}

func (m *mockState) SetConfig(cfg *Config) error {
	m.config = cfg.Clone()
	return nil
}

func (m *mockState) ChainStats() (*ChainStats, bool, error) {
	if m.stats == nil {
		return nil, false, nil
	}
	return m.stats.Clone(), true, nil
}

func (m *mockState) SetChainStats(stats *ChainStats) error {
	m.stats = stats.Clone()
	return nil
}

func (m *mockState) User(wallet Wallet) (*User, bool, error) {
	user, ok := m.users[wallet]
	if !ok {
		return nil, false, nil
	}
	return user.Clone(), true, nil
}

func (m *mockState) SetUser(user *User) error {
	m.users[user.Wallet] = user.Clone()
	return nil
}

func (m *mockState) Payable(id [32]byte) (*Payable, bool, error) {
	payable, ok := m.payables[id]
	if !ok {
		return nil, false, nil
	}
	return payable.Clone(), true, nil
}

func (m *mockState) SetPayable(payable *Payable) error {
	m.payables[payable.ID] = payable.Clone()
	return nil
}

func (m *mockState) ForeignPayable(id [32]byte) (*ForeignPayable, bool, error) {
	foreign, ok := m.foreignPayables[id]
	if !ok {
		return nil, false, nil
	}
	return foreign.Clone(), true, nil
}

func (m *mockState) SetForeignPayable(foreign *ForeignPayable) error {
	m.foreignPayables[foreign.PayableID] = foreign.Clone()
	return nil
}

func (m *mockState) TokenDetails(token string) (*TokenDetails, bool, error) {
	details, ok := m.tokens[token]
	if !ok {
		return nil, false, nil
	}
	return details.Clone(), true, nil
}

func (m *mockState) SetTokenDetails(details *TokenDetails) error {
	m.tokens[details.Token] = details.Clone()
	return nil
}

func (m *mockState) UserPayment(id [32]byte) (*UserPayment, bool, error) {
	payment, ok := m.userPayments[id]
	if !ok {
		return nil, false, nil
	}
	return payment.Clone(), true, nil
}

func (m *mockState) SetUserPayment(payment *UserPayment) error {
	m.userPayments[payment.ID] = payment.Clone()
	return nil
}

func (m *mockState) PayablePayment(id [32]byte) (*PayablePayment, bool, error) {
	payment, ok := m.payablePayments[id]
	if !ok {
		return nil, false, nil
	}
	return payment.Clone(), true, nil
}

func (m *mockState) SetPayablePayment(payment *PayablePayment) error {
	m.payablePayments[payment.ID] = payment.Clone()
	return nil
}

func (m *mockState) Withdrawal(id [32]byte) (*Withdrawal, bool, error) {
	withdrawal, ok := m.withdrawals[id]
	if !ok {
		return nil, false, nil
	}
	return withdrawal.Clone(), true, nil
}

func (m *mockState) SetWithdrawal(withdrawal *Withdrawal) error {
	m.withdrawals[withdrawal.ID] = withdrawal.Clone()
	return nil
}

func (m *mockState) Activity(id [32]byte) (*ActivityRecord, bool, error) {
	activity, ok := m.activities[id]
	if !ok {
		return nil, false, nil
	}
	return activity.Clone(), true, nil
}

func (m *mockState) SetActivity(activity *ActivityRecord) error {
	m.activities[activity.ID] = activity.Clone()
	return nil
}

func (m *mockState) ConsumedMessage(chainID uint16, sequence uint64) (*ConsumedMessage, bool, error) {
	consumed, ok := m.consumed[consumedKey{chainID, sequence}]
	if !ok {
		return nil, false, nil
	}
	return consumed.Clone(), true, nil
}

func (m *mockState) SetConsumedMessage(consumed *ConsumedMessage) error {
	m.consumed[consumedKey{consumed.EmitterChainID, consumed.Sequence}] = consumed.Clone()
	return nil
}

func (m *mockState) ForeignContract(chainID uint16) (*ForeignContract, bool, error) {
	contract, ok := m.contracts[chainID]
	if !ok {
		return nil, false, nil
	}
	return contract.Clone(), true, nil
}

func (m *mockState) SetForeignContract(contract *ForeignContract) error {
	m.contracts[contract.ChainID] = contract.Clone()
	return nil
}

func (m *mockState) lookupKey(kind EntityKind, scope CounterScope, key []byte, count uint64) string {
	return fmt.Sprintf("%d|%d|%x|%d", kind, scope, key, count)
}

func (m *mockState) Lookup(kind EntityKind, scope CounterScope, key []byte, count uint64) ([32]byte, bool, error) {
	id, ok := m.lookups[m.lookupKey(kind, scope, key, count)]
	return id, ok, nil
}

func (m *mockState) SetLookup(kind EntityKind, scope CounterScope, key []byte, count uint64, id [32]byte) error {
	m.lookups[m.lookupKey(kind, scope, key, count)] = id
	return nil
}

func testWallet(fill byte) Wallet {
	var wallet Wallet
	for i := range wallet {
		wallet[i] = fill
	}
	return wallet
}

const (
	testChainID     uint16 = 9001
	testForeignID   uint16 = 2
	testSequenceSeed uint64 = 1
)

var (
	testOwner        = testWallet(0x01)
	testFeeCollector = testWallet(0x02)
	testHost         = testWallet(0xA1)
	testPayer        = testWallet(0xB7)
)

func newTestEngine(t *testing.T) (*Engine, *mockState, *events.CollectEmitter) {
	t.Helper()
	state := newMockState()
	emitter := &events.CollectEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	if _, err := engine.Initialize(testChainID, testSequenceSeed, testOwner, testFeeCollector, "cbill"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return engine, state, emitter
}

func registerTestToken(t *testing.T, engine *Engine, token string, maxFee int64) {
	t.Helper()
	if _, err := engine.UpdateTokenSupport(testOwner, token, false, big.NewInt(maxFee)); err != nil {
		t.Fatalf("register token %s: %v", token, err)
	}
}

func TestInitializeRejectsSecondCall(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	if _, err := engine.Initialize(testChainID, testSequenceSeed, testOwner, testFeeCollector, "cbill"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if state.config.WithdrawalFeeBps != DefaultWithdrawalFeeBps {
		t.Fatalf("expected default fee bps %d, got %d", DefaultWithdrawalFeeBps, state.config.WithdrawalFeeBps)
	}
}

func TestOperationsRequireInitialization(t *testing.T) {
	engine := NewEngine()
	engine.SetState(newMockState())
	if _, err := engine.CreatePayable(testHost, nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestCreatePayableOpenAcceptsAnything(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	payable, err := engine.CreatePayable(testHost, nil)
	if err != nil {
		t.Fatalf("create payable: %v", err)
	}
	if payable.ChainCount != 1 || payable.HostCount != 1 {
		t.Fatalf("unexpected ordinals: chain=%d host=%d", payable.ChainCount, payable.HostCount)
	}
	if payable.IsClosed {
		t.Fatal("new payable must start open")
	}
	if !payable.Allows("anytoken", big.NewInt(123)) {
		t.Fatal("open payable must accept any token and amount")
	}
	if state.stats.PayablesCount != 1 {
		t.Fatalf("expected chain payables count 1, got %d", state.stats.PayablesCount)
	}
	user := state.users[testHost]
	if user == nil || user.PayablesCount != 1 {
		t.Fatalf("host user not updated: %+v", user)
	}
	found := false
	for _, evt := range emitter.Events {
		if evt.Type == EventTypePayableCreated {
			found = true
		}
	}
	if !found {
		t.Fatal("expected payable created event")
	}
}

func TestCreatePayableValidatesAllowList(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	list := []TokenAndAmount{{Token: "usdc", Amount: big.NewInt(50)}}

	if _, err := engine.CreatePayable(testHost, list); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("expected ErrUnsupportedToken before registration, got %v", err)
	}

	registerTestToken(t, engine, "usdc", 5)
	if _, err := engine.CreatePayable(testHost, []TokenAndAmount{{Token: "usdc", Amount: big.NewInt(0)}}); !errors.Is(err, ErrZeroAmountSpecified) {
		t.Fatalf("expected ErrZeroAmountSpecified, got %v", err)
	}

	payable, err := engine.CreatePayable(testHost, list)
	if err != nil {
		t.Fatalf("create restricted payable: %v", err)
	}
	if !payable.Allows("usdc", big.NewInt(50)) {
		t.Fatal("payable must allow its configured pair")
	}
	if payable.Allows("usdc", big.NewInt(51)) {
		t.Fatal("restricted payable must reject a non-matching amount")
	}
}

func TestClosePayableLifecycle(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	payable, err := engine.CreatePayable(testHost, nil)
	if err != nil {
		t.Fatalf("create payable: %v", err)
	}

	if err := engine.ClosePayable(testWallet(0xEE), payable.ID); !errors.Is(err, ErrNotYourPayable) {
		t.Fatalf("expected ErrNotYourPayable, got %v", err)
	}
	if err := engine.ClosePayable(testHost, payable.ID); err != nil {
		t.Fatalf("close payable: %v", err)
	}
	if !state.payables[payable.ID].IsClosed {
		t.Fatal("payable should be closed")
	}
	if err := engine.ClosePayable(testHost, payable.ID); !errors.Is(err, ErrPayableIsAlreadyClosed) {
		t.Fatalf("expected ErrPayableIsAlreadyClosed, got %v", err)
	}

	if err := engine.ReopenPayable(testHost, payable.ID); err != nil {
		t.Fatalf("reopen payable: %v", err)
	}
	if state.payables[payable.ID].IsClosed {
		t.Fatal("payable should be open again")
	}
	if err := engine.ReopenPayable(testHost, payable.ID); !errors.Is(err, ErrPayableIsNotClosed) {
		t.Fatalf("expected ErrPayableIsNotClosed, got %v", err)
	}
}

func TestUpdatePayableAllowedTokensAndAmounts(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	registerTestToken(t, engine, "usdc", 5)
	payable, err := engine.CreatePayable(testHost, nil)
	if err != nil {
		t.Fatalf("create payable: %v", err)
	}

	updated, err := engine.UpdatePayableAllowedTokensAndAmounts(testHost, payable.ID, []TokenAndAmount{{Token: "usdc", Amount: big.NewInt(75)}})
	if err != nil {
		t.Fatalf("update allow list: %v", err)
	}
	if updated.Allows("other", big.NewInt(75)) {
		t.Fatal("restricted payable must reject unlisted token")
	}

	// Clearing the list returns the payable to open mode.
	updated, err = engine.UpdatePayableAllowedTokensAndAmounts(testHost, payable.ID, nil)
	if err != nil {
		t.Fatalf("clear allow list: %v", err)
	}
	if !updated.Allows("other", big.NewInt(1)) {
		t.Fatal("open payable must accept anything")
	}
}

func TestGovernanceOwnerChecks(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	intruder := testWallet(0x99)

	if _, err := engine.UpdateTokenSupport(intruder, "usdc", false, big.NewInt(1)); !errors.Is(err, ErrOwnerUnauthorized) {
		t.Fatalf("expected ErrOwnerUnauthorized, got %v", err)
	}
	if _, err := engine.UpdateWithdrawalFeeBps(intruder, 100); !errors.Is(err, ErrOwnerUnauthorized) {
		t.Fatalf("expected ErrOwnerUnauthorized, got %v", err)
	}
	if _, err := engine.RegisterForeignContract(intruder, testForeignID, testWallet(0xCC).asID()); !errors.Is(err, ErrOwnerUnauthorized) {
		t.Fatalf("expected ErrOwnerUnauthorized, got %v", err)
	}
}

func TestUpdateWithdrawalFeeBpsBounds(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	if _, err := engine.UpdateWithdrawalFeeBps(testOwner, 10_001); !errors.Is(err, ErrInvalidFeeBps) {
		t.Fatalf("expected ErrInvalidFeeBps, got %v", err)
	}
	cfg, err := engine.UpdateWithdrawalFeeBps(testOwner, 125)
	if err != nil {
		t.Fatalf("update fee bps: %v", err)
	}
	if cfg.WithdrawalFeeBps != 125 || state.config.WithdrawalFeeBps != 125 {
		t.Fatalf("fee bps not persisted: %d", state.config.WithdrawalFeeBps)
	}
}

func TestUpdateMaxWithdrawalFeeRequiresRegisteredToken(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.UpdateMaxWithdrawalFee(testOwner, "usdc", big.NewInt(9)); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("expected ErrUnsupportedToken, got %v", err)
	}
	registerTestToken(t, engine, "usdc", 5)
	details, err := engine.UpdateMaxWithdrawalFee(testOwner, "usdc", big.NewInt(9))
	if err != nil {
		t.Fatalf("update max fee: %v", err)
	}
	if details.MaxWithdrawalFee.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("max fee not updated: %s", details.MaxWithdrawalFee)
	}
}

func TestRegisterForeignContract(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	address := testWallet(0xCD).asID()
	contract, err := engine.RegisterForeignContract(testOwner, testForeignID, address)
	if err != nil {
		t.Fatalf("register foreign contract: %v", err)
	}
	if contract.ChainID != testForeignID || contract.Address != address {
		t.Fatalf("unexpected contract: %+v", contract)
	}
	if state.contracts[testForeignID] == nil {
		t.Fatal("contract not persisted")
	}

	// Re-registration overwrites the emitter address.
	replacement := testWallet(0xCE).asID()
	if _, err := engine.RegisterForeignContract(testOwner, testForeignID, replacement); err != nil {
		t.Fatalf("replace foreign contract: %v", err)
	}
	if state.contracts[testForeignID].Address != replacement {
		t.Fatal("replacement address not persisted")
	}
}

// asID reinterprets a wallet as a 32-byte identifier in tests that need
// arbitrary contract addresses or payable ids.
func (w Wallet) asID() [32]byte { return [32]byte(w) }
