package ledger

import (
	"errors"
	"math/big"
	"time"

	"chainbills/core/events"
)

// DefaultWithdrawalFeeBps is the protocol withdrawal fee applied until
// governance overrides it: 200 basis points, i.e. 2%.
const DefaultWithdrawalFeeBps uint16 = 200

// maxFeeBps is the ceiling for the governance fee percentage (100%).
const maxFeeBps uint16 = 10_000

var errNilState = errors.New("ledger engine: state not configured")

// engineState is the storage contract the engine operates against. The
// persistent implementation lives in state/ledger; tests supply an in-memory
// map-backed implementation.
type engineState interface {
	Config() (*Config, bool, error)
	SetConfig(*Config) error
	ChainStats() (*ChainStats, bool, error)
	SetChainStats(*ChainStats) error
	User(wallet Wallet) (*User, bool, error)
	SetUser(*User) error
	Payable(id [32]byte) (*Payable, bool, error)
	SetPayable(*Payable) error
	ForeignPayable(id [32]byte) (*ForeignPayable, bool, error)
	SetForeignPayable(*ForeignPayable) error
	TokenDetails(token string) (*TokenDetails, bool, error)
	SetTokenDetails(*TokenDetails) error
	UserPayment(id [32]byte) (*UserPayment, bool, error)
	SetUserPayment(*UserPayment) error
	PayablePayment(id [32]byte) (*PayablePayment, bool, error)
	SetPayablePayment(*PayablePayment) error
	Withdrawal(id [32]byte) (*Withdrawal, bool, error)
	SetWithdrawal(*Withdrawal) error
	Activity(id [32]byte) (*ActivityRecord, bool, error)
	SetActivity(*ActivityRecord) error
	ConsumedMessage(chainID uint16, sequence uint64) (*ConsumedMessage, bool, error)
	SetConsumedMessage(*ConsumedMessage) error
	ForeignContract(chainID uint16) (*ForeignContract, bool, error)
	SetForeignContract(*ForeignContract) error
	Lookup(kind EntityKind, scope CounterScope, key []byte, count uint64) ([32]byte, bool, error)
	SetLookup(kind EntityKind, scope CounterScope, key []byte, count uint64, id [32]byte) error
}

// TransferVerifier confirms that an inbound local payment has actually moved
// token custody before the ledger records it. Transfer execution itself is a
// host-runtime concern.
type TransferVerifier interface {
	VerifyInbound(payer Wallet, token string, amount *big.Int) error
}

// TransferExecutor performs the outbound transfers a withdrawal settles
// with. Implementations bind to the host runtime's token modules.
type TransferExecutor interface {
	PayOut(recipient Wallet, token string, amount *big.Int) error
}

// Engine implements the payable ledger and its cross-chain reconciliation
// against an injected state backend. Operations validate fully before any
// write, so a failed check leaves no partial state behind. The engine
// assumes the host admits one operation at a time.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	verifier  TransferVerifier
	transfers TransferExecutor
	nowFn     func() int64
}

// NewEngine creates a ledger engine with a no-op emitter and no transfer
// collaborators wired.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetTransferVerifier wires the collaborator that attests inbound custody
// transfers. With no verifier configured, local payments are trusted.
func (e *Engine) SetTransferVerifier(v TransferVerifier) { e.verifier = v }

// SetTransferExecutor wires the collaborator that executes withdrawal
// payouts. With no executor configured, payout signalling is skipped.
func (e *Engine) SetTransferExecutor(t TransferExecutor) { e.transfers = t }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) withState() (engineState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state, nil
}

func (e *Engine) loadConfig() (*Config, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	cfg, ok, err := state.Config()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

func (e *Engine) loadStats() (*ChainStats, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	stats, ok, err := state.ChainStats()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return stats, nil
}

func (e *Engine) loadPayable(id [32]byte) (*Payable, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	payable, ok, err := state.Payable(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidPayableID
	}
	return payable, nil
}

// loadSupportedToken resolves the registry entry for token, failing when the
// token was never registered or has had support withdrawn.
func (e *Engine) loadSupportedToken(token string) (*TokenDetails, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	details, ok, err := state.TokenDetails(token)
	if err != nil {
		return nil, err
	}
	if !ok || !details.IsSupported {
		return nil, ErrUnsupportedToken
	}
	return details, nil
}

func requireOwner(cfg *Config, caller Wallet) error {
	if caller != cfg.Owner {
		return ErrOwnerUnauthorized
	}
	return nil
}

// ensureUser returns the wallet's user record, lazily initializing it on
// first touch. Initialization bumps the chain users count, writes the
// chain-scope lookup, appends a "user initialized" activity and emits the
// matching event. Callers persist stats afterwards.
func (e *Engine) ensureUser(cfg *Config, stats *ChainStats, wallet Wallet, ts uint64) (*User, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	user, ok, err := state.User(wallet)
	if err != nil {
		return nil, err
	}
	if ok {
		return user, nil
	}
	stats.UsersCount = nextCount(stats.UsersCount)
	user = &User{Wallet: wallet, ChainCount: stats.UsersCount}
	if err := state.SetLookup(KindUser, ScopeChain, nil, user.ChainCount, [32]byte(wallet)); err != nil {
		return nil, err
	}
	activity, err := e.recordActivity(cfg, stats, user, nil, ActivityUserInitialized, [32]byte(wallet), ts)
	if err != nil {
		return nil, err
	}
	if err := state.SetUser(user); err != nil {
		return nil, err
	}
	e.emit(NewUserInitializedEvent(user, activity))
	return user, nil
}

// recordActivity appends one audit-trail entry, bumping the activity
// counters of every scope that applies. The caller persists the mutated
// stats/user/payable records.
func (e *Engine) recordActivity(cfg *Config, stats *ChainStats, user *User, payable *Payable, kind ActivityKind, entity [32]byte, ts uint64) (*ActivityRecord, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	stats.ActivitiesCount = nextCount(stats.ActivitiesCount)
	record := &ActivityRecord{
		Kind:       kind,
		Entity:     entity,
		ChainCount: stats.ActivitiesCount,
		Timestamp:  ts,
	}
	wallet := Wallet{}
	count := stats.ActivitiesCount
	if user != nil {
		user.ActivitiesCount = nextCount(user.ActivitiesCount)
		record.UserCount = user.ActivitiesCount
		wallet = user.Wallet
		count = user.ActivitiesCount
	}
	if payable != nil {
		payable.ActivitiesCount = nextCount(payable.ActivitiesCount)
		record.PayableCount = payable.ActivitiesCount
	}
	record.ID = DeriveID(KindActivity, cfg.ChainID, cfg.ChainSequenceSeed, wallet, count, ts)
	if err := state.SetActivity(record); err != nil {
		return nil, err
	}
	if err := state.SetLookup(KindActivity, ScopeChain, nil, record.ChainCount, record.ID); err != nil {
		return nil, err
	}
	if user != nil {
		if err := state.SetLookup(KindActivity, ScopeUser, user.Wallet[:], record.UserCount, record.ID); err != nil {
			return nil, err
		}
	}
	if payable != nil {
		if err := state.SetLookup(KindActivity, ScopePayable, payable.ID[:], record.PayableCount, record.ID); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// Initialize performs the one-time chain setup: the Config singleton with
// the default fee percentage and the zeroed ChainStats. The caller becomes
// the owner.
func (e *Engine) Initialize(chainID uint16, sequenceSeed uint64, owner, feeCollector Wallet, nativeDenom string) (*Config, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	if _, ok, err := state.Config(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	if chainID == 0 {
		return nil, ErrInvalidChainID
	}
	if owner.IsZero() || feeCollector.IsZero() {
		return nil, ErrInvalidWallet
	}
	denom, err := NormalizeToken(nativeDenom)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ChainID:           chainID,
		ChainSequenceSeed: sequenceSeed,
		Owner:             owner,
		FeeCollector:      feeCollector,
		NativeDenom:       denom,
		WithdrawalFeeBps:  DefaultWithdrawalFeeBps,
	}
	if err := state.SetConfig(cfg); err != nil {
		return nil, err
	}
	if err := state.SetChainStats(&ChainStats{}); err != nil {
		return nil, err
	}
	e.emit(NewChainInitializedEvent(cfg))
	return cfg.Clone(), nil
}

// validateAllowList normalizes and checks a payable allow-list: every entry
// must name a registered, supported token and a positive exact amount.
func (e *Engine) validateAllowList(list []TokenAndAmount) ([]TokenAndAmount, error) {
	out := make([]TokenAndAmount, 0, len(list))
	for _, taa := range list {
		token, err := NormalizeToken(taa.Token)
		if err != nil {
			return nil, err
		}
		if taa.Amount == nil || taa.Amount.Sign() <= 0 {
			return nil, ErrZeroAmountSpecified
		}
		if _, err := e.loadSupportedToken(token); err != nil {
			return nil, err
		}
		out = append(out, TokenAndAmount{Token: token, Amount: new(big.Int).Set(taa.Amount)})
	}
	return out, nil
}

// CreatePayable registers a new payable owned by host. An empty allow-list
// accepts any supported token and amount.
func (e *Engine) CreatePayable(host Wallet, allowed []TokenAndAmount) (*Payable, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	stats, err := e.loadStats()
	if err != nil {
		return nil, err
	}
	if host.IsZero() {
		return nil, ErrInvalidWallet
	}
	allowList, err := e.validateAllowList(allowed)
	if err != nil {
		return nil, err
	}
	ts := timestamp(e.now())
	user, err := e.ensureUser(cfg, stats, host, ts)
	if err != nil {
		return nil, err
	}
	stats.PayablesCount = nextCount(stats.PayablesCount)
	user.PayablesCount = nextCount(user.PayablesCount)
	payable := &Payable{
		ID:                      DeriveID(KindPayable, cfg.ChainID, cfg.ChainSequenceSeed, host, user.PayablesCount, ts),
		Host:                    host,
		ChainCount:              stats.PayablesCount,
		HostCount:               user.PayablesCount,
		AllowedTokensAndAmounts: allowList,
		CreatedAt:               ts,
	}
	if err := state.SetLookup(KindPayable, ScopeChain, nil, payable.ChainCount, payable.ID); err != nil {
		return nil, err
	}
	if err := state.SetLookup(KindPayable, ScopeUser, host[:], payable.HostCount, payable.ID); err != nil {
		return nil, err
	}
	activity, err := e.recordActivity(cfg, stats, user, payable, ActivityPayableCreated, payable.ID, ts)
	if err != nil {
		return nil, err
	}
	if err := state.SetPayable(payable); err != nil {
		return nil, err
	}
	if err := state.SetUser(user); err != nil {
		return nil, err
	}
	if err := state.SetChainStats(stats); err != nil {
		return nil, err
	}
	e.emit(NewPayableCreatedEvent(payable, activity))
	return payable.Clone(), nil
}

// ClosePayable stops a payable from accepting further payments. Host only.
func (e *Engine) ClosePayable(host Wallet, id [32]byte) error {
	return e.togglePayable(host, id, true)
}

// ReopenPayable re-enables payments into a closed payable. Host only.
func (e *Engine) ReopenPayable(host Wallet, id [32]byte) error {
	return e.togglePayable(host, id, false)
}

func (e *Engine) togglePayable(host Wallet, id [32]byte, close bool) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	stats, err := e.loadStats()
	if err != nil {
		return err
	}
	payable, err := e.loadPayable(id)
	if err != nil {
		return err
	}
	if payable.Host != host {
		return ErrNotYourPayable
	}
	if close && payable.IsClosed {
		return ErrPayableIsAlreadyClosed
	}
	if !close && !payable.IsClosed {
		return ErrPayableIsNotClosed
	}
	ts := timestamp(e.now())
	user, err := e.ensureUser(cfg, stats, host, ts)
	if err != nil {
		return err
	}
	payable.IsClosed = close
	kind := ActivityPayableClosed
	if !close {
		kind = ActivityPayableReopened
	}
	activity, err := e.recordActivity(cfg, stats, user, payable, kind, payable.ID, ts)
	if err != nil {
		return err
	}
	if err := state.SetPayable(payable); err != nil {
		return err
	}
	if err := state.SetUser(user); err != nil {
		return err
	}
	if err := state.SetChainStats(stats); err != nil {
		return err
	}
	if close {
		e.emit(NewPayableClosedEvent(payable, activity))
	} else {
		e.emit(NewPayableReopenedEvent(payable, activity))
	}
	return nil
}

// UpdatePayableAllowedTokensAndAmounts replaces a payable's allow-list.
// Host only; the new list is validated like at creation.
func (e *Engine) UpdatePayableAllowedTokensAndAmounts(host Wallet, id [32]byte, allowed []TokenAndAmount) (*Payable, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	stats, err := e.loadStats()
	if err != nil {
		return nil, err
	}
	payable, err := e.loadPayable(id)
	if err != nil {
		return nil, err
	}
	if payable.Host != host {
		return nil, ErrNotYourPayable
	}
	allowList, err := e.validateAllowList(allowed)
	if err != nil {
		return nil, err
	}
	ts := timestamp(e.now())
	user, err := e.ensureUser(cfg, stats, host, ts)
	if err != nil {
		return nil, err
	}
	payable.AllowedTokensAndAmounts = allowList
	activity, err := e.recordActivity(cfg, stats, user, payable, ActivityPayableUpdated, payable.ID, ts)
	if err != nil {
		return nil, err
	}
	if err := state.SetPayable(payable); err != nil {
		return nil, err
	}
	if err := state.SetUser(user); err != nil {
		return nil, err
	}
	if err := state.SetChainStats(stats); err != nil {
		return nil, err
	}
	e.emit(NewPayableUpdatedEvent(payable, activity))
	return payable.Clone(), nil
}

// UpdateTokenSupport registers token for use in payments and withdrawals,
// recording whether it is chain-native and its withdrawal fee ceiling.
// Owner only.
func (e *Engine) UpdateTokenSupport(caller Wallet, token string, isNative bool, maxWithdrawalFee *big.Int) (*TokenDetails, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return nil, err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if maxWithdrawalFee == nil || maxWithdrawalFee.Sign() < 0 {
		return nil, ErrZeroAmountSpecified
	}
	details, ok, err := state.TokenDetails(normalized)
	if err != nil {
		return nil, err
	}
	if !ok {
		details = &TokenDetails{
			Token:                normalized,
			TotalUserPaid:        big.NewInt(0),
			TotalPayableReceived: big.NewInt(0),
			TotalWithdrawn:       big.NewInt(0),
			TotalFeesCollected:   big.NewInt(0),
		}
	}
	details.IsSupported = true
	details.IsNative = isNative
	details.MaxWithdrawalFee = new(big.Int).Set(maxWithdrawalFee)
	if err := state.SetTokenDetails(details); err != nil {
		return nil, err
	}
	e.emit(NewTokenSupportUpdatedEvent(details))
	return details.Clone(), nil
}

// UpdateMaxWithdrawalFee adjusts the fee ceiling of an already supported
// token. Owner only.
func (e *Engine) UpdateMaxWithdrawalFee(caller Wallet, token string, maxWithdrawalFee *big.Int) (*TokenDetails, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return nil, err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if maxWithdrawalFee == nil || maxWithdrawalFee.Sign() < 0 {
		return nil, ErrZeroAmountSpecified
	}
	details, err := e.loadSupportedToken(normalized)
	if err != nil {
		return nil, err
	}
	details.MaxWithdrawalFee = new(big.Int).Set(maxWithdrawalFee)
	if err := state.SetTokenDetails(details); err != nil {
		return nil, err
	}
	e.emit(NewTokenSupportUpdatedEvent(details))
	return details.Clone(), nil
}

// UpdateWithdrawalFeeBps sets the governance fee percentage in basis
// points. Owner only. Per-token ceilings still bound the charged fee.
func (e *Engine) UpdateWithdrawalFeeBps(caller Wallet, bps uint16) (*Config, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return nil, err
	}
	if bps > maxFeeBps {
		return nil, ErrInvalidFeeBps
	}
	cfg.WithdrawalFeeBps = bps
	if err := state.SetConfig(cfg); err != nil {
		return nil, err
	}
	e.emit(NewChainInitializedEvent(cfg))
	return cfg.Clone(), nil
}

// RegisterForeignContract links a remote chain's emitter address so the
// bridge collaborator can authenticate its messages. Owner only.
func (e *Engine) RegisterForeignContract(caller Wallet, chainID uint16, address [32]byte) (*ForeignContract, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(cfg, caller); err != nil {
		return nil, err
	}
	if chainID == 0 || chainID == cfg.ChainID {
		return nil, ErrInvalidChainID
	}
	if address == ([32]byte{}) {
		return nil, ErrInvalidWallet
	}
	contract := &ForeignContract{ChainID: chainID, Address: address}
	if err := state.SetForeignContract(contract); err != nil {
		return nil, err
	}
	e.emit(NewForeignContractRegisteredEvent(contract))
	return contract.Clone(), nil
}

// checkEnvelope validates that an inbound message's emitter matches the
// registered contract for its chain, then reports whether the message was
// already consumed.
func (e *Engine) checkEnvelope(env Envelope) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	contract, ok, err := state.ForeignContract(env.EmitterChainID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForeignChainNotRegistered
	}
	if contract.Address != env.EmitterAddress {
		return ErrUnknownEmitter
	}
	if _, consumed, err := state.ConsumedMessage(env.EmitterChainID, env.Sequence); err != nil {
		return err
	} else if consumed {
		return ErrMessageAlreadyConsumed
	}
	return nil
}

// consumeMessage records the replay-guard entry for env. Callers invoke it
// in the write phase of the same operation that applies the message, so the
// guard record and the ledger mutation commit together.
func (e *Engine) consumeMessage(stats *ChainStats, env Envelope, ts uint64) (*ConsumedMessage, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	stats.ConsumedMessagesCount = nextCount(stats.ConsumedMessagesCount)
	record := &ConsumedMessage{
		EmitterChainID: env.EmitterChainID,
		Sequence:       env.Sequence,
		ChainCount:     stats.ConsumedMessagesCount,
		Timestamp:      ts,
	}
	if err := state.SetConsumedMessage(record); err != nil {
		return nil, err
	}
	return record, nil
}
