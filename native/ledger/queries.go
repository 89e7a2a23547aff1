package ledger

// Read-side accessors. Queries never mutate state; every lookup miss is
// ErrNotFound except where a more specific sentinel exists.

// ChainConfig returns the governance configuration.
func (e *Engine) ChainConfig() (*Config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

// Stats returns the chain-wide counters.
func (e *Engine) Stats() (*ChainStats, error) {
	stats, err := e.loadStats()
	if err != nil {
		return nil, err
	}
	return stats.Clone(), nil
}

// UserByWallet returns the wallet's counters, ErrNotFound before its first
// interaction.
func (e *Engine) UserByWallet(wallet Wallet) (*User, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	user, ok, err := state.User(wallet)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return user.Clone(), nil
}

// PayableByID loads a locally hosted payable.
func (e *Engine) PayableByID(id [32]byte) (*Payable, error) {
	payable, err := e.loadPayable(id)
	if err != nil {
		return nil, err
	}
	return payable.Clone(), nil
}

// ForeignPayableByID loads the local bookkeeping for a remotely hosted
// payable.
func (e *Engine) ForeignPayableByID(id [32]byte) (*ForeignPayable, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	foreign, ok, err := state.ForeignPayable(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return foreign.Clone(), nil
}

// TokenDetailsFor returns the registry entry for a token, registered or not
// supported included.
func (e *Engine) TokenDetailsFor(token string) (*TokenDetails, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	details, ok, err := state.TokenDetails(normalized)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return details.Clone(), nil
}

// UserPaymentByID loads a payer-side payment receipt.
func (e *Engine) UserPaymentByID(id [32]byte) (*UserPayment, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	payment, ok, err := state.UserPayment(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return payment.Clone(), nil
}

// PayablePaymentByID loads a payable-side payment receipt.
func (e *Engine) PayablePaymentByID(id [32]byte) (*PayablePayment, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	payment, ok, err := state.PayablePayment(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return payment.Clone(), nil
}

// WithdrawalByID loads a withdrawal receipt.
func (e *Engine) WithdrawalByID(id [32]byte) (*Withdrawal, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	withdrawal, ok, err := state.Withdrawal(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return withdrawal.Clone(), nil
}

// ActivityByID loads one audit-trail entry.
func (e *Engine) ActivityByID(id [32]byte) (*ActivityRecord, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	activity, ok, err := state.Activity(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return activity.Clone(), nil
}

// ForeignContractFor returns the registered emitter for a remote chain.
func (e *Engine) ForeignContractFor(chainID uint16) (*ForeignContract, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	contract, ok, err := state.ForeignContract(chainID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return contract.Clone(), nil
}

// HasConsumedMessage reports whether an inbound (emitter chain, sequence)
// pair was already applied.
func (e *Engine) HasConsumedMessage(chainID uint16, sequence uint64) (bool, error) {
	state, err := e.withState()
	if err != nil {
		return false, err
	}
	_, ok, err := state.ConsumedMessage(chainID, sequence)
	return ok, err
}

// EntityIDAt answers "the Nth entity of this kind in this scope" lookups:
// the per-scope ordinal is translated back to the entity identifier. The
// scope key is nil for the chain scope, the wallet bytes for the user
// scope, the payable id for the payable scope, and payable id plus chain id
// for the per-payer-chain scope.
func (e *Engine) EntityIDAt(kind EntityKind, scope CounterScope, key []byte, count uint64) ([32]byte, error) {
	var id [32]byte
	state, err := e.withState()
	if err != nil {
		return id, err
	}
	if count == 0 {
		return id, ErrNotFound
	}
	id, ok, err := state.Lookup(kind, scope, key, count)
	if err != nil {
		return id, err
	}
	if !ok {
		return id, ErrNotFound
	}
	return id, nil
}

// PayableIDForChainCount returns the Nth payable created on this chain.
func (e *Engine) PayableIDForChainCount(count uint64) ([32]byte, error) {
	return e.EntityIDAt(KindPayable, ScopeChain, nil, count)
}

// PayableIDForHost returns the Nth payable a host created.
func (e *Engine) PayableIDForHost(host Wallet, count uint64) ([32]byte, error) {
	return e.EntityIDAt(KindPayable, ScopeUser, host[:], count)
}

// UserPaymentIDForPayer returns the Nth payment a wallet made.
func (e *Engine) UserPaymentIDForPayer(payer Wallet, count uint64) ([32]byte, error) {
	return e.EntityIDAt(KindUserPayment, ScopeUser, payer[:], count)
}

// PayablePaymentIDForPayable returns the Nth payment a payable received.
func (e *Engine) PayablePaymentIDForPayable(payableID [32]byte, count uint64) ([32]byte, error) {
	return e.EntityIDAt(KindPayablePayment, ScopePayable, payableID[:], count)
}

// PayablePaymentIDForPayableChain returns the Nth payment a payable
// received from one payer chain.
func (e *Engine) PayablePaymentIDForPayableChain(payableID [32]byte, chainID uint16, count uint64) ([32]byte, error) {
	return e.EntityIDAt(KindPayablePayment, ScopePayableForeignChain, payableChainKey(payableID, chainID), count)
}

// WithdrawalIDForPayable returns the Nth withdrawal from a payable.
func (e *Engine) WithdrawalIDForPayable(payableID [32]byte, count uint64) ([32]byte, error) {
	return e.EntityIDAt(KindWithdrawal, ScopePayable, payableID[:], count)
}

// WithdrawalIDForHost returns the Nth withdrawal a host made.
func (e *Engine) WithdrawalIDForHost(host Wallet, count uint64) ([32]byte, error) {
	return e.EntityIDAt(KindWithdrawal, ScopeUser, host[:], count)
}

// ActivityIDForChainCount returns the Nth activity on this chain.
func (e *Engine) ActivityIDForChainCount(count uint64) ([32]byte, error) {
	return e.EntityIDAt(KindActivity, ScopeChain, nil, count)
}

// UserWalletForChainCount returns the wallet of the Nth initialized user.
func (e *Engine) UserWalletForChainCount(count uint64) (Wallet, error) {
	id, err := e.EntityIDAt(KindUser, ScopeChain, nil, count)
	return Wallet(id), err
}
