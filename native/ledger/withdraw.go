package ledger

import (
	"fmt"
	"math/big"
)

// WithdrawalResult pairs the persisted receipt with the derived fee split.
// Details on the receipt carry the gross amount; AmountDue + Fee equals it
// exactly.
type WithdrawalResult struct {
	Withdrawal *Withdrawal
	AmountDue  *big.Int
	Fee        *big.Int
}

// computeWithdrawalFee applies the governance percentage with truncating
// integer division and bounds the result by the token's configured ceiling.
func computeWithdrawalFee(amount *big.Int, feeBps uint16, maxFee *big.Int) (fee, due *big.Int) {
	fee = new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Div(fee, big.NewInt(int64(maxFeeBps)))
	if maxFee != nil && fee.Cmp(maxFee) > 0 {
		fee = new(big.Int).Set(maxFee)
	}
	due = new(big.Int).Sub(amount, fee)
	return fee, due
}

// Withdraw moves amount of token out of a payable's balance to its host,
// minus the protocol fee which goes to the fee collector.
func (e *Engine) Withdraw(host Wallet, payableID [32]byte, token string, amount *big.Int) (*WithdrawalResult, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	return e.withdraw(cfg, host, cfg.ChainID, payableID, token, amount, nil)
}

// ReceiveForeignWithdrawal applies a verified cross-chain withdrawal
// message: the payable's host, acting from the emitter chain, withdraws from
// the locally held balance. The payout still executes on this chain.
func (e *Engine) ReceiveForeignWithdrawal(env Envelope, payload *WithdrawalPayload) (*WithdrawalResult, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: nil withdrawal payload", ErrInvalidPayload)
	}
	if env.EmitterChainID == cfg.ChainID {
		return nil, ErrInvalidChainID
	}
	if err := e.checkEnvelope(env); err != nil {
		return nil, err
	}
	return e.withdraw(cfg, payload.Host, env.EmitterChainID, payload.PayableID, payload.Token, payload.Amount, &env)
}

func (e *Engine) withdraw(cfg *Config, host Wallet, hostChainID uint16, payableID [32]byte, token string, amount *big.Int, env *Envelope) (*WithdrawalResult, error) {
	state, err := e.withState()
	if err != nil {
		return nil, err
	}
	stats, err := e.loadStats()
	if err != nil {
		return nil, err
	}
	payable, err := e.loadPayable(payableID)
	if err != nil {
		return nil, err
	}
	if payable.Host != host {
		return nil, ErrNotYourPayable
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmountSpecified
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	balance, ok := payable.BalanceOf(normalized)
	if !ok {
		return nil, ErrNoBalanceForWithdrawalToken
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientWithdrawAmount
	}
	details, found, err := state.TokenDetails(normalized)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnsupportedToken
	}
	fee, due := computeWithdrawalFee(amount, cfg.WithdrawalFeeBps, details.MaxWithdrawalFee)

	// The payout signals precede the state writes: in the host runtime
	// both belong to the same transaction, and a refused transfer must
	// leave the ledger untouched.
	if e.transfers != nil {
		if due.Sign() > 0 {
			if err := e.transfers.PayOut(host, normalized, due); err != nil {
				return nil, fmt.Errorf("ledger: withdrawal payout: %w", err)
			}
		}
		if fee.Sign() > 0 {
			if err := e.transfers.PayOut(cfg.FeeCollector, normalized, fee); err != nil {
				return nil, fmt.Errorf("ledger: fee payout: %w", err)
			}
		}
	}

	ts := timestamp(e.now())
	if env != nil {
		if _, err := e.consumeMessage(stats, *env, ts); err != nil {
			return nil, err
		}
	}
	user, err := e.ensureUser(cfg, stats, host, ts)
	if err != nil {
		return nil, err
	}
	stats.WithdrawalsCount = nextCount(stats.WithdrawalsCount)
	user.WithdrawalsCount = nextCount(user.WithdrawalsCount)
	payable.WithdrawalsCount = nextCount(payable.WithdrawalsCount)
	payable.debitBalance(normalized, amount)
	details.TotalWithdrawn = new(big.Int).Add(details.TotalWithdrawn, amount)
	details.TotalFeesCollected = new(big.Int).Add(details.TotalFeesCollected, fee)

	withdrawal := &Withdrawal{
		ID:           DeriveID(KindWithdrawal, cfg.ChainID, cfg.ChainSequenceSeed, host, user.WithdrawalsCount, ts),
		PayableID:    payable.ID,
		Host:         host,
		HostChainID:  hostChainID,
		ChainCount:   stats.WithdrawalsCount,
		HostCount:    user.WithdrawalsCount,
		PayableCount: payable.WithdrawalsCount,
		Details:      TokenAndAmount{Token: normalized, Amount: new(big.Int).Set(amount)},
		Timestamp:    ts,
	}
	if err := state.SetWithdrawal(withdrawal); err != nil {
		return nil, err
	}
	if err := state.SetLookup(KindWithdrawal, ScopeChain, nil, withdrawal.ChainCount, withdrawal.ID); err != nil {
		return nil, err
	}
	if err := state.SetLookup(KindWithdrawal, ScopeUser, host[:], withdrawal.HostCount, withdrawal.ID); err != nil {
		return nil, err
	}
	if err := state.SetLookup(KindWithdrawal, ScopePayable, payable.ID[:], withdrawal.PayableCount, withdrawal.ID); err != nil {
		return nil, err
	}
	activity, err := e.recordActivity(cfg, stats, user, payable, ActivityWithdrawalMade, withdrawal.ID, ts)
	if err != nil {
		return nil, err
	}
	if err := state.SetTokenDetails(details); err != nil {
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
	e.emit(NewWithdrawalMadeEvent(withdrawal, activity, fee, due))
	return &WithdrawalResult{Withdrawal: withdrawal.Clone(), AmountDue: due, Fee: fee}, nil
}
