package ledger

import (
	"fmt"
	"math/big"
)

// validatePaymentTarget runs the payment checks that concern the payable
// itself, in fail-fast order: existence, open state, allow-list match, token
// registration, positive amount.
func (e *Engine) validatePaymentTarget(payableID [32]byte, token string, amount *big.Int) (*Payable, *TokenDetails, error) {
	payable, err := e.loadPayable(payableID)
	if err != nil {
		return nil, nil, err
	}
	if payable.IsClosed {
		return nil, nil, ErrPayableIsClosed
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if !payable.Allows(token, amount) {
		return nil, nil, ErrMatchingTokenAndAmountNotFound
	}
	details, err := e.loadSupportedToken(token)
	if err != nil {
		return nil, nil, err
	}
	if amount.Sign() <= 0 {
		return nil, nil, ErrZeroAmountSpecified
	}
	return payable, details, nil
}

// verifyInbound asks the custody collaborator to attest that the payer's
// transfer actually arrived. With no verifier wired the transfer is trusted.
func (e *Engine) verifyInbound(payer Wallet, token string, amount *big.Int) error {
	if e.verifier == nil {
		return nil
	}
	if err := e.verifier.VerifyInbound(payer, token, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNativeTokenPayment, err)
	}
	return nil
}

// Pay records a same-chain payment into a payable: both the payer-side and
// the payable-side receipts are written here, sharing one identifier.
func (e *Engine) Pay(payer Wallet, payableID [32]byte, token string, amount *big.Int) (*UserPayment, *PayablePayment, error) {
	state, err := e.withState()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	stats, err := e.loadStats()
	if err != nil {
		return nil, nil, err
	}
	if payer.IsZero() {
		return nil, nil, ErrInvalidWallet
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, nil, err
	}
	payable, details, err := e.validatePaymentTarget(payableID, normalized, amount)
	if err != nil {
		return nil, nil, err
	}
	if err := e.verifyInbound(payer, normalized, amount); err != nil {
		return nil, nil, err
	}

	ts := timestamp(e.now())
	user, err := e.ensureUser(cfg, stats, payer, ts)
	if err != nil {
		return nil, nil, err
	}
	stats.UserPaymentsCount = nextCount(stats.UserPaymentsCount)
	stats.PayablePaymentsCount = nextCount(stats.PayablePaymentsCount)
	user.PaymentsCount = nextCount(user.PaymentsCount)
	payable.PaymentsCount = nextCount(payable.PaymentsCount)
	chainSeq := nextCount(payable.foreignPaymentCount(cfg.ChainID))
	payable.setForeignPaymentCount(cfg.ChainID, chainSeq)
	payable.creditBalance(normalized, amount)
	details.TotalUserPaid = new(big.Int).Add(details.TotalUserPaid, amount)
	details.TotalPayableReceived = new(big.Int).Add(details.TotalPayableReceived, amount)

	paymentID := DeriveID(KindUserPayment, cfg.ChainID, cfg.ChainSequenceSeed, payer, user.PaymentsCount, ts)
	userPayment := &UserPayment{
		ID:             paymentID,
		PayableID:      payable.ID,
		Payer:          payer,
		PayableChainID: cfg.ChainID,
		ChainCount:     stats.UserPaymentsCount,
		PayerCount:     user.PaymentsCount,
		Details:        TokenAndAmount{Token: normalized, Amount: new(big.Int).Set(amount)},
		Timestamp:      ts,
	}
	payablePayment := &PayablePayment{
		ID:              paymentID,
		PayableID:       payable.ID,
		Payer:           payer,
		PayerChainID:    cfg.ChainID,
		ChainCount:      stats.PayablePaymentsCount,
		PayableCount:    payable.PaymentsCount,
		PayerChainCount: chainSeq,
		Details:         TokenAndAmount{Token: normalized, Amount: new(big.Int).Set(amount)},
		Timestamp:       ts,
	}
	if err := state.SetUserPayment(userPayment); err != nil {
		return nil, nil, err
	}
	if err := state.SetPayablePayment(payablePayment); err != nil {
		return nil, nil, err
	}
	if err := e.writePaymentLookups(userPayment, payablePayment); err != nil {
		return nil, nil, err
	}
	activity, err := e.recordActivity(cfg, stats, user, payable, ActivityPaymentMade, paymentID, ts)
	if err != nil {
		return nil, nil, err
	}
	if err := state.SetTokenDetails(details); err != nil {
		return nil, nil, err
	}
	if err := state.SetPayable(payable); err != nil {
		return nil, nil, err
	}
	if err := state.SetUser(user); err != nil {
		return nil, nil, err
	}
	if err := state.SetChainStats(stats); err != nil {
		return nil, nil, err
	}
	e.emit(NewUserPaymentMadeEvent(userPayment, activity))
	e.emit(NewPayablePaymentReceivedEvent(payablePayment, 0, 0))
	return userPayment.Clone(), payablePayment.Clone(), nil
}

// PayForeign records the payer-side receipt of a payment toward a payable
// hosted on another chain. The payable-side validation and receipt happen on
// that chain once the bridge delivers the message; the emitted event is what
// the publisher collaborator picks up.
func (e *Engine) PayForeign(payer Wallet, payableID [32]byte, payableChainID uint16, token string, amount *big.Int) (*UserPayment, error) {
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
	if payer.IsZero() {
		return nil, ErrInvalidWallet
	}
	if payableChainID == 0 || payableChainID == cfg.ChainID {
		return nil, ErrInvalidChainID
	}
	if _, ok, err := state.ForeignContract(payableChainID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrForeignChainNotRegistered
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	details, err := e.loadSupportedToken(normalized)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmountSpecified
	}
	if err := e.verifyInbound(payer, normalized, amount); err != nil {
		return nil, err
	}

	ts := timestamp(e.now())
	user, err := e.ensureUser(cfg, stats, payer, ts)
	if err != nil {
		return nil, err
	}
	foreign, ok, err := state.ForeignPayable(payableID)
	if err != nil {
		return nil, err
	}
	if !ok {
		stats.ForeignPayablesCount = nextCount(stats.ForeignPayablesCount)
		foreign = &ForeignPayable{PayableID: payableID, ChainID: payableChainID, ChainCount: stats.ForeignPayablesCount}
		if err := state.SetLookup(KindForeignPayable, ScopeChain, nil, foreign.ChainCount, payableID); err != nil {
			return nil, err
		}
	}
	foreign.PaymentsCount = nextCount(foreign.PaymentsCount)
	stats.UserPaymentsCount = nextCount(stats.UserPaymentsCount)
	user.PaymentsCount = nextCount(user.PaymentsCount)
	details.TotalUserPaid = new(big.Int).Add(details.TotalUserPaid, amount)

	payment := &UserPayment{
		ID:             DeriveID(KindUserPayment, cfg.ChainID, cfg.ChainSequenceSeed, payer, user.PaymentsCount, ts),
		PayableID:      payableID,
		Payer:          payer,
		PayableChainID: payableChainID,
		ChainCount:     stats.UserPaymentsCount,
		PayerCount:     user.PaymentsCount,
		Details:        TokenAndAmount{Token: normalized, Amount: new(big.Int).Set(amount)},
		Timestamp:      ts,
	}
	if err := state.SetUserPayment(payment); err != nil {
		return nil, err
	}
	if err := state.SetLookup(KindUserPayment, ScopeChain, nil, payment.ChainCount, payment.ID); err != nil {
		return nil, err
	}
	if err := state.SetLookup(KindUserPayment, ScopeUser, payer[:], payment.PayerCount, payment.ID); err != nil {
		return nil, err
	}
	activity, err := e.recordActivity(cfg, stats, user, nil, ActivityPaymentMade, payment.ID, ts)
	if err != nil {
		return nil, err
	}
	if err := state.SetForeignPayable(foreign); err != nil {
		return nil, err
	}
	if err := state.SetTokenDetails(details); err != nil {
		return nil, err
	}
	if err := state.SetUser(user); err != nil {
		return nil, err
	}
	if err := state.SetChainStats(stats); err != nil {
		return nil, err
	}
	e.emit(NewUserPaymentMadeEvent(payment, activity))
	return payment.Clone(), nil
}

// ReceiveForeignPayment applies a verified cross-chain payment message to a
// locally hosted payable. The replay guard is consulted before any other
// check and its record commits with the payment, so redelivery of the same
// (emitter chain, sequence) pair is rejected with ErrMessageAlreadyConsumed
// and mutates nothing.
func (e *Engine) ReceiveForeignPayment(env Envelope, payload *PaymentPayload) (*PayablePayment, error) {
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
	if payload == nil {
		return nil, fmt.Errorf("%w: nil payment payload", ErrInvalidPayload)
	}
	if env.EmitterChainID == cfg.ChainID {
		return nil, ErrInvalidChainID
	}
	if err := e.checkEnvelope(env); err != nil {
		return nil, err
	}
	normalized, err := NormalizeToken(payload.Token)
	if err != nil {
		return nil, err
	}
	payable, details, err := e.validatePaymentTarget(payload.PayableID, normalized, payload.Amount)
	if err != nil {
		return nil, err
	}

	ts := timestamp(e.now())
	if _, err := e.consumeMessage(stats, env, ts); err != nil {
		return nil, err
	}
	stats.PayablePaymentsCount = nextCount(stats.PayablePaymentsCount)
	payable.PaymentsCount = nextCount(payable.PaymentsCount)
	chainSeq := nextCount(payable.foreignPaymentCount(env.EmitterChainID))
	payable.setForeignPaymentCount(env.EmitterChainID, chainSeq)
	payable.creditBalance(normalized, payload.Amount)
	details.TotalPayableReceived = new(big.Int).Add(details.TotalPayableReceived, payload.Amount)

	payment := &PayablePayment{
		ID:              DeriveID(KindPayablePayment, cfg.ChainID, cfg.ChainSequenceSeed, payload.Payer, stats.PayablePaymentsCount, ts),
		PayableID:       payable.ID,
		Payer:           payload.Payer,
		PayerChainID:    env.EmitterChainID,
		ChainCount:      stats.PayablePaymentsCount,
		PayableCount:    payable.PaymentsCount,
		PayerChainCount: chainSeq,
		Details:         TokenAndAmount{Token: normalized, Amount: new(big.Int).Set(payload.Amount)},
		Timestamp:       ts,
	}
	if err := state.SetPayablePayment(payment); err != nil {
		return nil, err
	}
	if err := e.writePayablePaymentLookups(payment); err != nil {
		return nil, err
	}
	if _, err := e.recordActivity(cfg, stats, nil, payable, ActivityPaymentMade, payment.ID, ts); err != nil {
		return nil, err
	}
	if err := state.SetTokenDetails(details); err != nil {
		return nil, err
	}
	if err := state.SetPayable(payable); err != nil {
		return nil, err
	}
	if err := state.SetChainStats(stats); err != nil {
		return nil, err
	}
	e.emit(NewPayablePaymentReceivedEvent(payment, env.EmitterChainID, env.Sequence))
	return payment.Clone(), nil
}

func (e *Engine) writePaymentLookups(up *UserPayment, pp *PayablePayment) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	if err := state.SetLookup(KindUserPayment, ScopeChain, nil, up.ChainCount, up.ID); err != nil {
		return err
	}
	if err := state.SetLookup(KindUserPayment, ScopeUser, up.Payer[:], up.PayerCount, up.ID); err != nil {
		return err
	}
	return e.writePayablePaymentLookups(pp)
}

func (e *Engine) writePayablePaymentLookups(pp *PayablePayment) error {
	state, err := e.withState()
	if err != nil {
		return err
	}
	if err := state.SetLookup(KindPayablePayment, ScopeChain, nil, pp.ChainCount, pp.ID); err != nil {
		return err
	}
	if err := state.SetLookup(KindPayablePayment, ScopePayable, pp.PayableID[:], pp.PayableCount, pp.ID); err != nil {
		return err
	}
	return state.SetLookup(KindPayablePayment, ScopePayableForeignChain, payableChainKey(pp.PayableID, pp.PayerChainID), pp.PayerChainCount, pp.ID)
}

// payableChainKey scopes a lookup to one payable and one payer chain.
func payableChainKey(payableID [32]byte, chainID uint16) []byte {
	key := make([]byte, 34)
	copy(key, payableID[:])
	key[32] = byte(chainID >> 8)
	key[33] = byte(chainID)
	return key
}
