package ledger

import (
	"math/big"
	"strconv"

	"chainbills/core/events"
)

const (
	EventTypeChainInitialized   = "ledger.chain.initialized"
	EventTypeUserInitialized    = "ledger.user.initialized"
	EventTypePayableCreated     = "ledger.payable.created"
	EventTypePayableClosed      = "ledger.payable.closed"
	EventTypePayableReopened    = "ledger.payable.reopened"
	EventTypePayableUpdated     = "ledger.payable.updated"
	EventTypeUserPaymentMade    = "ledger.payment.made"
	EventTypePayablePaymentRecv = "ledger.payable.paid"
	EventTypeWithdrawalMade     = "ledger.withdrawal.made"
	EventTypeTokenSupport       = "ledger.token.support_updated"
	EventTypeForeignContract    = "ledger.foreign_contract.registered"
)

func formatCount(v uint64) string { return strconv.FormatUint(v, 10) }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func activityAttrs(attrs map[string]string, activity *ActivityRecord) map[string]string {
	if activity == nil {
		return attrs
	}
	attrs["activityId"] = FormatID(activity.ID)
	attrs["activityChainCount"] = formatCount(activity.ChainCount)
	return attrs
}

// NewChainInitializedEvent carries the governance parameters after
// Initialize or a fee update.
func NewChainInitializedEvent(cfg *Config) *events.Event {
	if cfg == nil {
		return nil
	}
	return &events.Event{Type: EventTypeChainInitialized, Attributes: map[string]string{
		"chainId":          formatCount(uint64(cfg.ChainID)),
		"owner":            FormatWallet(cfg.Owner),
		"feeCollector":     FormatWallet(cfg.FeeCollector),
		"nativeDenom":      cfg.NativeDenom,
		"withdrawalFeeBps": formatCount(uint64(cfg.WithdrawalFeeBps)),
	}}
}

// NewUserInitializedEvent marks a wallet's first ledger interaction.
func NewUserInitializedEvent(user *User, activity *ActivityRecord) *events.Event {
	if user == nil {
		return nil
	}
	attrs := map[string]string{
		"wallet":     FormatWallet(user.Wallet),
		"chainCount": formatCount(user.ChainCount),
	}
	return &events.Event{Type: EventTypeUserInitialized, Attributes: activityAttrs(attrs, activity)}
}

func payableAttrs(p *Payable, activity *ActivityRecord) map[string]string {
	attrs := map[string]string{
		"id":         FormatID(p.ID),
		"host":       FormatWallet(p.Host),
		"chainCount": formatCount(p.ChainCount),
		"hostCount":  formatCount(p.HostCount),
	}
	return activityAttrs(attrs, activity)
}

func NewPayableCreatedEvent(p *Payable, activity *ActivityRecord) *events.Event {
	if p == nil {
		return nil
	}
	return &events.Event{Type: EventTypePayableCreated, Attributes: payableAttrs(p, activity)}
}

func NewPayableClosedEvent(p *Payable, activity *ActivityRecord) *events.Event {
	if p == nil {
		return nil
	}
	return &events.Event{Type: EventTypePayableClosed, Attributes: payableAttrs(p, activity)}
}

func NewPayableReopenedEvent(p *Payable, activity *ActivityRecord) *events.Event {
	if p == nil {
		return nil
	}
	return &events.Event{Type: EventTypePayableReopened, Attributes: payableAttrs(p, activity)}
}

func NewPayableUpdatedEvent(p *Payable, activity *ActivityRecord) *events.Event {
	if p == nil {
		return nil
	}
	return &events.Event{Type: EventTypePayableUpdated, Attributes: payableAttrs(p, activity)}
}

// NewUserPaymentMadeEvent is the payer-side payment event. For payments
// toward a foreign payable it is the trigger the cross-chain publisher
// collaborator listens for.
func NewUserPaymentMadeEvent(p *UserPayment, activity *ActivityRecord) *events.Event {
	if p == nil {
		return nil
	}
	attrs := map[string]string{
		"id":             FormatID(p.ID),
		"payableId":      FormatID(p.PayableID),
		"payer":          FormatWallet(p.Payer),
		"payableChainId": formatCount(uint64(p.PayableChainID)),
		"chainCount":     formatCount(p.ChainCount),
		"payerCount":     formatCount(p.PayerCount),
		"token":          p.Details.Token,
		"amount":         formatAmount(p.Details.Amount),
	}
	return &events.Event{Type: EventTypeUserPaymentMade, Attributes: activityAttrs(attrs, activity)}
}

// NewPayablePaymentReceivedEvent is the payable-side payment event. For
// remote-originated payments the consumed message coordinates are included.
func NewPayablePaymentReceivedEvent(p *PayablePayment, emitterChainID uint16, sequence uint64) *events.Event {
	if p == nil {
		return nil
	}
	attrs := map[string]string{
		"id":              FormatID(p.ID),
		"payableId":       FormatID(p.PayableID),
		"payer":           FormatWallet(p.Payer),
		"payerChainId":    formatCount(uint64(p.PayerChainID)),
		"chainCount":      formatCount(p.ChainCount),
		"payableCount":    formatCount(p.PayableCount),
		"payerChainCount": formatCount(p.PayerChainCount),
		"token":           p.Details.Token,
		"amount":          formatAmount(p.Details.Amount),
	}
	if emitterChainID != 0 {
		attrs["emitterChainId"] = formatCount(uint64(emitterChainID))
		attrs["messageSequence"] = formatCount(sequence)
	}
	return &events.Event{Type: EventTypePayablePaymentRecv, Attributes: attrs}
}

func NewWithdrawalMadeEvent(w *Withdrawal, activity *ActivityRecord, fee, due *big.Int) *events.Event {
	if w == nil {
		return nil
	}
	attrs := map[string]string{
		"id":           FormatID(w.ID),
		"payableId":    FormatID(w.PayableID),
		"host":         FormatWallet(w.Host),
		"hostChainId":  formatCount(uint64(w.HostChainID)),
		"chainCount":   formatCount(w.ChainCount),
		"hostCount":    formatCount(w.HostCount),
		"payableCount": formatCount(w.PayableCount),
		"token":        w.Details.Token,
		"amount":       formatAmount(w.Details.Amount),
		"fee":          formatAmount(fee),
		"amountDue":    formatAmount(due),
	}
	return &events.Event{Type: EventTypeWithdrawalMade, Attributes: activityAttrs(attrs, activity)}
}

func NewTokenSupportUpdatedEvent(d *TokenDetails) *events.Event {
	if d == nil {
		return nil
	}
	return &events.Event{Type: EventTypeTokenSupport, Attributes: map[string]string{
		"token":            d.Token,
		"isSupported":      strconv.FormatBool(d.IsSupported),
		"isNative":         strconv.FormatBool(d.IsNative),
		"maxWithdrawalFee": formatAmount(d.MaxWithdrawalFee),
	}}
}

func NewForeignContractRegisteredEvent(c *ForeignContract) *events.Event {
	if c == nil {
		return nil
	}
	return &events.Event{Type: EventTypeForeignContract, Attributes: map[string]string{
		"chainId": formatCount(uint64(c.ChainID)),
		"address": FormatID(c.Address),
	}}
}
