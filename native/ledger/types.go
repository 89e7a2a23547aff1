package ledger

import (
	"math/big"
	"strings"
)

// Wallet is the chain-agnostic identity of an acting account. Addresses from
// chains with shorter native formats (e.g. 20-byte EVM accounts) are left
// padded to 32 bytes by the host adapter before they reach the engine.
type Wallet [32]byte

// IsZero reports whether the wallet is the unset value.
func (w Wallet) IsZero() bool { return w == Wallet{} }

// Config holds the governance-controlled protocol parameters for this chain.
// It is written once by Initialize and mutated only by owner operations.
type Config struct {
	ChainID uint16
	// ChainSequenceSeed is this deployment's monotonic identity. It feeds
	// identifier derivation so IDs stay distinct across re-deployments of
	// the same chain id.
	ChainSequenceSeed uint64
	Owner             Wallet
	FeeCollector      Wallet
	NativeDenom       string
	// WithdrawalFeeBps is the protocol fee on withdrawals in basis points
	// (10000 = 100%). Defaults to 200 (2%).
	WithdrawalFeeBps uint16
}

// Clone returns a copy callers can mutate without affecting stored state.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ChainStats is the per-chain singleton of monotonic entity counters. Every
// count is the 1-based ordinal of the most recently created entity in its
// scope.
type ChainStats struct {
	UsersCount            uint64
	PayablesCount         uint64
	ForeignPayablesCount  uint64
	UserPaymentsCount     uint64
	PayablePaymentsCount  uint64
	WithdrawalsCount      uint64
	ActivitiesCount       uint64
	ConsumedMessagesCount uint64
}

func (s *ChainStats) Clone() *ChainStats {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// User tracks a wallet's per-scope counters. Created lazily on the wallet's
// first state-changing interaction; counters only increase.
type User struct {
	Wallet Wallet
	// ChainCount is the chain-wide users count at initialization.
	ChainCount       uint64
	PayablesCount    uint64
	PaymentsCount    uint64
	WithdrawalsCount uint64
	ActivitiesCount  uint64
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// TokenAndAmount pairs a token identifier with an amount. It is used for
// payable allow-lists, running balances, and payment/withdrawal details.
// Token identifiers are chain-native denoms or normalized hex addresses
// depending on the token's origin chain.
type TokenAndAmount struct {
	Token  string
	Amount *big.Int
}

func (t TokenAndAmount) Clone() TokenAndAmount {
	clone := TokenAndAmount{Token: t.Token, Amount: big.NewInt(0)}
	if t.Amount != nil {
		clone.Amount = new(big.Int).Set(t.Amount)
	}
	return clone
}

func cloneTokenAndAmounts(list []TokenAndAmount) []TokenAndAmount {
	if list == nil {
		return nil
	}
	out := make([]TokenAndAmount, len(list))
	for i, taa := range list {
		out[i] = taa.Clone()
	}
	return out
}

// TokenDetails is the per-token registry entry: support status, whether the
// token is native to this chain, the per-token withdrawal fee ceiling, and
// running ledger totals.
type TokenDetails struct {
	Token       string
	IsSupported bool
	IsNative    bool
	// MaxWithdrawalFee caps the protocol fee charged on a single
	// withdrawal in this token, bounding the fee even if the governance
	// percentage is later raised.
	MaxWithdrawalFee     *big.Int
	TotalUserPaid        *big.Int
	TotalPayableReceived *big.Int
	TotalWithdrawn       *big.Int
	TotalFeesCollected   *big.Int
}

func (t *TokenDetails) Clone() *TokenDetails {
	if t == nil {
		return nil
	}
	clone := &TokenDetails{Token: t.Token, IsSupported: t.IsSupported, IsNative: t.IsNative}
	clone.MaxWithdrawalFee = cloneBigInt(t.MaxWithdrawalFee)
	clone.TotalUserPaid = cloneBigInt(t.TotalUserPaid)
	clone.TotalPayableReceived = cloneBigInt(t.TotalPayableReceived)
	clone.TotalWithdrawn = cloneBigInt(t.TotalWithdrawn)
	clone.TotalFeesCollected = cloneBigInt(t.TotalFeesCollected)
	return clone
}

// ChainPaymentCount is a payable's local payment sequence for one payer
// chain. Kept as a sorted slice rather than a map so the record has a
// canonical serialized form.
type ChainPaymentCount struct {
	ChainID uint16
	Count   uint64
}

// Payable is a host-owned receivable. The allow-list is exact-match: an
// empty list accepts any supported token and any positive amount.
type Payable struct {
	ID   [32]byte
	Host Wallet
	// ChainCount and HostCount are the chain-wide and per-host payable
	// ordinals at creation.
	ChainCount              uint64
	HostCount               uint64
	AllowedTokensAndAmounts []TokenAndAmount
	Balances                []TokenAndAmount
	CreatedAt               uint64
	PaymentsCount           uint64
	WithdrawalsCount        uint64
	ActivitiesCount         uint64
	// ForeignPaymentCounts holds, per payer chain, the count of payments
	// this payable has received from that chain.
	ForeignPaymentCounts []ChainPaymentCount
	IsClosed             bool
}

func (p *Payable) Clone() *Payable {
	if p == nil {
		return nil
	}
	clone := *p
	clone.AllowedTokensAndAmounts = cloneTokenAndAmounts(p.AllowedTokensAndAmounts)
	clone.Balances = cloneTokenAndAmounts(p.Balances)
	clone.ForeignPaymentCounts = append([]ChainPaymentCount(nil), p.ForeignPaymentCounts...)
	return &clone
}

// Allows reports whether the payable accepts a payment of exactly amount in
// token under its allow-list.
func (p *Payable) Allows(token string, amount *big.Int) bool {
	if len(p.AllowedTokensAndAmounts) == 0 {
		return true
	}
	for _, taa := range p.AllowedTokensAndAmounts {
		if taa.Token == token && taa.Amount != nil && taa.Amount.Cmp(amount) == 0 {
			return true
		}
	}
	return false
}

// BalanceOf returns the payable's current balance in token. The second
// return reports whether a balance entry exists.
func (p *Payable) BalanceOf(token string) (*big.Int, bool) {
	for _, bal := range p.Balances {
		if bal.Token == token {
			return cloneBigInt(bal.Amount), true
		}
	}
	return nil, false
}

func (p *Payable) creditBalance(token string, amount *big.Int) {
	for i := range p.Balances {
		if p.Balances[i].Token == token {
			p.Balances[i].Amount = new(big.Int).Add(cloneBigInt(p.Balances[i].Amount), amount)
			return
		}
	}
	p.Balances = append(p.Balances, TokenAndAmount{Token: token, Amount: new(big.Int).Set(amount)})
}

func (p *Payable) debitBalance(token string, amount *big.Int) {
	for i := range p.Balances {
		if p.Balances[i].Token == token {
			remaining := new(big.Int).Sub(cloneBigInt(p.Balances[i].Amount), amount)
			if remaining.Sign() < 0 {
				// The processor checks sufficiency before any
				// mutation, so going negative means the ledger
				// invariant is already broken.
				panic("ledger: payable balance underflow")
			}
			p.Balances[i].Amount = remaining
			return
		}
	}
	panic("ledger: debit against missing balance entry")
}

func (p *Payable) foreignPaymentCount(chainID uint16) uint64 {
	for _, cpc := range p.ForeignPaymentCounts {
		if cpc.ChainID == chainID {
			return cpc.Count
		}
	}
	return 0
}

func (p *Payable) setForeignPaymentCount(chainID uint16, count uint64) {
	for i := range p.ForeignPaymentCounts {
		if p.ForeignPaymentCounts[i].ChainID == chainID {
			p.ForeignPaymentCounts[i].Count = count
			return
		}
	}
	// Insert keeping the slice sorted by chain id.
	at := len(p.ForeignPaymentCounts)
	for i, cpc := range p.ForeignPaymentCounts {
		if cpc.ChainID > chainID {
			at = i
			break
		}
	}
	p.ForeignPaymentCounts = append(p.ForeignPaymentCounts, ChainPaymentCount{})
	copy(p.ForeignPaymentCounts[at+1:], p.ForeignPaymentCounts[at:])
	p.ForeignPaymentCounts[at] = ChainPaymentCount{ChainID: chainID, Count: count}
}

// ForeignPayable records a payable hosted on another chain that wallets on
// this chain have paid into. Only bookkeeping needed for local receipts; the
// authoritative record lives on the payable's own chain.
type ForeignPayable struct {
	PayableID  [32]byte
	ChainID    uint16
	ChainCount uint64
	// PaymentsCount counts local payments made toward this payable.
	PaymentsCount uint64
}

func (f *ForeignPayable) Clone() *ForeignPayable {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}

// UserPayment is the payer-side receipt of a payment, indexed by local chain
// counters. Immutable once written.
type UserPayment struct {
	ID        [32]byte
	PayableID [32]byte
	Payer     Wallet
	// PayableChainID is the chain hosting the payable; equal to the local
	// chain id for same-chain payments.
	PayableChainID uint16
	ChainCount     uint64
	PayerCount     uint64
	Details        TokenAndAmount
	Timestamp      uint64
}

func (p *UserPayment) Clone() *UserPayment {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Details = p.Details.Clone()
	return &clone
}

// PayablePayment is the payable-side receipt of the same payment event,
// indexed with remote-chain awareness. Immutable once written.
type PayablePayment struct {
	ID        [32]byte
	PayableID [32]byte
	Payer     Wallet
	// PayerChainID is the chain the payment originated on.
	PayerChainID uint16
	ChainCount   uint64
	PayableCount uint64
	// PayerChainCount is this payable's local sequence of payments from
	// the payer's chain.
	PayerChainCount uint64
	Details         TokenAndAmount
	Timestamp       uint64
}

func (p *PayablePayment) Clone() *PayablePayment {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Details = p.Details.Clone()
	return &clone
}

// Withdrawal is the immutable receipt of a host withdrawal. Details carry
// the gross amount; the fee split is derived from config, not stored.
type Withdrawal struct {
	ID           [32]byte
	PayableID    [32]byte
	Host         Wallet
	HostChainID  uint16
	ChainCount   uint64
	HostCount    uint64
	PayableCount uint64
	Details      TokenAndAmount
	Timestamp    uint64
}

func (w *Withdrawal) Clone() *Withdrawal {
	if w == nil {
		return nil
	}
	clone := *w
	clone.Details = w.Details.Clone()
	return &clone
}

// ConsumedMessage is the replay-guard record for one inbound cross-chain
// message. Its existence alone proves the message was applied.
type ConsumedMessage struct {
	EmitterChainID uint16
	Sequence       uint64
	ChainCount     uint64
	Timestamp      uint64
}

func (c *ConsumedMessage) Clone() *ConsumedMessage {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ForeignContract links a remote chain id to the emitter address whose
// messages the bridge collaborator should accept for this protocol.
type ForeignContract struct {
	ChainID uint16
	Address [32]byte
}

func (f *ForeignContract) Clone() *ForeignContract {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}

// ActivityKind tags the state-changing action an ActivityRecord describes.
type ActivityKind uint8

const (
	ActivityUserInitialized ActivityKind = iota + 1
	ActivityPayableCreated
	ActivityPayableClosed
	ActivityPayableReopened
	ActivityPayableUpdated
	ActivityPaymentMade
	ActivityWithdrawalMade
)

// Valid reports whether the kind is within the supported range.
func (k ActivityKind) Valid() bool {
	return k >= ActivityUserInitialized && k <= ActivityWithdrawalMade
}

func (k ActivityKind) String() string {
	switch k {
	case ActivityUserInitialized:
		return "user_initialized"
	case ActivityPayableCreated:
		return "payable_created"
	case ActivityPayableClosed:
		return "payable_closed"
	case ActivityPayableReopened:
		return "payable_reopened"
	case ActivityPayableUpdated:
		return "payable_updated"
	case ActivityPaymentMade:
		return "payment_made"
	case ActivityWithdrawalMade:
		return "withdrawal_made"
	default:
		return "unknown"
	}
}

// ActivityRecord is one entry of the append-only audit trail. Entity holds
// the identifier of the entity the activity concerns (wallet for user
// initialization, payable/payment/withdrawal id otherwise).
type ActivityRecord struct {
	ID     [32]byte
	Kind   ActivityKind
	Entity [32]byte
	// ChainCount, UserCount and PayableCount are the activity ordinals in
	// their scopes; UserCount and PayableCount are zero when the scope
	// does not apply.
	ChainCount   uint64
	UserCount    uint64
	PayableCount uint64
	Timestamp    uint64
}

func (a *ActivityRecord) Clone() *ActivityRecord {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// NormalizeToken canonicalises a token identifier: surrounding whitespace is
// dropped and hex token addresses are lowercased. Denom-style identifiers
// keep their case.
func NormalizeToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		return strings.ToLower(trimmed), nil
	}
	return trimmed, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// timestamp converts a wall-clock reading to the unsigned representation
// stored on records, clamping pre-epoch readings to zero.
func timestamp(now int64) uint64 {
	if now < 0 {
		return 0
	}
	return uint64(now)
}
