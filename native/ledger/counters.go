package ledger

import "math"

// CounterScope names the namespace a monotonic counter or ordinal lookup
// lives in.
type CounterScope uint8

const (
	ScopeChain CounterScope = iota + 1
	ScopeUser
	ScopePayable
	// ScopePayableForeignChain scopes a payable's payment sequence to one
	// payer chain.
	ScopePayableForeignChain
)

// EntityKind tags the entity class an identifier, counter or lookup refers
// to. The kind also domain-separates identifier derivation.
type EntityKind uint8

const (
	KindUser EntityKind = iota + 1
	KindPayable
	KindForeignPayable
	KindUserPayment
	KindPayablePayment
	KindWithdrawal
	KindActivity
)

func (k EntityKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindPayable:
		return "payable"
	case KindForeignPayable:
		return "foreign_payable"
	case KindUserPayment:
		return "user_payment"
	case KindPayablePayment:
		return "payable_payment"
	case KindWithdrawal:
		return "withdrawal"
	case KindActivity:
		return "activity"
	default:
		return "unknown"
	}
}

// nextCount returns current + 1. Counters never wrap: an overflow can only
// mean the ledger state is corrupt, so it aborts the process rather than
// returning a recoverable error.
func nextCount(current uint64) uint64 {
	if current == math.MaxUint64 {
		panic("ledger: counter overflow")
	}
	return current + 1
}
