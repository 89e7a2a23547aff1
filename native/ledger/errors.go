package ledger

import "errors"

// Validation, authorization, not-found and state errors surfaced by the
// engine. Every operation fails fast on the first failing check with one of
// these sentinels before any state is written.
var (
	ErrNotInitialized     = errors.New("ledger: chain not initialized")
	ErrAlreadyInitialized = errors.New("ledger: chain already initialized")

	ErrInvalidWallet       = errors.New("ledger: invalid wallet")
	ErrInvalidToken        = errors.New("ledger: invalid token")
	ErrInvalidChainID      = errors.New("ledger: invalid chain id")
	ErrInvalidFeeBps       = errors.New("ledger: withdrawal fee bps out of range")
	ErrZeroAmountSpecified = errors.New("ledger: zero amount specified")

	ErrOwnerUnauthorized = errors.New("ledger: caller is not the owner")
	ErrNotYourPayable    = errors.New("ledger: caller is not the payable host")

	ErrInvalidPayableID               = errors.New("ledger: invalid payable id")
	ErrPayableIsClosed                = errors.New("ledger: payable is closed")
	ErrPayableIsAlreadyClosed         = errors.New("ledger: payable is already closed")
	ErrPayableIsNotClosed             = errors.New("ledger: payable is not closed")
	ErrMatchingTokenAndAmountNotFound = errors.New("ledger: no matching token and amount allowed")

	ErrUnsupportedToken          = errors.New("ledger: unsupported token")
	ErrInvalidNativeTokenPayment = errors.New("ledger: native token payment not received in custody")

	ErrNoBalanceForWithdrawalToken = errors.New("ledger: no balance for withdrawal token")
	ErrInsufficientWithdrawAmount  = errors.New("ledger: insufficient balance for withdrawal amount")

	ErrForeignChainNotRegistered = errors.New("ledger: foreign chain has no registered contract")
	ErrUnknownEmitter            = errors.New("ledger: message emitter does not match registered contract")
	ErrMessageAlreadyConsumed    = errors.New("ledger: message already consumed")
	ErrInvalidPayload            = errors.New("ledger: invalid cross-chain payload")

	ErrNotFound = errors.New("ledger: not found")
)
