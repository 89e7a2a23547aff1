package ledger

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Envelope identifies an inbound cross-chain message whose cryptographic
// verification has already been performed by the bridge collaborator. The
// (emitter chain, sequence) pair is the replay-guard key.
type Envelope struct {
	EmitterChainID uint16
	EmitterAddress [32]byte
	Sequence       uint64
	Nonce          uint32
}

// Payload kinds on the cross-chain wire.
const (
	payloadKindPayment    byte = 1
	payloadKindWithdrawal byte = 2
)

const (
	maxPayloadTokenLen  = 64
	maxPayloadAmountLen = 32
)

// PaymentPayload is the body of a cross-chain payment message: a wallet on
// the emitter chain paid token/amount toward a payable hosted here.
type PaymentPayload struct {
	PayableID [32]byte
	Payer     Wallet
	Token     string
	Amount    *big.Int
}

// WithdrawalPayload is the body of a cross-chain withdrawal message: the
// payable's host, acting from the emitter chain, withdraws token/amount.
type WithdrawalPayload struct {
	PayableID [32]byte
	Host      Wallet
	Token     string
	Amount    *big.Int
}

// Encode serializes the payment payload. Variable-length fields use explicit
// length prefixes: token bytes behind a uint16, amount bytes behind a uint8.
func (p PaymentPayload) Encode() ([]byte, error) {
	return encodePayload(payloadKindPayment, p.PayableID, [32]byte(p.Payer), p.Token, p.Amount)
}

// Encode serializes the withdrawal payload.
func (p WithdrawalPayload) Encode() ([]byte, error) {
	return encodePayload(payloadKindWithdrawal, p.PayableID, [32]byte(p.Host), p.Token, p.Amount)
}

// DecodePaymentPayload parses a payment payload, rejecting any trailing or
// truncated bytes.
func DecodePaymentPayload(raw []byte) (*PaymentPayload, error) {
	id, wallet, token, amount, err := decodePayload(payloadKindPayment, raw)
	if err != nil {
		return nil, err
	}
	return &PaymentPayload{PayableID: id, Payer: Wallet(wallet), Token: token, Amount: amount}, nil
}

// DecodeWithdrawalPayload parses a withdrawal payload.
func DecodeWithdrawalPayload(raw []byte) (*WithdrawalPayload, error) {
	id, wallet, token, amount, err := decodePayload(payloadKindWithdrawal, raw)
	if err != nil {
		return nil, err
	}
	return &WithdrawalPayload{PayableID: id, Host: Wallet(wallet), Token: token, Amount: amount}, nil
}

func encodePayload(kind byte, payableID, wallet [32]byte, token string, amount *big.Int) ([]byte, error) {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if len(normalized) > maxPayloadTokenLen {
		return nil, fmt.Errorf("%w: token identifier exceeds %d bytes", ErrInvalidPayload, maxPayloadTokenLen)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidPayload)
	}
	amountBytes := amount.Bytes()
	if len(amountBytes) > maxPayloadAmountLen {
		return nil, fmt.Errorf("%w: amount exceeds %d bytes", ErrInvalidPayload, maxPayloadAmountLen)
	}
	buf := make([]byte, 0, 1+64+2+len(normalized)+1+len(amountBytes))
	buf = append(buf, kind)
	buf = append(buf, payableID[:]...)
	buf = append(buf, wallet[:]...)
	var tokenLen [2]byte
	binary.BigEndian.PutUint16(tokenLen[:], uint16(len(normalized)))
	buf = append(buf, tokenLen[:]...)
	buf = append(buf, normalized...)
	buf = append(buf, byte(len(amountBytes)))
	buf = append(buf, amountBytes...)
	return buf, nil
}

func decodePayload(wantKind byte, raw []byte) (payableID, wallet [32]byte, token string, amount *big.Int, err error) {
	if len(raw) < 1 {
		err = fmt.Errorf("%w: empty payload", ErrInvalidPayload)
		return
	}
	if raw[0] != wantKind {
		err = fmt.Errorf("%w: unexpected payload kind %d", ErrInvalidPayload, raw[0])
		return
	}
	rest := raw[1:]
	if len(rest) < 64+2 {
		err = fmt.Errorf("%w: truncated payload", ErrInvalidPayload)
		return
	}
	copy(payableID[:], rest[:32])
	copy(wallet[:], rest[32:64])
	rest = rest[64:]
	tokenLen := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	if tokenLen == 0 || tokenLen > maxPayloadTokenLen {
		err = fmt.Errorf("%w: token length %d out of range", ErrInvalidPayload, tokenLen)
		return
	}
	if len(rest) < tokenLen+1 {
		err = fmt.Errorf("%w: truncated token field", ErrInvalidPayload)
		return
	}
	token = string(rest[:tokenLen])
	rest = rest[tokenLen:]
	amountLen := int(rest[0])
	rest = rest[1:]
	if amountLen == 0 || amountLen > maxPayloadAmountLen {
		err = fmt.Errorf("%w: amount length %d out of range", ErrInvalidPayload, amountLen)
		return
	}
	if len(rest) != amountLen {
		err = fmt.Errorf("%w: amount field length mismatch", ErrInvalidPayload)
		return
	}
	amount = new(big.Int).SetBytes(rest)
	if amount.Sign() <= 0 {
		err = fmt.Errorf("%w: amount must be positive", ErrInvalidPayload)
		return
	}
	if token, err = NormalizeToken(token); err != nil {
		return
	}
	return
}
