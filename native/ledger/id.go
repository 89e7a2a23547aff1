package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DeriveID produces the opaque 32-byte identifier for a newly created
// entity. The hash input is fully determined by values known before the
// entity record exists, so both host implementations derive the same
// identifier for the same creation event: the entity kind (domain
// separation), the chain id, the deployment's sequence seed, a coarse
// timestamp, the acting wallet, and the wallet's entity count.
func DeriveID(kind EntityKind, chainID uint16, seed uint64, wallet Wallet, count uint64, ts uint64) [32]byte {
	var header [19]byte
	header[0] = byte(kind)
	binary.BigEndian.PutUint16(header[1:3], chainID)
	binary.BigEndian.PutUint64(header[3:11], seed)
	binary.BigEndian.PutUint64(header[11:19], ts)
	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], count)
	return ethcrypto.Keccak256Hash(header[:], wallet[:], countBuf[:])
}

// FormatID renders an identifier in its canonical external form, lowercase
// hex without a prefix.
func FormatID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}

// ParseID decodes a canonical hex identifier. A leading 0x prefix is
// tolerated.
func ParseID(s string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	raw, err := hex.DecodeString(strings.ToLower(trimmed))
	if err != nil || len(raw) != len(id) {
		return id, ErrInvalidPayableID
	}
	copy(id[:], raw)
	return id, nil
}

// ParseWallet decodes a 32-byte hex wallet identity.
func ParseWallet(s string) (Wallet, error) {
	var w Wallet
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	raw, err := hex.DecodeString(strings.ToLower(trimmed))
	if err != nil || len(raw) != len(w) {
		return w, ErrInvalidWallet
	}
	copy(w[:], raw)
	if w.IsZero() {
		return w, ErrInvalidWallet
	}
	return w, nil
}

// FormatWallet renders a wallet identity as lowercase hex.
func FormatWallet(w Wallet) string {
	return hex.EncodeToString(w[:])
}
