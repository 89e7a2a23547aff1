package ledger

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"chainbills/native/ledger"
)

// Key schema: every record lives under a human-readable prefix plus its
// natural key, hashed to a fixed-width storage key. The prefix namespaces
// are disjoint, so hashing cannot conflate entity kinds.
var (
	configKey             = []byte("ledger/config")
	statsKey              = []byte("ledger/stats")
	userPrefix            = []byte("ledger/user/")
	payablePrefix         = []byte("ledger/payable/")
	foreignPayablePrefix  = []byte("ledger/foreign-payable/")
	tokenPrefix           = []byte("ledger/token/")
	userPaymentPrefix     = []byte("ledger/payment/user/")
	payablePaymentPrefix  = []byte("ledger/payment/payable/")
	withdrawalPrefix      = []byte("ledger/withdrawal/")
	activityPrefix        = []byte("ledger/activity/")
	consumedMessagePrefix = []byte("ledger/consumed/")
	foreignContractPrefix = []byte("ledger/foreign-contract/")
	lookupPrefix          = []byte("ledger/lookup/")
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func userKey(wallet ledger.Wallet) []byte {
	return prefixedKey(userPrefix, wallet[:])
}

func payableKey(id [32]byte) []byte {
	return prefixedKey(payablePrefix, id[:])
}

func foreignPayableKey(id [32]byte) []byte {
	return prefixedKey(foreignPayablePrefix, id[:])
}

func tokenKey(token string) []byte {
	return prefixedKey(tokenPrefix, []byte(token))
}

func userPaymentKey(id [32]byte) []byte {
	return prefixedKey(userPaymentPrefix, id[:])
}

func payablePaymentKey(id [32]byte) []byte {
	return prefixedKey(payablePaymentPrefix, id[:])
}

func withdrawalKey(id [32]byte) []byte {
	return prefixedKey(withdrawalPrefix, id[:])
}

func activityKey(id [32]byte) []byte {
	return prefixedKey(activityPrefix, id[:])
}

func consumedMessageKey(chainID uint16, sequence uint64) []byte {
	var suffix [10]byte
	binary.BigEndian.PutUint16(suffix[:2], chainID)
	binary.BigEndian.PutUint64(suffix[2:], sequence)
	return prefixedKey(consumedMessagePrefix, suffix[:])
}

func foreignContractKey(chainID uint16) []byte {
	var suffix [2]byte
	binary.BigEndian.PutUint16(suffix[:], chainID)
	return prefixedKey(foreignContractPrefix, suffix[:])
}

// lookupKey addresses one (kind, scope, scope key, count) ordinal entry.
// Kind and scope are fixed-width and the count terminates the buffer, so
// the concatenation is unambiguous before hashing.
func lookupKey(kind ledger.EntityKind, scope ledger.CounterScope, key []byte, count uint64) []byte {
	var head [2]byte
	head[0] = byte(kind)
	head[1] = byte(scope)
	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], count)
	return prefixedKey(lookupPrefix, head[:], key, countBuf[:])
}
