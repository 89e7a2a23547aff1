// Package ledger persists the payable ledger's state in a key-value store.
// It is the durable implementation of the engine's state contract; records
// are RLP encoded under hashed, prefixed keys.
package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"chainbills/native/ledger"
	"chainbills/storage"
)

// Manager binds the ledger state schema to a storage backend.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	return m.db.Put(key, encoded)
}

func (m *Manager) Config() (*ledger.Config, bool, error) {
	cfg := new(ledger.Config)
	ok, err := m.get(configKey, cfg)
	if !ok || err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func (m *Manager) SetConfig(cfg *ledger.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil config")
	}
	return m.put(configKey, cfg)
}

func (m *Manager) ChainStats() (*ledger.ChainStats, bool, error) {
	stats := new(ledger.ChainStats)
	ok, err := m.get(statsKey, stats)
	if !ok || err != nil {
		return nil, false, err
	}
	return stats, true, nil
}

func (m *Manager) SetChainStats(stats *ledger.ChainStats) error {
	if stats == nil {
		return fmt.Errorf("state: nil chain stats")
	}
	return m.put(statsKey, stats)
}

func (m *Manager) User(wallet ledger.Wallet) (*ledger.User, bool, error) {
	user := new(ledger.User)
	ok, err := m.get(userKey(wallet), user)
	if !ok || err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (m *Manager) SetUser(user *ledger.User) error {
	if user == nil {
		return fmt.Errorf("state: nil user")
	}
	return m.put(userKey(user.Wallet), user)
}

func (m *Manager) Payable(id [32]byte) (*ledger.Payable, bool, error) {
	payable := new(ledger.Payable)
	ok, err := m.get(payableKey(id), payable)
	if !ok || err != nil {
		return nil, false, err
	}
	return payable, true, nil
}

func (m *Manager) SetPayable(payable *ledger.Payable) error {
	if payable == nil {
		return fmt.Errorf("state: nil payable")
	}
	return m.put(payableKey(payable.ID), payable)
}

func (m *Manager) ForeignPayable(id [32]byte) (*ledger.ForeignPayable, bool, error) {
	foreign := new(ledger.ForeignPayable)
	ok, err := m.get(foreignPayableKey(id), foreign)
	if !ok || err != nil {
		return nil, false, err
	}
	return foreign, true, nil
}

func (m *Manager) SetForeignPayable(foreign *ledger.ForeignPayable) error {
	if foreign == nil {
		return fmt.Errorf("state: nil foreign payable")
	}
	return m.put(foreignPayableKey(foreign.PayableID), foreign)
}

func (m *Manager) TokenDetails(token string) (*ledger.TokenDetails, bool, error) {
	details := new(ledger.TokenDetails)
	ok, err := m.get(tokenKey(token), details)
	if !ok || err != nil {
		return nil, false, err
	}
	return details, true, nil
}

func (m *Manager) SetTokenDetails(details *ledger.TokenDetails) error {
	if details == nil {
		return fmt.Errorf("state: nil token details")
	}
	return m.put(tokenKey(details.Token), details)
}

func (m *Manager) UserPayment(id [32]byte) (*ledger.UserPayment, bool, error) {
	payment := new(ledger.UserPayment)
	ok, err := m.get(userPaymentKey(id), payment)
	if !ok || err != nil {
		return nil, false, err
	}
	return payment, true, nil
}

func (m *Manager) SetUserPayment(payment *ledger.UserPayment) error {
	if payment == nil {
		return fmt.Errorf("state: nil user payment")
	}
	return m.put(userPaymentKey(payment.ID), payment)
}

func (m *Manager) PayablePayment(id [32]byte) (*ledger.PayablePayment, bool, error) {
	payment := new(ledger.PayablePayment)
	ok, err := m.get(payablePaymentKey(id), payment)
	if !ok || err != nil {
		return nil, false, err
	}
	return payment, true, nil
}

func (m *Manager) SetPayablePayment(payment *ledger.PayablePayment) error {
	if payment == nil {
		return fmt.Errorf("state: nil payable payment")
	}
	return m.put(payablePaymentKey(payment.ID), payment)
}

func (m *Manager) Withdrawal(id [32]byte) (*ledger.Withdrawal, bool, error) {
	withdrawal := new(ledger.Withdrawal)
	ok, err := m.get(withdrawalKey(id), withdrawal)
	if !ok || err != nil {
		return nil, false, err
	}
	return withdrawal, true, nil
}

func (m *Manager) SetWithdrawal(withdrawal *ledger.Withdrawal) error {
	if withdrawal == nil {
		return fmt.Errorf("state: nil withdrawal")
	}
	return m.put(withdrawalKey(withdrawal.ID), withdrawal)
}

func (m *Manager) Activity(id [32]byte) (*ledger.ActivityRecord, bool, error) {
	activity := new(ledger.ActivityRecord)
	ok, err := m.get(activityKey(id), activity)
	if !ok || err != nil {
		return nil, false, err
	}
	return activity, true, nil
}

func (m *Manager) SetActivity(activity *ledger.ActivityRecord) error {
	if activity == nil {
		return fmt.Errorf("state: nil activity record")
	}
	return m.put(activityKey(activity.ID), activity)
}

func (m *Manager) ConsumedMessage(chainID uint16, sequence uint64) (*ledger.ConsumedMessage, bool, error) {
	consumed := new(ledger.ConsumedMessage)
	ok, err := m.get(consumedMessageKey(chainID, sequence), consumed)
	if !ok || err != nil {
		return nil, false, err
	}
	return consumed, true, nil
}

func (m *Manager) SetConsumedMessage(consumed *ledger.ConsumedMessage) error {
	if consumed == nil {
		return fmt.Errorf("state: nil consumed message")
	}
	return m.put(consumedMessageKey(consumed.EmitterChainID, consumed.Sequence), consumed)
}

func (m *Manager) ForeignContract(chainID uint16) (*ledger.ForeignContract, bool, error) {
	contract := new(ledger.ForeignContract)
	ok, err := m.get(foreignContractKey(chainID), contract)
	if !ok || err != nil {
		return nil, false, err
	}
	return contract, true, nil
}

func (m *Manager) SetForeignContract(contract *ledger.ForeignContract) error {
	if contract == nil {
		return fmt.Errorf("state: nil foreign contract")
	}
	return m.put(foreignContractKey(contract.ChainID), contract)
}

func (m *Manager) Lookup(kind ledger.EntityKind, scope ledger.CounterScope, key []byte, count uint64) ([32]byte, bool, error) {
	var id [32]byte
	raw, err := m.db.Get(lookupKey(kind, scope, key, count))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return id, false, nil
	}
	if err != nil {
		return id, false, err
	}
	if len(raw) != len(id) {
		return id, false, fmt.Errorf("state: malformed lookup entry for %s", kind)
	}
	copy(id[:], raw)
	return id, true, nil
}

func (m *Manager) SetLookup(kind ledger.EntityKind, scope ledger.CounterScope, key []byte, count uint64, id [32]byte) error {
	return m.db.Put(lookupKey(kind, scope, key, count), id[:])
}
