package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"trustpay/core/types"
	"trustpay/native/trustpay"
	"trustpay/storage"
)

var (
	contractPrefix = []byte("trustpay:contract:")
	accountPrefix  = []byte("trustpay:account:")
	vaultPrefix    = []byte("trustpay:vault:")
	globalKeyRaw   = []byte("trustpay:global")
)

// Manager persists contracts, the platform record, accounts and vault custody
// balances in a key-value store. It implements the engine's state interface;
// all keys are keccak-hashed so raw identifiers never appear in the store.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func contractKey(id [32]byte) []byte {
	buf := make([]byte, len(contractPrefix)+len(id))
	copy(buf, contractPrefix)
	copy(buf[len(contractPrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func vaultKey(id [32]byte, asset string) []byte {
	buf := make([]byte, len(vaultPrefix)+len(asset)+1+len(id))
	copy(buf, vaultPrefix)
	copy(buf[len(vaultPrefix):], asset)
	buf[len(vaultPrefix)+len(asset)] = ':'
	copy(buf[len(vaultPrefix)+len(asset)+1:], id[:])
	return ethcrypto.Keccak256(buf)
}

func globalKey() []byte {
	return ethcrypto.Keccak256(globalKeyRaw)
}

// ContractPut sanitises and stores a contract.
func (m *Manager) ContractPut(c *trustpay.Contract) error {
	sanitized, err := trustpay.SanitizeContract(c)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return m.db.Put(contractKey(sanitized.ID), encoded)
}

// ContractGet loads a stored contract by identifier.
func (m *Manager) ContractGet(id [32]byte) (*trustpay.Contract, bool) {
	data, err := m.db.Get(contractKey(id))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	contract := &trustpay.Contract{}
	if err := json.Unmarshal(data, contract); err != nil {
		return nil, false
	}
	return contract, true
}

// ContractDelete destroys the stored contract record.
func (m *Manager) ContractDelete(id [32]byte) error {
	return m.db.Delete(contractKey(id))
}

// GlobalGet loads the platform record.
func (m *Manager) GlobalGet() (*trustpay.GlobalState, bool) {
	data, err := m.db.Get(globalKey())
	if err != nil || len(data) == 0 {
		return nil, false
	}
	global := &trustpay.GlobalState{}
	if err := json.Unmarshal(data, global); err != nil {
		return nil, false
	}
	return global, true
}

// GlobalPut stores the platform record.
func (m *Manager) GlobalPut(g *trustpay.GlobalState) error {
	if g == nil {
		return errors.New("state: nil global state")
	}
	encoded, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return m.db.Put(globalKey(), encoded)
}

// VaultBalance returns the custody balance recorded for a contract.
func (m *Manager) VaultBalance(id [32]byte, asset string) (*big.Int, error) {
	data, err := m.db.Get(vaultKey(id, asset))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	balance, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return nil, fmt.Errorf("state: corrupt vault balance for %x", id)
	}
	return balance, nil
}

// VaultCredit increases the custody balance recorded for a contract.
func (m *Manager) VaultCredit(id [32]byte, asset string, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid vault credit")
	}
	balance, err := m.VaultBalance(id, asset)
	if err != nil {
		return err
	}
	balance.Add(balance, amt)
	return m.db.Put(vaultKey(id, asset), []byte(balance.String()))
}

// VaultDebit decreases the custody balance recorded for a contract, failing
// when the balance would go negative.
func (m *Manager) VaultDebit(id [32]byte, asset string, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid vault debit")
	}
	balance, err := m.VaultBalance(id, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("state: vault balance underflow for %x", id)
	}
	balance.Sub(balance, amt)
	if balance.Sign() == 0 {
		return m.db.Delete(vaultKey(id, asset))
	}
	return m.db.Put(vaultKey(id, asset), []byte(balance.String()))
}

// VaultAddress derives the deterministic module account holding custody funds
// for an asset.
func (m *Manager) VaultAddress(asset string) ([20]byte, error) {
	normalized, err := trustpay.NormalizeAsset(asset)
	if err != nil {
		return [20]byte{}, err
	}
	digest := ethcrypto.Keccak256([]byte("trustpay:vault-module:" + normalized))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr, nil
}

// GetAccount loads the ledger account for an address, returning an empty
// account when none is stored.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.db.Get(accountKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.NewAccount(), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return types.NewAccount(), nil
	}
	account := types.NewAccount()
	if err := json.Unmarshal(data, account); err != nil {
		return nil, err
	}
	return account, nil
}

// PutAccount stores the ledger account for an address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return errors.New("state: nil account")
	}
	encoded, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}
