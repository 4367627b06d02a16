package carnft

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type (
	// TokenRecord is the stored state of a single minted asset.
	TokenRecord struct {
		Owner    common.Address `cbor:"owner"`
		URI      string         `cbor:"uri"`
		Approved common.Address `cbor:"approved"`
	}

	// Store type for creating StoreTx transactions
	Store interface {
		Do() StoreTx
		WithTransaction(func(txs StoreTx) error) error
	}

	// StoreTx type for managing minted tokens and the supply counter.
	// All writes made inside a single WithTransaction call are applied
	// atomically.
	StoreTx interface {
		GetTotalSupply() (uint64, error)
		SetTotalSupply(supply uint64) error
		// GetToken returns nil when the id has not been minted.
		GetToken(id uint64) (*TokenRecord, error)
		SetToken(id uint64, rec *TokenRecord) error
		RemoveToken(id uint64) error
	}
)

type (
	memStore struct {
		mu     sync.Mutex
		supply uint64
		tokens map[uint64]*TokenRecord
	}

	memStoreTx struct {
		s *memStore
		// inTx is set when running inside WithTransaction and the store
		// lock is already held by the transaction.
		inTx bool
	}
)

// NewMemStore creates a non-persistent in-memory token store, used by tests
// and the local deployment mode.
func NewMemStore() Store {
	return &memStore{tokens: map[uint64]*TokenRecord{}}
}

func (m *memStore) Do() StoreTx {
	return &memStoreTx{s: m}
}

func (m *memStore) WithTransaction(fn func(txs StoreTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshotSupply := m.supply
	snapshot := make(map[uint64]*TokenRecord, len(m.tokens))
	for id, rec := range m.tokens {
		r := *rec
		snapshot[id] = &r
	}
	if err := fn(&memStoreTx{s: m, inTx: true}); err != nil {
		m.supply = snapshotSupply
		m.tokens = snapshot
		return err
	}
	return nil
}

func (t *memStoreTx) lock() func() {
	if t.inTx {
		return func() {}
	}
	t.s.mu.Lock()
	return t.s.mu.Unlock
}

func (t *memStoreTx) GetTotalSupply() (uint64, error) {
	defer t.lock()()
	return t.s.supply, nil
}

func (t *memStoreTx) SetTotalSupply(supply uint64) error {
	defer t.lock()()
	t.s.supply = supply
	return nil
}

func (t *memStoreTx) GetToken(id uint64) (*TokenRecord, error) {
	defer t.lock()()
	rec, ok := t.s.tokens[id]
	if !ok {
		return nil, nil
	}
	r := *rec
	return &r, nil
}

func (t *memStoreTx) SetToken(id uint64, rec *TokenRecord) error {
	defer t.lock()()
	r := *rec
	t.s.tokens[id] = &r
	return nil
}

func (t *memStoreTx) RemoveToken(id uint64) error {
	defer t.lock()()
	delete(t.s.tokens, id)
	return nil
}
