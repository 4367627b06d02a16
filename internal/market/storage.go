package market

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type (
	// Store type for creating StoreTx transactions
	Store interface {
		Do() StoreTx
		WithTransaction(func(txs StoreTx) error) error
	}

	// StoreTx manages the listing table and the seller balance table. All
	// writes made inside a single WithTransaction call are applied
	// atomically: either the whole transaction commits or none of it does.
	StoreTx interface {
		// GetListing returns the zero value listing when the key is absent.
		GetListing(key ListingKey) (*Listing, error)
		SetListing(key ListingKey, listing *Listing) error
		RemoveListing(key ListingKey) error
		// ListKeys returns the keys of all present listings.
		ListKeys() ([]ListingKey, error)
		// GetBalance returns zero for addresses never credited.
		GetBalance(addr common.Address) (*uint256.Int, error)
		SetBalance(addr common.Address, balance *uint256.Int) error
	}
)

type (
	memStore struct {
		mu       sync.Mutex
		listings map[ListingKey]*Listing
		balances map[common.Address]*uint256.Int
	}

	memStoreTx struct {
		s *memStore
		// inTx is set when running inside WithTransaction and the store
		// lock is already held by the transaction.
		inTx bool
	}
)

// NewMemStore creates a non-persistent in-memory ledger store, used by tests
// and the local deployment mode.
func NewMemStore() Store {
	return &memStore{
		listings: map[ListingKey]*Listing{},
		balances: map[common.Address]*uint256.Int{},
	}
}

func (m *memStore) Do() StoreTx {
	return &memStoreTx{s: m}
}

func (m *memStore) WithTransaction(fn func(txs StoreTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	listings := make(map[ListingKey]*Listing, len(m.listings))
	for k, l := range m.listings {
		listings[k] = l.clone()
	}
	balances := make(map[common.Address]*uint256.Int, len(m.balances))
	for a, b := range m.balances {
		balances[a] = b.Clone()
	}
	if err := fn(&memStoreTx{s: m, inTx: true}); err != nil {
		m.listings = listings
		m.balances = balances
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

func (t *memStoreTx) GetListing(key ListingKey) (*Listing, error) {
	defer t.lock()()
	return t.s.listings[key].clone(), nil
}

func (t *memStoreTx) SetListing(key ListingKey, listing *Listing) error {
	defer t.lock()()
	t.s.listings[key] = listing.clone()
	return nil
}

func (t *memStoreTx) RemoveListing(key ListingKey) error {
	defer t.lock()()
	delete(t.s.listings, key)
	return nil
}

func (t *memStoreTx) ListKeys() ([]ListingKey, error) {
	defer t.lock()()
	keys := make([]ListingKey, 0, len(t.s.listings))
	for k := range t.s.listings {
		keys = append(keys, k)
	}
	return keys, nil
}

func (t *memStoreTx) GetBalance(addr common.Address) (*uint256.Int, error) {
	defer t.lock()()
	if b, ok := t.s.balances[addr]; ok {
		return b.Clone(), nil
	}
	return uint256.NewInt(0), nil
}

func (t *memStoreTx) SetBalance(addr common.Address, balance *uint256.Int) error {
	defer t.lock()()
	t.s.balances[addr] = balance.Clone()
	return nil
}
