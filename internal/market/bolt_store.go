package market

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
	bolt "go.etcd.io/bbolt"

	"github.com/cryptowheels/marketplace/internal/util"
)

var (
	listingsBucket = []byte("listings") // registry id + asset id => cbor(listingRecord)
	balancesBucket = []byte("balances") // seller address => balance bytes
)

var _ Store = (*boltStore)(nil)

type (
	boltStore struct {
		db *bolt.DB
	}

	boltStoreTx struct {
		db *boltStore
		tx *bolt.Tx
	}

	// listingRecord is the serialized form of a Listing; amounts are stored
	// as big-endian byte slices.
	listingRecord struct {
		PriceInBase      []byte         `cbor:"priceInBase"`
		PriceInReference []byte         `cbor:"priceInReference"`
		Seller           common.Address `cbor:"seller"`
	}
)

// NewBoltStore creates on-disk persistent storage for listings and seller
// balances using bolt db. If the file does not exist it is created, parent
// directories must exist beforehand.
func NewBoltStore(dbFile string) (Store, error) {
	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 3 * time.Second}) // -rw-------
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt DB: %w", err)
	}
	s := &boltStore{db: db}
	if err := s.createBuckets(); err != nil {
		return nil, fmt.Errorf("failed to create db buckets: %w", err)
	}
	return s, nil
}

func (s *boltStore) createBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{listingsBucket, balancesBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltStore) Do() StoreTx {
	return &boltStoreTx{db: s, tx: nil}
}

func (s *boltStore) WithTransaction(fn func(txs StoreTx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltStoreTx{db: s, tx: tx})
	})
}

func (s *boltStoreTx) GetListing(key ListingKey) (*Listing, error) {
	listing := &Listing{}
	err := s.withTx(s.tx, func(tx *bolt.Tx) error {
		data := tx.Bucket(listingsBucket).Get(listingKeyBytes(key))
		if data == nil {
			return nil
		}
		rec := &listingRecord{}
		if err := cbor.Unmarshal(data, rec); err != nil {
			return fmt.Errorf("failed to deserialize listing record: %w", err)
		}
		listing = &Listing{
			PriceInBase:      uint256.NewInt(0).SetBytes(rec.PriceInBase),
			PriceInReference: uint256.NewInt(0).SetBytes(rec.PriceInReference),
			Seller:           rec.Seller,
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *boltStoreTx) SetListing(key ListingKey, listing *Listing) error {
	rec := &listingRecord{Seller: listing.Seller}
	if listing.PriceInBase != nil {
		rec.PriceInBase = listing.PriceInBase.Bytes()
	}
	if listing.PriceInReference != nil {
		rec.PriceInReference = listing.PriceInReference.Bytes()
	}
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize listing record: %w", err)
	}
	return s.withTx(s.tx, func(tx *bolt.Tx) error {
		return tx.Bucket(listingsBucket).Put(listingKeyBytes(key), data)
	}, true)
}

func (s *boltStoreTx) RemoveListing(key ListingKey) error {
	return s.withTx(s.tx, func(tx *bolt.Tx) error {
		return tx.Bucket(listingsBucket).Delete(listingKeyBytes(key))
	}, true)
}

func (s *boltStoreTx) ListKeys() ([]ListingKey, error) {
	var keys []ListingKey
	err := s.withTx(s.tx, func(tx *bolt.Tx) error {
		return tx.Bucket(listingsBucket).ForEach(func(k, _ []byte) error {
			if len(k) != common.AddressLength+8 {
				return fmt.Errorf("invalid listing key length %d", len(k))
			}
			keys = append(keys, ListingKey{
				RegistryID: common.BytesToAddress(k[:common.AddressLength]),
				AssetID:    util.BytesToUint64(k[common.AddressLength:]),
			})
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *boltStoreTx) GetBalance(addr common.Address) (*uint256.Int, error) {
	balance := uint256.NewInt(0)
	err := s.withTx(s.tx, func(tx *bolt.Tx) error {
		if data := tx.Bucket(balancesBucket).Get(addr.Bytes()); data != nil {
			balance.SetBytes(data)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (s *boltStoreTx) SetBalance(addr common.Address, balance *uint256.Int) error {
	return s.withTx(s.tx, func(tx *bolt.Tx) error {
		return tx.Bucket(balancesBucket).Put(addr.Bytes(), balance.Bytes())
	}, true)
}

func (s *boltStoreTx) withTx(dbTx *bolt.Tx, myFunc func(tx *bolt.Tx) error, writeTx bool) error {
	if dbTx != nil {
		return myFunc(dbTx)
	} else if writeTx {
		return s.db.db.Update(myFunc)
	}
	return s.db.db.View(myFunc)
}

func listingKeyBytes(key ListingKey) []byte {
	b := make([]byte, 0, common.AddressLength+8)
	b = append(b, key.RegistryID.Bytes()...)
	return append(b, util.Uint64ToBytes(key.AssetID)...)
}
