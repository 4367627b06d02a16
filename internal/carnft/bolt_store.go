package carnft

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/cryptowheels/marketplace/internal/util"
)

var (
	tokensBucket = []byte("tokens") // asset id => cbor(TokenRecord)
	metaBucket   = []byte("meta")   // supply counter

	supplyKey = []byte("total-supply")
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
)

// NewBoltStore creates on-disk persistent storage for minted tokens using
// bolt db. If the file does not exist it is created, parent directories must
// exist beforehand.
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
		for _, b := range [][]byte{tokensBucket, metaBucket} {
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

func (s *boltStoreTx) GetTotalSupply() (uint64, error) {
	var supply uint64
	err := s.withTx(s.tx, func(tx *bolt.Tx) error {
		if val := tx.Bucket(metaBucket).Get(supplyKey); val != nil {
			supply = util.BytesToUint64(val)
		}
		return nil
	}, false)
	return supply, err
}

func (s *boltStoreTx) SetTotalSupply(supply uint64) error {
	return s.withTx(s.tx, func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(supplyKey, util.Uint64ToBytes(supply))
	}, true)
}

func (s *boltStoreTx) GetToken(id uint64) (*TokenRecord, error) {
	var rec *TokenRecord
	err := s.withTx(s.tx, func(tx *bolt.Tx) error {
		data := tx.Bucket(tokensBucket).Get(util.Uint64ToBytes(id))
		if data == nil {
			return nil
		}
		rec = &TokenRecord{}
		if err := cbor.Unmarshal(data, rec); err != nil {
			return fmt.Errorf("failed to deserialize token record %d: %w", id, err)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *boltStoreTx) SetToken(id uint64, rec *TokenRecord) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize token record %d: %w", id, err)
	}
	return s.withTx(s.tx, func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Put(util.Uint64ToBytes(id), data)
	}, true)
}

func (s *boltStoreTx) RemoveToken(id uint64) error {
	return s.withTx(s.tx, func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Delete(util.Uint64ToBytes(id))
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
