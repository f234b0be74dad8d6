package purchase

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const purchasesBucket = "purchases"

// BoltStore implements the Store interface using BoltDB. Purchases are
// keyed by their big-endian encoded ID so bucket iteration preserves
// insertion order.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore instance
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(purchasesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Load returns all purchases in key (insertion) order
func (b *BoltStore) Load() ([]*Purchase, error) {
	purchases := make([]*Purchase, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(purchasesBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var p Purchase
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshaling purchase: %w", err)
			}
			purchases = append(purchases, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

// Save writes the full purchase sequence in one transaction
func (b *BoltStore) Save(purchases []*Purchase) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(purchasesBucket))
		for _, p := range purchases {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshaling purchase: %w", err)
			}
			if err := bucket.Put(idKey(p.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func idKey(id int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}
