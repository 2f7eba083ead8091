package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

const (
	transactionBucket = "transactions"
	profileBucket     = "profiles"
	rateBucket        = "rates"
)

// BoltDB implements DB on a single bbolt file. Transaction keys are
// "{userID}/{transactionID}" so one prefix scan covers a user's history.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (creating if needed) the database at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{transactionBucket, profileBucket, rateBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func transactionKey(userID, id string) []byte {
	return []byte(userID + "/" + id)
}

// SaveTransaction persists a transaction.
func (b *BoltDB) SaveTransaction(txn *Transaction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transactionBucket))
		data, err := json.Marshal(txn)
		if err != nil {
			return fmt.Errorf("marshaling transaction: %w", err)
		}
		return bucket.Put(transactionKey(txn.UserID, txn.ID), data)
	})
}

// GetTransaction retrieves one transaction of a user.
func (b *BoltDB) GetTransaction(userID, id string) (*Transaction, error) {
	var txn *Transaction
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transactionBucket))
		data := bucket.Get(transactionKey(userID, id))
		if data == nil {
			return fmt.Errorf("%w: transaction %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ListRecent returns the user's non-deleted transactions created at or
// after since.
func (b *BoltDB) ListRecent(userID string, since time.Time) ([]*Transaction, error) {
	transactions := make([]*Transaction, 0)
	prefix := []byte(userID + "/")
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(transactionBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var txn Transaction
			if err := json.Unmarshal(v, &txn); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			if txn.Deleted || txn.CreatedAt.Before(since) {
				continue
			}
			transactions = append(transactions, &txn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// DeleteTransaction soft-deletes a transaction.
func (b *BoltDB) DeleteTransaction(userID, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transactionBucket))
		key := transactionKey(userID, id)
		data := bucket.Get(key)
		if data == nil {
			return fmt.Errorf("%w: transaction %s", ErrNotFound, id)
		}
		var txn Transaction
		if err := json.Unmarshal(data, &txn); err != nil {
			return fmt.Errorf("unmarshaling transaction: %w", err)
		}
		txn.Deleted = true
		updated, err := json.Marshal(&txn)
		if err != nil {
			return fmt.Errorf("marshaling transaction: %w", err)
		}
		return bucket.Put(key, updated)
	})
}

// GetProfile retrieves a user profile.
func (b *BoltDB) GetProfile(userID string) (*Profile, error) {
	var profile *Profile
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(profileBucket))
		data := bucket.Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("%w: profile %s", ErrNotFound, userID)
		}
		return json.Unmarshal(data, &profile)
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// SaveProfile persists a user profile.
func (b *BoltDB) SaveProfile(profile *Profile) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(profileBucket))
		data, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("marshaling profile: %w", err)
		}
		return bucket.Put([]byte(profile.UserID), data)
	})
}

type rateRecord struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// SaveRate records the latest fetched rate for a currency pair.
// Last-writer-wins; rates are idempotent point-in-time values.
func (b *BoltDB) SaveRate(pair string, rate decimal.Decimal, fetchedAt time.Time) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(rateBucket))
		data, err := json.Marshal(rateRecord{Rate: rate, FetchedAt: fetchedAt})
		if err != nil {
			return fmt.Errorf("marshaling rate: %w", err)
		}
		return bucket.Put([]byte(pair), data)
	})
}

// LastKnownRate returns the most recently recorded rate for a pair.
func (b *BoltDB) LastKnownRate(pair string) (decimal.Decimal, time.Time, bool, error) {
	var record rateRecord
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(rateBucket))
		data := bucket.Get([]byte(pair))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return decimal.Zero, time.Time{}, false, err
	}
	return record.Rate, record.FetchedAt, found, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
