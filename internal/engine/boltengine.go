package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const boltBucket = "flintkv"

// BoltEngine is an interchangeable Engine implementation delegating to
// an embedded key/value store (go.etcd.io/bbolt).
type BoltEngine struct {
	db *bbolt.DB
}

// OpenBolt opens dir/bolt.db, retrying a transient open failure up to
// three times with a short delay, and ensures the storage bucket exists.
func OpenBolt(dir string) (*BoltEngine, error) {
	path := filepath.Join(dir, "bolt.db")

	var db *bbolt.DB
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		db, err = bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("engine: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create bolt bucket: %w", err)
	}

	return &BoltEngine{db: db}, nil
}

// Set stores key/value in a single committed (and therefore durable)
// transaction.
func (b *BoltEngine) Set(key, value string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("engine: bolt set %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key, if present.
func (b *BoltEngine) Get(key string) (string, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("engine: bolt get %q: %w", key, err)
	}
	if value == nil {
		return "", false, nil
	}
	return string(value), true, nil
}

// Remove deletes key, returning ErrKeyNotFound if it was absent.
func (b *BoltEngine) Remove(key string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		if bucket.Get([]byte(key)) == nil {
			return ErrKeyNotFound
		}
		return bucket.Delete([]byte(key))
	})
	if errors.Is(err, ErrKeyNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("engine: bolt remove %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying bbolt database.
func (b *BoltEngine) Close() error {
	return b.db.Close()
}
