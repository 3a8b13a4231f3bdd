// Package idempotency remembers which fee record an Idempotency-Key created,
// so that a retried POST returns the first record instead of creating a duplicate.
package idempotency

import (
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core/fee"
)

const bucketName = "fee_record_keys"

type entry struct {
	RecordID  string    `json:"record_id,omitempty"`
	Pending   bool      `json:"pending,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a bolt-backed fee.IdempotencyStore.
type Store struct {
	db *bolt.DB
}

var _ fee.IdempotencyStore = (*Store)(nil) // interface compliance check

// Open opens (or creates) the bolt file at path and ensures the keys bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening idempotency store")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating idempotency bucket")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Once runs fn the first time key is seen and stores the id it returns.
//
// The key is first claimed with a pending entry, then fn runs outside any bolt transaction.
// A call that finds the key pending gets fee.ErrKeyInProgress and does not run fn.
// When fn fails the claim is released so the key can be retried.
// When fn succeeds but its id cannot be stored, the key stays pending until purged,
// so a retry can never create a second record.
func (s *Store) Once(key string, fn func() (string, error)) (id string, replayed bool, err error) {
	id, replayed, err = s.claim(key)
	if err != nil || replayed {
		return id, replayed, err
	}

	id, err = fn()
	if err != nil {
		// a failed release leaves the key pending, which purge-keys clears
		_ = s.release(key)
		return "", false, err
	}
	if err := s.put(key, entry{RecordID: id, CreatedAt: time.Now().UTC()}); err != nil {
		return id, false, errors.Wrap(err, "storing idempotency entry")
	}
	return id, false, nil
}

// claim stores a pending entry for a key never seen before.
// A completed key is reported as replayed along with its record id.
func (s *Store) claim(key string) (id string, replayed bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		if existing := b.Get([]byte(key)); existing != nil {
			var e entry
			if err := json.Unmarshal(existing, &e); err != nil {
				return errors.Wrap(err, "decoding idempotency entry")
			}
			if e.Pending {
				return fee.ErrKeyInProgress
			}
			id, replayed = e.RecordID, true
			return nil
		}
		return putEntry(b, key, entry{Pending: true, CreatedAt: time.Now().UTC()})
	})
	if err != nil {
		return "", false, err
	}
	return id, replayed, nil
}

// release drops the pending entry of key, if it is still pending.
func (s *Store) release(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		existing := b.Get([]byte(key))
		if existing == nil {
			return nil
		}
		var e entry
		if err := json.Unmarshal(existing, &e); err != nil {
			return errors.Wrap(err, "decoding idempotency entry")
		}
		if !e.Pending {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *Store) put(key string, e entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putEntry(tx.Bucket([]byte(bucketName)), key, e)
	})
}

func putEntry(b *bolt.Bucket, key string, e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// Purge drops the keys (pending or not) stored before the given time and returns how many were removed.
func (s *Store) Purge(before time.Time) (int, error) {
	var purged int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil {
				return errors.Wrap(err, "decoding idempotency entry")
			}
			if e.CreatedAt.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}
