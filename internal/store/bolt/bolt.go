// Package bolt implements store.Store on an embedded bbolt file for single-node deployments.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aura-erp/meeting-scheduler/internal/store"
)

var (
	bucketMeetings      = []byte("meetings")
	bucketParticipants  = []byte("participants")
	bucketSlots         = []byte("time_slots")
	bucketAvailability  = []byte("availability")
	bucketFinalized     = []byte("finalized_slots")
	bucketJobs          = []byte("scheduled_jobs")
	bucketTodos         = []byte("todos")
	bucketNotifications = []byte("notifications")
	bucketEmailLogs     = []byte("email_logs")
	bucketUsers         = []byte("users")
)

var allBuckets = [][]byte{
	bucketMeetings, bucketParticipants, bucketSlots, bucketAvailability, bucketFinalized,
	bucketJobs, bucketTodos, bucketNotifications, bucketEmailLogs, bucketUsers,
}

// Store is the bbolt backend. Values are JSON; composite keys are "parent/child".
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and its buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// View runs fn in a read-only bbolt transaction.
func (s *Store) View(_ context.Context, fn func(q store.Queries) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&queries{tx: tx})
	})
}

// Update runs fn in the single bbolt writer transaction.
func (s *Store) Update(_ context.Context, fn func(q store.Queries) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&queries{tx: tx})
	})
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

type queries struct {
	tx *bolt.Tx
}

func compositeKey(parts ...string) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte('/')
		}
		buf.WriteString(p)
	}
	return buf.Bytes()
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := b.Put(key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// getJSON decodes the value at key into v and reports whether it existed.
func getJSON(b *bolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return true, nil
}

// scanPrefix calls fn for every value whose key starts with prefix.
func scanPrefix(b *bolt.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

var _ store.Store = (*Store)(nil)
var _ store.Queries = (*queries)(nil)
