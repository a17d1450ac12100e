package payloadstore

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// ---------------------------

// A payload store is a side map from node id to an opaque payload, used to
// join search results back to whatever the caller inserted alongside each
// vector. No ordering and no durability beyond the underlying store.
type PayloadStore interface {
	Put(id uint32, payload []byte) error
	// The boolean reports whether a payload exists for the id.
	Get(id uint32) ([]byte, bool, error)
	Close() error
}

// ---------------------------

// Open returns a bbolt backed store at the given path, or an in-memory
// store when the path is empty.
func Open(path string) (PayloadStore, error) {
	if path == "" {
		return newMemPayloadStore(), nil
	}
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 1 * time.Minute})
	if err != nil {
		return nil, fmt.Errorf("could not open payload db %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(payloadsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create payload bucket: %w", err)
	}
	return &boltPayloadStore{db: db}, nil
}

// ---------------------------

type memPayloadStore struct {
	mu       sync.RWMutex
	payloads map[uint32][]byte
}

func newMemPayloadStore() *memPayloadStore {
	return &memPayloadStore{payloads: make(map[uint32][]byte)}
}

func (s *memPayloadStore) Put(id uint32, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(payload))
	copy(stored, payload)
	s.payloads[id] = stored
	return nil
}

func (s *memPayloadStore) Get(id uint32) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.payloads[id]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true, nil
}

func (s *memPayloadStore) Close() error {
	clear(s.payloads)
	return nil
}

// ---------------------------

const payloadsBucket = "payloads"

type boltPayloadStore struct {
	db *bbolt.DB
}

func payloadKey(id uint32) []byte {
	key := [5]byte{}
	key[0] = 'p'
	binary.BigEndian.PutUint32(key[1:], id)
	return key[:]
}

func (s *boltPayloadStore) Put(id uint32, payload []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(payloadsBucket)).Put(payloadKey(id), payload)
	})
	if err != nil {
		return fmt.Errorf("could not put payload %d: %w", id, err)
	}
	return nil
}

func (s *boltPayloadStore) Get(id uint32) ([]byte, bool, error) {
	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket([]byte(payloadsBucket)).Get(payloadKey(id))
		if value != nil {
			// The value is only valid inside the transaction.
			payload = make([]byte, len(value))
			copy(payload, value)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("could not get payload %d: %w", id, err)
	}
	return payload, payload != nil, nil
}

func (s *boltPayloadStore) Close() error {
	return s.db.Close()
}
