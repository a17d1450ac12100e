package payloadstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------------------------

// Routes badger's own logging through zerolog.
type badgerLogger struct {
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	log.Error().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	log.Warn().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	log.Info().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	log.Debug().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

// ---------------------------

type payloadRecord struct {
	Payload   []byte `msgpack:"payload"`
	UpdatedAt int64  `msgpack:"updatedAt"`
}

// A badger backed payload store for larger corpora, where bbolt's single
// write transaction at a time becomes the bottleneck during bulk loads.
type badgerPayloadStore struct {
	db *badger.DB
}

// OpenBadger opens or creates a badger database in the given directory.
func OpenBadger(dir string) (PayloadStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not open payload db %s: %w", dir, err)
	}
	return &badgerPayloadStore{db: db}, nil
}

func (s *badgerPayloadStore) Put(id uint32, payload []byte) error {
	record := payloadRecord{
		Payload:   payload,
		UpdatedAt: time.Now().UnixMicro(),
	}
	value, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("could not encode payload %d: %w", id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(payloadKey(id), value)
	})
	if err != nil {
		return fmt.Errorf("could not put payload %d: %w", id, err)
	}
	return nil
}

func (s *badgerPayloadStore) Get(id uint32) ([]byte, bool, error) {
	var record payloadRecord
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(payloadKey(id))
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(value []byte) error {
			return msgpack.Unmarshal(value, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("could not get payload %d: %w", id, err)
	}
	return record.Payload, found, nil
}

func (s *badgerPayloadStore) Close() error {
	return s.db.Close()
}
