package settings

import (
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/haukened/surfguard/internal/guard/common/log"
)

var bucketName = []byte("settings")

// BoltStore is the production Store, persisting settings in a bbolt file.
type BoltStore struct {
	db     *bolt.DB
	logger log.Logger

	mu        sync.Mutex
	observers map[string]map[uint64]func(string)
	next      uint64
}

// OpenBolt opens (creating if necessary) the settings database at path.
func OpenBolt(path string, logger log.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings bucket: %w", err)
	}
	return &BoltStore{
		db:        db,
		logger:    logger,
		observers: make(map[string]map[uint64]func(string)),
	}, nil
}

// Close releases the underlying database handle.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get returns the stored value for key, or def when unset.
func (s *BoltStore) Get(key, def string) string {
	value := def
	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	return value
}

// Set stores a value and notifies observers when it changed.
func (s *BoltStore) Set(key, value string) error {
	var old string
	var had bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if v := b.Get([]byte(key)); v != nil {
			old, had = string(v), true
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("store setting %q: %w", key, err)
	}
	if !had || old != value {
		s.notify(key, value)
	}
	return nil
}

// Observe registers a change observer for key and delivers the current (or
// default) value immediately.
func (s *BoltStore) Observe(key, def string, fn func(string)) (cancel func()) {
	s.mu.Lock()
	if s.observers[key] == nil {
		s.observers[key] = make(map[uint64]func(string))
	}
	id := s.next
	s.next++
	s.observers[key][id] = fn
	s.mu.Unlock()

	go fn(s.Get(key, def))

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers[key], id)
			s.mu.Unlock()
		})
	}
}

func (s *BoltStore) notify(key, value string) {
	s.mu.Lock()
	fns := make([]func(string), 0, len(s.observers[key]))
	for _, fn := range s.observers[key] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		go fn(value)
	}
}
