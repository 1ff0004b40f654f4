package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/oarkflow/log"
	"github.com/oarkflow/xid"

	"github.com/oarkflow/hl7/pkg/hl7"
)

// ErrNotFound is returned for ids that were never stored, were deleted or
// have been evicted.
var ErrNotFound = errors.New("message not found")

// Option configures a Store.
type Option func(*Store)

// WithMaxMessages bounds how many messages are kept at once.
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// WithTTL expires messages after d. Zero keeps them until evicted.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		s.ttl = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Entry is a stored message together with its bookkeeping.
type Entry struct {
	ID      string
	Origin  string
	Stored  time.Time
	Message *hl7.Message
}

// Store keeps parsed messages in memory under generated ids.
type Store struct {
	cache       *ristretto.Cache
	maxMessages int
	ttl         time.Duration
	logger      *log.Logger
}

// New creates a store. Every message costs one unit against the bound.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		maxMessages: 10000,
		logger:      &log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(s.maxMessages * 10),
		MaxCost:     int64(s.maxMessages),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("message store: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Put stores msg under a new id and returns it.
func (s *Store) Put(msg *hl7.Message, origin string) (string, error) {
	id := xid.New().String()
	entry := &Entry{ID: id, Origin: origin, Stored: time.Now(), Message: msg}
	var ok bool
	if s.ttl > 0 {
		ok = s.cache.SetWithTTL(id, entry, 1, s.ttl)
	} else {
		ok = s.cache.Set(id, entry, 1)
	}
	if !ok {
		return "", fmt.Errorf("message store: %s was rejected", id)
	}
	s.cache.Wait()
	s.logger.Info().Str("id", id).Str("type", msg.Type()).Int("segments", msg.Len()).Msg("message stored")
	return id, nil
}

// Get returns the entry stored under id.
func (s *Store) Get(id string) (*Entry, error) {
	v, found := s.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	entry, ok := v.(*Entry)
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Delete removes the message stored under id.
func (s *Store) Delete(id string) {
	s.cache.Del(id)
	s.cache.Wait()
}

// Close releases the cache.
func (s *Store) Close() {
	s.cache.Close()
}
