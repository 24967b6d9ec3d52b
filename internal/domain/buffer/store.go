package buffer

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// DefaultKey is the storage slot holding the saved session
const DefaultKey = "codelive_code"

// KV is the durable key-value slot the store writes through
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Store persists a Set as one SavedSession record under a single key
type Store struct {
	kv     KV
	key    string
	clock  clock.Clock
	logger *zap.Logger
}

// StoreOption customises a Store
type StoreOption func(*Store)

// WithKey overrides the storage key
func WithKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithClock sets the clock used to stamp saved sessions
func WithClock(c clock.Clock) StoreOption {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger used for recovered read failures
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store over kv
func NewStore(kv KV, opts ...StoreOption) *Store {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		clock:  clock.New(),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the storage key in use
func (s *Store) Key() string { return s.key }

// Save writes the full Set as a single record, overwriting the previous one
func (s *Store) Save(ctx context.Context, set Set) (SavedSession, error) {
	rec := NewSavedSession(set, s.clock.Now())

	data, err := sonic.ConfigStd.Marshal(rec)
	if err != nil {
		return SavedSession{}, fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.kv.Put(ctx, s.key, data); err != nil {
		return SavedSession{}, fmt.Errorf("failed to write session: %w", err)
	}
	return rec, nil
}

// Load reads the saved session. A missing, unreadable or malformed record
// reports ok=false and the zero SavedSession; it never fails.
func (s *Store) Load(ctx context.Context) (SavedSession, bool) {
	data, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("Saved session unreadable, starting empty",
			zap.String("key", s.key), zap.Error(err))
		return SavedSession{}, false
	}
	if !found {
		return SavedSession{}, false
	}

	rec, err := Decode(data)
	if err != nil {
		s.logger.Warn("Saved session malformed, starting empty",
			zap.String("key", s.key), zap.Error(err))
		return SavedSession{}, false
	}
	return rec, true
}

// Decode parses a serialized SavedSession
func Decode(data []byte) (SavedSession, error) {
	var rec SavedSession
	if err := sonic.ConfigStd.Unmarshal(data, &rec); err != nil {
		return SavedSession{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return rec, nil
}
