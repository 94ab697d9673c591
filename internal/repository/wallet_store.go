package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WalletStore remembers the last wallet address each user connected.  It
// writes to Redis under growfi:wallet:{userKey} and keeps an in-process
// copy that answers when Redis is missing or unreachable.
type WalletStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger

	mu  sync.RWMutex
	mem map[string]string
}

// NewWalletStore returns a store backed by rdb; a nil rdb keeps addresses
// in memory only.  A zero ttl keeps entries until overwritten.
func NewWalletStore(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *WalletStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &WalletStore{rdb: rdb, prefix: "growfi:wallet:", ttl: ttl, log: log, mem: make(map[string]string)}
}

func (s *WalletStore) key(userKey string) string { return s.prefix + userKey }

// Remember stores address as the last wallet of userKey.
func (s *WalletStore) Remember(ctx context.Context, userKey, address string) error {
	s.mu.Lock()
	s.mem[userKey] = address
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	if err := s.rdb.Set(ctx, s.key(userKey), address, s.ttl).Err(); err != nil {
		s.log.Warn("wallet store: redis set failed, kept in memory", zap.Error(err))
	}
	return nil
}

// Last returns the last wallet of userKey, or "" when none is known.
func (s *WalletStore) Last(ctx context.Context, userKey string) (string, error) {
	if s.rdb != nil {
		addr, err := s.rdb.Get(ctx, s.key(userKey)).Result()
		switch {
		case err == nil:
			return addr, nil
		case errors.Is(err, redis.Nil):
		default:
			s.log.Warn("wallet store: redis get failed, using memory", zap.Error(err))
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem[userKey], nil
}

// Forget drops the remembered wallet of userKey.
func (s *WalletStore) Forget(ctx context.Context, userKey string) error {
	s.mu.Lock()
	delete(s.mem, userKey)
	s.mu.Unlock()
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, s.key(userKey)).Err()
}
