package cachestore

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// In-process cache with one expiring LRU per namespace, so a burst of lookups in one direction cannot evict the other.
type MemCacheStore struct {
	capacity int
	ttl      time.Duration

	lk    sync.Mutex
	names map[string]*expirable.LRU[string, string]
}

var _ CacheStore = (*MemCacheStore)(nil)

func NewMemCacheStore(capacity int, ttl time.Duration) *MemCacheStore {
	return &MemCacheStore{
		capacity: capacity,
		ttl:      ttl,
		names:    make(map[string]*expirable.LRU[string, string]),
	}
}

func (s *MemCacheStore) namespace(name string) *expirable.LRU[string, string] {
	s.lk.Lock()
	defer s.lk.Unlock()
	lru, ok := s.names[name]
	if !ok {
		lru = expirable.NewLRU[string, string](s.capacity, nil, s.ttl)
		s.names[name] = lru
	}
	return lru
}

func (s *MemCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	v, _ := s.namespace(name).Get(key)
	return v, nil
}

func (s *MemCacheStore) Set(ctx context.Context, name, key string, val string) error {
	s.namespace(name).Add(key, val)
	return nil
}

func (s *MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.namespace(name).Remove(key)
	return nil
}
