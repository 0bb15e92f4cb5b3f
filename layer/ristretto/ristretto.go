// Package ristretto adapts dgraph-io/ristretto to layer.Store. Ristretto
// cannot enumerate its contents, so a side key directory tracks admitted
// keys; Keys re-checks each candidate against the cache and prunes entries
// evicted behind our back.
package ristretto

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/saint0x/stateless/layer"
)

type Store struct {
	c *rc.Cache

	mu     sync.Mutex
	keydir map[string]struct{}
}

var _ layer.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost in Ristretto is provided by the caller (the engine passes cost per Set).
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c, keydir: make(map[string]struct{})}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0 // non-positive TTLs mean "no expiry" per store contract
	}
	ok := s.c.SetWithTTL(key, value, cost, ttl)
	if ok {
		s.mu.Lock()
		s.keydir[key] = struct{}{}
		s.mu.Unlock()
	}
	return ok, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.c.Del(key)
	s.mu.Lock()
	delete(s.keydir, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	cand := make([]string, 0, len(s.keydir))
	for k := range s.keydir {
		if strings.HasPrefix(k, prefix) {
			cand = append(cand, k)
		}
	}
	s.mu.Unlock()

	var out, dead []string
	for _, k := range cand {
		if _, ok := s.c.Get(k); ok {
			out = append(out, k)
		} else {
			dead = append(dead, k)
		}
	}
	if len(dead) > 0 {
		s.mu.Lock()
		for _, k := range dead {
			delete(s.keydir, k)
		}
		s.mu.Unlock()
	}
	return out, nil
}

func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes the underlying ristretto metrics (not part of layer.Store).
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
