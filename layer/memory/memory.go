// Package memory provides an in-process layer.Store: sharded maps with
// lazy expiry and an optional background sweep.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/saint0x/stateless/layer"
)

const defaultShards = 16

type entry struct {
	v   []byte
	exp time.Time // zero => no expiry
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

type Store struct {
	shards []*shard
	mask   uint64

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

var _ layer.Store = (*Store)(nil)

type Config struct {
	Shards        int           // rounded up to a power of two; 0 => 16
	SweepInterval time.Duration // 0 => expired entries are dropped lazily on access
}

func New(cfg Config) *Store {
	n := cfg.Shards
	if n <= 0 {
		n = defaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	s := &Store{shards: make([]*shard, size), mask: uint64(size - 1)}
	for i := range s.shards {
		s.shards[i] = &shard{m: make(map[string]entry)}
	}
	if cfg.SweepInterval > 0 {
		s.ticker = time.NewTicker(cfg.SweepInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.sweep(time.Now())
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)&s.mask]
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		sh.mu.Lock()
		// re-check; a concurrent Set may have refreshed the entry
		if cur, ok := sh.m[key]; ok && !cur.exp.IsZero() && time.Now().After(cur.exp) {
			delete(sh.m, key)
		}
		sh.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.m[key] = entry{v: value, exp: exp}
	sh.mu.Unlock()
	return true, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
	return nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()
	var out []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.m {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			if !e.exp.IsZero() && now.After(e.exp) {
				continue
			}
			out = append(out, k)
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

func (s *Store) sweep(now time.Time) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.m {
			if !e.exp.IsZero() && now.After(e.exp) {
				delete(sh.m, k)
			}
		}
		sh.mu.Unlock()
	}
}

func (s *Store) Close(_ context.Context) error {
	if s.stopCh != nil {
		close(s.stopCh)
		if s.ticker != nil {
			s.ticker.Stop() // stop ticker before waiting
		}
		s.wg.Wait()
	}
	return nil
}
