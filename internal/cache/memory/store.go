// Package memory provides an ephemeral, thread-safe, in-memory implementation
// of the cache.Client interface.
//
// # Purpose
//
// This is the fastest cache tier. It keeps decoded artifacts for the lifetime
// of the process, so repeated compiles inside one editor or CLI session never
// touch slower tiers for keys they have already seen.
//
// # Concurrency Model
//
// Entries live in a sync.Map. Keys are content hashes written once and read
// many times. Concurrent writers of the same key carry identical content.
//
// Artifacts are cloned on the way in and on the way out. Callers may mutate
// what they get back without corrupting the stored copy.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/hasher"
)

// Store is an in-memory cache.Client backed by sync.Map.
type Store struct {
	entries    sync.Map // Key: hasher.Key, Value: *cache.Artifact
	count      atomic.Int64
	maxEntries int64

	hits   atomic.Int64
	misses atomic.Int64
	puts   atomic.Int64
}

// Stats is a snapshot of store counters.
type Stats struct {
	Entries int64
	Hits    int64
	Misses  int64
	Puts    int64
}

// New creates an empty store. maxEntries <= 0 disables the size cap; when the
// cap is exceeded an arbitrary entry is evicted.
func New(maxEntries int) *Store {
	return &Store{maxEntries: int64(maxEntries)}
}

// TryGet returns a copy of the artifact stored under key.
func (s *Store) TryGet(ctx context.Context, key hasher.Key) (*cache.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.entries.Load(key)
	if !ok {
		s.misses.Add(1)
		return nil, cache.ErrMiss
	}
	s.hits.Add(1)
	return v.(*cache.Artifact).Clone(), nil
}

// Put stores a copy of artifact under key.
func (s *Store) Put(ctx context.Context, key hasher.Key, artifact *cache.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := artifact.Clone()
	stored.Key = key
	if _, loaded := s.entries.Swap(key, stored); !loaded {
		if s.count.Add(1) > s.maxEntries && s.maxEntries > 0 {
			s.evictOne(key)
		}
	}
	s.puts.Add(1)
	return nil
}

func (s *Store) evictOne(keep hasher.Key) {
	s.entries.Range(func(k, _ any) bool {
		if k.(hasher.Key) == keep {
			return true
		}
		if _, deleted := s.entries.LoadAndDelete(k); deleted {
			s.count.Add(-1)
		}
		return false
	})
}

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	return Stats{
		Entries: s.count.Load(),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Puts:    s.puts.Load(),
	}
}
