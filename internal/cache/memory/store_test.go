package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/hasher"
)

func artifact(b byte) *cache.Artifact {
	return &cache.Artifact{
		Metadata: cache.Metadata{Entries: []cache.Entry{{Name: "Out", Width: 1, Height: 1, Channels: 1, Length: 1}}},
		Payload:  []byte{b},
	}
}

func TestTryGet_MissThenHit(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	key := hasher.Key{1}

	_, err := s.TryGet(ctx, key)
	require.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, s.Put(ctx, key, artifact(5)))
	got, err := s.TryGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, got.Key)
	assert.Equal(t, []byte{5}, got.Payload)

	assert.Equal(t, Stats{Entries: 1, Hits: 1, Misses: 1, Puts: 1}, s.Stats())
}

func TestStore_CopiesArtifacts(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	key := hasher.Key{2}

	in := artifact(1)
	require.NoError(t, s.Put(ctx, key, in))
	in.Payload[0] = 42

	out, err := s.TryGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, byte(1), out.Payload[0])
	out.Payload[0] = 43

	again, err := s.TryGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, byte(1), again.Payload[0])
}

func TestStore_LastWriteWins(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	key := hasher.Key{3}

	require.NoError(t, s.Put(ctx, key, artifact(1)))
	require.NoError(t, s.Put(ctx, key, artifact(2)))

	got, err := s.TryGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, got.Payload)
	assert.Equal(t, int64(1), s.Stats().Entries)
}

func TestStore_MaxEntries(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	for i := byte(1); i <= 3; i++ {
		require.NoError(t, s.Put(ctx, hasher.Key{i}, artifact(i)))
	}
	assert.Equal(t, int64(2), s.Stats().Entries)

	_, err := s.TryGet(ctx, hasher.Key{3})
	require.NoError(t, err, "the newest entry is never evicted")
}

func TestStore_CancelledContext(t *testing.T) {
	s := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Put(ctx, hasher.Key{1}, artifact(1)), context.Canceled)
	_, err := s.TryGet(ctx, hasher.Key{1})
	require.ErrorIs(t, err, context.Canceled)
}

// TestStore_ConcurrentAccess verifies that the store can be safely accessed by
// multiple goroutines simultaneously without data races or lost writes.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	numGoroutines := 100
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			key := hasher.Key{byte(i)}
			if err := s.Put(ctx, key, artifact(byte(i))); err != nil {
				t.Errorf("put %d: %v", i, err)
			}
			// Identical key written by a second goroutine.
			_ = s.Put(ctx, hasher.Key{255}, artifact(7))
		}(i)
	}
	wg.Wait()

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			got, err := s.TryGet(ctx, hasher.Key{byte(i)})
			assert.NoError(t, err)
			if assert.NotNil(t, got) {
				assert.Equal(t, []byte{byte(i)}, got.Payload, fmt.Sprintf("mismatched payload for key %d", i))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(numGoroutines+1), s.Stats().Entries)
}
