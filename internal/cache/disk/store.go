// Package disk implements a local, persistent cache tier. Each artifact is
// one zstd-compressed blob at <root>/<first two hex chars>/<key>.tsdc, written
// through a temp file and an atomic rename so readers never observe a
// partially written entry.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/hasher"
)

const backend = "disk"

// Store is a directory-backed cache.Client.
type Store struct {
	root string
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// Open prepares a store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk: cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: create cache directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("disk: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("disk: zstd decoder: %w", err)
	}
	return &Store{root: dir, enc: enc, dec: dec}, nil
}

// Close releases the codec resources.
func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

// Root returns the cache directory.
func (s *Store) Root() string {
	return s.root
}

// TryGet reads and decodes the blob stored under key. Corrupt blobs are
// reported as misses so a later Put can repair them.
func (s *Store) TryGet(ctx context.Context, key hasher.Key) (*cache.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	compressed, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, cache.Unavailable(backend, "get", key, err)
	}
	blob, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrCorrupt, err)
	}
	return cache.Decode(key, blob)
}

// Put encodes, compresses and atomically writes artifact under key.
func (s *Store) Put(ctx context.Context, key hasher.Key, artifact *cache.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := cache.Encode(artifact)
	if err != nil {
		return err
	}
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cache.Unavailable(backend, "put", key, err)
	}
	if err := writeFileAtomic(path, s.enc.EncodeAll(blob, nil), 0o644); err != nil {
		return cache.Unavailable(backend, "put", key, err)
	}
	return nil
}

// path uses the first two hex characters as a prefix directory to keep
// directory sizes manageable.
func (s *Store) path(key hasher.Key) string {
	hex := key.String()
	return filepath.Join(s.root, hex[:2], hex+".tsdc")
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
