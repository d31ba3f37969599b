// Package cache defines the derived-data cache contract the compiler talks
// to, the artifact model stored behind it, and the blob codec shared by every
// byte-oriented backend.
//
// The compiler only ever calls TryGet and Put. Staleness is handled by key
// changes, so there is no delete. Implementations must be safe for concurrent
// use; concurrent writers of the same key resolve as last-write-wins.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/texturesets/internal/hasher"
	"github.com/vk/texturesets/internal/texture"
)

// Client is a content-addressed key to artifact store.
type Client interface {
	// TryGet returns the artifact stored under key, or an error matching
	// ErrMiss when there is none.
	TryGet(ctx context.Context, key hasher.Key) (*Artifact, error)
	// Put stores artifact under key, replacing any previous value.
	Put(ctx context.Context, key hasher.Key, artifact *Artifact) error
}

// ErrMiss reports that a key is not present.
var ErrMiss = errors.New("cache: miss")

// ErrCorrupt reports a stored blob that cannot be decoded.
var ErrCorrupt = errors.New("cache: corrupt artifact")

// IsMiss reports whether err means "not cached", including corrupt entries.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss) || errors.Is(err, ErrCorrupt)
}

// CacheUnavailableError wraps a backend failure. It is never fatal to a
// compile; callers fall back to recomputing.
type CacheUnavailableError struct {
	Backend string
	Op      string
	Key     hasher.Key
	Err     error
}

func (e *CacheUnavailableError) Error() string {
	return fmt.Sprintf("cache: %s %s %s unavailable: %v", e.Backend, e.Op, e.Key.Short(), e.Err)
}

func (e *CacheUnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable builds a CacheUnavailableError.
func Unavailable(backend, op string, key hasher.Key, err error) error {
	return &CacheUnavailableError{Backend: backend, Op: op, Key: key, Err: err}
}

// Artifact is one cached build result: a metadata header and the pixel
// payload the header describes.
type Artifact struct {
	Key      hasher.Key
	Metadata Metadata
	Payload  []byte
}

// Metadata describes the payload layout.
type Metadata struct {
	Version uint16                  `msgpack:"v"`
	Entries []Entry                 `msgpack:"entries"`
	Values  map[string]texture.Vec4 `msgpack:"values,omitempty"`
}

// Entry locates one texture inside the payload. Mip levels follow the base
// level back to back.
type Entry struct {
	Name     string         `msgpack:"name"`
	Width    int            `msgpack:"w"`
	Height   int            `msgpack:"h"`
	Channels int            `msgpack:"ch"`
	Format   texture.Format `msgpack:"fmt"`
	MipCount int            `msgpack:"mips"`
	SRGB     bool           `msgpack:"srgb,omitempty"`
	// ChannelMap names the material channel stored in each texture channel.
	ChannelMap []string `msgpack:"map,omitempty"`
	Offset     int64    `msgpack:"off"`
	Length     int64    `msgpack:"len"`
}

// Entry returns the entry with the given name.
func (m *Metadata) Entry(name string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Bytes returns the payload slice for entry e.
func (a *Artifact) Bytes(e Entry) ([]byte, error) {
	if e.Offset < 0 || e.Length < 0 || e.Offset+e.Length > int64(len(a.Payload)) {
		return nil, fmt.Errorf("%w: entry %q spans [%d,%d) of a %d byte payload", ErrCorrupt, e.Name, e.Offset, e.Offset+e.Length, len(a.Payload))
	}
	return a.Payload[e.Offset : e.Offset+e.Length], nil
}

// Clone returns a deep copy so stores never share buffers with callers.
func (a *Artifact) Clone() *Artifact {
	out := &Artifact{Key: a.Key, Payload: append([]byte(nil), a.Payload...)}
	out.Metadata.Version = a.Metadata.Version
	out.Metadata.Entries = make([]Entry, len(a.Metadata.Entries))
	for i, e := range a.Metadata.Entries {
		e.ChannelMap = append([]string(nil), e.ChannelMap...)
		out.Metadata.Entries[i] = e
	}
	if a.Metadata.Values != nil {
		out.Metadata.Values = make(map[string]texture.Vec4, len(a.Metadata.Values))
		for k, v := range a.Metadata.Values {
			out.Metadata.Values[k] = v
		}
	}
	return out
}
