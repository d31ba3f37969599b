// Package hasher computes ContentKeys: deterministic fingerprints of a build
// node's module, version, parameters and inputs.
//
// Every field is length-prefixed before it enters the digest so adjacent
// fields can never be confused. Field order is part of the key: reordering
// parameters or inputs yields a different key.
package hasher

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"

	"github.com/vk/texturesets/internal/definition"
	"github.com/vk/texturesets/internal/texture"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Size is the width of a Key in bytes.
const Size = sha256.Size

// Domain tags separate the key spaces of different node kinds.
const (
	tagNode = "texturesets/node/v1"
	tagRaw  = "texturesets/raw/v1"
	tagSet  = "texturesets/set/v1"
	tagUse  = "texturesets/use/v1"
)

// Key is an opaque, fixed-size content fingerprint.
type Key [Size]byte

// String returns the lowercase hex form of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns an abbreviated form for logs.
func (k Key) Short() string {
	return k.String()[:12]
}

// IsZero reports whether the key was never computed.
func (k Key) IsZero() bool {
	return k == Key{}
}

// ParseKey decodes the hex form produced by String.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("hasher: invalid key %q: %w", s, err)
	}
	if len(b) != Size {
		return k, fmt.Errorf("hasher: key %q has %d bytes, want %d", s, len(b), Size)
	}
	copy(k[:], b)
	return k, nil
}

// Subject is what a node contributes to its own key.
type Subject struct {
	ModuleID string
	Version  uint32
	Params   []definition.Parameter
}

// Input is one resolved dependency: the producer's key and which of its
// outputs is consumed.
type Input struct {
	Key    Key
	Output string
}

// Hash computes the key of a node from its subject and its resolved inputs.
func Hash(s Subject, inputs []Input) Key {
	w := newWriter(tagNode)
	w.str(s.ModuleID)
	w.u64(uint64(s.Version))

	w.u64(uint64(len(s.Params)))
	for _, p := range s.Params {
		w.str(p.Name)
		w.bytes(serializeValue(p))
	}

	w.u64(uint64(len(inputs)))
	for _, in := range inputs {
		w.bytes(in.Key[:])
		w.str(in.Output)
	}
	return w.sum()
}

// RawKey keys a raw input by its content and shape. The slot name is not
// part of the key.
func RawKey(r *texture.RawTexture) Key {
	digest := r.Digest
	if len(digest) == 0 {
		digest = Digest(r.Data)
	}
	w := newWriter(tagRaw)
	w.str(string(r.Format))
	w.u64(uint64(r.Width))
	w.u64(uint64(r.Height))
	w.bytes(digest)
	return w.sum()
}

// ConstantKey keys a slot filled from its default value.
func ConstantKey(f texture.Format, v texture.Vec4) Key {
	w := newWriter(tagRaw)
	w.str("constant")
	w.str(string(f))
	for _, c := range v {
		w.u64(uint64(math.Float32bits(c)))
	}
	return w.sum()
}

// Digest returns the SHA-256 of data, the default content digest for raw
// textures supplied without one.
func Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// SetKey combines the keys of a definition's final outputs into the key of
// the whole texture set.
func SetKey(parts []Input) Key {
	w := newWriter(tagSet)
	w.u64(uint64(len(parts)))
	for _, p := range parts {
		w.bytes(p.Key[:])
		w.str(p.Output)
	}
	return w.sum()
}

// TextureKey folds the sampler settings of a packed texture into its payload
// key. The result only enters SetKey; the payload key stays untouched.
func TextureKey(payload Key, lodBias int, compression string, virtualTexture bool) Key {
	w := newWriter(tagUse)
	w.bytes(payload[:])
	w.u64(uint64(int64(lodBias)))
	w.str(compression)
	if virtualTexture {
		w.u64(1)
	} else {
		w.u64(0)
	}
	return w.sum()
}

func serializeValue(p definition.Parameter) []byte {
	if p.Value.IsNull() || !p.Value.IsWhollyKnown() {
		return []byte(p.Value.GoString())
	}
	ty, err := ctyjson.MarshalType(p.Value.Type())
	if err != nil {
		return []byte(p.Value.GoString())
	}
	val, err := ctyjson.Marshal(p.Value, p.Value.Type())
	if err != nil {
		return []byte(p.Value.GoString())
	}
	return append(append(ty, ':'), val...)
}

type writer struct {
	h   hash.Hash
	buf [8]byte
}

func newWriter(tag string) *writer {
	w := &writer{h: sha256.New()}
	w.str(tag)
	return w
}

func (w *writer) u64(v uint64) {
	binary.BigEndian.PutUint64(w.buf[:], v)
	w.h.Write(w.buf[:])
}

func (w *writer) bytes(b []byte) {
	w.u64(uint64(len(b)))
	w.h.Write(b)
}

func (w *writer) str(s string) {
	w.bytes([]byte(s))
}

func (w *writer) sum() Key {
	var k Key
	copy(k[:], w.h.Sum(nil))
	return k
}
