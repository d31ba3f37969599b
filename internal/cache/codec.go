package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vk/texturesets/internal/hasher"
	"github.com/vmihailenco/msgpack/v5"
)

// HeaderVersion is the metadata header layout written by Encode.
const HeaderVersion uint16 = 1

var magic = [4]byte{'T', 'S', 'D', 'C'}

// prefixSize is magic + version + header length.
const prefixSize = 4 + 2 + 4

// Encode serializes an artifact into a self-describing blob:
//
//	"TSDC" | uint16 header version | uint32 header length | msgpack metadata | payload
//
// Integers are big-endian.
func Encode(a *Artifact) ([]byte, error) {
	meta := a.Metadata
	meta.Version = HeaderVersion
	header, err := msgpack.Marshal(&meta)
	if err != nil {
		return nil, fmt.Errorf("cache: encode metadata: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(prefixSize + len(header) + len(a.Payload))
	buf.Write(magic[:])
	_ = binary.Write(&buf, binary.BigEndian, HeaderVersion)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(header)))
	buf.Write(header)
	buf.Write(a.Payload)
	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. Anything unreadable, including
// a newer header version, is reported as ErrCorrupt.
func Decode(key hasher.Key, blob []byte) (*Artifact, error) {
	if len(blob) < prefixSize || !bytes.Equal(blob[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	version := binary.BigEndian.Uint16(blob[4:6])
	if version != HeaderVersion {
		return nil, fmt.Errorf("%w: header version %d, want %d", ErrCorrupt, version, HeaderVersion)
	}
	headerLen := int(binary.BigEndian.Uint32(blob[6:10]))
	if prefixSize+headerLen > len(blob) {
		return nil, fmt.Errorf("%w: header length %d exceeds blob", ErrCorrupt, headerLen)
	}

	a := &Artifact{Key: key}
	if err := msgpack.Unmarshal(blob[prefixSize:prefixSize+headerLen], &a.Metadata); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	a.Payload = append([]byte(nil), blob[prefixSize+headerLen:]...)
	for _, e := range a.Metadata.Entries {
		if _, err := a.Bytes(e); err != nil {
			return nil, err
		}
	}
	return a, nil
}
