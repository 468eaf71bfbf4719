package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"granitedb/internal/common"
)

// Codec serializes a fixed-size key or value into bucket-page entries.
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

type Int32Codec struct{}

func (Int32Codec) Size() int { return 4 }

func (Int32Codec) Encode(dst []byte, v int32) {
	binary.LittleEndian.PutUint32(dst, uint32(v))
}

func (Int32Codec) Decode(src []byte) int32 {
	return int32(binary.LittleEndian.Uint32(src))
}

// RIDCodec lays a tuple address out as page id plus slot, 8 bytes.
type RIDCodec struct{}

func (RIDCodec) Size() int { return 8 }

func (RIDCodec) Encode(dst []byte, v common.RID) {
	binary.LittleEndian.PutUint32(dst, uint32(v.PageID))
	binary.LittleEndian.PutUint32(dst[4:], uint32(v.Slot))
}

func (RIDCodec) Decode(src []byte) common.RID {
	return common.RID{
		PageID: common.PageID(binary.LittleEndian.Uint32(src)),
		Slot:   uint16(binary.LittleEndian.Uint32(src[4:])),
	}
}

// StringCodec stores strings zero-padded to a fixed length. Longer strings
// are truncated by Encode; Decode strips the padding.
type StringCodec struct {
	Length int
}

func (c StringCodec) Size() int { return c.Length }

func (c StringCodec) Encode(dst []byte, v string) {
	n := copy(dst[:c.Length], v)
	for i := n; i < c.Length; i++ {
		dst[i] = 0
	}
}

func (c StringCodec) Decode(src []byte) string {
	b := src[:c.Length]
	for i, ch := range b {
		if ch == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// HashBytes truncates xxhash to its low 32 bits, the width the directory
// layers consume.
func HashBytes(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}

func HashString(s string) uint32 {
	return uint32(xxhash.Sum64String(s))
}

func HashInt32(v int32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return HashBytes(b[:])
}

func CompareInt32(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func CompareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
