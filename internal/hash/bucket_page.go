package hash

import (
	"encoding/binary"

	"granitedb/internal/common"
)

const (
	bucketOffSize    = 0
	bucketOffMaxSize = 4
	bucketOffEntries = 8
)

// BucketPage stores up to max_size key-value pairs as fixed-size records.
// Keys are unique under the table's comparator.
type BucketPage[K any, V any] struct {
	data     []byte
	keyCodec Codec[K]
	valCodec Codec[V]
}

func AsBucketPage[K any, V any](data []byte, kc Codec[K], vc Codec[V]) *BucketPage[K, V] {
	return &BucketPage[K, V]{data: data, keyCodec: kc, valCodec: vc}
}

// MaxEntriesFor is the page-imposed ceiling on bucket capacity for the given
// codec sizes.
func MaxEntriesFor[K any, V any](kc Codec[K], vc Codec[V]) uint32 {
	return uint32((common.PageSize - bucketOffEntries) / (kc.Size() + vc.Size()))
}

// Init prepares an empty bucket. A maxSize of 0, or one beyond what the page
// can hold, is clamped to the page capacity.
func (b *BucketPage[K, V]) Init(maxSize uint32) {
	limit := MaxEntriesFor(b.keyCodec, b.valCodec)
	if maxSize == 0 || maxSize > limit {
		maxSize = limit
	}
	binary.LittleEndian.PutUint32(b.data[bucketOffSize:], 0)
	binary.LittleEndian.PutUint32(b.data[bucketOffMaxSize:], maxSize)
}

func (b *BucketPage[K, V]) Size() uint32 {
	return binary.LittleEndian.Uint32(b.data[bucketOffSize:])
}

func (b *BucketPage[K, V]) setSize(v uint32) {
	binary.LittleEndian.PutUint32(b.data[bucketOffSize:], v)
}

func (b *BucketPage[K, V]) MaxSize() uint32 {
	return binary.LittleEndian.Uint32(b.data[bucketOffMaxSize:])
}

func (b *BucketPage[K, V]) IsFull() bool {
	return b.Size() >= b.MaxSize()
}

func (b *BucketPage[K, V]) IsEmpty() bool {
	return b.Size() == 0
}

func (b *BucketPage[K, V]) entrySize() int {
	return b.keyCodec.Size() + b.valCodec.Size()
}

func (b *BucketPage[K, V]) entryOff(i uint32) int {
	return bucketOffEntries + int(i)*b.entrySize()
}

func (b *BucketPage[K, V]) KeyAt(i uint32) K {
	return b.keyCodec.Decode(b.data[b.entryOff(i):])
}

func (b *BucketPage[K, V]) ValueAt(i uint32) V {
	return b.valCodec.Decode(b.data[b.entryOff(i)+b.keyCodec.Size():])
}

func (b *BucketPage[K, V]) EntryAt(i uint32) (K, V) {
	return b.KeyAt(i), b.ValueAt(i)
}

func (b *BucketPage[K, V]) putEntry(i uint32, key K, value V) {
	off := b.entryOff(i)
	b.keyCodec.Encode(b.data[off:], key)
	b.valCodec.Encode(b.data[off+b.keyCodec.Size():], value)
}

// Lookup scans for key and returns its value.
func (b *BucketPage[K, V]) Lookup(key K, cmp func(K, K) int) (V, bool) {
	for i := uint32(0); i < b.Size(); i++ {
		if cmp(b.KeyAt(i), key) == 0 {
			return b.ValueAt(i), true
		}
	}
	var zero V
	return zero, false
}

// Insert appends the pair. Returns false when the bucket is full or the key
// already exists.
func (b *BucketPage[K, V]) Insert(key K, value V, cmp func(K, K) int) bool {
	if b.IsFull() {
		return false
	}
	if _, ok := b.Lookup(key, cmp); ok {
		return false
	}
	n := b.Size()
	b.putEntry(n, key, value)
	b.setSize(n + 1)
	return true
}

// Remove deletes key by swapping the last entry into its place.
func (b *BucketPage[K, V]) Remove(key K, cmp func(K, K) int) bool {
	n := b.Size()
	for i := uint32(0); i < n; i++ {
		if cmp(b.KeyAt(i), key) == 0 {
			if i != n-1 {
				k, v := b.EntryAt(n - 1)
				b.putEntry(i, k, v)
			}
			b.setSize(n - 1)
			return true
		}
	}
	return false
}

// Clear drops every entry, keeping max_size.
func (b *BucketPage[K, V]) Clear() {
	b.setSize(0)
}
