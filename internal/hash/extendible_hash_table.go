package hash

import (
	"fmt"
	"log/slog"

	"granitedb/internal/buffer"
	"granitedb/internal/common"
)

// DiskExtendibleHashTable is a three-tier persistent hash index: one header
// page fanning out to directory pages, each mapping hash suffixes to bucket
// pages. All page access goes through buffer-pool guards.
//
// Latching is strictly root-to-leaf. Each level's latch is dropped before
// the next level is fetched on the read path; on the write path the header
// is released once the directory id is known, and the directory stays
// latched while its buckets are restructured.
type DiskExtendibleHashTable[K any, V any] struct {
	name string
	bpm  *buffer.BufferPoolManager

	cmp    func(K, K) int
	hashFn func(K) uint32

	keyCodec Codec[K]
	valCodec Codec[V]

	headerMaxDepth    uint32
	directoryMaxDepth uint32
	bucketMaxSize     uint32

	headerPageID common.PageID
}

func NewDiskExtendibleHashTable[K any, V any](
	name string,
	bpm *buffer.BufferPoolManager,
	cmp func(K, K) int,
	hashFn func(K) uint32,
	keyCodec Codec[K],
	valCodec Codec[V],
	headerMaxDepth, directoryMaxDepth, bucketMaxSize uint32,
) (*DiskExtendibleHashTable[K, V], error) {
	t := &DiskExtendibleHashTable[K, V]{
		name:              name,
		bpm:               bpm,
		cmp:               cmp,
		hashFn:            hashFn,
		keyCodec:          keyCodec,
		valCodec:          valCodec,
		headerMaxDepth:    headerMaxDepth,
		directoryMaxDepth: directoryMaxDepth,
		bucketMaxSize:     bucketMaxSize,
		headerPageID:      common.InvalidPageID,
	}

	pageID, guard, err := bpm.NewPageGuarded()
	if err != nil {
		return nil, fmt.Errorf("hash: create header page: %w", err)
	}
	AsHeaderPage(guard.DataMut()).Init(headerMaxDepth)
	guard.Drop()
	t.headerPageID = pageID

	slog.Info("hash table created",
		"name", name, "header_page_id", pageID,
		"header_max_depth", headerMaxDepth,
		"directory_max_depth", directoryMaxDepth,
		"bucket_max_size", bucketMaxSize)
	return t, nil
}

// OpenDiskExtendibleHashTable attaches to an index whose header page already
// exists on disk.
func OpenDiskExtendibleHashTable[K any, V any](
	name string,
	bpm *buffer.BufferPoolManager,
	cmp func(K, K) int,
	hashFn func(K) uint32,
	keyCodec Codec[K],
	valCodec Codec[V],
	headerPageID common.PageID,
	directoryMaxDepth, bucketMaxSize uint32,
) (*DiskExtendibleHashTable[K, V], error) {
	guard, err := bpm.FetchPageRead(headerPageID)
	if err != nil {
		return nil, fmt.Errorf("hash: open header page: %w", err)
	}
	headerMaxDepth := AsHeaderPage(guard.Data()).MaxDepth()
	guard.Drop()

	return &DiskExtendibleHashTable[K, V]{
		name:              name,
		bpm:               bpm,
		cmp:               cmp,
		hashFn:            hashFn,
		keyCodec:          keyCodec,
		valCodec:          valCodec,
		headerMaxDepth:    headerMaxDepth,
		directoryMaxDepth: directoryMaxDepth,
		bucketMaxSize:     bucketMaxSize,
		headerPageID:      headerPageID,
	}, nil
}

// HeaderPageID exposes the root page id, e.g. for reopening the index.
func (t *DiskExtendibleHashTable[K, V]) HeaderPageID() common.PageID {
	return t.headerPageID
}

// GetValue looks key up, holding at most one page latch at a time on the way
// down.
func (t *DiskExtendibleHashTable[K, V]) GetValue(key K) (V, bool, error) {
	var zero V
	hash := t.hashFn(key)

	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return zero, false, err
	}
	header := AsHeaderPage(headerGuard.Data())
	dirPageID := header.DirectoryPageID(header.HashToDirectoryIndex(hash))
	headerGuard.Drop()
	if dirPageID == common.InvalidPageID {
		return zero, false, nil
	}

	dirGuard, err := t.bpm.FetchPageRead(dirPageID)
	if err != nil {
		return zero, false, err
	}
	dir := AsDirectoryPage(dirGuard.Data())
	bucketPageID := dir.BucketPageID(dir.HashToBucketIndex(hash))
	dirGuard.Drop()
	if bucketPageID == common.InvalidPageID {
		return zero, false, nil
	}

	bucketGuard, err := t.bpm.FetchPageRead(bucketPageID)
	if err != nil {
		return zero, false, err
	}
	defer bucketGuard.Drop()
	bucket := AsBucketPage(bucketGuard.Data(), t.keyCodec, t.valCodec)
	v, ok := bucket.Lookup(key, t.cmp)
	return v, ok, nil
}

// Insert adds the pair, splitting buckets and growing the directory as
// needed. Returns false on a duplicate key or when growth has hit the
// configured depth limits.
func (t *DiskExtendibleHashTable[K, V]) Insert(key K, value V) (bool, error) {
	hash := t.hashFn(key)

	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	header := AsHeaderPage(headerGuard.Data())
	dirIdx := header.HashToDirectoryIndex(hash)
	dirPageID := header.DirectoryPageID(dirIdx)
	if dirPageID == common.InvalidPageID {
		id, dirGuard, err := t.bpm.NewPageGuarded()
		if err != nil {
			headerGuard.Drop()
			return false, err
		}
		AsDirectoryPage(dirGuard.DataMut()).Init(t.directoryMaxDepth)
		dirGuard.Drop()
		header.SetDirectoryPageID(dirIdx, id)
		dirPageID = id
	}
	headerGuard.Drop()

	dirGuard, err := t.bpm.FetchPageWrite(dirPageID)
	if err != nil {
		return false, err
	}
	dir := AsDirectoryPage(dirGuard.Data())
	bucketIdx := dir.HashToBucketIndex(hash)
	bucketPageID := dir.BucketPageID(bucketIdx)
	if bucketPageID == common.InvalidPageID {
		id, bucketGuard, err := t.bpm.NewPageGuarded()
		if err != nil {
			dirGuard.Drop()
			return false, err
		}
		AsBucketPage(bucketGuard.DataMut(), t.keyCodec, t.valCodec).Init(t.bucketMaxSize)
		bucketGuard.Drop()
		dir.SetBucketPageID(bucketIdx, id)
		dir.SetLocalDepth(bucketIdx, 0)
		bucketPageID = id
	}

	bucketGuard, err := t.bpm.FetchPageWrite(bucketPageID)
	if err != nil {
		dirGuard.Drop()
		return false, err
	}
	bucket := AsBucketPage(bucketGuard.Data(), t.keyCodec, t.valCodec)

	if _, ok := bucket.Lookup(key, t.cmp); ok {
		bucketGuard.Drop()
		dirGuard.Drop()
		return false, nil
	}

	if bucket.IsFull() {
		ok, err := t.splitBucket(dir, bucket, bucketIdx)
		bucketGuard.Drop()
		dirGuard.Drop()
		if err != nil || !ok {
			return false, err
		}
		// The directory changed under this key; retry from the top. Each
		// retry lowers the target bucket's load or fails on max depth.
		return t.Insert(key, value)
	}

	ok := bucket.Insert(key, value, t.cmp)
	bucketGuard.Drop()
	dirGuard.Drop()
	return ok, nil
}

// splitBucket grows the directory if required, allocates the split image of
// bucketIdx, rewires the affected directory orbit and redistributes the full
// bucket's entries. The split page is allocated before any directory state
// changes, so a failed allocation leaves the index untouched.
func (t *DiskExtendibleHashTable[K, V]) splitBucket(
	dir *DirectoryPage,
	bucket *BucketPage[K, V],
	bucketIdx uint32,
) (bool, error) {
	mustGrow := dir.LocalDepth(bucketIdx) == dir.GlobalDepth()
	if mustGrow && dir.GlobalDepth() >= dir.MaxDepth() {
		slog.Warn("hash table full", "name", t.name, "global_depth", dir.GlobalDepth())
		return false, nil
	}

	splitPageID, splitGuard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return false, err
	}
	splitWrite := splitGuard.UpgradeWrite()
	defer splitWrite.Drop()
	splitBucket := AsBucketPage(splitWrite.Data(), t.keyCodec, t.valCodec)
	splitBucket.Init(t.bucketMaxSize)

	if mustGrow {
		dir.IncrGlobalDepth()
	}
	dir.IncrLocalDepth(bucketIdx)

	d := dir.LocalDepth(bucketIdx)
	splitIdx := dir.SplitImageIndex(bucketIdx)
	dir.SetBucketPageID(splitIdx, splitPageID)
	dir.SetLocalDepth(splitIdx, d)

	// Every slot agreeing with bucketIdx in the low d-1 bits is in the orbit
	// being split; those whose d-th bit matches the split image move over.
	stride := uint32(1) << (d - 1)
	splitLow := splitIdx & ((1 << d) - 1)
	for j := bucketIdx & (stride - 1); j < dir.Size(); j += stride {
		dir.SetLocalDepth(j, d)
		if j&((1<<d)-1) == splitLow {
			dir.SetBucketPageID(j, splitPageID)
		}
	}

	bucketPageID := dir.BucketPageID(bucketIdx & ((1 << d) - 1))
	n := bucket.Size()
	keys := make([]K, 0, n)
	vals := make([]V, 0, n)
	for i := uint32(0); i < n; i++ {
		k, v := bucket.EntryAt(i)
		keys = append(keys, k)
		vals = append(vals, v)
	}
	bucket.Clear()

	for i := range keys {
		target := dir.BucketPageID(dir.HashToBucketIndex(t.hashFn(keys[i])))
		switch target {
		case bucketPageID:
			bucket.Insert(keys[i], vals[i], t.cmp)
		case splitPageID:
			splitBucket.Insert(keys[i], vals[i], t.cmp)
		default:
			panic(fmt.Sprintf("hash: rehashed entry maps to page %d, want %d or %d",
				target, bucketPageID, splitPageID))
		}
	}
	return true, nil
}

// Remove deletes key. An emptied bucket is merged with its split image while
// both are empty at equal local depth, after which the directory shrinks as
// far as the local depths allow. Pages orphaned by merging are handed back
// to the buffer pool.
func (t *DiskExtendibleHashTable[K, V]) Remove(key K) (bool, error) {
	hash := t.hashFn(key)

	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	header := AsHeaderPage(headerGuard.Data())
	dirPageID := header.DirectoryPageID(header.HashToDirectoryIndex(hash))
	headerGuard.Drop()
	if dirPageID == common.InvalidPageID {
		return false, nil
	}

	dirGuard, err := t.bpm.FetchPageWrite(dirPageID)
	if err != nil {
		return false, err
	}
	dir := AsDirectoryPage(dirGuard.Data())
	bucketIdx := dir.HashToBucketIndex(hash)
	bucketPageID := dir.BucketPageID(bucketIdx)
	if bucketPageID == common.InvalidPageID {
		dirGuard.Drop()
		return false, nil
	}

	bucketGuard, err := t.bpm.FetchPageWrite(bucketPageID)
	if err != nil {
		dirGuard.Drop()
		return false, err
	}
	bucket := AsBucketPage(bucketGuard.Data(), t.keyCodec, t.valCodec)

	if !bucket.Remove(key, t.cmp) {
		bucketGuard.Drop()
		dirGuard.Drop()
		return false, nil
	}

	var freed []common.PageID
	if bucket.IsEmpty() {
		freed = t.mergeEmptyBuckets(dir, bucketIdx)
		for dir.CanShrink() {
			dir.DecrGlobalDepth()
		}
	}
	bucketGuard.Drop()
	dirGuard.Drop()

	for _, id := range freed {
		t.bpm.DeletePage(id)
	}
	return true, nil
}

// mergeEmptyBuckets folds bucketIdx together with its split image for as
// long as both are empty at the same local depth. Returns the page ids left
// unreferenced by the merge.
func (t *DiskExtendibleHashTable[K, V]) mergeEmptyBuckets(
	dir *DirectoryPage,
	bucketIdx uint32,
) []common.PageID {
	var freed []common.PageID
	for dir.LocalDepth(bucketIdx) > 0 {
		splitIdx := dir.SplitImageIndex(bucketIdx)
		splitPageID := dir.BucketPageID(splitIdx)
		bucketPageID := dir.BucketPageID(bucketIdx)
		if splitPageID == common.InvalidPageID || splitPageID == bucketPageID {
			return freed
		}
		if dir.LocalDepth(bucketIdx) != dir.LocalDepth(splitIdx) {
			return freed
		}

		splitGuard, err := t.bpm.FetchPageWrite(splitPageID)
		if err != nil {
			return freed
		}
		splitBucket := AsBucketPage(splitGuard.Data(), t.keyCodec, t.valCodec)
		if !splitBucket.IsEmpty() {
			splitGuard.Drop()
			return freed
		}
		splitBucket.Clear()
		splitGuard.Drop()

		dir.DecrLocalDepth(bucketIdx)
		ld := dir.LocalDepth(bucketIdx)
		stride := uint32(1) << ld
		for j := bucketIdx & (stride - 1); j < dir.Size(); j += stride {
			dir.SetBucketPageID(j, bucketPageID)
			dir.SetLocalDepth(j, ld)
		}
		freed = append(freed, splitPageID)
	}
	return freed
}
