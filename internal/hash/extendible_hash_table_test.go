package hash

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"granitedb/internal/buffer"
	"granitedb/internal/common"
	"granitedb/internal/disk"
)

func newTestBPM(t *testing.T, poolSize int) *buffer.BufferPoolManager {
	t.Helper()
	dm, err := disk.NewManager(filepath.Join(t.TempDir(), "hash.db"))
	require.NoError(t, err)
	bpm := buffer.NewBufferPoolManager(poolSize, dm, 2)
	t.Cleanup(func() {
		bpm.Scheduler().Shutdown()
		_ = dm.Close()
	})
	return bpm
}

func newIntTable(t *testing.T, bpm *buffer.BufferPoolManager, headerDepth, dirDepth, bucketSize uint32) *DiskExtendibleHashTable[int32, common.RID] {
	t.Helper()
	table, err := NewDiskExtendibleHashTable[int32, common.RID](
		"test", bpm, CompareInt32, HashInt32, Int32Codec{}, RIDCodec{},
		headerDepth, dirDepth, bucketSize)
	require.NoError(t, err)
	return table
}

func TestHashTableInsertAndGet(t *testing.T) {
	bpm := newTestBPM(t, 50)
	table := newIntTable(t, bpm, 2, 9, 16)

	const n = int32(200)
	for i := int32(0); i < n; i++ {
		ok, err := table.Insert(i, common.RID{PageID: common.PageID(i), Slot: uint16(i)})
		require.NoError(t, err)
		require.True(t, ok, "insert %d", i)
	}
	for i := int32(0); i < n; i++ {
		v, found, err := table.GetValue(i)
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		assert.Equal(t, common.RID{PageID: common.PageID(i), Slot: uint16(i)}, v)
	}

	_, found, err := table.GetValue(n + 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHashTableDuplicateInsertRejected(t *testing.T) {
	bpm := newTestBPM(t, 10)
	table := newIntTable(t, bpm, 0, 3, 8)

	ok, err := table.Insert(1, common.RID{PageID: 1})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = table.Insert(1, common.RID{PageID: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := table.GetValue(1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, common.RID{PageID: 1}, v)
}

func TestHashTableRemove(t *testing.T) {
	bpm := newTestBPM(t, 50)
	table := newIntTable(t, bpm, 1, 9, 8)

	const n = int32(100)
	for i := int32(0); i < n; i++ {
		ok, err := table.Insert(i, common.RID{PageID: common.PageID(i)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Remove the even keys; odd keys stay reachable.
	for i := int32(0); i < n; i += 2 {
		ok, err := table.Remove(i)
		require.NoError(t, err)
		require.True(t, ok, "remove %d", i)
	}
	for i := int32(0); i < n; i++ {
		_, found, err := table.GetValue(i)
		require.NoError(t, err)
		assert.Equal(t, i%2 == 1, found, "key %d", i)
	}

	ok, err := table.Remove(n + 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashTableSplitsWithTinyBuckets(t *testing.T) {
	bpm := newTestBPM(t, 100)
	table := newIntTable(t, bpm, 0, 9, 1)

	// With one entry per bucket, any insert into an occupied bucket forces
	// splits. A key whose hash suffix collides past the depth limit is
	// rejected, which is fine; everything accepted must stay reachable.
	const n = int32(64)
	inserted := make([]int32, 0, n)
	for i := int32(0); i < n; i++ {
		ok, err := table.Insert(i, common.RID{PageID: common.PageID(i)})
		require.NoError(t, err)
		if ok {
			inserted = append(inserted, i)
		}
	}
	require.Greater(t, len(inserted), 1)

	for _, i := range inserted {
		v, found, err := table.GetValue(i)
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		assert.Equal(t, common.RID{PageID: common.PageID(i)}, v)
	}
}

func TestHashTableGrowThenDrain(t *testing.T) {
	bpm := newTestBPM(t, 100)
	table := newIntTable(t, bpm, 0, 3, 2)

	inserted := make([]int32, 0, 16)
	for i := int32(0); i < 16; i++ {
		ok, err := table.Insert(i, common.RID{PageID: common.PageID(i)})
		require.NoError(t, err)
		if ok {
			inserted = append(inserted, i)
		}
	}
	// A depth-3 directory of two-entry buckets holds at least a handful.
	require.NotEmpty(t, inserted)

	for _, i := range inserted {
		ok, err := table.Remove(i)
		require.NoError(t, err)
		require.True(t, ok, "remove %d", i)
	}
	for _, i := range inserted {
		_, found, err := table.GetValue(i)
		require.NoError(t, err)
		assert.False(t, found, "key %d", i)
	}

	// The drained table accepts the keys again.
	for _, i := range inserted {
		ok, err := table.Insert(i, common.RID{PageID: common.PageID(i)})
		require.NoError(t, err)
		require.True(t, ok, "reinsert %d", i)
	}
}

func TestHashTableRejectsInsertAtDepthLimit(t *testing.T) {
	bpm := newTestBPM(t, 10)
	table := newIntTable(t, bpm, 0, 0, 1)

	// One directory slot, one entry per bucket: capacity is exactly one key.
	first := int32(-1)
	full := false
	for i := int32(0); i < 10; i++ {
		ok, err := table.Insert(i, common.RID{PageID: common.PageID(i)})
		require.NoError(t, err)
		if ok {
			require.Equal(t, int32(-1), first, "only one key can fit")
			first = i
		} else {
			full = true
		}
	}
	require.True(t, full)
	require.NotEqual(t, int32(-1), first)

	// The resident key is untouched by the failed inserts.
	v, found, err := table.GetValue(first)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, common.RID{PageID: common.PageID(first)}, v)
}

func TestHashTableStringKeys(t *testing.T) {
	bpm := newTestBPM(t, 50)
	table, err := NewDiskExtendibleHashTable[string, common.RID](
		"words", bpm, CompareString, HashString, StringCodec{Length: 32}, RIDCodec{},
		1, 9, 8)
	require.NoError(t, err)

	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}
	for i, w := range words {
		ok, err := table.Insert(w, common.RID{PageID: common.PageID(i)})
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i, w := range words {
		v, found, err := table.GetValue(w)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, common.RID{PageID: common.PageID(i)}, v)
	}

	_, found, err := table.GetValue("omega")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHashTableReopen(t *testing.T) {
	bpm := newTestBPM(t, 50)
	table := newIntTable(t, bpm, 1, 9, 8)

	for i := int32(0); i < 32; i++ {
		ok, err := table.Insert(i, common.RID{PageID: common.PageID(i)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	reopened, err := OpenDiskExtendibleHashTable[int32, common.RID](
		"test", bpm, CompareInt32, HashInt32, Int32Codec{}, RIDCodec{},
		table.HeaderPageID(), 9, 8)
	require.NoError(t, err)

	for i := int32(0); i < 32; i++ {
		v, found, err := reopened.GetValue(i)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, common.RID{PageID: common.PageID(i)}, v)
	}
}
