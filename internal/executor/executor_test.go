package executor

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"granitedb/internal/buffer"
	"granitedb/internal/common"
	"granitedb/internal/disk"
	"granitedb/internal/hash"
	"granitedb/internal/heap"
)

func newTestBPM(t *testing.T) *buffer.BufferPoolManager {
	t.Helper()
	dm, err := disk.NewManager(filepath.Join(t.TempDir(), "exec.db"))
	require.NoError(t, err)
	bpm := buffer.NewBufferPoolManager(50, dm, 2)
	t.Cleanup(func() {
		bpm.Scheduler().Shutdown()
		_ = dm.Close()
	})
	return bpm
}

func TestSeqScanExecutor(t *testing.T) {
	bpm := newTestBPM(t)
	th, err := heap.NewTableHeap(bpm)
	require.NoError(t, err)

	want := map[string]bool{}
	for i := 0; i < 30; i++ {
		row := fmt.Sprintf("tuple-%02d", i)
		_, err := th.InsertTuple([]byte(row))
		require.NoError(t, err)
		want[row] = true
	}

	exec := NewSeqScanExecutor(th)
	require.NoError(t, exec.Init())

	got := map[string]bool{}
	for {
		tuple, _, ok, err := exec.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got[string(tuple)] = true
	}
	assert.Equal(t, want, got)
}

func TestSeqScanExecutorEmptyHeap(t *testing.T) {
	bpm := newTestBPM(t)
	th, err := heap.NewTableHeap(bpm)
	require.NoError(t, err)

	exec := NewSeqScanExecutor(th)
	require.NoError(t, exec.Init())

	_, _, ok, err := exec.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexScanExecutor(t *testing.T) {
	bpm := newTestBPM(t)
	th, err := heap.NewTableHeap(bpm)
	require.NoError(t, err)

	index, err := hash.NewDiskExtendibleHashTable[string, common.RID](
		"exec_index", bpm, hash.CompareString, hash.HashString,
		hash.StringCodec{Length: 32}, hash.RIDCodec{}, 1, 9, 8)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("key-%02d", i)
		rid, err := th.InsertTuple([]byte(fmt.Sprintf("value-%02d", i)))
		require.NoError(t, err)
		ok, err := index.Insert(key, rid)
		require.NoError(t, err)
		require.True(t, ok)
	}

	exec := NewIndexScanExecutor(index, th, "key-07")
	require.NoError(t, exec.Init())

	tuple, _, ok, err := exec.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value-07"), tuple)

	// The executor is exhausted after its single row.
	_, _, ok, err = exec.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexScanExecutorMissingKey(t *testing.T) {
	bpm := newTestBPM(t)
	th, err := heap.NewTableHeap(bpm)
	require.NoError(t, err)

	index, err := hash.NewDiskExtendibleHashTable[string, common.RID](
		"exec_index", bpm, hash.CompareString, hash.HashString,
		hash.StringCodec{Length: 32}, hash.RIDCodec{}, 1, 9, 8)
	require.NoError(t, err)

	exec := NewIndexScanExecutor(index, th, "no-such-key")
	require.NoError(t, exec.Init())

	_, _, ok, err := exec.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
