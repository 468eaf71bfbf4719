package heap

import (
	"fmt"
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
	dm, err := disk.NewManager(filepath.Join(t.TempDir(), "heap.db"))
	require.NoError(t, err)
	bpm := buffer.NewBufferPoolManager(poolSize, dm, 2)
	t.Cleanup(func() {
		bpm.Scheduler().Shutdown()
		_ = dm.Close()
	})
	return bpm
}

func TestTuplePageInsertAndGet(t *testing.T) {
	p := AsTuplePage(make([]byte, common.PageSize))
	p.Init()

	slot, err := p.InsertTuple([]byte("first"))
	require.NoError(t, err)
	assert.Equal(t, uint16(0), slot)

	slot, err = p.InsertTuple([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), slot)

	data, err := p.GetTuple(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
	data, err = p.GetTuple(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	_, err = p.GetTuple(2)
	assert.ErrorIs(t, err, ErrBadSlot)
}

func TestTuplePageDelete(t *testing.T) {
	p := AsTuplePage(make([]byte, common.PageSize))
	p.Init()

	slot, err := p.InsertTuple([]byte("doomed"))
	require.NoError(t, err)

	require.NoError(t, p.DeleteTuple(slot))
	assert.False(t, p.IsLive(slot))

	_, err = p.GetTuple(slot)
	assert.ErrorIs(t, err, ErrDeleted)
	assert.ErrorIs(t, p.DeleteTuple(slot), ErrDeleted)
}

func TestTuplePageRunsOutOfSpace(t *testing.T) {
	p := AsTuplePage(make([]byte, common.PageSize))
	p.Init()

	tuple := make([]byte, 1000)
	for i := 0; i < 4; i++ {
		_, err := p.InsertTuple(tuple)
		require.NoError(t, err)
	}
	_, err := p.InsertTuple(tuple)
	assert.ErrorIs(t, err, ErrNoSpace)

	_, err = p.InsertTuple(make([]byte, common.PageSize))
	assert.ErrorIs(t, err, ErrTupleTooLarge)
}

func TestTableHeapInsertGetDelete(t *testing.T) {
	bpm := newTestBPM(t, 10)
	th, err := NewTableHeap(bpm)
	require.NoError(t, err)

	rid, err := th.InsertTuple([]byte("hello"))
	require.NoError(t, err)

	data, err := th.GetTuple(rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, th.DeleteTuple(rid))
	_, err = th.GetTuple(rid)
	assert.ErrorIs(t, err, ErrTupleNotFound)
	assert.ErrorIs(t, th.DeleteTuple(rid), ErrTupleNotFound)
}

func TestTableHeapSpillsAcrossPages(t *testing.T) {
	bpm := newTestBPM(t, 10)
	th, err := NewTableHeap(bpm)
	require.NoError(t, err)

	// Large tuples force the heap onto multiple pages.
	tuple := make([]byte, 1200)
	rids := make([]common.RID, 0, 20)
	for i := 0; i < 20; i++ {
		tuple[0] = byte(i)
		rid, err := th.InsertTuple(tuple)
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	pages := map[common.PageID]bool{}
	for i, rid := range rids {
		data, err := th.GetTuple(rid)
		require.NoError(t, err)
		assert.Equal(t, byte(i), data[0])
		pages[rid.PageID] = true
	}
	assert.Greater(t, len(pages), 1)
}

func TestTableHeapIterator(t *testing.T) {
	bpm := newTestBPM(t, 10)
	th, err := NewTableHeap(bpm)
	require.NoError(t, err)

	want := map[string]bool{}
	var deleted common.RID
	for i := 0; i < 50; i++ {
		row := fmt.Sprintf("row-%02d", i)
		rid, err := th.InsertTuple([]byte(row))
		require.NoError(t, err)
		if i == 17 {
			deleted = rid
		} else {
			want[row] = true
		}
	}
	require.NoError(t, th.DeleteTuple(deleted))

	it := th.Iterator()
	got := map[string]bool{}
	for {
		_, data, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got[string(data)] = true
	}
	assert.Equal(t, want, got)
}

func TestTableHeapOpenFindsTail(t *testing.T) {
	bpm := newTestBPM(t, 10)
	th, err := NewTableHeap(bpm)
	require.NoError(t, err)

	tuple := make([]byte, 1500)
	for i := 0; i < 10; i++ {
		tuple[0] = byte(i)
		_, err := th.InsertTuple(tuple)
		require.NoError(t, err)
	}

	reopened, err := OpenTableHeap(bpm, th.FirstPageID())
	require.NoError(t, err)

	// New inserts land after the existing rows, not on top of them.
	tuple[0] = 0xAA
	rid, err := reopened.InsertTuple(tuple)
	require.NoError(t, err)

	it := reopened.Iterator()
	count := 0
	for {
		gotRID, data, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
		if gotRID == rid {
			assert.Equal(t, byte(0xAA), data[0])
		}
	}
	assert.Equal(t, 11, count)
}
