package executor

import (
	"granitedb/internal/common"
	"granitedb/internal/hash"
	"granitedb/internal/heap"
)

// Executor is a pull-based operator: Init prepares state, Next yields one
// tuple at a time until ok is false.
type Executor interface {
	Init() error
	Next() (tuple []byte, rid common.RID, ok bool, err error)
}

// SeqScanExecutor walks every live tuple of a table heap in page order.
type SeqScanExecutor struct {
	heap *heap.TableHeap
	iter *heap.Iterator
}

func NewSeqScanExecutor(h *heap.TableHeap) *SeqScanExecutor {
	return &SeqScanExecutor{heap: h}
}

func (e *SeqScanExecutor) Init() error {
	e.iter = e.heap.Iterator()
	return nil
}

func (e *SeqScanExecutor) Next() ([]byte, common.RID, bool, error) {
	rid, data, ok, err := e.iter.Next()
	if err != nil || !ok {
		return nil, common.RID{}, false, err
	}
	return data, rid, true, nil
}

// IndexScanExecutor resolves a single key through the hash index, then
// fetches the tuple from the heap. It yields at most one row.
type IndexScanExecutor[K any] struct {
	index *hash.DiskExtendibleHashTable[K, common.RID]
	heap  *heap.TableHeap
	key   K
	done  bool
}

func NewIndexScanExecutor[K any](
	index *hash.DiskExtendibleHashTable[K, common.RID],
	h *heap.TableHeap,
	key K,
) *IndexScanExecutor[K] {
	return &IndexScanExecutor[K]{index: index, heap: h, key: key}
}

func (e *IndexScanExecutor[K]) Init() error {
	e.done = false
	return nil
}

func (e *IndexScanExecutor[K]) Next() ([]byte, common.RID, bool, error) {
	if e.done {
		return nil, common.RID{}, false, nil
	}
	e.done = true

	rid, found, err := e.index.GetValue(e.key)
	if err != nil {
		return nil, common.RID{}, false, err
	}
	if !found {
		return nil, common.RID{}, false, nil
	}
	data, err := e.heap.GetTuple(rid)
	if err != nil {
		return nil, common.RID{}, false, err
	}
	return data, rid, true, nil
}
