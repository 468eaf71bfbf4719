package heap

import (
	"errors"
	"log/slog"
	"sync"

	"granitedb/internal/buffer"
	"granitedb/internal/common"
)

var ErrTupleNotFound = errors.New("heap: tuple not found")

// TableHeap is a linked list of tuple pages. Inserts go to the tail; a full
// tail gets a fresh page chained behind it.
type TableHeap struct {
	mu  sync.Mutex
	bpm *buffer.BufferPoolManager

	firstPageID common.PageID
	lastPageID  common.PageID
}

// NewTableHeap allocates the first page of a fresh heap.
func NewTableHeap(bpm *buffer.BufferPoolManager) (*TableHeap, error) {
	pageID, guard, err := bpm.NewPageGuarded()
	if err != nil {
		return nil, err
	}
	wg := guard.UpgradeWrite()
	AsTuplePage(wg.Data()).Init()
	wg.Drop()

	slog.Info("table heap created", "first_page_id", pageID)
	return &TableHeap{bpm: bpm, firstPageID: pageID, lastPageID: pageID}, nil
}

// OpenTableHeap attaches to an existing heap rooted at firstPageID, walking
// the chain to find the current tail.
func OpenTableHeap(bpm *buffer.BufferPoolManager, firstPageID common.PageID) (*TableHeap, error) {
	last := firstPageID
	for {
		rg, err := bpm.FetchPageRead(last)
		if err != nil {
			return nil, err
		}
		next := AsTuplePage(rg.Data()).NextPageID()
		rg.Drop()
		if next == common.InvalidPageID {
			break
		}
		last = next
	}
	return &TableHeap{bpm: bpm, firstPageID: firstPageID, lastPageID: last}, nil
}

func (t *TableHeap) FirstPageID() common.PageID {
	return t.firstPageID
}

// InsertTuple appends data to the tail page, extending the chain when the
// tail is full.
func (t *TableHeap) InsertTuple(data []byte) (common.RID, error) {
	if len(data) > common.PageSize-headerSize-slotSize {
		return common.RID{}, ErrTupleTooLarge
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	wg, err := t.bpm.FetchPageWrite(t.lastPageID)
	if err != nil {
		return common.RID{}, err
	}
	page := AsTuplePage(wg.Data())

	slot, err := page.InsertTuple(data)
	if err == nil {
		rid := common.RID{PageID: t.lastPageID, Slot: slot}
		wg.Drop()
		return rid, nil
	}
	if !errors.Is(err, ErrNoSpace) {
		wg.Drop()
		return common.RID{}, err
	}

	newPageID, guard, err := t.bpm.NewPageGuarded()
	if err != nil {
		wg.Drop()
		return common.RID{}, err
	}
	newWG := guard.UpgradeWrite()
	newPage := AsTuplePage(newWG.Data())
	newPage.Init()

	page.SetNextPageID(newPageID)
	wg.Drop()

	slot, err = newPage.InsertTuple(data)
	if err != nil {
		newWG.Drop()
		return common.RID{}, err
	}
	t.lastPageID = newPageID
	newWG.Drop()
	return common.RID{PageID: newPageID, Slot: slot}, nil
}

// GetTuple reads the tuple addressed by rid.
func (t *TableHeap) GetTuple(rid common.RID) ([]byte, error) {
	rg, err := t.bpm.FetchPageRead(rid.PageID)
	if err != nil {
		return nil, err
	}
	defer rg.Drop()

	data, err := AsTuplePage(rg.Data()).GetTuple(rid.Slot)
	if err != nil {
		return nil, ErrTupleNotFound
	}
	return data, nil
}

// DeleteTuple marks the tuple at rid deleted.
func (t *TableHeap) DeleteTuple(rid common.RID) error {
	wg, err := t.bpm.FetchPageWrite(rid.PageID)
	if err != nil {
		return err
	}
	defer wg.Drop()

	if err := AsTuplePage(wg.Data()).DeleteTuple(rid.Slot); err != nil {
		return ErrTupleNotFound
	}
	return nil
}

// Iterator walks every live tuple in chain order.
type Iterator struct {
	heap   *TableHeap
	pageID common.PageID
	slot   uint16
}

func (t *TableHeap) Iterator() *Iterator {
	return &Iterator{heap: t, pageID: t.firstPageID, slot: 0}
}

// Next returns the next live tuple, or ok=false when the heap is exhausted.
// The page pin is held only for the duration of the call.
func (it *Iterator) Next() (common.RID, []byte, bool, error) {
	for it.pageID != common.InvalidPageID {
		rg, err := it.heap.bpm.FetchPageRead(it.pageID)
		if err != nil {
			return common.RID{}, nil, false, err
		}
		page := AsTuplePage(rg.Data())

		for ; it.slot < page.NumTuples(); it.slot++ {
			if !page.IsLive(it.slot) {
				continue
			}
			data, err := page.GetTuple(it.slot)
			if err != nil {
				rg.Drop()
				return common.RID{}, nil, false, err
			}
			rid := common.RID{PageID: it.pageID, Slot: it.slot}
			it.slot++
			rg.Drop()
			return rid, data, true, nil
		}

		next := page.NextPageID()
		rg.Drop()
		it.pageID = next
		it.slot = 0
	}
	return common.RID{}, nil, false, nil
}
