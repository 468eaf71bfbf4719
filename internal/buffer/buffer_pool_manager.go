package buffer

import (
	"errors"
	"fmt"
	"sync"

	"granitedb/internal/common"
	"granitedb/internal/disk"
)

var (
	ErrNoFreeFrame = errors.New("buffer: no free frame available (all pinned)")
	ErrPagePinned  = errors.New("buffer: page is pinned")
)

// BufferPoolManager mediates a fixed-size cache of disk pages. Every
// operation runs under one pool-wide mutex, including the waits on disk
// completions: no other goroutine can ever observe a half-installed frame.
// Trading throughput for that simplicity is deliberate.
type BufferPoolManager struct {
	mu sync.Mutex

	poolSize  int
	pages     []*Page
	pageTable map[common.PageID]common.FrameID
	freeList  []common.FrameID

	replacer   *LRUKReplacer
	scheduler  *disk.Scheduler
	nextPageID common.PageID
}

func NewBufferPoolManager(poolSize int, dm *disk.Manager, replacerK int) *BufferPoolManager {
	bpm := &BufferPoolManager{
		poolSize:  poolSize,
		pages:     make([]*Page, poolSize),
		pageTable: make(map[common.PageID]common.FrameID),
		freeList:  make([]common.FrameID, 0, poolSize),
		replacer:  NewLRUKReplacer(poolSize, replacerK),
		scheduler: disk.NewScheduler(dm),
	}
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = newPage()
		bpm.freeList = append(bpm.freeList, common.FrameID(i))
	}
	// Continue allocation after whatever the file already holds.
	if size, err := dm.Size(); err == nil {
		bpm.nextPageID = common.PageID(size / int64(common.PageSize))
	}
	return bpm
}

// NewPage allocates a fresh page id and pins it into a frame zeroed out for
// the caller. Returns ErrNoFreeFrame when every frame is pinned.
func (bpm *BufferPoolManager) NewPage() (common.PageID, *Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, err := bpm.obtainFrame()
	if err != nil {
		return common.InvalidPageID, nil, err
	}

	pageID := bpm.allocatePage()
	bpm.install(frameID, pageID)
	return pageID, bpm.pages[frameID], nil
}

// FetchPage returns the frame holding pageID, pinning it. On a miss the page
// is read through the disk scheduler into a free or victim frame.
func (bpm *BufferPoolManager) FetchPage(pageID common.PageID) (*Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameID, ok := bpm.pageTable[pageID]; ok {
		page := bpm.pages[frameID]
		page.pinCount++
		bpm.replacer.RecordAccess(frameID)
		bpm.replacer.SetEvictable(frameID, false)
		return page, nil
	}

	frameID, err := bpm.obtainFrame()
	if err != nil {
		return nil, err
	}

	page := bpm.pages[frameID]
	bpm.install(frameID, pageID)

	req := disk.NewRequest(false, page.Data(), pageID)
	bpm.scheduler.Schedule(req)
	if err := <-req.Done; err != nil {
		// Roll the installation back so the frame is not leaked.
		delete(bpm.pageTable, pageID)
		bpm.replacer.Remove(frameID)
		page.pageID = common.InvalidPageID
		page.pinCount = 0
		bpm.freeList = append(bpm.freeList, frameID)
		return nil, fmt.Errorf("buffer: fetch page %d: %w", pageID, err)
	}
	return page, nil
}

// UnpinPage drops one pin on pageID, marking the frame dirty when the caller
// wrote to it. The frame becomes evictable once the pin count reaches zero.
// Returns false if the page is not resident or was not pinned.
func (bpm *BufferPoolManager) UnpinPage(pageID common.PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return false
	}
	page := bpm.pages[frameID]
	if page.pinCount <= 0 {
		return false
	}

	page.pinCount--
	if page.pinCount == 0 {
		bpm.replacer.SetEvictable(frameID, true)
	}
	if isDirty {
		page.isDirty = true
	}
	return true
}

// FlushPage synchronously writes pageID to disk regardless of its dirty flag
// and clears the flag. Returns false if the page is not resident.
func (bpm *BufferPoolManager) FlushPage(pageID common.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	if pageID == common.InvalidPageID {
		panic("buffer: flush of invalid page id")
	}
	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return false
	}
	bpm.flushFrameLocked(bpm.pages[frameID])
	return true
}

// FlushAllPages flushes every resident page.
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	for _, frameID := range bpm.pageTable {
		bpm.flushFrameLocked(bpm.pages[frameID])
	}
}

// DeletePage drops pageID from the pool, returning its frame to the free
// list. Deleting a non-resident page trivially succeeds; deleting a pinned
// page fails.
func (bpm *BufferPoolManager) DeletePage(pageID common.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return true
	}
	page := bpm.pages[frameID]
	if page.pinCount > 0 {
		return false
	}

	bpm.replacer.SetEvictable(frameID, false)
	bpm.replacer.Remove(frameID)
	delete(bpm.pageTable, pageID)
	bpm.freeList = append(bpm.freeList, frameID)
	page.resetMemory()
	page.pageID = common.InvalidPageID
	page.pinCount = 0
	page.isDirty = false
	return true
}

// Scheduler exposes the pool's disk scheduler for shutdown coordination.
func (bpm *BufferPoolManager) Scheduler() *disk.Scheduler {
	return bpm.scheduler
}

// obtainFrame takes a frame from the free list, or evicts a victim, flushing
// it first when dirty. Caller holds bpm.mu.
func (bpm *BufferPoolManager) obtainFrame() (common.FrameID, error) {
	if len(bpm.freeList) > 0 {
		frameID := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return frameID, nil
	}

	frameID, ok := bpm.replacer.Evict()
	if !ok {
		return 0, ErrNoFreeFrame
	}
	victim := bpm.pages[frameID]
	if victim.isDirty {
		req := disk.NewRequest(true, victim.Data(), victim.pageID)
		bpm.scheduler.Schedule(req)
		if err := <-req.Done; err != nil {
			return 0, fmt.Errorf("buffer: evict page %d: %w", victim.pageID, err)
		}
	}
	delete(bpm.pageTable, victim.pageID)
	return frameID, nil
}

// install resets the frame and registers it as the sole residence of pageID
// with one pin. Caller holds bpm.mu.
func (bpm *BufferPoolManager) install(frameID common.FrameID, pageID common.PageID) {
	page := bpm.pages[frameID]
	page.resetMemory()
	page.pageID = pageID
	page.pinCount = 1
	page.isDirty = false
	bpm.pageTable[pageID] = frameID
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)
}

func (bpm *BufferPoolManager) flushFrameLocked(page *Page) {
	req := disk.NewRequest(true, page.Data(), page.pageID)
	bpm.scheduler.Schedule(req)
	<-req.Done
	page.isDirty = false
}

func (bpm *BufferPoolManager) allocatePage() common.PageID {
	id := bpm.nextPageID
	bpm.nextPageID++
	return id
}
