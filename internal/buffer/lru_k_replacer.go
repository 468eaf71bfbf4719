package buffer

import (
	"container/list"
	"fmt"
	"sync"

	"granitedb/internal/common"
)

// LRUKReplacer picks eviction victims among evictable frames. Frames with
// fewer than K recorded accesses live in the history list and are preferred
// victims (infinite backward K-distance); frames with K or more accesses live
// in the cache list, ordered by recency. Victims are taken from the back of a
// list, which holds the oldest entry.
//
// History ordering: a frame is inserted at the history front on its first
// access only. Later sub-K accesses bump the counter without reordering, so
// the history victim is the frame with the earliest first access.
type LRUKReplacer struct {
	mu sync.Mutex

	k         int
	numFrames int

	historyList *list.List
	historyMap  map[common.FrameID]*list.Element
	cacheList   *list.List
	cacheMap    map[common.FrameID]*list.Element

	accessCount map[common.FrameID]int
	evictable   map[common.FrameID]bool
	currSize    int
}

func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:           k,
		numFrames:   numFrames,
		historyList: list.New(),
		historyMap:  make(map[common.FrameID]*list.Element),
		cacheList:   list.New(),
		cacheMap:    make(map[common.FrameID]*list.Element),
		accessCount: make(map[common.FrameID]int),
		evictable:   make(map[common.FrameID]bool),
	}
}

func (r *LRUKReplacer) checkFrame(frameID common.FrameID) {
	if frameID < 0 || int(frameID) >= r.numFrames {
		panic(fmt.Sprintf("lruk: frame id %d out of range [0, %d)", frameID, r.numFrames))
	}
}

// RecordAccess notes one access to frameID. On the K-th access the frame
// graduates from the history list to the cache list; past K every access
// moves it to the cache front.
func (r *LRUKReplacer) RecordAccess(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(frameID)

	r.accessCount[frameID]++
	count := r.accessCount[frameID]

	switch {
	case count < r.k:
		if _, ok := r.historyMap[frameID]; !ok {
			r.historyMap[frameID] = r.historyList.PushFront(frameID)
		}
	case count == r.k:
		if el, ok := r.historyMap[frameID]; ok {
			r.historyList.Remove(el)
			delete(r.historyMap, frameID)
		}
		r.cacheMap[frameID] = r.cacheList.PushFront(frameID)
	default:
		if el, ok := r.cacheMap[frameID]; ok {
			r.cacheList.Remove(el)
		}
		r.cacheMap[frameID] = r.cacheList.PushFront(frameID)
	}
}

// SetEvictable toggles whether frameID may be chosen as a victim. Calls for
// frames that were never accessed are ignored.
func (r *LRUKReplacer) SetEvictable(frameID common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(frameID)

	if r.accessCount[frameID] == 0 {
		return
	}
	old := r.evictable[frameID]
	if old == evictable {
		return
	}
	r.evictable[frameID] = evictable
	if evictable {
		r.currSize++
	} else {
		r.currSize--
	}
}

// Evict removes and returns a victim: the oldest evictable history frame if
// any, otherwise the evictable cache frame whose most recent access is the
// oldest. Returns false if nothing is evictable.
func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currSize == 0 {
		return 0, false
	}

	for el := r.historyList.Back(); el != nil; el = el.Prev() {
		frameID := el.Value.(common.FrameID)
		if r.evictable[frameID] {
			r.historyList.Remove(el)
			delete(r.historyMap, frameID)
			r.dropLocked(frameID)
			return frameID, true
		}
	}

	for el := r.cacheList.Back(); el != nil; el = el.Prev() {
		frameID := el.Value.(common.FrameID)
		if r.evictable[frameID] {
			r.cacheList.Remove(el)
			delete(r.cacheMap, frameID)
			r.dropLocked(frameID)
			return frameID, true
		}
	}

	return 0, false
}

// Remove forgets frameID entirely. The frame must currently be non-evictable.
func (r *LRUKReplacer) Remove(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(frameID)

	if r.evictable[frameID] {
		panic(fmt.Sprintf("lruk: remove called on evictable frame %d", frameID))
	}
	if r.accessCount[frameID] == 0 {
		return
	}

	if el, ok := r.cacheMap[frameID]; ok {
		r.cacheList.Remove(el)
		delete(r.cacheMap, frameID)
	}
	if el, ok := r.historyMap[frameID]; ok {
		r.historyList.Remove(el)
		delete(r.historyMap, frameID)
	}
	delete(r.accessCount, frameID)
	delete(r.evictable, frameID)
}

func (r *LRUKReplacer) dropLocked(frameID common.FrameID) {
	delete(r.accessCount, frameID)
	delete(r.evictable, frameID)
	r.currSize--
}

// Size returns the number of evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
