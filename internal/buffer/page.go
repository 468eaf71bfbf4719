package buffer

import (
	"sync"

	"granitedb/internal/common"
)

// Page is one in-memory frame of the buffer pool: a fixed PageSize buffer
// plus residency metadata. The latch protects the buffer contents; the pin
// count and dirty flag are owned by the pool and only touched under the pool
// mutex.
type Page struct {
	data     [common.PageSize]byte
	pageID   common.PageID
	pinCount int
	isDirty  bool
	latch    sync.RWMutex
}

func newPage() *Page {
	return &Page{pageID: common.InvalidPageID}
}

// Data returns the page's buffer. Callers must hold the appropriate latch
// (or a guard) while touching it.
func (p *Page) Data() []byte {
	return p.data[:]
}

func (p *Page) PageID() common.PageID {
	return p.pageID
}

func (p *Page) PinCount() int {
	return p.pinCount
}

func (p *Page) IsDirty() bool {
	return p.isDirty
}

func (p *Page) resetMemory() {
	for i := range p.data {
		p.data[i] = 0
	}
}

func (p *Page) RLatch()   { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
func (p *Page) WLatch()   { p.latch.Lock() }
func (p *Page) WUnlatch() { p.latch.Unlock() }
