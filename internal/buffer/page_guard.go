package buffer

import "granitedb/internal/common"

// PageGuard owns one pin on a page. Dropping it unpins with the accumulated
// dirty flag. Guards release at most once; a second Drop is a no-op.
type PageGuard struct {
	bpm     *BufferPoolManager
	page    *Page
	isDirty bool
}

// Data returns the guarded page's buffer for reading.
func (g *PageGuard) Data() []byte {
	return g.page.Data()
}

// DataMut returns the buffer for writing and marks the guard dirty, so the
// page is flushed before its frame is reused.
func (g *PageGuard) DataMut() []byte {
	g.isDirty = true
	return g.page.Data()
}

func (g *PageGuard) PageID() common.PageID {
	return g.page.PageID()
}

// Drop releases the pin early. Safe to call again or after an upgrade.
func (g *PageGuard) Drop() {
	if g.page != nil {
		g.bpm.UnpinPage(g.page.PageID(), g.isDirty)
	}
	g.page = nil
	g.bpm = nil
	g.isDirty = false
}

// UpgradeRead takes the page's read latch and hands the pin to a ReadGuard.
// The basic guard is emptied and must not be used afterwards.
func (g *PageGuard) UpgradeRead() *ReadGuard {
	g.page.RLatch()
	rg := &ReadGuard{guard: PageGuard{bpm: g.bpm, page: g.page, isDirty: g.isDirty}}
	g.page = nil
	g.bpm = nil
	g.isDirty = false
	return rg
}

// UpgradeWrite takes the page's write latch and hands the pin to a
// WriteGuard.
func (g *PageGuard) UpgradeWrite() *WriteGuard {
	g.page.WLatch()
	wg := &WriteGuard{guard: PageGuard{bpm: g.bpm, page: g.page, isDirty: g.isDirty}}
	g.page = nil
	g.bpm = nil
	g.isDirty = false
	return wg
}

// ReadGuard is a PageGuard that additionally holds the page's read latch.
type ReadGuard struct {
	guard PageGuard
}

func (g *ReadGuard) Data() []byte {
	return g.guard.page.Data()
}

func (g *ReadGuard) PageID() common.PageID {
	return g.guard.page.PageID()
}

func (g *ReadGuard) Drop() {
	if g.guard.page != nil {
		page := g.guard.page
		g.guard.bpm.UnpinPage(page.PageID(), g.guard.isDirty)
		page.RUnlatch()
	}
	g.guard.page = nil
	g.guard.bpm = nil
	g.guard.isDirty = false
}

// WriteGuard is a PageGuard that additionally holds the page's write latch.
// All access through it is treated as a write.
type WriteGuard struct {
	guard PageGuard
}

func (g *WriteGuard) Data() []byte {
	g.guard.isDirty = true
	return g.guard.page.Data()
}

func (g *WriteGuard) PageID() common.PageID {
	return g.guard.page.PageID()
}

func (g *WriteGuard) Drop() {
	if g.guard.page != nil {
		page := g.guard.page
		g.guard.bpm.UnpinPage(page.PageID(), g.guard.isDirty)
		page.WUnlatch()
	}
	g.guard.page = nil
	g.guard.bpm = nil
	g.guard.isDirty = false
}

// FetchPageBasic pins pageID and wraps it in a latch-free guard.
func (bpm *BufferPoolManager) FetchPageBasic(pageID common.PageID) (*PageGuard, error) {
	page, err := bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	return &PageGuard{bpm: bpm, page: page}, nil
}

// FetchPageRead pins pageID and takes its read latch. The latch is acquired
// after the pool mutex is released, never under it.
func (bpm *BufferPoolManager) FetchPageRead(pageID common.PageID) (*ReadGuard, error) {
	page, err := bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	page.RLatch()
	return &ReadGuard{guard: PageGuard{bpm: bpm, page: page}}, nil
}

// FetchPageWrite pins pageID and takes its write latch.
func (bpm *BufferPoolManager) FetchPageWrite(pageID common.PageID) (*WriteGuard, error) {
	page, err := bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	page.WLatch()
	return &WriteGuard{guard: PageGuard{bpm: bpm, page: page}}, nil
}

// NewPageGuarded allocates a fresh page and returns it behind a basic guard.
func (bpm *BufferPoolManager) NewPageGuarded() (common.PageID, *PageGuard, error) {
	pageID, page, err := bpm.NewPage()
	if err != nil {
		return common.InvalidPageID, nil, err
	}
	return pageID, &PageGuard{bpm: bpm, page: page}, nil
}
