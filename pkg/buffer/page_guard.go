package buffer

import (
	"probedb/pkg/storage/page"
)

// PageGuard holds exactly one pin on a page and gives it back on Release.
// Dirtiness is recorded with MarkDirty and handed to UnpinPage on release.
//
//	g, err := bpm.FetchPageGuard(id)
//	if err != nil { ... }
//	defer g.Release()
type PageGuard struct {
	bpm      *BufferPoolManager
	page     *page.Page
	dirty    bool
	released bool
}

// FetchPageGuard is FetchPage wrapped in a guard.
func (b *BufferPoolManager) FetchPageGuard(pageID page.PageID) (*PageGuard, error) {
	p, err := b.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	return &PageGuard{bpm: b, page: p}, nil
}

// NewPageGuard is NewPage wrapped in a guard. The guard starts dirty.
func (b *BufferPoolManager) NewPageGuard() (*PageGuard, error) {
	p, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	return &PageGuard{bpm: b, page: p, dirty: true}, nil
}

func (g *PageGuard) Page() *page.Page {
	return g.page
}

func (g *PageGuard) PageID() page.PageID {
	return g.page.ID()
}

// Data is the frame's byte buffer. Latch the page before touching it.
func (g *PageGuard) Data() []byte {
	if g.released {
		panic("buffer: access to released page guard")
	}
	return g.page.Data[:]
}

func (g *PageGuard) MarkDirty() {
	g.dirty = true
}

// Flush writes the page to disk now. The pin is kept. Do not call it while
// holding the page's write latch: it waits for a read latch.
func (g *PageGuard) Flush() error {
	if g.dirty {
		g.bpm.markDirty(g.page)
	}
	if err := g.bpm.FlushPage(g.page.ID()); err != nil {
		return err
	}
	g.dirty = false
	return nil
}

// Release unpins the page. Calling it again is a no-op.
func (g *PageGuard) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	return g.bpm.UnpinPage(g.page.ID(), g.dirty)
}
