package page

import "sync"

// PageSize 一页 4KB，和磁盘页大小保持一致
const PageSize = 4096

// PageID identifies a page on disk. -1 marks "no page".
type PageID int32

const (
	InvalidPageID PageID = -1

	// SizeOfPageID PageID 在页内占 4 字节
	SizeOfPageID = 4
)

// Page is one buffer pool frame: the page bytes plus the metadata the pool
// keeps for it. The pool owns id, pinCount and isDirty; the latch guards Data
// and is taken by whoever reads or writes the bytes.
type Page struct {
	id       PageID
	pinCount int32
	isDirty  bool
	latch    sync.RWMutex
	Data     [PageSize]byte
}

// NewPage returns an empty frame that holds no page.
func NewPage() *Page {
	return &Page{id: InvalidPageID}
}

func (p *Page) ID() PageID {
	return p.id
}

func (p *Page) SetID(id PageID) {
	p.id = id
}

func (p *Page) PinCount() int32 {
	return p.pinCount
}

func (p *Page) IsDirty() bool {
	return p.isDirty
}

func (p *Page) SetPinCount(count int32) {
	if count < 0 {
		panic("page: negative pin count")
	}
	p.pinCount = count
}

func (p *Page) SetDirty(dirty bool) {
	p.isDirty = dirty
}

// Clear zeroes the page bytes.
func (p *Page) Clear() {
	p.Data = [PageSize]byte{}
}

// Reset drops everything the frame knew about its previous page.
func (p *Page) Reset() {
	p.Clear()
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
}

func (p *Page) RLatch() { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
func (p *Page) WLatch() { p.latch.Lock() }
func (p *Page) WUnlatch() { p.latch.Unlock() }
