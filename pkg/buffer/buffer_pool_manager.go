package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"probedb/pkg/storage/disk"
	"probedb/pkg/storage/page"
)

var (
	ErrNoAvailableFrame = errors.New("no free frame and no victim (all pages are pinned)")
	ErrPageNotResident  = errors.New("page is not in buffer pool")
	ErrPageNotPinned    = errors.New("pin count is already 0")
	ErrPagePinned       = errors.New("page is pinned")
)

// Stats counts buffer pool traffic since construction.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	WriteBacks uint64
}

// BufferPoolManager caches disk pages in a fixed array of frames. One mutex
// covers the page table, the free list and the replacer for the whole of each
// call, dirty write-back during eviction included. Page bytes are not covered:
// callers latch the page for that.
//
// Flushing takes the page's read latch while holding the pool mutex, so a
// caller must release its page latches before calling back into the pool.
type BufferPoolManager struct {
	mu          sync.Mutex
	diskManager disk.DiskManager
	pages       []*page.Page            // 实际的内存池 (数组大小固定)
	replacer    Replacer                // 驱逐策略，默认 CLOCK
	freeList    []FrameID               // 空闲的 FrameID 列表
	pageTable   map[page.PageID]FrameID // 映射表: PageID -> FrameID
	stats       Stats
	logger      *slog.Logger
}

// NewBufferPoolManager 初始化
func NewBufferPoolManager(diskManager disk.DiskManager, poolSize int, opts ...Option) *BufferPoolManager {
	if poolSize <= 0 {
		panic("buffer: pool size must be positive")
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.replacer == nil {
		o.replacer = NewClockReplacer(poolSize)
	}
	if r, ok := o.replacer.(interface{ setLogger(*slog.Logger) }); ok {
		r.setLogger(o.logger)
	}

	bpm := &BufferPoolManager{
		diskManager: diskManager,
		pages:       make([]*page.Page, poolSize),
		replacer:    o.replacer,
		freeList:    make([]FrameID, poolSize),
		pageTable:   make(map[page.PageID]FrameID),
		logger:      o.logger,
	}
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = page.NewPage()
		bpm.freeList[i] = FrameID(i) // 初始时所有 Frame 都是空闲的
	}
	return bpm
}

// FetchPage pins pageID, reading it from disk if it is not resident.
func (b *BufferPoolManager) FetchPage(pageID page.PageID) (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// 1. 缓存命中
	if frameID, ok := b.pageTable[pageID]; ok {
		p := b.pages[frameID]
		if p.PinCount() == 0 {
			b.replacer.Pin(frameID)
		}
		p.SetPinCount(p.PinCount() + 1)
		b.stats.Hits++
		return p, nil
	}

	// 2. 缓存未命中，找一个空闲或可驱逐的 Frame
	frameID, err := b.findVictimFrame()
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageID, err)
	}
	b.stats.Misses++

	p := b.pages[frameID]
	if err := b.diskManager.ReadPage(pageID, p.Data[:]); err != nil {
		p.Reset()
		b.freeList = append(b.freeList, frameID)
		return nil, fmt.Errorf("fetch page %d: %w", pageID, err)
	}
	p.SetID(pageID)
	p.SetPinCount(1)
	p.SetDirty(false)
	b.pageTable[pageID] = frameID
	return p, nil
}

// UnpinPage drops one pin on pageID. isDirty is OR-ed into the page's dirty
// flag; a page is never marked clean here.
func (b *BufferPoolManager) UnpinPage(pageID page.PageID, isDirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		b.logger.Warn("unpin of page not in buffer pool", "page", pageID)
		return fmt.Errorf("unpin page %d: %w", pageID, ErrPageNotResident)
	}
	p := b.pages[frameID]
	if p.PinCount() <= 0 {
		b.logger.Warn("unpin of page with zero pin count", "page", pageID)
		return fmt.Errorf("unpin page %d: %w", pageID, ErrPageNotPinned)
	}

	p.SetPinCount(p.PinCount() - 1)
	if isDirty {
		p.SetDirty(true)
	}
	if p.PinCount() == 0 {
		b.replacer.Unpin(frameID)
	}
	return nil
}

// NewPage allocates a page on disk and pins a zeroed frame for it. New pages
// start dirty so they reach disk even if nobody writes to them.
func (b *BufferPoolManager) NewPage() (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, err := b.findVictimFrame()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}

	newPageID := b.diskManager.AllocatePage()

	p := b.pages[frameID]
	p.Clear()
	p.SetID(newPageID)
	p.SetPinCount(1)
	p.SetDirty(true)
	b.pageTable[newPageID] = frameID
	return p, nil
}

// DeletePage drops pageID from the pool and releases it on disk. A page that
// is not resident only needs the disk release; a pinned page is refused.
func (b *BufferPoolManager) DeletePage(pageID page.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		b.diskManager.DeallocatePage(pageID)
		return nil
	}

	targetPage := b.pages[frameID]
	if targetPage.PinCount() > 0 {
		b.logger.Warn("delete of pinned page", "page", pageID, "pins", targetPage.PinCount())
		return fmt.Errorf("delete page %d: %w", pageID, ErrPagePinned)
	}

	delete(b.pageTable, pageID)
	// pin count 为 0 的页一定在 replacer 里，先把它拿出来
	b.replacer.Pin(frameID)
	targetPage.Reset()
	b.freeList = append(b.freeList, frameID)
	b.diskManager.DeallocatePage(pageID)
	return nil
}

// FlushPage writes pageID to disk if it is dirty.
func (b *BufferPoolManager) FlushPage(pageID page.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		b.logger.Warn("flush of page not in buffer pool", "page", pageID)
		return fmt.Errorf("flush page %d: %w", pageID, ErrPageNotResident)
	}
	return b.flushFrame(b.pages[frameID])
}

// FlushAllPages writes every dirty resident page to disk.
func (b *BufferPoolManager) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, p := range b.pages {
		if p.ID() == page.InvalidPageID {
			continue
		}
		if err := b.flushFrame(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// flushFrame 写盘时持有页的读锁，和正在写这页的线程互斥
func (b *BufferPoolManager) flushFrame(p *page.Page) error {
	if !p.IsDirty() {
		return nil
	}
	p.RLatch()
	err := b.diskManager.WritePage(p.ID(), p.Data[:])
	p.RUnlatch()
	if err != nil {
		return fmt.Errorf("flush page %d: %w", p.ID(), err)
	}
	p.SetDirty(false)
	return nil
}

func (b *BufferPoolManager) markDirty(p *page.Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p.SetDirty(true)
}

// findVictimFrame 寻找可用的 FrameID：优先 freeList，其次让 replacer 选一个
// 被驱逐的脏页会先写回磁盘，旧的映射会被移除
func (b *BufferPoolManager) findVictimFrame() (FrameID, error) {
	if n := len(b.freeList); n > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frameID, nil
	}

	frameID, ok := b.replacer.Victim()
	if !ok {
		return -1, ErrNoAvailableFrame
	}

	victimPage := b.pages[frameID]
	if victimPage.PinCount() != 0 {
		panic(fmt.Sprintf("buffer: replacer chose pinned frame %d (page %d)", frameID, victimPage.ID()))
	}
	if victimPage.IsDirty() {
		if err := b.diskManager.WritePage(victimPage.ID(), victimPage.Data[:]); err != nil {
			// 写回失败，页面还留在池里，重新交给 replacer
			b.replacer.Unpin(frameID)
			return -1, fmt.Errorf("write back page %d: %w", victimPage.ID(), err)
		}
		victimPage.SetDirty(false)
		b.stats.WriteBacks++
	}
	delete(b.pageTable, victimPage.ID())
	victimPage.Reset()
	b.stats.Evictions++
	return frameID, nil
}

// PoolSize is the number of frames.
func (b *BufferPoolManager) PoolSize() int {
	return len(b.pages)
}

// FreeFrameCount reports frames that hold no page.
func (b *BufferPoolManager) FreeFrameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.freeList)
}

// PinCount returns the pin count of a resident page.
func (b *BufferPoolManager) PinCount(pageID page.PageID) (int32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	frameID, ok := b.pageTable[pageID]
	if !ok {
		return 0, false
	}
	return b.pages[frameID].PinCount(), true
}

// IsResident reports whether pageID currently occupies a frame.
func (b *BufferPoolManager) IsResident(pageID page.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pageTable[pageID]
	return ok
}

func (b *BufferPoolManager) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
