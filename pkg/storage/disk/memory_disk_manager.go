package disk

import (
	"fmt"
	"sync"

	"probedb/pkg/storage/page"
)

// MemoryDiskManager keeps pages in a map. Reads and writes copy, so it
// behaves like a disk as far as the buffer pool can tell.
type MemoryDiskManager struct {
	mu         sync.Mutex
	pages      map[page.PageID]*[page.PageSize]byte
	nextPageID page.PageID
	freePages  []page.PageID
	numReads   uint64
	numWrites  uint64
}

func NewMemoryDiskManager() *MemoryDiskManager {
	return &MemoryDiskManager{
		pages: make(map[page.PageID]*[page.PageSize]byte),
	}
}

func (m *MemoryDiskManager) ReadPage(pageID page.PageID, data []byte) error {
	if len(data) != page.PageSize {
		return ErrShortPage
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if pageID < 0 || pageID >= m.nextPageID {
		return fmt.Errorf("read page %d: not allocated", pageID)
	}
	m.numReads++
	if buf, ok := m.pages[pageID]; ok {
		copy(data, buf[:])
	} else {
		clear(data)
	}
	return nil
}

func (m *MemoryDiskManager) WritePage(pageID page.PageID, data []byte) error {
	if len(data) != page.PageSize {
		return ErrShortPage
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if pageID < 0 || pageID >= m.nextPageID {
		return fmt.Errorf("write page %d: not allocated", pageID)
	}
	buf, ok := m.pages[pageID]
	if !ok {
		buf = new([page.PageSize]byte)
		m.pages[pageID] = buf
	}
	copy(buf[:], data)
	m.numWrites++
	return nil
}

func (m *MemoryDiskManager) AllocatePage() page.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.freePages); n > 0 {
		id := m.freePages[n-1]
		m.freePages = m.freePages[:n-1]
		return id
	}
	ret := m.nextPageID
	m.nextPageID++
	return ret
}

func (m *MemoryDiskManager) DeallocatePage(pageID page.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[pageID]; !ok && (pageID < 0 || pageID >= m.nextPageID) {
		return
	}
	for _, id := range m.freePages {
		if id == pageID {
			return
		}
	}
	delete(m.pages, pageID)
	m.freePages = append(m.freePages, pageID)
}

func (m *MemoryDiskManager) Close() error { return nil }

func (m *MemoryDiskManager) NumReads() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numReads
}

func (m *MemoryDiskManager) NumWrites() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numWrites
}

// PageBytes returns a copy of what was last written for pageID.
func (m *MemoryDiskManager) PageBytes(pageID page.PageID) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.pages[pageID]
	if !ok {
		return nil, false
	}
	out := make([]byte, page.PageSize)
	copy(out, buf[:])
	return out, true
}
