package page

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header page format (little endian, 16 byte prefix):
//
//	| LSN (4) | Size (4) | PageID (4) | NextFreeSlot (4) | BlockPageIDs (4 each) ... |
const (
	OffsetHeaderLSN          = 0
	OffsetHeaderSize         = 4
	OffsetHeaderPageID       = 8
	OffsetHeaderNextFreeSlot = 12
	OffsetHeaderBlockIDs     = 16

	// MaxBlockPageIDs 目录最多能放下的 block page 个数
	MaxBlockPageIDs = (PageSize - OffsetHeaderBlockIDs) / SizeOfPageID
)

var ErrHeaderFull = errors.New("hash table header page has no free directory slot")

// HashTableHeaderPage is the decoded form of a hash table header page. It is
// built from a page's bytes with DecodeHeaderPage and written back with Encode;
// it never aliases the frame it came from.
type HashTableHeaderPage struct {
	lsn          int32
	size         uint32
	pageID       PageID
	blockPageIDs []PageID
}

// NewHashTableHeaderPage starts an empty directory for a table of size buckets.
func NewHashTableHeaderPage(pageID PageID, size int) *HashTableHeaderPage {
	return &HashTableHeaderPage{
		pageID: pageID,
		size:   uint32(size),
	}
}

// DecodeHeaderPage reads a header page out of data.
func DecodeHeaderPage(data []byte) (*HashTableHeaderPage, error) {
	if len(data) < PageSize {
		return nil, fmt.Errorf("header page: short buffer (%d bytes)", len(data))
	}
	h := &HashTableHeaderPage{
		lsn:    int32(binary.LittleEndian.Uint32(data[OffsetHeaderLSN:])),
		size:   binary.LittleEndian.Uint32(data[OffsetHeaderSize:]),
		pageID: PageID(int32(binary.LittleEndian.Uint32(data[OffsetHeaderPageID:]))),
	}
	next := binary.LittleEndian.Uint32(data[OffsetHeaderNextFreeSlot:])
	if next > MaxBlockPageIDs {
		return nil, fmt.Errorf("header page %d: corrupt next free slot %d", h.pageID, next)
	}
	h.blockPageIDs = make([]PageID, next)
	for i := range h.blockPageIDs {
		off := OffsetHeaderBlockIDs + i*SizeOfPageID
		h.blockPageIDs[i] = PageID(int32(binary.LittleEndian.Uint32(data[off:])))
	}
	return h, nil
}

// Encode flattens the header into data. Unused directory slots are zeroed.
func (h *HashTableHeaderPage) Encode(data []byte) {
	if len(data) < PageSize {
		panic("header page: short buffer")
	}
	binary.LittleEndian.PutUint32(data[OffsetHeaderLSN:], uint32(h.lsn))
	binary.LittleEndian.PutUint32(data[OffsetHeaderSize:], h.size)
	binary.LittleEndian.PutUint32(data[OffsetHeaderPageID:], uint32(h.pageID))
	binary.LittleEndian.PutUint32(data[OffsetHeaderNextFreeSlot:], uint32(len(h.blockPageIDs)))
	for i := 0; i < MaxBlockPageIDs; i++ {
		off := OffsetHeaderBlockIDs + i*SizeOfPageID
		id := uint32(0)
		if i < len(h.blockPageIDs) {
			id = uint32(h.blockPageIDs[i])
		}
		binary.LittleEndian.PutUint32(data[off:], id)
	}
}

func (h *HashTableHeaderPage) GetPageID() PageID { return h.pageID }
func (h *HashTableHeaderPage) SetPageID(id PageID) { h.pageID = id }
func (h *HashTableHeaderPage) GetLSN() int32 { return h.lsn }
func (h *HashTableHeaderPage) SetLSN(lsn int32) { h.lsn = lsn }
func (h *HashTableHeaderPage) GetSize() int { return int(h.size) }
func (h *HashTableHeaderPage) SetSize(size int) { h.size = uint32(size) }
func (h *HashTableHeaderPage) NumBlocks() int { return len(h.blockPageIDs) }
func (h *HashTableHeaderPage) NextFreeSlot() int { return len(h.blockPageIDs) }

// GetBlockPageID returns the page id of the index-th block.
func (h *HashTableHeaderPage) GetBlockPageID(index int) PageID {
	return h.blockPageIDs[index]
}

// BlockPageIDs returns a copy of the directory.
func (h *HashTableHeaderPage) BlockPageIDs() []PageID {
	ids := make([]PageID, len(h.blockPageIDs))
	copy(ids, h.blockPageIDs)
	return ids
}

// AddBlockPageID appends id at the next free directory slot.
func (h *HashTableHeaderPage) AddBlockPageID(id PageID) error {
	if len(h.blockPageIDs) >= MaxBlockPageIDs {
		return ErrHeaderFull
	}
	h.blockPageIDs = append(h.blockPageIDs, id)
	return nil
}
