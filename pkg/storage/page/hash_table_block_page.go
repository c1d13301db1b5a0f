package page

import "fmt"

// BlockArraySize returns how many (key, value) slots of slotSize bytes fit in a
// block page next to the two bitmaps. Each slot costs slotSize bytes plus two
// bits, hence 4*PageSize/(4*slotSize+1); the loop trims the bitmap rounding.
func BlockArraySize(slotSize int) int {
	if slotSize <= 0 {
		panic("block page: slot size must be positive")
	}
	n := 4 * PageSize / (4*slotSize + 1)
	for n > 0 && 2*bitmapBytes(n)+n*slotSize > PageSize {
		n--
	}
	return n
}

func bitmapBytes(n int) int {
	return (n-1)/8 + 1
}

// HashTableBlockPage is the decoded form of one hash table block page.
//
// Block page format:
//
//	| occupied bitmap | readable bitmap | KEY(0)+VALUE(0) | ... | KEY(n-1)+VALUE(n-1) |
//
// A slot is occupied once anything was written to it and readable while it
// holds a live entry. Occupied but not readable is a tombstone.
type HashTableBlockPage struct {
	keySize   int
	valueSize int
	numSlots  int
	buf       [PageSize]byte
}

// NewHashTableBlockPage returns an empty block for the given slot geometry.
func NewHashTableBlockPage(keySize, valueSize int) *HashTableBlockPage {
	return &HashTableBlockPage{
		keySize:   keySize,
		valueSize: valueSize,
		numSlots:  BlockArraySize(keySize + valueSize),
	}
}

// LoadBlockPage copies src into a new block view.
func LoadBlockPage(src []byte, keySize, valueSize int) *HashTableBlockPage {
	b := NewHashTableBlockPage(keySize, valueSize)
	copy(b.buf[:], src)
	return b
}

// FlattenInto writes the block back into dst.
func (b *HashTableBlockPage) FlattenInto(dst []byte) {
	copy(dst, b.buf[:])
}

// NumSlots is BlockArraySize for this block's geometry.
func (b *HashTableBlockPage) NumSlots() int {
	return b.numSlots
}

func (b *HashTableBlockPage) readableOffset() int {
	return bitmapBytes(b.numSlots)
}

func (b *HashTableBlockPage) slotOffset(index int) int {
	if index < 0 || index >= b.numSlots {
		panic(fmt.Sprintf("block page: slot %d out of range [0,%d)", index, b.numSlots))
	}
	return 2*bitmapBytes(b.numSlots) + index*(b.keySize+b.valueSize)
}

func (b *HashTableBlockPage) bit(base, index int) bool {
	return b.buf[base+index/8]&(1<<(index%8)) != 0
}

func (b *HashTableBlockPage) setBit(base, index int, on bool) {
	if on {
		b.buf[base+index/8] |= 1 << (index % 8)
	} else {
		b.buf[base+index/8] &^= 1 << (index % 8)
	}
}

// KeyAt returns a copy of the key bytes stored at index.
func (b *HashTableBlockPage) KeyAt(index int) []byte {
	off := b.slotOffset(index)
	key := make([]byte, b.keySize)
	copy(key, b.buf[off:off+b.keySize])
	return key
}

// ValueAt returns a copy of the value bytes stored at index.
func (b *HashTableBlockPage) ValueAt(index int) []byte {
	off := b.slotOffset(index) + b.keySize
	val := make([]byte, b.valueSize)
	copy(val, b.buf[off:off+b.valueSize])
	return val
}

// Insert writes key and value into index. It fails if the slot was ever
// occupied, tombstones included.
func (b *HashTableBlockPage) Insert(index int, key, value []byte) bool {
	if b.IsOccupied(index) {
		return false
	}
	if len(key) != b.keySize || len(value) != b.valueSize {
		panic(fmt.Sprintf("block page: entry is %d+%d bytes, slot is %d+%d",
			len(key), len(value), b.keySize, b.valueSize))
	}
	off := b.slotOffset(index)
	copy(b.buf[off:], key)
	copy(b.buf[off+b.keySize:], value)
	b.setBit(0, index, true)
	b.setBit(b.readableOffset(), index, true)
	return true
}

// Remove leaves a tombstone: readable is cleared, occupied stays set.
func (b *HashTableBlockPage) Remove(index int) {
	b.slotOffset(index)
	b.setBit(b.readableOffset(), index, false)
}

func (b *HashTableBlockPage) IsOccupied(index int) bool {
	b.slotOffset(index)
	return b.bit(0, index)
}

func (b *HashTableBlockPage) IsReadable(index int) bool {
	b.slotOffset(index)
	return b.bit(b.readableOffset(), index)
}

// NumReadable counts live entries in the block.
func (b *HashTableBlockPage) NumReadable() int {
	n := 0
	for i := 0; i < b.numSlots; i++ {
		if b.bit(b.readableOffset(), i) {
			n++
		}
	}
	return n
}
