package page

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockArraySizeFitsInPage(t *testing.T) {
	for _, slot := range []int{2, 8, 12, 16, 24, 40, 72, 136} {
		n := BlockArraySize(slot)
		assert.Greater(t, n, 0)
		assert.LessOrEqual(t, 2*((n-1)/8+1)+n*slot, PageSize, "slot size %d", slot)
		// one more slot must not fit
		assert.Greater(t, 2*(n/8+1)+(n+1)*slot, PageSize, "slot size %d", slot)
	}
	assert.Equal(t, 496, BlockArraySize(8))
}

func TestHeaderPageRoundTrip(t *testing.T) {
	rawPage := NewPage()

	header := NewHashTableHeaderPage(7, 1100)
	header.SetLSN(42)
	for i := 0; i < 3; i++ {
		require.NoError(t, header.AddBlockPageID(PageID(100+i)))
	}
	header.Encode(rawPage.Data[:])

	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(rawPage.Data[OffsetHeaderLSN:]))
	assert.Equal(t, uint32(1100), binary.LittleEndian.Uint32(rawPage.Data[OffsetHeaderSize:]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(rawPage.Data[OffsetHeaderNextFreeSlot:]))

	decoded, err := DecodeHeaderPage(rawPage.Data[:])
	require.NoError(t, err)
	assert.Equal(t, PageID(7), decoded.GetPageID())
	assert.Equal(t, int32(42), decoded.GetLSN())
	assert.Equal(t, 1100, decoded.GetSize())
	assert.Equal(t, 3, decoded.NumBlocks())
	assert.Equal(t, []PageID{100, 101, 102}, decoded.BlockPageIDs())
	assert.Equal(t, PageID(102), decoded.GetBlockPageID(2))

	// 修改解码后的副本不影响原始页面
	require.NoError(t, decoded.AddBlockPageID(103))
	again, err := DecodeHeaderPage(rawPage.Data[:])
	require.NoError(t, err)
	assert.Equal(t, 3, again.NumBlocks())
}

func TestHeaderPageDirectoryLimit(t *testing.T) {
	header := NewHashTableHeaderPage(0, 0)
	for i := 0; i < MaxBlockPageIDs; i++ {
		require.NoError(t, header.AddBlockPageID(PageID(i)))
	}
	assert.ErrorIs(t, header.AddBlockPageID(PageID(MaxBlockPageIDs)), ErrHeaderFull)

	rawPage := NewPage()
	header.Encode(rawPage.Data[:])
	decoded, err := DecodeHeaderPage(rawPage.Data[:])
	require.NoError(t, err)
	assert.Equal(t, MaxBlockPageIDs, decoded.NumBlocks())
}

func TestDecodeHeaderPageRejectsCorruptSlot(t *testing.T) {
	rawPage := NewPage()
	binary.LittleEndian.PutUint32(rawPage.Data[OffsetHeaderNextFreeSlot:], MaxBlockPageIDs+1)
	_, err := DecodeHeaderPage(rawPage.Data[:])
	assert.Error(t, err)
}

func TestBlockPageInsertRemove(t *testing.T) {
	block := NewHashTableBlockPage(4, 4)
	key := []byte{1, 0, 0, 0}
	val := []byte{9, 0, 0, 0}

	assert.False(t, block.IsOccupied(5))
	assert.True(t, block.Insert(5, key, val))
	assert.True(t, block.IsOccupied(5))
	assert.True(t, block.IsReadable(5))
	assert.Equal(t, key, block.KeyAt(5))
	assert.Equal(t, val, block.ValueAt(5))

	// occupied slot can't be reused
	assert.False(t, block.Insert(5, val, key))

	block.Remove(5)
	assert.True(t, block.IsOccupied(5), "tombstone keeps occupied")
	assert.False(t, block.IsReadable(5))
	assert.False(t, block.Insert(5, key, val))
	assert.Equal(t, 0, block.NumReadable())

	last := block.NumSlots() - 1
	assert.True(t, block.Insert(last, key, val))
	assert.Equal(t, 1, block.NumReadable())
	assert.Panics(t, func() { block.IsOccupied(block.NumSlots()) })
}

func TestBlockPageFlattenAndLoad(t *testing.T) {
	rawPage := NewPage()
	block := LoadBlockPage(rawPage.Data[:], 8, 8)
	for i := 0; i < 10; i++ {
		k := make([]byte, 8)
		v := make([]byte, 8)
		binary.LittleEndian.PutUint64(k, uint64(i))
		binary.LittleEndian.PutUint64(v, uint64(i*10))
		require.True(t, block.Insert(i*3, k, v))
	}
	block.Remove(3)

	// 写回之前页面本身不应该改变
	assert.Equal(t, [PageSize]byte{}, rawPage.Data)
	block.FlattenInto(rawPage.Data[:])

	reloaded := LoadBlockPage(rawPage.Data[:], 8, 8)
	assert.Equal(t, 9, reloaded.NumReadable())
	assert.True(t, reloaded.IsOccupied(3))
	assert.False(t, reloaded.IsReadable(3))
	assert.Equal(t, uint64(90), binary.LittleEndian.Uint64(reloaded.ValueAt(27)))
	assert.False(t, reloaded.IsOccupied(1))
}
