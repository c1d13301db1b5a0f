package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"probedb/pkg/storage/disk"
)

func TestPageGuardReleasesPinOnce(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	bpm := NewBufferPoolManager(dm, 2, WithLogger(quietLogger()))

	g, err := bpm.NewPageGuard()
	require.NoError(t, err)
	id := g.PageID()
	copy(g.Data(), "guarded")

	count, _ := bpm.PinCount(id)
	assert.Equal(t, int32(1), count)

	require.NoError(t, g.Release())
	require.NoError(t, g.Release())
	count, _ = bpm.PinCount(id)
	assert.Equal(t, int32(0), count)
	assert.Panics(t, func() { g.Data() })

	read, err := bpm.FetchPageGuard(id)
	require.NoError(t, err)
	defer read.Release()
	assert.Equal(t, "guarded", string(read.Data()[:7]))
	assert.Same(t, read.Page(), g.Page())
}

func TestPageGuardMarkDirtyAndFlush(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	bpm := NewBufferPoolManager(dm, 2, WithLogger(quietLogger()))

	g, err := bpm.NewPageGuard()
	require.NoError(t, err)
	id := g.PageID()
	require.NoError(t, g.Flush())
	require.NoError(t, g.Release())
	writes := dm.NumWrites()

	g, err = bpm.FetchPageGuard(id)
	require.NoError(t, err)
	g.Page().WLatch()
	copy(g.Data(), "changed")
	g.Page().WUnlatch()
	g.MarkDirty()
	require.NoError(t, g.Flush())
	assert.Equal(t, writes+1, dm.NumWrites())

	onDisk, ok := dm.PageBytes(id)
	require.True(t, ok)
	assert.Equal(t, "changed", string(onDisk[:7]))

	require.NoError(t, g.Release())
	assert.False(t, g.Page().IsDirty())
}

func TestPageGuardDirtyOnRelease(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	bpm := NewBufferPoolManager(dm, 1, WithLogger(quietLogger()))

	g, err := bpm.NewPageGuard()
	require.NoError(t, err)
	id := g.PageID()
	require.NoError(t, g.Flush())
	require.NoError(t, g.Release())

	g, err = bpm.FetchPageGuard(id)
	require.NoError(t, err)
	copy(g.Data(), "late write")
	g.MarkDirty()
	require.NoError(t, g.Release())

	// 单 Frame 的池，新页会把它挤出去并写回
	other, err := bpm.NewPageGuard()
	require.NoError(t, err)
	require.NoError(t, other.Release())

	onDisk, ok := dm.PageBytes(id)
	require.True(t, ok)
	assert.Equal(t, "late write", string(onDisk[:10]))
}

func TestFlushWaitsForPageWriter(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	bpm := NewBufferPoolManager(dm, 2, WithLogger(quietLogger()))

	g, err := bpm.NewPageGuard()
	require.NoError(t, err)
	id := g.PageID()
	defer g.Release()

	var eg errgroup.Group
	eg.Go(func() error {
		for i := 0; i < 500; i++ {
			g.Page().WLatch()
			for j := range g.Data()[:64] {
				g.Data()[j] = byte(i)
			}
			g.Page().WUnlatch()
			bpm.markDirty(g.Page())
		}
		return nil
	})
	eg.Go(func() error {
		for i := 0; i < 100; i++ {
			if err := bpm.FlushPage(id); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, eg.Wait())

	// 每次写盘看到的都是完整的一次写入
	require.NoError(t, g.Flush())
	onDisk, ok := dm.PageBytes(id)
	require.True(t, ok)
	for j := 1; j < 64; j++ {
		assert.Equal(t, onDisk[0], onDisk[j])
	}
}
