package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probedb/pkg/storage/page"
)

func TestDiskManager(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "test.db")

	dm, err := NewDiskManager(dbFile)
	require.NoError(t, err)

	pid := dm.AllocatePage()
	assert.Equal(t, page.PageID(0), pid)

	p := page.NewPage()
	data := []byte("Hello Database World!")
	copy(p.Data[:], data)
	require.NoError(t, dm.WritePage(pid, p.Data[:]))

	p2 := page.NewPage()
	require.NoError(t, dm.ReadPage(pid, p2.Data[:]))
	assert.Equal(t, "Hello Database World!", string(p2.Data[:len(data)]))
	assert.Equal(t, uint64(1), dm.NumWrites())

	require.NoError(t, dm.Close())
}

func TestDiskManagerReopenKeepsPages(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "nested", "reopen.db")

	dm, err := NewDiskManager(dbFile)
	require.NoError(t, err)
	var buf [page.PageSize]byte
	for i := 0; i < 3; i++ {
		id := dm.AllocatePage()
		buf[0] = byte('a' + i)
		require.NoError(t, dm.WritePage(id, buf[:]))
	}
	require.NoError(t, dm.Close())

	dm, err = NewDiskManager(dbFile)
	require.NoError(t, err)
	defer dm.Close()

	assert.Equal(t, page.PageID(3), dm.AllocatePage())
	require.NoError(t, dm.ReadPage(1, buf[:]))
	assert.Equal(t, byte('b'), buf[0])
}

func TestDiskManagerUnwrittenPageReadsZero(t *testing.T) {
	dm, err := NewDiskManager(filepath.Join(t.TempDir(), "zero.db"))
	require.NoError(t, err)
	defer dm.Close()

	a := dm.AllocatePage()
	b := dm.AllocatePage()
	var buf [page.PageSize]byte
	buf[10] = 7
	require.NoError(t, dm.WritePage(a, buf[:]))

	// page b 分配了但从未写过
	buf[10] = 1
	require.NoError(t, dm.ReadPage(b, buf[:]))
	assert.Equal(t, [page.PageSize]byte{}, buf)

	assert.Error(t, dm.ReadPage(b+5, buf[:]))
	assert.ErrorIs(t, dm.ReadPage(a, buf[:10]), ErrShortPage)
}

func TestDiskManagerReusesDeallocatedPages(t *testing.T) {
	for name, dm := range map[string]DiskManager{
		"file":   mustFileDM(t),
		"memory": NewMemoryDiskManager(),
	} {
		t.Run(name, func(t *testing.T) {
			defer dm.Close()
			a := dm.AllocatePage()
			b := dm.AllocatePage()
			dm.DeallocatePage(a)
			dm.DeallocatePage(a)
			assert.Equal(t, a, dm.AllocatePage())
			assert.Equal(t, b+1, dm.AllocatePage())
		})
	}
}

func TestMemoryDiskManagerCopies(t *testing.T) {
	dm := NewMemoryDiskManager()
	id := dm.AllocatePage()

	var buf [page.PageSize]byte
	copy(buf[:], "first")
	require.NoError(t, dm.WritePage(id, buf[:]))
	copy(buf[:], "later")

	stored, ok := dm.PageBytes(id)
	require.True(t, ok)
	assert.Equal(t, "first", string(stored[:5]))

	require.NoError(t, dm.ReadPage(id, buf[:]))
	assert.Equal(t, "first", string(buf[:5]))
	assert.Equal(t, uint64(1), dm.NumReads())
	assert.Equal(t, uint64(1), dm.NumWrites())
	assert.Error(t, dm.ReadPage(id+1, buf[:]))
}

func mustFileDM(t *testing.T) *DiskManagerImpl {
	t.Helper()
	dm, err := NewDiskManager(filepath.Join(t.TempDir(), "reuse.db"))
	require.NoError(t, err)
	return dm
}
