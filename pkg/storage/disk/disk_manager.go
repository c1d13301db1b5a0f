package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"probedb/pkg/storage/page"
)

var ErrShortPage = errors.New("page buffer is not PageSize bytes")

// DiskManager 负责管理磁盘上的数据页
type DiskManager interface {
	ReadPage(pageID page.PageID, data []byte) error
	WritePage(pageID page.PageID, data []byte) error
	AllocatePage() page.PageID
	DeallocatePage(pageID page.PageID)
	Close() error
}

type DiskManagerImpl struct {
	mu         sync.Mutex
	dbFile     *os.File
	fileName   string
	nextPageID page.PageID   // 追踪下一个可用的 PageID
	freePages  []page.PageID // 已释放、可以复用的 PageID
	numWrites  uint64
}

// NewDiskManager 启动时打开或创建数据库文件
func NewDiskManager(dbFileName string) (*DiskManagerImpl, error) {
	dir := filepath.Dir(dbFileName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(dbFileName, os.O_RDWR|os.O_CREATE, 0664)
	if err != nil {
		return nil, err
	}

	// 文件大小 8192 (2页) 意味着下一个 ID 是 2
	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &DiskManagerImpl{
		dbFile:     file,
		fileName:   dbFileName,
		nextPageID: page.PageID(fileInfo.Size() / page.PageSize),
	}, nil
}

func (d *DiskManagerImpl) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dbFile.Sync(); err != nil {
		return err
	}
	return d.dbFile.Close()
}

// ReadPage reads pageID into data. Pages allocated but never written read
// back as zeroes.
func (d *DiskManagerImpl) ReadPage(pageID page.PageID, data []byte) error {
	if len(data) != page.PageSize {
		return ErrShortPage
	}
	if pageID < 0 {
		return fmt.Errorf("read page %d: invalid page id", pageID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(pageID) * int64(page.PageSize)
	n, err := d.dbFile.ReadAt(data, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read page %d: %w", pageID, err)
	}
	if n < page.PageSize {
		if pageID >= d.nextPageID {
			return fmt.Errorf("read page %d: past end of file", pageID)
		}
		clear(data[n:])
	}
	return nil
}

// WritePage writes data as the contents of pageID.
func (d *DiskManagerImpl) WritePage(pageID page.PageID, data []byte) error {
	if len(data) != page.PageSize {
		return ErrShortPage
	}
	if pageID < 0 {
		return fmt.Errorf("write page %d: invalid page id", pageID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(pageID) * int64(page.PageSize)
	if _, err := d.dbFile.WriteAt(data, offset); err != nil {
		return fmt.Errorf("write page %d: %w", pageID, err)
	}
	d.numWrites++
	// 这里不 Sync，由 Close 统一刷盘
	return nil
}

// AllocatePage hands out a released id if one exists, otherwise appends.
func (d *DiskManagerImpl) AllocatePage() page.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := len(d.freePages); n > 0 {
		id := d.freePages[n-1]
		d.freePages = d.freePages[:n-1]
		return id
	}
	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage marks pageID reusable. The file is never shrunk.
func (d *DiskManagerImpl) DeallocatePage(pageID page.PageID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pageID < 0 || pageID >= d.nextPageID {
		return
	}
	for _, id := range d.freePages {
		if id == pageID {
			return
		}
	}
	d.freePages = append(d.freePages, pageID)
}

// NumWrites reports how many pages have been written since open.
func (d *DiskManagerImpl) NumWrites() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numWrites
}

func (d *DiskManagerImpl) FileName() string {
	return d.fileName
}
