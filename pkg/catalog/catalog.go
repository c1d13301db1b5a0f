package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"probedb/pkg/storage/page"
)

var (
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
)

// IndexMeta 定义一个哈希索引的元数据
type IndexMeta struct {
	Name         string
	HeaderPageID int32 // JSON 里存 int32，使用时转 PageID
	BucketCount  int
}

func (m IndexMeta) Header() page.PageID {
	return page.PageID(m.HeaderPageID)
}

// Catalog maps index names to the header page they can be reopened from. Every
// mutation rewrites the meta file.
type Catalog struct {
	mu       sync.RWMutex
	metaFile string
	indexes  map[string]*IndexMeta
}

// New loads metaFile if it exists. A missing file is an empty catalog.
func New(metaFile string) (*Catalog, error) {
	c := &Catalog{
		metaFile: metaFile,
		indexes:  make(map[string]*IndexMeta),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) load() error {
	data, err := os.ReadFile(c.metaFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", c.metaFile, err)
	}
	if err := json.Unmarshal(data, &c.indexes); err != nil {
		return fmt.Errorf("decode catalog %s: %w", c.metaFile, err)
	}
	if c.indexes == nil {
		c.indexes = make(map[string]*IndexMeta)
	}
	return nil
}

// save 先写临时文件再 rename，避免写到一半的 meta 文件
func (c *Catalog) save() error {
	data, err := json.MarshalIndent(c.indexes, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.metaFile), filepath.Base(c.metaFile)+".tmp*")
	if err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.metaFile); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

// CreateIndex 注册新索引
func (c *Catalog) CreateIndex(name string, headerPageID page.PageID, bucketCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.indexes[name]; exists {
		return fmt.Errorf("%q: %w", name, ErrIndexExists)
	}
	c.indexes[name] = &IndexMeta{
		Name:         name,
		HeaderPageID: int32(headerPageID),
		BucketCount:  bucketCount,
	}
	if err := c.save(); err != nil {
		delete(c.indexes, name)
		return err
	}
	return nil
}

func (c *Catalog) GetIndex(name string) (IndexMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.indexes[name]
	if !ok {
		return IndexMeta{}, false
	}
	return *meta, true
}

// UpdateHeader records the header page an index moved to after a resize.
func (c *Catalog) UpdateHeader(name string, headerPageID page.PageID, bucketCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.indexes[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrIndexNotFound)
	}
	old := *meta
	meta.HeaderPageID = int32(headerPageID)
	meta.BucketCount = bucketCount
	if err := c.save(); err != nil {
		*meta = old
		return err
	}
	return nil
}

func (c *Catalog) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.indexes[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrIndexNotFound)
	}
	delete(c.indexes, name)
	if err := c.save(); err != nil {
		c.indexes[name] = meta
		return err
	}
	return nil
}

// ListIndexes returns index names in sorted order.
func (c *Catalog) ListIndexes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.indexes))
	for name := range c.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
