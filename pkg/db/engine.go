package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"probedb/pkg/buffer"
	"probedb/pkg/catalog"
	"probedb/pkg/concurrency"
	"probedb/pkg/container/hash"
	"probedb/pkg/storage/disk"
	"probedb/pkg/storage/page"
)

var ErrNoIndexSelected = errors.New("no index selected, use 'use <name>' first")

// Index is the kind of table the engine serves: int64 keys to int64 values.
type Index = hash.LinearProbeHashTable[int64, int64]

type Config struct {
	DBFile         string
	MetaFile       string
	PoolSize       int
	DefaultBuckets int
	Logger         *slog.Logger
}

// Engine 持有所有会话共享的资源：磁盘、缓冲池、Catalog 和已经打开的索引
type Engine struct {
	DiskManager disk.DiskManager
	BPM         *buffer.BufferPoolManager
	Catalog     *catalog.Catalog

	logger         *slog.Logger
	defaultBuckets int

	mu      sync.Mutex
	indexes map[string]*Index
}

func Open(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dm, err := disk.NewDiskManager(cfg.DBFile)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.New(cfg.MetaFile)
	if err != nil {
		dm.Close()
		return nil, err
	}
	return &Engine{
		DiskManager:    dm,
		BPM:            buffer.NewBufferPoolManager(dm, cfg.PoolSize, buffer.WithLogger(logger)),
		Catalog:        cat,
		logger:         logger,
		defaultBuckets: cfg.DefaultBuckets,
		indexes:        make(map[string]*Index),
	}, nil
}

// onResize 让 Catalog 跟上新的 header page
func (e *Engine) onResize(name string) hash.Option {
	return hash.WithOnResize(func(header page.PageID, buckets int) {
		if err := e.Catalog.UpdateHeader(name, header, buckets); err != nil {
			e.logger.Error("catalog update after resize failed", "index", name, "err", err)
		}
	})
}

// CreateIndex 新建一个哈希索引并登记到 Catalog
func (e *Engine) CreateIndex(name string, buckets int) error {
	if buckets <= 0 {
		buckets = e.defaultBuckets
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.Catalog.GetIndex(name); ok {
		return fmt.Errorf("%q: %w", name, catalog.ErrIndexExists)
	}

	ht, err := hash.NewLinearProbeHashTable[int64, int64](
		e.BPM, hash.Int64Codec{}, hash.Int64Codec{}, hash.IntComparator[int64],
		buckets, nil, hash.WithLogger(e.logger), e.onResize(name))
	if err != nil {
		return err
	}
	if err := e.Catalog.CreateIndex(name, ht.HeaderPageID(), ht.BucketCount()); err != nil {
		ht.Destroy()
		return err
	}
	e.indexes[name] = ht
	e.logger.Info("index created", "index", name, "buckets", buckets, "header", ht.HeaderPageID())
	return nil
}

// index 返回已经打开的索引，没打开就按 Catalog 里的 header page 打开
func (e *Engine) index(name string) (*Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ht, ok := e.indexes[name]; ok {
		return ht, nil
	}
	meta, ok := e.Catalog.GetIndex(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, catalog.ErrIndexNotFound)
	}
	ht, err := hash.OpenLinearProbeHashTable[int64, int64](
		e.BPM, hash.Int64Codec{}, hash.Int64Codec{}, hash.IntComparator[int64],
		meta.Header(), nil, hash.WithLogger(e.logger), e.onResize(name))
	if err != nil {
		return nil, fmt.Errorf("open index %q: %w", name, err)
	}
	e.indexes[name] = ht
	return ht, nil
}

// DropIndex frees every page of the index and forgets it.
func (e *Engine) DropIndex(name string) error {
	ht, err := e.index(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.Catalog.DropIndex(name); err != nil {
		return err
	}
	delete(e.indexes, name)
	ht.Destroy()
	return nil
}

func (e *Engine) ListIndexes() []string {
	return e.Catalog.ListIndexes()
}

func (e *Engine) Flush() error {
	return e.BPM.FlushAllPages()
}

func (e *Engine) Stats() buffer.Stats {
	return e.BPM.Stats()
}

// Verify checks that every key in [from, to) maps to itself and returns the
// keys that don't. Ranges are split across workers goroutines.
func (e *Engine) Verify(ctx context.Context, name string, from, to int64, workers int) ([]int64, error) {
	ht, err := e.index(name)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}
	span := to - from
	if span <= 0 {
		return nil, nil
	}
	chunk := (span + int64(workers) - 1) / int64(workers)

	var mu sync.Mutex
	var bad []int64
	g, ctx := errgroup.WithContext(ctx)
	for lo := from; lo < to; lo += chunk {
		lo := lo
		hi := min(lo+chunk, to)
		g.Go(func() error {
			for k := lo; k < hi; k++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				vals, err := ht.GetValue(nil, k)
				if err != nil {
					return err
				}
				if !containsValue(vals, k) {
					mu.Lock()
					bad = append(bad, k)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verify %q: %w", name, err)
	}
	slices.Sort(bad)
	return bad, nil
}

func containsValue(vals []int64, v int64) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

// Close flushes every page and closes the database file.
func (e *Engine) Close() error {
	flushErr := e.BPM.FlushAllPages()
	closeErr := e.DiskManager.Close()
	return errors.Join(flushErr, closeErr)
}

// Session 是一个客户端的视图：共享 Engine，独享当前选中的索引
type Session struct {
	engine       *Engine
	txn          *concurrency.Transaction
	CurrentIndex string
}

func (e *Engine) NewSession() *Session {
	return &Session{engine: e, txn: concurrency.NewTransaction()}
}

func (s *Session) Engine() *Engine {
	return s.engine
}

func (s *Session) Use(name string) error {
	if _, err := s.engine.index(name); err != nil {
		return err
	}
	s.CurrentIndex = name
	return nil
}

func (s *Session) current() (*Index, error) {
	if s.CurrentIndex == "" {
		return nil, ErrNoIndexSelected
	}
	return s.engine.index(s.CurrentIndex)
}

func (s *Session) Insert(key, value int64) (bool, error) {
	ht, err := s.current()
	if err != nil {
		return false, err
	}
	return ht.Insert(s.txn, key, value)
}

func (s *Session) Get(key int64) ([]int64, error) {
	ht, err := s.current()
	if err != nil {
		return nil, err
	}
	return ht.GetValue(s.txn, key)
}

func (s *Session) Remove(key, value int64) (bool, error) {
	ht, err := s.current()
	if err != nil {
		return false, err
	}
	return ht.Remove(s.txn, key, value)
}

// Size reports entries and buckets of the current index.
func (s *Session) Size() (entries, buckets int, err error) {
	ht, err := s.current()
	if err != nil {
		return 0, 0, err
	}
	return ht.GetSize(), ht.BucketCount(), nil
}
