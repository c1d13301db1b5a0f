package hash

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"probedb/pkg/buffer"
	"probedb/pkg/concurrency"
	"probedb/pkg/storage/page"
)

var (
	ErrTableTooLarge = errors.New("hash table needs more block pages than a header page can list")
	ErrCorruptHeader = errors.New("hash table header does not match key/value layout")
	ErrTableDropped  = errors.New("hash table was destroyed")
)

// LinearProbeHashTable is a disk-backed hash table with open addressing. A
// header page lists the block pages; buckets are laid out across the blocks in
// order. Every page access goes through the buffer pool.
//
// Insert, Remove and GetValue share the table latch and latch block pages one
// at a time. Resize holds the table latch exclusively while it moves every
// entry into a table of twice the size.
type LinearProbeHashTable[K any, V comparable] struct {
	bpm        *buffer.BufferPoolManager
	keyCodec   Codec[K]
	valueCodec Codec[V]
	cmp        Comparator[K]
	hashFn     HashFunction[K]
	logger     *slog.Logger
	onResize   func(page.PageID, int)

	tableLatch *xsync.RBMutex

	// 以下字段只在持有 tableLatch 写锁时修改
	headerPageID  page.PageID
	numBuckets    int
	blockPageIDs  []page.PageID
	slotsPerBlock int

	size atomic.Int64
}

// NewLinearProbeHashTable allocates a header page and every block page for a
// table of numBuckets buckets.
func NewLinearProbeHashTable[K any, V comparable](
	bpm *buffer.BufferPoolManager,
	keyCodec Codec[K],
	valueCodec Codec[V],
	cmp Comparator[K],
	numBuckets int,
	hashFn HashFunction[K],
	opts ...Option,
) (*LinearProbeHashTable[K, V], error) {
	if numBuckets <= 0 {
		return nil, fmt.Errorf("hash table: bucket count must be positive, got %d", numBuckets)
	}
	ht := newTable(bpm, keyCodec, valueCodec, cmp, hashFn, opts)

	headerID, blocks, err := ht.createGeneration(numBuckets)
	if err != nil {
		return nil, err
	}
	ht.headerPageID = headerID
	ht.numBuckets = numBuckets
	ht.blockPageIDs = blocks
	return ht, nil
}

// OpenLinearProbeHashTable reattaches to a table persisted under headerPageID.
// hashFn and the codecs must be the ones the table was built with.
func OpenLinearProbeHashTable[K any, V comparable](
	bpm *buffer.BufferPoolManager,
	keyCodec Codec[K],
	valueCodec Codec[V],
	cmp Comparator[K],
	headerPageID page.PageID,
	hashFn HashFunction[K],
	opts ...Option,
) (*LinearProbeHashTable[K, V], error) {
	ht := newTable(bpm, keyCodec, valueCodec, cmp, hashFn, opts)

	g, err := bpm.FetchPageGuard(headerPageID)
	if err != nil {
		return nil, fmt.Errorf("open hash table: %w", err)
	}
	g.Page().RLatch()
	header, err := page.DecodeHeaderPage(g.Data())
	g.Page().RUnlatch()
	g.Release()
	if err != nil {
		return nil, fmt.Errorf("open hash table at page %d: %w: %w", headerPageID, ErrCorruptHeader, err)
	}

	numBuckets := header.GetSize()
	if numBuckets <= 0 || header.GetPageID() != headerPageID ||
		header.NumBlocks() != ht.blocksFor(numBuckets) {
		return nil, fmt.Errorf("open hash table at page %d: %w", headerPageID, ErrCorruptHeader)
	}
	ht.headerPageID = headerPageID
	ht.numBuckets = numBuckets
	ht.blockPageIDs = header.BlockPageIDs()

	// entry count isn't persisted; count the live slots
	var live int64
	for _, id := range ht.blockPageIDs {
		block, err := ht.readBlock(id)
		if err != nil {
			return nil, fmt.Errorf("open hash table: %w", err)
		}
		live += int64(block.NumReadable())
	}
	ht.size.Store(live)
	return ht, nil
}

func newTable[K any, V comparable](
	bpm *buffer.BufferPoolManager,
	keyCodec Codec[K],
	valueCodec Codec[V],
	cmp Comparator[K],
	hashFn HashFunction[K],
	opts []Option,
) *LinearProbeHashTable[K, V] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if hashFn == nil {
		hashFn = NewHashFunction(keyCodec)
	}
	return &LinearProbeHashTable[K, V]{
		bpm:           bpm,
		keyCodec:      keyCodec,
		valueCodec:    valueCodec,
		cmp:           cmp,
		hashFn:        hashFn,
		logger:        o.logger,
		onResize:      o.onResize,
		tableLatch:    xsync.NewRBMutex(),
		slotsPerBlock: page.BlockArraySize(keyCodec.Size() + valueCodec.Size()),
	}
}

// GetValue returns every value stored under key.
func (ht *LinearProbeHashTable[K, V]) GetValue(txn *concurrency.Transaction, key K) ([]V, error) {
	tok := ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock(tok)
	if ht.numBuckets == 0 {
		return nil, ErrTableDropped
	}
	key, _ = ht.normalizeKey(key)

	var result []V
	_, err := ht.probe(key, false, func(b *page.HashTableBlockPage, slot int) (bool, bool) {
		if !b.IsOccupied(slot) {
			return true, false
		}
		if b.IsReadable(slot) && ht.cmp(key, ht.keyCodec.Decode(b.KeyAt(slot))) == 0 {
			result = append(result, ht.valueCodec.Decode(b.ValueAt(slot)))
		}
		return false, false
	})
	if err != nil {
		return nil, fmt.Errorf("get value: %w", err)
	}
	return result, nil
}

// Insert adds (key, value). It returns false without error when the exact pair
// is already present. A full table is doubled first.
func (ht *LinearProbeHashTable[K, V]) Insert(txn *concurrency.Transaction, key K, value V) (bool, error) {
	for {
		tok := ht.tableLatch.RLock()
		observed := ht.numBuckets
		if observed == 0 {
			ht.tableLatch.RUnlock(tok)
			return false, ErrTableDropped
		}
		if int(ht.size.Load()) >= observed {
			ht.tableLatch.RUnlock(tok)
			if err := ht.Resize(observed); err != nil {
				return false, err
			}
			continue
		}

		inserted, full, err := ht.insertLocked(key, value)
		ht.tableLatch.RUnlock(tok)
		if err != nil {
			return false, fmt.Errorf("insert: %w", err)
		}
		if full {
			// 没有从未使用过的槽位（墓碑太多），扩容后重试
			if err := ht.Resize(observed); err != nil {
				return false, err
			}
			continue
		}
		return inserted, nil
	}
}

// insertLocked runs the probe for Insert against the current generation.
// full reports a wrap-around without a free slot or a match.
func (ht *LinearProbeHashTable[K, V]) insertLocked(key K, value V) (inserted, full bool, err error) {
	key, kb := ht.normalizeKey(key)
	value, vb := ht.normalizeValue(value)

	duplicate := false
	_, err = ht.probe(key, true, func(b *page.HashTableBlockPage, slot int) (bool, bool) {
		if b.IsReadable(slot) &&
			ht.cmp(key, ht.keyCodec.Decode(b.KeyAt(slot))) == 0 &&
			ht.valueCodec.Decode(b.ValueAt(slot)) == value {
			duplicate = true
			return true, false
		}
		if b.Insert(slot, kb, vb) {
			inserted = true
			return true, true
		}
		return false, false
	})
	if err != nil {
		return false, false, err
	}
	if inserted {
		ht.size.Add(1)
	}
	return inserted, !inserted && !duplicate, nil
}

// Remove deletes (key, value), leaving a tombstone in its slot.
func (ht *LinearProbeHashTable[K, V]) Remove(txn *concurrency.Transaction, key K, value V) (bool, error) {
	tok := ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock(tok)
	if ht.numBuckets == 0 {
		return false, ErrTableDropped
	}
	key, _ = ht.normalizeKey(key)
	value, _ = ht.normalizeValue(value)

	removed := false
	_, err := ht.probe(key, true, func(b *page.HashTableBlockPage, slot int) (bool, bool) {
		if !b.IsOccupied(slot) {
			return true, false
		}
		if b.IsReadable(slot) &&
			ht.cmp(key, ht.keyCodec.Decode(b.KeyAt(slot))) == 0 &&
			ht.valueCodec.Decode(b.ValueAt(slot)) == value {
			b.Remove(slot)
			removed = true
			return true, true
		}
		return false, false
	})
	if err != nil {
		return false, fmt.Errorf("remove: %w", err)
	}
	if removed {
		ht.size.Add(-1)
	}
	return removed, nil
}

// normalizeKey returns key as it reads back from a block, plus its encoding.
// Comparisons against stored keys must use this form: a codec may pad.
func (ht *LinearProbeHashTable[K, V]) normalizeKey(key K) (K, []byte) {
	kb := make([]byte, ht.keyCodec.Size())
	ht.keyCodec.Encode(kb, key)
	return ht.keyCodec.Decode(kb), kb
}

func (ht *LinearProbeHashTable[K, V]) normalizeValue(value V) (V, []byte) {
	vb := make([]byte, ht.valueCodec.Size())
	ht.valueCodec.Encode(vb, value)
	return ht.valueCodec.Decode(vb), vb
}

// probe visits buckets in linear probing order starting at hash(key), each
// bucket at most once. Buckets are grouped by block page: a block is fetched,
// latched (exclusively when exclusive is set) and copied out once, visit runs
// over its slots, and the block is written back if visit changed it. visit
// returns (stop, modified). probe reports whether visit asked to stop.
func (ht *LinearProbeHashTable[K, V]) probe(
	key K,
	exclusive bool,
	visit func(b *page.HashTableBlockPage, slot int) (stop, modified bool),
) (bool, error) {
	bucket := int(ht.hashFn(key) % uint64(ht.numBuckets))
	visited := 0
	for visited < ht.numBuckets {
		blockIdx := bucket / ht.slotsPerBlock
		first := bucket % ht.slotsPerBlock
		limit := ht.bucketsInBlock(blockIdx)

		stopped, n, err := ht.visitBlock(blockIdx, first, limit, ht.numBuckets-visited, exclusive, visit)
		if err != nil {
			return false, err
		}
		if stopped {
			return true, nil
		}
		visited += n
		bucket = (blockIdx + 1) * ht.slotsPerBlock
		if bucket >= ht.numBuckets {
			bucket = 0
		}
	}
	return false, nil
}

// visitBlock runs visit over slots [first, limit) of one block, at most budget
// of them, and returns how many slots it looked at.
func (ht *LinearProbeHashTable[K, V]) visitBlock(
	blockIdx, first, limit, budget int,
	exclusive bool,
	visit func(b *page.HashTableBlockPage, slot int) (bool, bool),
) (stopped bool, n int, err error) {
	pageID := ht.blockPageIDs[blockIdx]
	g, err := ht.bpm.FetchPageGuard(pageID)
	if err != nil {
		return false, 0, fmt.Errorf("block %d (page %d): %w", blockIdx, pageID, err)
	}
	defer g.Release()

	p := g.Page()
	if exclusive {
		p.WLatch()
		defer p.WUnlatch()
	} else {
		p.RLatch()
		defer p.RUnlatch()
	}

	block := page.LoadBlockPage(g.Data(), ht.keyCodec.Size(), ht.valueCodec.Size())
	modified := false
	for slot := first; slot < limit && n < budget; slot++ {
		n++
		stop, mod := visit(block, slot)
		modified = modified || mod
		if stop {
			stopped = true
			break
		}
	}
	if modified {
		if !exclusive {
			panic("hash: block modified under a shared latch")
		}
		block.FlattenInto(g.Data())
		g.MarkDirty()
	}
	return stopped, n, nil
}

// Resize doubles the table. initialSize is the bucket count the caller saw
// when it decided to grow; if another thread has resized since, the call is
// a no-op and the caller just retries its operation.
func (ht *LinearProbeHashTable[K, V]) Resize(initialSize int) error {
	ht.tableLatch.Lock()
	defer ht.tableLatch.Unlock()

	if ht.numBuckets != initialSize {
		return nil
	}
	if initialSize == 0 {
		return ErrTableDropped
	}
	newBuckets := 2 * initialSize

	oldHeader := ht.headerPageID
	oldBlocks := ht.blockPageIDs
	oldSize := ht.size.Load()

	headerID, blocks, err := ht.createGeneration(newBuckets)
	if err != nil {
		return fmt.Errorf("resize to %d buckets: %w", newBuckets, err)
	}
	ht.headerPageID = headerID
	ht.numBuckets = newBuckets
	ht.blockPageIDs = blocks
	ht.size.Store(0)

	if err := ht.migrate(oldBlocks); err != nil {
		// 回滚到旧的一代，新分配的页全部删除
		ht.headerPageID = oldHeader
		ht.numBuckets = initialSize
		ht.blockPageIDs = oldBlocks
		ht.size.Store(oldSize)
		ht.deletePages(append([]page.PageID{headerID}, blocks...))
		return fmt.Errorf("resize to %d buckets: %w", newBuckets, err)
	}

	ht.deletePages(append([]page.PageID{oldHeader}, oldBlocks...))
	ht.logger.Info("hash table resized",
		"from", initialSize, "to", newBuckets,
		"header", headerID, "entries", ht.size.Load())
	if ht.onResize != nil {
		ht.onResize(headerID, newBuckets)
	}
	return nil
}

// migrate reinserts every live entry of the old blocks into the current
// generation. Only one page is pinned at a time.
func (ht *LinearProbeHashTable[K, V]) migrate(oldBlocks []page.PageID) error {
	for _, id := range oldBlocks {
		block, err := ht.readBlock(id)
		if err != nil {
			return err
		}
		for slot := 0; slot < block.NumSlots(); slot++ {
			if !block.IsReadable(slot) {
				continue
			}
			key := ht.keyCodec.Decode(block.KeyAt(slot))
			value := ht.valueCodec.Decode(block.ValueAt(slot))
			_, full, err := ht.insertLocked(key, value)
			if err != nil {
				return err
			}
			if full {
				return fmt.Errorf("no free bucket for migrated entry from page %d", id)
			}
		}
	}
	return nil
}

// createGeneration allocates a header page and the block pages for a table
// of numBuckets buckets. On failure every page it allocated is deleted.
func (ht *LinearProbeHashTable[K, V]) createGeneration(numBuckets int) (page.PageID, []page.PageID, error) {
	numBlocks := ht.blocksFor(numBuckets)
	if numBlocks > page.MaxBlockPageIDs {
		return page.InvalidPageID, nil, fmt.Errorf("%d buckets: %w", numBuckets, ErrTableTooLarge)
	}

	hg, err := ht.bpm.NewPageGuard()
	if err != nil {
		return page.InvalidPageID, nil, fmt.Errorf("allocate header page: %w", err)
	}
	defer hg.Release()

	headerID := hg.PageID()
	header := page.NewHashTableHeaderPage(headerID, numBuckets)
	blocks := make([]page.PageID, 0, numBlocks)
	for i := 0; i < numBlocks; i++ {
		bg, err := ht.bpm.NewPageGuard()
		if err != nil {
			hg.Release()
			ht.deletePages(append([]page.PageID{headerID}, blocks...))
			return page.InvalidPageID, nil, fmt.Errorf("allocate block page %d of %d: %w", i, numBlocks, err)
		}
		// 新页已经清零，就是一个空的 block
		id := bg.PageID()
		bg.Release()
		blocks = append(blocks, id)
		if err := header.AddBlockPageID(id); err != nil {
			panic(err)
		}
	}

	hg.Page().WLatch()
	header.Encode(hg.Data())
	hg.Page().WUnlatch()
	hg.MarkDirty()
	return headerID, blocks, nil
}

func (ht *LinearProbeHashTable[K, V]) readBlock(pageID page.PageID) (*page.HashTableBlockPage, error) {
	g, err := ht.bpm.FetchPageGuard(pageID)
	if err != nil {
		return nil, fmt.Errorf("read block page %d: %w", pageID, err)
	}
	defer g.Release()
	g.Page().RLatch()
	defer g.Page().RUnlatch()
	return page.LoadBlockPage(g.Data(), ht.keyCodec.Size(), ht.valueCodec.Size()), nil
}

func (ht *LinearProbeHashTable[K, V]) deletePages(ids []page.PageID) {
	for _, id := range ids {
		if err := ht.bpm.DeletePage(id); err != nil {
			ht.logger.Warn("hash table: could not delete page", "page", id, "err", err)
		}
	}
}

func (ht *LinearProbeHashTable[K, V]) blocksFor(numBuckets int) int {
	return (numBuckets-1)/ht.slotsPerBlock + 1
}

func (ht *LinearProbeHashTable[K, V]) bucketsInBlock(blockIdx int) int {
	return min(ht.slotsPerBlock, ht.numBuckets-blockIdx*ht.slotsPerBlock)
}

// Destroy deletes every page of the table. Later calls on the table return
// ErrTableDropped.
func (ht *LinearProbeHashTable[K, V]) Destroy() {
	ht.tableLatch.Lock()
	defer ht.tableLatch.Unlock()
	if ht.numBuckets == 0 {
		return
	}
	ht.deletePages(append([]page.PageID{ht.headerPageID}, ht.blockPageIDs...))
	ht.headerPageID = page.InvalidPageID
	ht.numBuckets = 0
	ht.blockPageIDs = nil
	ht.size.Store(0)
}

// GetSize returns the number of live entries.
func (ht *LinearProbeHashTable[K, V]) GetSize() int {
	return int(ht.size.Load())
}

// BucketCount returns the number of buckets in the current generation.
func (ht *LinearProbeHashTable[K, V]) BucketCount() int {
	tok := ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock(tok)
	return ht.numBuckets
}

// HeaderPageID is the page to pass to OpenLinearProbeHashTable. It changes
// on every resize.
func (ht *LinearProbeHashTable[K, V]) HeaderPageID() page.PageID {
	tok := ht.tableLatch.RLock()
	defer ht.tableLatch.RUnlock(tok)
	return ht.headerPageID
}
