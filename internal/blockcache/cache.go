package blockcache

import (
	"sync"

	"github.com/kavionic/padosd/internal/logx"
	"github.com/kavionic/padosd/internal/padoserr"
)

// blockFlags mirrors the source's CacheBlockHeader.flags bitset.
type blockFlags uint8

const (
	flagDirty blockFlags = 1 << iota
	flagFlushing
)

// CacheBlockHeader is one fixed-size buffer slot, on loan to at most one
// (device, sector) pair at a time. useCount is the RAII reference count
// the source keeps on the in-memory buffer; lruPrev/lruNext thread it
// through the process-wide MRU list.
type CacheBlockHeader struct {
	device BlockDevice
	sector uint64
	n      int // valid bytes in buf (== owning BlockCache.blockSize once loaded)

	useCount int32
	flags    blockFlags

	buf [MaxBlockSize]byte

	lruPrev, lruNext *CacheBlockHeader
	freeNext         *CacheBlockHeader
}

// BlockCache is the per-device view into the process-wide buffer pool:
// its own sector->header map, carved out of the shared Cache.
type BlockCache struct {
	cache     *Cache
	device    BlockDevice
	blockSize int
	blockMap  map[uint64]*CacheBlockHeader
}

// Cache is the process-wide block cache: a free_list of unused headers,
// an mru_list of headers currently bound to a sector, a device_map of
// per-device BlockCaches, and the global dirty_block_count the
// background flusher watches (spec §4.5).
type Cache struct {
	mu   sync.Mutex
	cond *sync.Cond

	headers []*CacheBlockHeader
	free    *CacheBlockHeader // head of the free stack

	mruHead, mruTail *CacheBlockHeader

	deviceMap map[BlockDevice]*BlockCache

	dirtyBlockCount int
	watermark       int

	flushSignal chan struct{}
	log         *logx.Logger
}

// New builds a Cache with capacity header slots and a background-flusher
// watermark (spec §4.5, §5's "condition-waits on dirty_block_count >
// watermark").
func New(capacity int, watermark int, log *logx.Logger) *Cache {
	if log == nil {
		log = logx.Default()
	}
	c := &Cache{
		headers:     make([]*CacheBlockHeader, 0, capacity),
		deviceMap:   make(map[BlockDevice]*BlockCache),
		watermark:   watermark,
		flushSignal: make(chan struct{}, 1),
		log:         log.With("blockcache"),
	}
	c.cond = sync.NewCond(&c.mu)
	for i := 0; i < capacity; i++ {
		h := &CacheBlockHeader{}
		c.headers = append(c.headers, h)
		h.freeNext = c.free
		c.free = h
	}
	return c
}

// Register binds dev to the cache under the given sector size, returning
// the per-device BlockCache used by every subsequent operation.
func (c *Cache) Register(dev BlockDevice, blockSize int) *BlockCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bc, ok := c.deviceMap[dev]; ok {
		return bc
	}
	bc := &BlockCache{cache: c, device: dev, blockSize: blockSize, blockMap: make(map[uint64]*CacheBlockHeader)}
	c.deviceMap[dev] = bc
	return bc
}

// Unregister drops dev's sector map and returns its headers to the free
// list, used on unmount.
func (c *Cache) Unregister(bc *BlockCache) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sector, h := range bc.blockMap {
		c.unlinkMRU(h)
		if h.flags&flagDirty != 0 {
			c.dirtyBlockCount--
		}
		h.flags = 0
		h.device = nil
		h.sector = 0
		delete(bc.blockMap, sector)
		h.freeNext = c.free
		c.free = h
	}
	delete(c.deviceMap, bc.device)
}

// Block is the scoped handle get_block returns: Bytes gives the caller
// the live buffer, Release drops the reference (spec §4.5's "descriptor
// is a scoped RAII handle: on drop use_count is decremented"). Go has no
// destructors, so callers must call Release explicitly — typically via
// defer immediately after a successful GetBlock.
type Block struct {
	bc  *BlockCache
	h   *CacheBlockHeader
	cap int
}

// Bytes returns the block's live buffer, sized to the device's sector
// size. Mutations are visible to every other holder of the same block
// until Release.
func (b *Block) Bytes() []byte { return b.h.buf[:b.cap] }

// Release decrements the block's use count. A block at use_count == 0 is
// eligible for eviction on a later GetBlock miss.
func (b *Block) Release() {
	c := b.bc.cache
	c.mu.Lock()
	b.h.useCount--
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Cache) moveToMRUHead(h *CacheBlockHeader) {
	c.unlinkMRU(h)
	h.lruPrev = nil
	h.lruNext = c.mruHead
	if c.mruHead != nil {
		c.mruHead.lruPrev = h
	}
	c.mruHead = h
	if c.mruTail == nil {
		c.mruTail = h
	}
}

func (c *Cache) unlinkMRU(h *CacheBlockHeader) {
	if h.lruPrev != nil {
		h.lruPrev.lruNext = h.lruNext
	} else if c.mruHead == h {
		c.mruHead = h.lruNext
	}
	if h.lruNext != nil {
		h.lruNext.lruPrev = h.lruPrev
	} else if c.mruTail == h {
		c.mruTail = h.lruPrev
	}
	h.lruPrev, h.lruNext = nil, nil
}

// evictOne finds and detaches a clean, unreferenced header from the LRU
// end of the mru_list, or reports that none is currently evictable.
// Invariant (spec §4.5): eviction requires use_count == 0 && !DIRTY; a
// FLUSHING block is never evicted regardless of use_count.
func (c *Cache) evictOne() (*CacheBlockHeader, bool, bool) {
	sawFlushing := false
	for h := c.mruTail; h != nil; h = h.lruPrev {
		if h.flags&flagFlushing != 0 {
			sawFlushing = true
			continue
		}
		if h.useCount == 0 && h.flags&flagDirty == 0 {
			return h, true, sawFlushing
		}
	}
	return nil, false, sawFlushing
}

// GetBlock implements get_block(sector, do_load) (spec §4.5): returns a
// cache hit bumped to the MRU head, or installs a free (possibly
// evicted) header and optionally loads it from bc.device. The returned
// Block must be Released by the caller.
func (bc *BlockCache) GetBlock(sector uint64, doLoad bool) (*Block, error) {
	c := bc.cache
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := bc.blockMap[sector]; ok {
		h.useCount++
		c.moveToMRUHead(h)
		if doLoad {
			if err := bc.load(h, sector); err != nil {
				h.useCount--
				return nil, err
			}
		}
		return &Block{bc: bc, h: h, cap: bc.blockSize}, nil
	}

	h := c.free
	if h != nil {
		c.free = h.freeNext
		h.freeNext = nil
	} else {
		for {
			evicted, ok, flushing := c.evictOne()
			if ok {
				c.unlinkMRU(evicted)
				if owner, ok := c.deviceMap[evicted.device]; ok {
					delete(owner.blockMap, evicted.sector)
				}
				h = evicted
				break
			}
			if !flushing {
				return nil, padoserr.Wrap("blockcache.GetBlock", padoserr.NoSpace, nil)
			}
			c.cond.Wait()
		}
	}

	h.device = bc.device
	h.sector = sector
	h.flags = 0
	h.useCount = 1
	if doLoad {
		if err := bc.load(h, sector); err != nil {
			h.useCount = 0
			h.freeNext = c.free
			c.free = h
			return nil, err
		}
	} else {
		h.n = bc.blockSize
	}
	bc.blockMap[sector] = h
	c.moveToMRUHead(h)
	return &Block{bc: bc, h: h, cap: bc.blockSize}, nil
}

// load reads one sector from bc.device into h's buffer. Caller holds
// c.mu.
func (bc *BlockCache) load(h *CacheBlockHeader, sector uint64) error {
	off := int64(sector) * int64(bc.blockSize)
	_, err := bc.device.ReadAt(h.buf[:bc.blockSize], off)
	if err != nil {
		return padoserr.Wrap("blockcache.load", padoserr.IOError, err)
	}
	h.n = bc.blockSize
	return nil
}

// MarkDirty implements mark_block_dirty(sector): sets DIRTY on a cached
// sector and increments the process-wide dirty count. The sector must
// already be resident (normally via an unreleased GetBlock).
func (bc *BlockCache) MarkDirty(sector uint64) error {
	c := bc.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := bc.blockMap[sector]
	if !ok {
		return padoserr.Wrap("blockcache.MarkDirty", padoserr.InvalidArg, nil)
	}
	if h.flags&flagDirty == 0 {
		h.flags |= flagDirty
		c.dirtyBlockCount++
	}
	c.cond.Broadcast()
	return nil
}

// cacheThreshold is the read/write size at or above which cached_read and
// cached_write bypass the per-sector buffer pool entirely and go
// straight to the device, per spec §4.5.
const cacheThreshold = 4 * MaxBlockSize

// CachedRead implements cached_read(sector, buf, n) (spec §4.5): large
// reads go straight to the device; everything else is served sector by
// sector through GetBlock so repeated small reads stay hot in the pool.
func (bc *BlockCache) CachedRead(sector uint64, buf []byte) error {
	n := len(buf)
	if n >= cacheThreshold {
		off := int64(sector) * int64(bc.blockSize)
		_, err := bc.device.ReadAt(buf, off)
		if err != nil {
			return padoserr.Wrap("blockcache.CachedRead", padoserr.IOError, err)
		}
		return nil
	}

	off := 0
	cur := sector
	for off < n {
		blk, err := bc.GetBlock(cur, true)
		if err != nil {
			return err
		}
		cp := copy(buf[off:], blk.Bytes())
		blk.Release()
		off += cp
		cur++
		if cp == 0 {
			return padoserr.Wrap("blockcache.CachedRead", padoserr.IOError, nil)
		}
	}
	return nil
}

// CachedWrite implements cached_write(sector, buf, n) (spec §4.5):
// symmetric with CachedRead, marking every touched sector dirty rather
// than writing through immediately.
func (bc *BlockCache) CachedWrite(sector uint64, buf []byte) error {
	n := len(buf)
	if n >= cacheThreshold {
		off := int64(sector) * int64(bc.blockSize)
		_, err := bc.device.WriteAt(buf, off)
		if err != nil {
			return padoserr.Wrap("blockcache.CachedWrite", padoserr.IOError, err)
		}
		return nil
	}

	off := 0
	cur := sector
	for off < n {
		partial := n-off < bc.blockSize
		blk, err := bc.GetBlock(cur, partial)
		if err != nil {
			return err
		}
		cp := copy(blk.Bytes(), buf[off:])
		blk.Release()
		if err := bc.MarkDirty(cur); err != nil {
			return err
		}
		off += cp
		cur++
	}
	return nil
}

// Flush implements flush(): writes every DIRTY header belonging to bc's
// device back to disk, marking it FLUSHING for the duration so GetBlock
// cannot evict it mid-write, and clears DIRTY on success.
func (bc *BlockCache) Flush() error {
	c := bc.cache
	c.mu.Lock()
	var dirty []*CacheBlockHeader
	for _, h := range bc.blockMap {
		if h.flags&flagDirty != 0 {
			h.flags |= flagFlushing
			dirty = append(dirty, h)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, h := range dirty {
		off := int64(h.sector) * int64(bc.blockSize)
		if _, err := bc.device.WriteAt(h.buf[:bc.blockSize], off); err != nil {
			c.mu.Lock()
			h.flags &^= flagFlushing
			c.mu.Unlock()
			if firstErr == nil {
				firstErr = padoserr.Wrap("blockcache.Flush", padoserr.IOError, err)
			}
			c.log.Errorf("flush sector %d failed: %v", h.sector, err)
			continue
		}
		c.mu.Lock()
		h.flags &^= flagDirty | flagFlushing
		c.dirtyBlockCount--
		c.mu.Unlock()
	}
	c.cond.Broadcast()
	return firstErr
}

// FlushAll flushes every registered device, stopping at the first error
// (used by a volume-wide Sync).
func (c *Cache) FlushAll() error {
	c.mu.Lock()
	devs := make([]*BlockCache, 0, len(c.deviceMap))
	for _, bc := range c.deviceMap {
		devs = append(devs, bc)
	}
	c.mu.Unlock()
	for _, bc := range devs {
		if err := bc.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// DirtyBlockCount reports the process-wide dirty_block_count the
// background flusher watches.
func (c *Cache) DirtyBlockCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyBlockCount
}

// RunFlusher condition-waits on dirty_block_count exceeding the cache's
// watermark and flushes every device when it does, per spec §5's
// "background flusher condition-waits on s_dirty_block_count >
// watermark". It returns when stop is closed.
func (c *Cache) RunFlusher(stop <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		<-stop
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
		close(done)
	}()

	for {
		c.mu.Lock()
		for c.dirtyBlockCount <= c.watermark {
			select {
			case <-done:
				c.mu.Unlock()
				return
			default:
			}
			c.cond.Wait()
		}
		c.mu.Unlock()

		select {
		case <-done:
			return
		default:
		}

		if err := c.FlushAll(); err != nil {
			c.log.Warnf("background flush: %v", err)
		}
	}
}
