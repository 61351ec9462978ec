package blockcache

import (
	"bytes"
	"testing"
)

// memDevice is an in-memory BlockDevice for exercising the cache without
// a real file.
type memDevice struct {
	sectorSize int
	data       []byte
}

func newMemDevice(sectors, sectorSize int) *memDevice {
	return &memDevice{sectorSize: sectorSize, data: make([]byte, sectors*sectorSize)}
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, d.data[off:])
	return n, nil
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	n := copy(d.data[off:], p)
	return n, nil
}

func (d *memDevice) Geometry() (Geometry, error) {
	return Geometry{BytesPerSector: uint32(d.sectorSize), SectorCount: uint64(len(d.data) / d.sectorSize)}, nil
}

func TestGetBlockCacheHitReusesBuffer(t *testing.T) {
	dev := newMemDevice(16, 512)
	copy(dev.data[512:], []byte("hello sector one"))

	c := New(4, 100, nil)
	bc := c.Register(dev, 512)

	b1, err := bc.GetBlock(1, true)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if !bytes.HasPrefix(b1.Bytes(), []byte("hello sector one")) {
		t.Fatalf("unexpected sector contents: %q", b1.Bytes()[:16])
	}
	b1.Release()

	b2, err := bc.GetBlock(1, false)
	if err != nil {
		t.Fatalf("GetBlock hit: %v", err)
	}
	defer b2.Release()
	if !bytes.HasPrefix(b2.Bytes(), []byte("hello sector one")) {
		t.Fatalf("cache hit lost contents: %q", b2.Bytes()[:16])
	}
}

func TestGetBlockEvictsCleanLRU(t *testing.T) {
	dev := newMemDevice(16, 512)
	c := New(2, 100, nil)
	bc := c.Register(dev, 512)

	b0, err := bc.GetBlock(0, true)
	if err != nil {
		t.Fatalf("GetBlock(0): %v", err)
	}
	b0.Release()
	b1, err := bc.GetBlock(1, true)
	if err != nil {
		t.Fatalf("GetBlock(1): %v", err)
	}
	b1.Release()

	// both slots used and released (use_count 0, clean); a third sector
	// must evict the LRU one (sector 0) rather than fail.
	b2, err := bc.GetBlock(2, true)
	if err != nil {
		t.Fatalf("GetBlock(2) after eviction: %v", err)
	}
	defer b2.Release()

	if _, ok := bc.blockMap[0]; ok {
		t.Fatalf("sector 0 should have been evicted")
	}
	if _, ok := bc.blockMap[2]; !ok {
		t.Fatalf("sector 2 should be resident")
	}
}

func TestMarkDirtyAndFlushWritesThrough(t *testing.T) {
	dev := newMemDevice(16, 512)
	c := New(4, 100, nil)
	bc := c.Register(dev, 512)

	b, err := bc.GetBlock(3, true)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	copy(b.Bytes(), []byte("dirty payload"))
	b.Release()

	if err := bc.MarkDirty(3); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if got := c.DirtyBlockCount(); got != 1 {
		t.Fatalf("dirty count = %d, want 1", got)
	}

	if err := bc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := c.DirtyBlockCount(); got != 0 {
		t.Fatalf("dirty count after flush = %d, want 0", got)
	}
	if !bytes.HasPrefix(dev.data[3*512:], []byte("dirty payload")) {
		t.Fatalf("flush did not reach the device")
	}
}

func TestCachedWriteMarksDirtyAndCachedReadSeesIt(t *testing.T) {
	dev := newMemDevice(16, 512)
	c := New(4, 100, nil)
	bc := c.Register(dev, 512)

	payload := bytes.Repeat([]byte{0xAB}, 512)
	if err := bc.CachedWrite(5, payload); err != nil {
		t.Fatalf("CachedWrite: %v", err)
	}
	if c.DirtyBlockCount() != 1 {
		t.Fatalf("expected write to mark sector dirty")
	}

	out := make([]byte, 512)
	if err := bc.CachedRead(5, out); err != nil {
		t.Fatalf("CachedRead: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("cached read did not see uncommitted write")
	}
}

func TestCachedReadLargeBypassesCache(t *testing.T) {
	dev := newMemDevice(32, 512)
	for i := range dev.data {
		dev.data[i] = byte(i)
	}
	c := New(4, 100, nil)
	bc := c.Register(dev, 512)

	out := make([]byte, cacheThreshold)
	if err := bc.CachedRead(0, out); err != nil {
		t.Fatalf("CachedRead: %v", err)
	}
	if !bytes.Equal(out, dev.data[:cacheThreshold]) {
		t.Fatalf("large read did not match device contents")
	}
	if len(bc.blockMap) != 0 {
		t.Fatalf("large read should bypass the cache, got %d resident blocks", len(bc.blockMap))
	}
}

func TestUnregisterReturnsHeadersToFreeList(t *testing.T) {
	dev := newMemDevice(4, 512)
	c := New(2, 100, nil)
	bc := c.Register(dev, 512)

	b, err := bc.GetBlock(0, true)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	b.Release()
	c.Unregister(bc)

	dev2 := newMemDevice(4, 512)
	bc2 := c.Register(dev2, 512)
	for i := 0; i < 2; i++ {
		b, err := bc2.GetBlock(uint64(i), true)
		if err != nil {
			t.Fatalf("GetBlock after unregister reused capacity: %v", err)
		}
		b.Release()
	}
}
