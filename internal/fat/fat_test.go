package fat

import (
	"encoding/binary"
	"testing"

	"github.com/kavionic/padosd/internal/blockcache"
)

// memDevice is an in-memory BlockDevice standing in for a disk image,
// the same shape as blockcache's own test fake.
type memDevice struct {
	sectorSize int
	data       []byte
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, d.data[off:])
	return n, nil
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	n := copy(d.data[off:], p)
	return n, nil
}

func (d *memDevice) Geometry() (blockcache.Geometry, error) {
	return blockcache.Geometry{BytesPerSector: uint32(d.sectorSize), SectorCount: uint64(len(d.data) / d.sectorSize)}, nil
}

// newFAT12Image builds a minimal, valid FAT12 boot sector over a
// totalClusters-cluster volume: one FAT, a 16-entry (one-sector) fixed
// root, media descriptor 0xf8 with the MBR signature validateSuperblock
// requires it to carry.
func newFAT12Image(t *testing.T, totalClusters uint32) *memDevice {
	t.Helper()
	const (
		bytesPerSector    = 512
		sectorsPerCluster = 1
		reservedSectors   = 1
		fatCount          = 1
		rootEntries       = 16
	)
	fatEntries := totalClusters + 2
	fatBytes := (fatEntries*3 + 1) / 2
	sectorsPerFAT := (fatBytes + bytesPerSector - 1) / bytesPerSector
	rootSectors := uint32(rootEntries*dirEntrySize+bytesPerSector-1) / bytesPerSector
	firstDataSector := reservedSectors + fatCount*sectorsPerFAT + rootSectors
	totalSectors := firstDataSector + totalClusters*sectorsPerCluster

	dev := &memDevice{sectorSize: bytesPerSector, data: make([]byte, uint64(totalSectors)*bytesPerSector)}
	b := dev.data

	copy(b[0x03:0x0b], []byte("MSDOS5.0"))
	binary.LittleEndian.PutUint16(b[offBytesPerSector:], bytesPerSector)
	b[offSectorsPerCluster] = sectorsPerCluster
	binary.LittleEndian.PutUint16(b[offReservedSectors:], reservedSectors)
	b[offFATCount] = fatCount
	binary.LittleEndian.PutUint16(b[offRootEntriesCount:], rootEntries)
	binary.LittleEndian.PutUint16(b[offTotalSectors16:], uint16(totalSectors))
	b[offMediaDescriptor] = 0xf8
	binary.LittleEndian.PutUint16(b[offSectorsPerFAT16:], uint16(sectorsPerFAT))
	binary.LittleEndian.PutUint16(b[offBootSignature:], bootSignatureVal)

	// FAT12 cluster 0/1 reserved entries: media descriptor + all-ones.
	fatStart := reservedSectors * bytesPerSector
	b[fatStart] = 0xf8
	b[fatStart+1] = 0xff
	b[fatStart+2] = 0xff

	return dev
}

func mountTestVolume(t *testing.T, dev *memDevice) *Volume {
	t.Helper()
	cache := blockcache.New(64, 1<<20, nil)
	v, err := Mount(dev, cache, false, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return v
}

func TestMountParsesGeometry(t *testing.T) {
	dev := newFAT12Image(t, 100)
	v := mountTestVolume(t, dev)

	if v.Super.FATBits != 12 {
		t.Fatalf("FATBits = %d, want 12", v.Super.FATBits)
	}
	if v.TotalClusters != 100 {
		t.Fatalf("TotalClusters = %d, want 100", v.TotalClusters)
	}
	if !v.RootInode.IsDirectory() {
		t.Fatalf("root inode is not a directory")
	}
}

func TestCreateWriteReadFile(t *testing.T) {
	dev := newFAT12Image(t, 100)
	v := mountTestVolume(t, dev)

	n, err := v.CreateFile(v.RootInode, "HELLO.TXT", attrArchive)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	payload := []byte("hello, padOS")
	if _, err := v.Write(n, 0, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n.Size != uint64(len(payload)) {
		t.Fatalf("Size = %d, want %d", n.Size, len(payload))
	}

	out := make([]byte, len(payload))
	nr, err := v.Read(n, 0, out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if nr != len(payload) || string(out) != string(payload) {
		t.Fatalf("Read = %q, want %q", out[:nr], payload)
	}

	entries, err := v.ListDir(v.RootInode)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Name == "HELLO.TXT" {
			found = true
		}
	}
	if !found {
		t.Fatalf("HELLO.TXT missing from root listing: %+v", entries)
	}
}

func TestCreateDirectoryAndNestedFile(t *testing.T) {
	dev := newFAT12Image(t, 100)
	v := mountTestVolume(t, dev)

	dir, err := v.CreateDirectory(v.RootInode, "SUBDIR")
	if err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if !dir.IsDirectory() {
		t.Fatalf("created node is not a directory")
	}

	entries, err := v.ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir(subdir): %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names["."] || !names[".."] {
		t.Fatalf(". and .. missing from new directory: %+v", entries)
	}

	child, err := v.CreateFile(dir, "NOTE.TXT", attrArchive)
	if err != nil {
		t.Fatalf("CreateFile in subdir: %v", err)
	}
	if _, err := v.Write(child, 0, []byte("x")); err != nil {
		t.Fatalf("Write in subdir: %v", err)
	}

	if err := v.RemoveDirectory(v.RootInode, dir); err == nil {
		t.Fatalf("RemoveDirectory should refuse a non-empty directory")
	}

	if err := v.Unlink(dir, child); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := v.RemoveDirectory(v.RootInode, dir); err != nil {
		t.Fatalf("RemoveDirectory after emptying: %v", err)
	}
}

func TestRenamePreservesInodeID(t *testing.T) {
	dev := newFAT12Image(t, 100)
	v := mountTestVolume(t, dev)

	n, err := v.CreateFile(v.RootInode, "OLD.TXT", attrArchive)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if _, err := v.Write(n, 0, []byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	originalID := n.InodeID

	if err := v.Rename(v.RootInode, v.RootInode, n, "NEW.TXT"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if n.InodeID != originalID {
		t.Fatalf("rename changed inode ID: %v -> %v", originalID, n.InodeID)
	}

	entries, err := v.ListDir(v.RootInode)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	var sawOld, sawNew bool
	for _, e := range entries {
		switch e.Name {
		case "OLD.TXT":
			sawOld = true
		case "NEW.TXT":
			sawNew = true
		}
	}
	if sawOld || !sawNew {
		t.Fatalf("rename did not replace directory entry: %+v", entries)
	}
}

func TestFreeClusterAccounting(t *testing.T) {
	dev := newFAT12Image(t, 1000)
	v := mountTestVolume(t, dev)

	before := v.FreeClusters

	n, err := v.CreateFile(v.RootInode, "BIG.BIN", attrArchive)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	clusterBytes := int(v.ClusterBytes())
	payload := make([]byte, clusterBytes*3+clusterBytes/2)
	if _, err := v.Write(n, 0, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, want := before-v.FreeClusters, uint32(4); got != want {
		t.Fatalf("free clusters consumed = %d, want %d", got, want)
	}

	if err := v.WriteStat(n, Stat{Size: 0}, WStatSize); err != nil {
		t.Fatalf("WriteStat truncate: %v", err)
	}
	if v.FreeClusters != before {
		t.Fatalf("free clusters after truncate = %d, want %d", v.FreeClusters, before)
	}
}
