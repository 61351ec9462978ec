// Package fat implements a FAT12/16/32 filesystem driver: superblock
// parsing, the FAT table, the directory iterator, and the VFS operation
// surface a volume manager would dispatch to (spec §3.2, §4.6-§4.8,
// §6.3-§6.4).
package fat

import (
	"sync"

	"github.com/kavionic/padosd/internal/blockcache"
	"github.com/kavionic/padosd/internal/logx"
)

// Cluster value classes, canonicalized into the 32-bit space regardless
// of the on-disk FATBits (spec §3.2's FATTableEntry).
const (
	ClusterFree = 0
	// BadCluster marks a cluster the driver must never allocate.
	BadCluster = 0x0FFFFFF7
	// EndOfChain and anything above it terminates a cluster chain.
	EndOfChain = 0x0FFFFFF8

	firstDataCluster = 2
)

// IsFixedRoot reports whether cluster is the sentinel value FAT12/16 use
// for "this is the fixed root directory, not a real cluster" (spec
// §3.2's IS_FIXED_ROOT).
func IsFixedRoot(cluster uint32) bool { return cluster == 1 }

// FSInfo mirrors the FAT32 FSInfo sector: a crash-recoverable cache of
// free_clusters and last_allocated_cluster, validated by three magic
// words (spec §4.6).
type FSInfo struct {
	FreeClusters        uint32
	LastAllocatedCluster uint32
}

const (
	fsInfoLeadSig      = 0x41615252
	fsInfoStructSig    = 0x61417272
	fsInfoTrailSig     = 0xaa550000
	fsInfoUnknownValue = 0xffffffff
)

// Superblock is the parsed BIOS parameter block plus the FAT-variant
// dependent tail, read once at mount time and treated as read-only
// afterward (spec §3.2's FATSuperBlock).
type Superblock struct {
	BytesPerSector    uint32
	SectorsPerCluster uint32
	ReservedSectors   uint32
	FATCount          uint32
	RootEntriesCount  uint32
	TotalSectors      uint64
	MediaDescriptor   byte
	SectorsPerFAT     uint32
	ActiveFAT         uint32
	FATMirrored       bool
	FATBits           int
	FSInfoSector      uint32
	RootCluster       uint32 // FAT32 only
	VolumeLabel       [11]byte
	MBRSignaturePresent bool
}

// Volume is the live, mounted state of one FAT filesystem: the parsed
// superblock, derived geometry, the shared block cache, and the
// in-memory inode-ID maps the driver needs because disk positions move
// under rename (spec §3.2's FATVolume).
type Volume struct {
	Device   blockcache.BlockDevice
	Cache    *blockcache.Cache
	BCache   *blockcache.BlockCache
	Super    Superblock

	FirstDataSector     uint32
	TotalClusters        uint32
	FreeClusters          uint32
	LastAllocatedCluster uint32

	RootStart       uint32 // FAT12/16 fixed root start sector
	RootSectorCount uint32 // FAT12/16 fixed root sector count
	RootCluster     uint32 // FAT32 root directory start cluster

	ReadOnly  bool
	Removable bool

	RootInode        *Inode
	VolumeLabelEntry int // directory index of the volume-label entry, or NoIndex

	idMap idMap

	table *Table

	mu  sync.Mutex
	log *logx.Logger
}

// IsDataCluster reports whether cluster addresses real file data, per
// spec §3.2's "a cluster c is a data cluster iff 2 <= c < total_clusters+2".
func (v *Volume) IsDataCluster(cluster uint32) bool {
	return cluster >= firstDataCluster && cluster < v.TotalClusters+firstDataCluster
}

// Table returns the volume's FAT table accessor.
func (v *Volume) Table() *Table { return v.table }

// ClusterBytes is the size in bytes of one allocation unit.
func (v *Volume) ClusterBytes() uint32 {
	return v.Super.BytesPerSector * v.Super.SectorsPerCluster
}

// ClusterToSector converts a data cluster number to its first sector on
// disk, per the invariant in spec §3.2.
func (v *Volume) ClusterToSector(cluster uint32) uint64 {
	return uint64(v.FirstDataSector) + uint64(cluster-firstDataCluster)*uint64(v.Super.SectorsPerCluster)
}
