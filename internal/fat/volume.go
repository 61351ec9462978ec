package fat

import (
	"sync"

	"github.com/kavionic/padosd/internal/blockcache"
	"github.com/kavionic/padosd/internal/logx"
	"github.com/kavionic/padosd/internal/padoserr"
)

// idMap holds the three in-memory maps a volume needs because renaming
// moves a file's directory entry and so cannot be used directly as a
// stable inode ID (spec §3.2). Guarded by its own reader-writer lock per
// spec §5's "reader-writer inode_id_map_mutex".
type idMap struct {
	mu              sync.RWMutex
	inodeToLocation map[InodeID]InodeID
	locationToInode map[InodeID]InodeID
	dirClusterToID  map[uint32]InodeID
	nextArtificial  uint64
}

func newIDMap() idMap {
	return idMap{
		inodeToLocation: make(map[InodeID]InodeID),
		locationToInode: make(map[InodeID]InodeID),
		dirClusterToID:  make(map[uint32]InodeID),
	}
}

func (m *idMap) resolveLocation(id InodeID) InodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if loc, ok := m.inodeToLocation[id]; ok {
		return loc
	}
	return id
}

func (m *idMap) bind(id, location InodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inodeToLocation[id] = location
	m.locationToInode[location] = id
}

func (m *idMap) unbind(id InodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loc, ok := m.inodeToLocation[id]; ok {
		delete(m.locationToInode, loc)
		delete(m.inodeToLocation, id)
	}
}

func (m *idMap) newArtificial() InodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextArtificial++
	return newArtificialInodeID(m.nextArtificial)
}

// isBound reports whether location is already claimed by some other
// live inode, the collision create_file must check before minting a
// DIR_INDEX-form ID straight from a fresh directory slot.
func (m *idMap) isBound(location InodeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.locationToInode[location]
	return ok
}

func (m *idMap) dirInodeID(cluster uint32) (InodeID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.dirClusterToID[cluster]
	return id, ok
}

func (m *idMap) setDirInodeID(cluster uint32, id InodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirClusterToID[cluster] = id
}

// Flags describes FS identity for a mounted volume (spec §4.8's
// FSVolumeFlags): persistent, block-based, possibly read-only or
// removable, and whether it can be the boot/root mount.
type Flags struct {
	Persistent bool
	BlockBased bool
	ReadOnly   bool
	Removable  bool
	CanMount   bool
}

func legalMediaDescriptor(b byte) bool {
	return b == 0xf0 || b >= 0xf8
}

// Probe reads the first sector of dev and reports whether it looks like
// a mountable FAT volume, without building a Volume (spec §6.4's probe).
func Probe(dev blockcache.BlockDevice) (bool, error) {
	first := make([]byte, 512)
	if _, err := dev.ReadAt(first, 0); err != nil {
		return false, padoserr.Wrap("fat.Probe", padoserr.IOError, err)
	}
	if isNTFSOrHPFS(first) {
		return false, nil
	}
	sb, err := ParseSuperblock(first)
	if err != nil {
		return false, nil
	}
	return validateSuperblock(sb, first) == nil, nil
}

func validateSuperblock(sb Superblock, first []byte) error {
	switch sb.BytesPerSector {
	case 512, 1024, 2048:
	default:
		return padoserr.Wrap("fat.validateSuperblock", padoserr.InvalidArg, nil)
	}
	if sb.FATCount < 1 || sb.FATCount > 8 {
		return padoserr.Wrap("fat.validateSuperblock", padoserr.InvalidArg, nil)
	}
	if !legalMediaDescriptor(sb.MediaDescriptor) {
		return padoserr.Wrap("fat.validateSuperblock", padoserr.InvalidArg, nil)
	}
	if sb.MediaDescriptor == 0xf8 && !sb.MBRSignaturePresent {
		return padoserr.Wrap("fat.validateSuperblock", padoserr.InvalidArg, nil)
	}
	if isNTFSOrHPFS(first) {
		return padoserr.Wrap("fat.validateSuperblock", padoserr.InvalidArg, nil)
	}
	return nil
}

// Mount validates the first sector, parses the superblock, derives
// geometry, and builds a ready-to-use Volume, per spec §4.8's mount-time
// checks: sector size in {512,1024,2048}, fat_count in 1..8, a legal
// media descriptor, an MBR signature on hard-disk descriptors, and
// rejection of NTFS/HPFS OEM IDs.
func Mount(dev blockcache.BlockDevice, cache *blockcache.Cache, readOnly bool, log *logx.Logger) (*Volume, error) {
	if log == nil {
		log = logx.Default()
	}
	log = log.With("fat")

	first := make([]byte, 512)
	if _, err := dev.ReadAt(first, 0); err != nil {
		return nil, padoserr.Wrap("fat.Mount", padoserr.IOError, err)
	}
	sb, err := ParseSuperblock(first)
	if err != nil {
		return nil, err
	}
	if err := validateSuperblock(sb, first); err != nil {
		log.Errorf("mount: superblock failed validation: %v", err)
		return nil, err
	}

	geom, err := dev.Geometry()
	if err != nil {
		return nil, padoserr.Wrap("fat.Mount", padoserr.IOError, err)
	}

	v := &Volume{
		Device:           dev,
		Cache:            cache,
		Super:            sb,
		ReadOnly:         readOnly || geom.ReadOnly,
		Removable:        geom.Removable,
		idMap:            newIDMap(),
		VolumeLabelEntry: NoIndex,
		log:              log,
	}
	v.BCache = cache.Register(dev, int(sb.BytesPerSector))
	v.table = NewTable(v)

	v.RootSectorCount = (sb.RootEntriesCount*dirEntrySize + sb.BytesPerSector - 1) / sb.BytesPerSector
	v.FirstDataSector = sb.ReservedSectors + sb.FATCount*sb.SectorsPerFAT + v.RootSectorCount
	if sb.TotalSectors < uint64(v.FirstDataSector) {
		return nil, padoserr.Wrap("fat.Mount", padoserr.InvalidArg, nil)
	}
	v.TotalClusters = uint32((sb.TotalSectors - uint64(v.FirstDataSector)) / uint64(sb.SectorsPerCluster))
	v.Super.FATBits = classifyFATBits(v.TotalClusters)

	if v.Super.FATBits == 32 {
		v.RootCluster = sb.RootCluster
	} else {
		v.RootStart = sb.ReservedSectors + sb.FATCount*sb.SectorsPerFAT
	}

	free, err := v.table.CountFreeClusters()
	if err != nil {
		log.Warnf("mount: recounting free clusters: %v", err)
	} else {
		v.FreeClusters = free
	}
	v.LastAllocatedCluster = firstDataCluster

	root, err := v.loadRootInode()
	if err != nil {
		return nil, err
	}
	v.RootInode = root

	return v, nil
}

// Unmount flushes and releases a volume's block-cache registration.
func (v *Volume) Unmount() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.BCache.Flush()
	v.Cache.Unregister(v.BCache)
	return err
}

// Sync implements sync(): flushes every dirty sector belonging to this
// volume's device.
func (v *Volume) Sync() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.BCache.Flush()
}

func (v *Volume) loadRootInode() (*Inode, error) {
	if v.Super.FATBits == 32 {
		n := &Inode{
			InodeID:      DirClusterInodeID(0, v.RootCluster),
			StartCluster: v.RootCluster,
			DOSAttribs:   attrDirectory,
		}
		length, err := v.table.GetChainLength(v.RootCluster)
		if err != nil {
			return nil, err
		}
		n.Size = uint64(length) * uint64(v.ClusterBytes())
		v.idMap.setDirInodeID(v.RootCluster, n.InodeID)
		return n, nil
	}
	n := &Inode{
		InodeID:      DirClusterInodeID(0, 1),
		StartCluster: 1, // IS_FIXED_ROOT sentinel
		DOSAttribs:   attrDirectory,
		Size:         uint64(v.RootSectorCount) * uint64(v.Super.BytesPerSector),
	}
	v.idMap.setDirInodeID(1, n.InodeID)
	return n, nil
}

// readDirBytes returns the full byte content of a directory: the fixed
// root sectors for FAT12/16, or the cluster chain's data otherwise.
func (v *Volume) readDirBytes(dirInode *Inode) ([]byte, error) {
	if IsFixedRoot(dirInode.StartCluster) {
		buf := make([]byte, v.RootSectorCount*v.Super.BytesPerSector)
		if err := v.BCache.CachedRead(uint64(v.RootStart), buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	length, err := v.table.GetChainLength(dirInode.StartCluster)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, uint32(length)*v.ClusterBytes())
	cur := dirInode.StartCluster
	clusterBytes := v.ClusterBytes()
	for i := 0; i < length; i++ {
		sector := v.ClusterToSector(cur)
		if err := v.BCache.CachedRead(sector, buf[uint32(i)*clusterBytes:uint32(i+1)*clusterBytes]); err != nil {
			return nil, err
		}
		if i < length-1 {
			cur, err = v.table.GetEntry(cur)
			if err != nil {
				return nil, err
			}
		}
	}
	return buf, nil
}

// writeDirBytes writes data back to a directory's storage, sector by
// sector, at the same positions readDirBytes would have read them from.
func (v *Volume) writeDirBytes(dirInode *Inode, data []byte) error {
	if IsFixedRoot(dirInode.StartCluster) {
		if len(data) != int(v.RootSectorCount*v.Super.BytesPerSector) {
			return padoserr.Wrap("fat.writeDirBytes", padoserr.InvalidArg, nil)
		}
		return v.BCache.CachedWrite(uint64(v.RootStart), data)
	}
	clusterBytes := v.ClusterBytes()
	cur := dirInode.StartCluster
	off := uint32(0)
	for off < uint32(len(data)) {
		sector := v.ClusterToSector(cur)
		end := off + clusterBytes
		if end > uint32(len(data)) {
			end = uint32(len(data))
		}
		if err := v.BCache.CachedWrite(sector, data[off:end]); err != nil {
			return err
		}
		off = end
		if off < uint32(len(data)) {
			next, err := v.table.GetEntry(cur)
			if err != nil {
				return err
			}
			cur = next
		}
	}
	return nil
}
