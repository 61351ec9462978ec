package fat

// InodeID is a stable 64-bit handle into a FAT volume's directory
// structure. Disk positions cannot serve directly as inode IDs because
// renaming moves a file's directory entry (spec §3.2).
type InodeID uint64

const (
	inodeKindDirCluster = 0
	inodeKindDirIndex   = 1
	inodeKindArtificial = 2

	inodeKindShift = 62
	inodeKindMask  = InodeID(0x3) << inodeKindShift
	inodeValueMask = ^inodeKindMask
)

// DirClusterInodeID builds the ID for an entry whose data chain is
// non-empty: keyed by (parent directory cluster, start cluster).
func DirClusterInodeID(parentDirCluster, startCluster uint32) InodeID {
	return (InodeID(inodeKindDirCluster) << inodeKindShift) | (InodeID(parentDirCluster)<<32 | InodeID(startCluster))&inodeValueMask
}

// DirIndexInodeID builds the ID for a zero-size entry with no data
// cluster yet: keyed by (parent directory cluster, directory entry
// index).
func DirIndexInodeID(parentDirCluster uint32, entryIndex int) InodeID {
	return (InodeID(inodeKindDirIndex) << inodeKindShift) | (InodeID(parentDirCluster)<<32 | InodeID(uint32(entryIndex)))&inodeValueMask
}

// newArtificialInodeID wraps a counter-allocated ID for the case where
// two different files would otherwise collide on the encodings above.
func newArtificialInodeID(counter uint64) InodeID {
	return (InodeID(inodeKindArtificial) << inodeKindShift) | (InodeID(counter) & inodeValueMask)
}

func (id InodeID) kind() int       { return int(id >> inodeKindShift) }
func (id InodeID) isDirCluster() bool { return id.kind() == inodeKindDirCluster }
func (id InodeID) isDirIndex() bool   { return id.kind() == inodeKindDirIndex }
func (id InodeID) isArtificial() bool { return id.kind() == inodeKindArtificial }

// clusterOf and indexOf decompose a DIR_CLUSTER/DIR_INDEX-form ID back
// into its parent directory cluster and cluster-or-index component.
func (id InodeID) parentDirCluster() uint32 { return uint32((id & inodeValueMask) >> 32) }
func (id InodeID) clusterOf() uint32        { return uint32(id & 0xffffffff) }
func (id InodeID) indexOf() int             { return int(uint32(id & 0xffffffff)) }

// Inode is the in-memory representation of one file or directory entry
// (spec §3.2's FATInode). iteration is bumped on any chain-changing
// write so a cached file-handle cursor can detect staleness.
type Inode struct {
	InodeID       InodeID
	ParentInodeID InodeID
	DirStartIndex int
	DirEndIndex   int
	StartCluster  uint32
	EndCluster    uint32
	Size          uint64
	ModTime       int64 // unix seconds, converted via FATTimeToUnix
	DOSAttribs    byte
	Iteration     uint64
	Deleted       bool
}

// IsDirectory reports whether the inode names a directory, per its
// DOS_ATTRIBS bit.
func (n *Inode) IsDirectory() bool { return n.DOSAttribs&attrDirectory != 0 }

// FileHandle is the open-file state (spec §3.2's FATFileNode): the open
// flags plus chain-cursor fields that OpenFile initializes. Read and
// Write take the Inode and walk the chain from its start cluster, so
// FATIteration, FATChainIndex and CachedCluster are never consulted.
type FileHandle struct {
	Inode          *Inode
	OpenFlags      int
	FATIteration   uint64
	FATChainIndex  uint32
	CachedCluster  uint32
}

// DirHandle is the open-directory cursor state (spec §3.2's
// FATDirectoryNode).
type DirHandle struct {
	Inode        *Inode
	CurrentIndex int
}
