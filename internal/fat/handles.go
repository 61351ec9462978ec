package fat

import (
	"github.com/kavionic/padosd/internal/padoserr"
)

// Open flag bits relevant to CheckAccess/OpenFile, mirroring the POSIX
// subset FATFilesystem.cpp actually inspects.
const (
	OAccMode = 0x3
	ORDOnly  = 0x0
	OWROnly  = 0x1
	ORDWR    = 0x2
	OTrunc   = 0x200
)

// OpenFile implements open_file(inode, openFlags) (spec §6.4): refuses
// writable flags against a read-only volume or a read-only file, and
// truncates the chain to zero length when O_TRUNC is set on a writable
// open.
func (v *Volume) OpenFile(n *Inode, openFlags int) (*FileHandle, error) {
	if n.IsDirectory() {
		return nil, padoserr.Wrap("fat.OpenFile", padoserr.IsDirectory, nil)
	}
	if err := v.CheckAccess(n, openFlags); err != nil {
		return nil, err
	}
	if openFlags&OTrunc != 0 && openFlags&OAccMode != ORDOnly {
		start, _, err := v.table.SetChainLength(n.StartCluster, uint32(mustChainLen(v, n)), 0)
		if err != nil {
			return nil, err
		}
		n.StartCluster = start
		n.EndCluster = 0
		n.Size = 0
		n.Iteration++
		if err := v.persistLocation(n); err != nil {
			return nil, err
		}
	}
	return &FileHandle{Inode: n, OpenFlags: openFlags, FATIteration: n.Iteration, CachedCluster: n.StartCluster}, nil
}

func mustChainLen(v *Volume, n *Inode) int {
	if n.StartCluster == 0 {
		return 0
	}
	l, err := v.table.GetChainLength(n.StartCluster)
	if err != nil {
		return 0
	}
	return l
}

// CloseFile releases a file handle. Actual inode teardown happens via
// ReleaseInode once the caller's reference count on the inode itself
// reaches zero; this only drops the handle's cursor state.
func (v *Volume) CloseFile(h *FileHandle) error {
	h.Inode = nil
	return nil
}

// OpenDirectory implements open_directory(inode) (spec §6.4).
func (v *Volume) OpenDirectory(n *Inode) (*DirHandle, error) {
	if !n.IsDirectory() {
		return nil, padoserr.Wrap("fat.OpenDirectory", padoserr.NotDirectory, nil)
	}
	return &DirHandle{Inode: n, CurrentIndex: 0}, nil
}

// CloseDirectory releases a directory handle's cursor state.
func (v *Volume) CloseDirectory(h *DirHandle) error {
	h.Inode = nil
	return nil
}

// RewindDirectory resets a directory cursor back to its first entry.
func (v *Volume) RewindDirectory(h *DirHandle) {
	h.CurrentIndex = 0
}

// ReadDirectory implements read_directory(dirNode) -> next entry (spec
// §6.4): advances the cursor by one logical entry (a short entry plus
// whatever LFN run preceded it), skipping the volume label.
func (v *Volume) ReadDirectory(h *DirHandle) (*DirEntryInfo, error) {
	data, err := v.readDirBytes(h.Inode)
	if err != nil {
		return nil, err
	}
	for {
		info, next, err := GetNextLFNEntry(data, h.CurrentIndex, func(msg string) { v.log.Warnf("%s", msg) })
		if err != nil {
			return nil, err
		}
		if info == nil {
			h.CurrentIndex = next
			return nil, nil
		}
		h.CurrentIndex = next
		if info.DOSAttribs&attrVolumeID != 0 {
			continue
		}
		return info, nil
	}
}

// CheckAccess implements check_access(inode, mode) (spec §6.4): a write
// intent is refused against a read-only volume or a read-only file.
func (v *Volume) CheckAccess(n *Inode, mode int) error {
	if mode&OAccMode != ORDOnly {
		if v.ReadOnly {
			return padoserr.Wrap("fat.CheckAccess", padoserr.ReadOnlyFilesystem, nil)
		}
		if n.DOSAttribs&attrReadOnly != 0 {
			return padoserr.Wrap("fat.CheckAccess", padoserr.NoPermission, nil)
		}
	}
	return nil
}

// Stat is the subset of POSIX stat fields a FAT inode can populate
// (spec §6.4's read_stat/write_stat).
type Stat struct {
	InodeID  InodeID
	IsDir    bool
	ReadOnly bool
	Size     uint64
	ModTime  int64
}

// ReadStat implements read_stat(inode) (spec §6.4).
func (v *Volume) ReadStat(n *Inode) Stat {
	return Stat{
		InodeID:  n.InodeID,
		IsDir:    n.IsDirectory(),
		ReadOnly: v.ReadOnly || n.DOSAttribs&attrReadOnly != 0,
		Size:     n.Size,
		ModTime:  n.ModTime,
	}
}

// WriteStat mask bits (spec §6.4's WSTAT_* constants).
const (
	WStatMode = 1 << iota
	WStatSize
	WStatModTime
)

// WriteStat implements write_stat(inode, stat, mask) (spec §6.4):
// toggles FAT_READ_ONLY, resizes the cluster chain (refusing a
// directory or an over-limit size), and/or rewrites the modification
// time. A size change is written to the inode's directory entry through
// persistLocation; mode and modification-time changes stay in the
// in-memory Inode.
func (v *Volume) WriteStat(n *Inode, st Stat, mask uint32) error {
	if v.ReadOnly {
		return padoserr.Wrap("fat.WriteStat", padoserr.ReadOnlyFilesystem, nil)
	}
	if mask&WStatMode != 0 {
		if st.ReadOnly {
			n.DOSAttribs |= attrReadOnly
		} else {
			n.DOSAttribs &^= attrReadOnly
		}
	}
	if mask&WStatSize != 0 {
		if n.IsDirectory() {
			return padoserr.Wrap("fat.WriteStat", padoserr.IsDirectory, nil)
		}
		const maxFileSize = 0xffffffff
		if st.Size > maxFileSize {
			return padoserr.Wrap("fat.WriteStat", padoserr.FileTooLarge, nil)
		}
		clusterBytes := uint64(v.ClusterBytes())
		clusters := uint32((st.Size + clusterBytes - 1) / clusterBytes)
		current := uint32(mustChainLen(v, n))
		start, end, err := v.table.SetChainLength(n.StartCluster, current, clusters)
		if err != nil {
			return err
		}
		n.StartCluster = start
		n.EndCluster = end
		n.Size = st.Size
		n.Iteration++
		if err := v.persistLocation(n); err != nil {
			return err
		}
	}
	if mask&WStatModTime != 0 {
		n.ModTime = st.ModTime
	}
	return nil
}

// FSStat is the subset of fs_info a FAT volume can populate (spec
// §6.4's read_fs_stat).
type FSStat struct {
	BlockSize   uint32
	TotalBlocks uint64
	FreeBlocks  uint64
	ReadOnly    bool
	VolumeName  string
}

// ReadFSStat implements read_fs_stat() (spec §6.4).
func (v *Volume) ReadFSStat() FSStat {
	return FSStat{
		BlockSize:   v.ClusterBytes(),
		TotalBlocks: uint64(v.TotalClusters),
		FreeBlocks:  uint64(v.FreeClusters),
		ReadOnly:    v.ReadOnly,
		VolumeName:  decodeOEMShortName(v.Super.VolumeLabel),
	}
}

// WriteFSStat implements write_fs_stat(), currently limited to renaming
// the volume label (the source's fi_volume_name path); everything else
// in fs_info is derived and cannot be set.
func (v *Volume) WriteFSStat(volumeName string) error {
	if v.ReadOnly {
		return padoserr.Wrap("fat.WriteFSStat", padoserr.ReadOnlyFilesystem, nil)
	}
	label, _, err := generateShortName(volumeName)
	if err != nil {
		return err
	}
	v.Super.VolumeLabel = label
	return nil
}

// ReadLink always fails: FAT has no symbolic link representation (spec
// §6.4, supplemented from the source's ReadLink stub).
func (v *Volume) ReadLink(n *Inode) (string, error) {
	return "", padoserr.Wrap("fat.ReadLink", padoserr.InvalidArg, nil)
}

// DeviceControl codes this driver understands.
const (
	DevctlGetDeviceGeometry = iota + 1
)

// DeviceControl implements the one ioctl FATFilesystem.cpp forwards to
// its backing device: DEVCTL_GET_DEVICE_GEOMETRY, supplemented from
// original_source's Probe()/Mount() geometry query (spec §6.4).
func (v *Volume) DeviceControl(code int) (any, error) {
	switch code {
	case DevctlGetDeviceGeometry:
		return v.Device.Geometry()
	default:
		return nil, padoserr.Wrap("fat.DeviceControl", padoserr.InvalidArg, nil)
	}
}
