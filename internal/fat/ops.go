package fat

import "github.com/kavionic/padosd/internal/padoserr"

// CreateFile implements the inode-ID side of create_file (spec §4.8): a
// new inode gets inode_id = DIR_INDEX_INODEID(parent, start_index); on
// a collision with an existing mapping an artificial ID is allocated
// instead and bound through inode_to_location.
func (v *Volume) CreateFile(parent *Inode, name string, attribs byte) (*Inode, error) {
	if v.ReadOnly {
		return nil, padoserr.Wrap("fat.CreateFile", padoserr.ReadOnlyFilesystem, nil)
	}
	entry, err := v.CreateEntry(parent, name, attribs, 0, 0)
	if err != nil {
		return nil, err
	}

	location := DirIndexInodeID(parent.StartCluster, entry.StartIndex)
	id := location
	if v.idMap.isBound(location) {
		id = v.idMap.newArtificial()
		v.idMap.bind(id, location)
	}

	return &Inode{
		InodeID:       id,
		ParentInodeID: parent.InodeID,
		DirStartIndex: entry.StartIndex,
		DirEndIndex:   entry.EndIndex,
		DOSAttribs:    attribs,
	}, nil
}

// CreateDirectory allocates one cluster for the new directory's
// contents (zeroed, so get_next_lfn_entry sees an immediate
// end-of-directory), writes "." and ".." entries, then creates the
// parent-side directory entry.
func (v *Volume) CreateDirectory(parent *Inode, name string) (*Inode, error) {
	if v.ReadOnly {
		return nil, padoserr.Wrap("fat.CreateDirectory", padoserr.ReadOnlyFilesystem, nil)
	}
	start, err := v.table.AllocateClusters(1)
	if err != nil {
		return nil, err
	}

	clusterBytes := v.ClusterBytes()
	buf := make([]byte, clusterBytes)
	var dot, dotdot rawShortEntry
	copy(dot.name[:], []byte(".          "))
	dot.attribs = attrDirectory
	setStartCluster(&dot, start)
	copy(dotdot.name[:], []byte("..         "))
	dotdot.attribs = attrDirectory
	parentStart := parent.StartCluster
	if IsFixedRoot(parentStart) {
		parentStart = 0
	}
	setStartCluster(&dotdot, parentStart)
	dot.encode(buf[0:dirEntrySize])
	dotdot.encode(buf[dirEntrySize : 2*dirEntrySize])

	if err := v.BCache.CachedWrite(v.ClusterToSector(start), buf); err != nil {
		return nil, err
	}

	entry, err := v.CreateEntry(parent, name, attrDirectory, start, 0)
	if err != nil {
		_ = v.table.ClearFatChain(start)
		return nil, err
	}

	id := DirClusterInodeID(parent.StartCluster, start)
	v.idMap.setDirInodeID(start, id)

	return &Inode{
		InodeID:       id,
		ParentInodeID: parent.InodeID,
		DirStartIndex: entry.StartIndex,
		DirEndIndex:   entry.EndIndex,
		StartCluster:  start,
		EndCluster:    start,
		DOSAttribs:    attrDirectory,
	}, nil
}

// Rename implements the directory-entry side of rename (spec §4.8):
// create a new entry in the destination directory, erase the old one,
// rekey the inode-ID mapping, and, if the renamed entry is itself a
// directory, fix up its ".." entry.
func (v *Volume) Rename(oldParent, newParent *Inode, node *Inode, newName string) error {
	if v.ReadOnly {
		return padoserr.Wrap("fat.Rename", padoserr.ReadOnlyFilesystem, nil)
	}
	if existing, err := v.FindEntry(newParent, newName); err != nil {
		return err
	} else if existing != nil {
		return padoserr.Wrap("fat.Rename", padoserr.Exist, nil)
	}

	entry, err := v.CreateEntry(newParent, newName, node.DOSAttribs, node.StartCluster, uint32(node.Size))
	if err != nil {
		return err
	}
	if err := v.EraseEntryRun(oldParent, node.DirStartIndex, node.DirEndIndex); err != nil {
		return err
	}
	if err := v.CompactDirectory(oldParent); err != nil {
		v.log.Warnf("rename: compacting old parent: %v", err)
	}

	var newLocation InodeID
	if node.StartCluster != 0 {
		newLocation = DirClusterInodeID(newParent.StartCluster, node.StartCluster)
	} else {
		newLocation = DirIndexInodeID(newParent.StartCluster, entry.StartIndex)
	}
	v.idMap.unbind(node.InodeID)
	if newLocation != node.InodeID {
		v.idMap.bind(node.InodeID, newLocation)
	}

	node.ParentInodeID = newParent.InodeID
	node.DirStartIndex = entry.StartIndex
	node.DirEndIndex = entry.EndIndex

	if node.IsDirectory() {
		if err := v.fixDotDot(node, newParent); err != nil {
			return err
		}
	}
	return nil
}

// fixDotDot rewrites a renamed directory's ".." entry to point at its
// new parent. Root is encoded as cluster 0 even under FAT32 (spec
// §4.8).
func (v *Volume) fixDotDot(dir *Inode, newParent *Inode) error {
	data, err := v.readDirBytes(dir)
	if err != nil {
		return err
	}
	if len(data) < 2*dirEntrySize {
		return nil
	}
	dotdot := data[dirEntrySize : 2*dirEntrySize]
	parentStart := newParent.StartCluster
	if IsFixedRoot(parentStart) || parentStart == v.RootCluster {
		parentStart = 0
	}
	dotdot[20] = byte(parentStart >> 16)
	dotdot[21] = byte(parentStart >> 24)
	dotdot[26] = byte(parentStart)
	dotdot[27] = byte(parentStart >> 8)
	return v.writeDirBytes(dir, data)
}

// persistLocation rewrites n's own short directory entry with its
// current StartCluster and Size, so a chain grown or shrunk via
// SetChainLength survives past the in-memory Inode (spec §4.6:
// set_chain_length's new start cluster and file size must reach disk,
// not just the cached inode). n.ParentInodeID.clusterOf() recovers the owning
// directory's StartCluster directly from the ID encoding, which is all
// readDirBytes and writeDirBytes need of a directory Inode.
func (v *Volume) persistLocation(n *Inode) error {
	dir := &Inode{StartCluster: n.ParentInodeID.clusterOf()}
	data, err := v.readDirBytes(dir)
	if err != nil {
		return err
	}
	off := n.DirEndIndex * dirEntrySize
	if off < 0 || off+dirEntrySize > len(data) {
		return nil
	}
	short := decodeShortEntry(data[off : off+dirEntrySize])
	setStartCluster(&short, n.StartCluster)
	short.fileSize = uint32(n.Size)
	short.encode(data[off : off+dirEntrySize])
	return v.writeDirBytes(dir, data)
}

// Unlink implements unlink (and the shared half of rmdir): erases the
// directory entry run, compacts the directory, and reassigns the
// inode's mapping to a fresh artificial ID so the old location stops
// being reachable while the inode stays live until the last handle
// closes (spec §4.8).
func (v *Volume) Unlink(parent *Inode, node *Inode) error {
	if v.ReadOnly {
		return padoserr.Wrap("fat.Unlink", padoserr.ReadOnlyFilesystem, nil)
	}
	if err := v.EraseEntryRun(parent, node.DirStartIndex, node.DirEndIndex); err != nil {
		return err
	}
	if err := v.CompactDirectory(parent); err != nil {
		v.log.Warnf("unlink: compacting parent: %v", err)
	}

	artificial := v.idMap.newArtificial()
	v.idMap.unbind(node.InodeID)
	v.idMap.bind(node.InodeID, artificial)
	node.Deleted = true
	return nil
}

// RemoveDirectory verifies node is empty, then defers to Unlink.
func (v *Volume) RemoveDirectory(parent *Inode, node *Inode) error {
	if !node.IsDirectory() {
		return padoserr.Wrap("fat.RemoveDirectory", padoserr.NotDirectory, nil)
	}
	entries, err := v.ListDir(node)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		return padoserr.Wrap("fat.RemoveDirectory", padoserr.NotEmpty, nil)
	}
	return v.Unlink(parent, node)
}

// Read implements read(inode, offset, buf) against the inode's cluster
// chain, walking from the chain start (spec §6.4). Short reads at
// end-of-file return the partial count with no error.
func (v *Volume) Read(n *Inode, offset uint64, buf []byte) (int, error) {
	if n.IsDirectory() {
		return 0, padoserr.Wrap("fat.Read", padoserr.IsDirectory, nil)
	}
	if offset >= n.Size {
		return 0, nil
	}
	if uint64(len(buf)) > n.Size-offset {
		buf = buf[:n.Size-offset]
	}

	clusterBytes := uint64(v.ClusterBytes())
	clusterIndex := uint32(offset / clusterBytes)
	inClusterOff := offset % clusterBytes

	cluster := n.StartCluster
	if clusterIndex > 0 {
		c, err := v.table.GetChainEntry(n.StartCluster, clusterIndex)
		if err != nil {
			return 0, err
		}
		cluster = c
	}

	total := 0
	for total < len(buf) {
		sector := v.ClusterToSector(cluster)
		chunk := buf[total:]
		avail := clusterBytes - inClusterOff
		if uint64(len(chunk)) > avail {
			chunk = chunk[:avail]
		}
		full := make([]byte, clusterBytes)
		if err := v.BCache.CachedRead(sector, full); err != nil {
			return total, err
		}
		copied := copy(chunk, full[inClusterOff:])
		total += copied
		inClusterOff = 0
		if total < len(buf) {
			next, err := v.table.GetEntry(cluster)
			if err != nil {
				return total, err
			}
			if next >= EndOfChain {
				break
			}
			cluster = next
		}
	}
	return total, nil
}

// Write implements write(inode, offset, buf), growing the cluster chain
// via SetChainLength when the write extends past the current
// allocation, and bumping Iteration on any chain-changing write (spec
// §3.2, §6.4).
func (v *Volume) Write(n *Inode, offset uint64, buf []byte) (int, error) {
	if v.ReadOnly {
		return 0, padoserr.Wrap("fat.Write", padoserr.ReadOnlyFilesystem, nil)
	}
	if n.IsDirectory() {
		return 0, padoserr.Wrap("fat.Write", padoserr.IsDirectory, nil)
	}

	end := offset + uint64(len(buf))
	if end > uint64(^uint32(0)) {
		return 0, padoserr.Wrap("fat.Write", padoserr.FileTooLarge, nil)
	}

	clusterBytes := uint64(v.ClusterBytes())
	currentClusters := uint32(0)
	if n.StartCluster != 0 {
		l, err := v.table.GetChainLength(n.StartCluster)
		if err != nil {
			return 0, err
		}
		currentClusters = uint32(l)
	}
	neededClusters := uint32((end + clusterBytes - 1) / clusterBytes)
	if neededClusters > currentClusters {
		start, endCluster, err := v.table.SetChainLength(n.StartCluster, currentClusters, neededClusters)
		if err != nil {
			return 0, err
		}
		n.StartCluster = start
		n.EndCluster = endCluster
		n.Iteration++
	}

	clusterIndex := uint32(offset / clusterBytes)
	inClusterOff := offset % clusterBytes
	cluster := n.StartCluster
	if clusterIndex > 0 {
		c, err := v.table.GetChainEntry(n.StartCluster, clusterIndex)
		if err != nil {
			return 0, err
		}
		cluster = c
	}

	total := 0
	for total < len(buf) {
		sector := v.ClusterToSector(cluster)
		chunk := buf[total:]
		avail := clusterBytes - inClusterOff
		if uint64(len(chunk)) > avail {
			chunk = chunk[:avail]
		}
		full := make([]byte, clusterBytes)
		if inClusterOff != 0 || uint64(len(chunk)) < clusterBytes {
			if err := v.BCache.CachedRead(sector, full); err != nil {
				return total, err
			}
		}
		copy(full[inClusterOff:], chunk)
		if err := v.BCache.CachedWrite(sector, full); err != nil {
			return total, err
		}
		total += len(chunk)
		inClusterOff = 0
		if total < len(buf) {
			next, err := v.table.GetEntry(cluster)
			if err != nil {
				return total, err
			}
			cluster = next
		}
	}

	grew := end > n.Size
	if grew {
		n.Size = end
	}
	if neededClusters > currentClusters || grew {
		if err := v.persistLocation(n); err != nil {
			return total, err
		}
	}
	return total, nil
}
