package fat

import "github.com/kavionic/padosd/internal/padoserr"

// LoadInode implements load_inode for an arbitrary inode ID (spec
// §4.8): the root inode is served from cache, everything else is
// resolved through inode_to_location, then located by re-scanning its
// parent directory for the matching short entry.
func (v *Volume) LoadInode(id InodeID) (*Inode, error) {
	if id == v.RootInode.InodeID {
		return v.RootInode, nil
	}

	location := v.idMap.resolveLocation(id)
	if location.isArtificial() {
		return nil, padoserr.Wrap("fat.LoadInode", padoserr.InvalidArg, nil)
	}
	if !location.isDirCluster() && !location.isDirIndex() {
		return nil, padoserr.Wrap("fat.LoadInode", padoserr.InvalidArg, nil)
	}

	parentDirCluster := location.parentDirCluster()
	parentInodeID, ok := v.idMap.dirInodeID(parentDirCluster)
	if !ok {
		return nil, padoserr.Wrap("fat.LoadInode", padoserr.NoEntry, nil)
	}
	parent, err := v.LoadInode(parentInodeID)
	if err != nil {
		return nil, err
	}

	entries, err := v.ListDir(parent)
	if err != nil {
		return nil, err
	}

	var match *DirEntryInfo
	if location.isDirCluster() {
		wantCluster := location.clusterOf()
		for i := range entries {
			if entries[i].StartCluster == wantCluster {
				match = &entries[i]
				break
			}
		}
	} else {
		wantIndex := location.indexOf()
		for i := range entries {
			if entries[i].StartIndex == wantIndex {
				match = &entries[i]
				break
			}
		}
	}
	if match == nil {
		return nil, padoserr.Wrap("fat.LoadInode", padoserr.NoEntry, nil)
	}

	n := &Inode{
		InodeID:       id,
		ParentInodeID: parentInodeID,
		DirStartIndex: match.StartIndex,
		DirEndIndex:   match.EndIndex,
		StartCluster:  match.StartCluster,
		DOSAttribs:    match.DOSAttribs,
		ModTime:       FATTimeToUnix(match.FATDate, match.FATTime),
	}
	if n.IsDirectory() {
		length, err := v.table.GetChainLength(match.StartCluster)
		if err != nil {
			return nil, err
		}
		n.Size = uint64(length) * uint64(v.ClusterBytes())
		if length > 0 {
			end, err := v.table.GetChainEntry(match.StartCluster, uint32(length-1))
			if err != nil {
				return nil, err
			}
			n.EndCluster = end
		}
		v.idMap.setDirInodeID(match.StartCluster, id)
	} else {
		n.Size = uint64(match.Size)
		if match.StartCluster != 0 {
			clusterBytes := v.ClusterBytes()
			length := int((uint64(match.Size) + uint64(clusterBytes) - 1) / uint64(clusterBytes))
			if length > 0 {
				end, err := v.table.GetChainEntry(match.StartCluster, uint32(length-1))
				if err != nil {
					return nil, err
				}
				n.EndCluster = end
			}
		}
	}

	return n, nil
}

// LocateInode resolves a (parent, name) path component to the InodeID
// that would be returned by a subsequent LoadInode, per spec §6.4's
// locate_inode. It mints an InodeID from the entry's location without
// requiring it already be mapped.
func (v *Volume) LocateInode(parent *Inode, name string) (InodeID, error) {
	entry, err := v.FindEntry(parent, name)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, padoserr.Wrap("fat.LocateInode", padoserr.NoEntry, nil)
	}

	var id InodeID
	if entry.StartCluster != 0 {
		id = DirClusterInodeID(parent.StartCluster, entry.StartCluster)
	} else {
		id = DirIndexInodeID(parent.StartCluster, entry.StartIndex)
	}
	return id, nil
}

// ReleaseInode implements release_inode: the FAT chain is only cleared
// here, once the last file handle referencing a deleted inode closes
// (spec §4.8's unlink/rmdir note).
func (v *Volume) ReleaseInode(n *Inode) error {
	if !n.Deleted {
		return nil
	}
	v.idMap.unbind(n.InodeID)
	if n.StartCluster != 0 && !IsFixedRoot(n.StartCluster) {
		return v.table.ClearFatChain(n.StartCluster)
	}
	return nil
}
