package fat

import (
	"github.com/kavionic/padosd/internal/padoserr"
)

// Table is the FAT table accessor (spec §4.6): cluster entry get/set,
// chain walking and allocation, free-cluster accounting, and FSInfo
// persistence. It keeps no sectors of its own: each access fetches the
// entry's sector (and, for a FAT12 entry straddling a sector boundary,
// the next one) from the block cache, mirroring the source's
// FATTableIterator.
type Table struct {
	v *Volume
}

// NewTable builds the FAT table accessor for v. v.Super and the derived
// geometry fields must already be populated.
func NewTable(v *Volume) *Table {
	return &Table{v: v}
}

// entryLocation is the sector/offset pair one cluster's entry lives at,
// plus whether it straddles into the next sector (FAT12 only), mirroring
// FATTableIterator's constructor/SetCluster arithmetic.
type entryLocation struct {
	sector    uint64
	offset    uint32
	straddles bool
}

func (t *Table) locate(cluster uint32) entryLocation {
	v := t.v
	bitOffset := uint64(cluster) * uint64(v.Super.FATBits)
	byteOffset := bitOffset / 8
	sector := uint64(v.Super.ReservedSectors) + uint64(v.Super.ActiveFAT)*uint64(v.Super.SectorsPerFAT) + byteOffset/uint64(v.Super.BytesPerSector)
	offset := uint32(byteOffset % uint64(v.Super.BytesPerSector))
	return entryLocation{
		sector:    sector,
		offset:    offset,
		straddles: v.Super.FATBits == 12 && offset == v.Super.BytesPerSector-1,
	}
}

// GetEntry implements get_entry(cluster) -> value (spec §4.6): returns
// 0, a data cluster, BadCluster, or EndOfChain after canonicalizing the
// 12/16-bit sentinel ranges into the 32-bit space.
func (t *Table) GetEntry(cluster uint32) (uint32, error) {
	v := t.v
	loc := t.locate(cluster)
	blk1, err := v.BCache.GetBlock(loc.sector, true)
	if err != nil {
		return 0, padoserr.Wrap("fat.Table.GetEntry", padoserr.IOError, err)
	}
	defer blk1.Release()
	b1 := blk1.Bytes()

	switch v.Super.FATBits {
	case 12:
		var val uint16
		if loc.straddles {
			blk2, err := v.BCache.GetBlock(loc.sector+1, true)
			if err != nil {
				return 0, padoserr.Wrap("fat.Table.GetEntry", padoserr.IOError, err)
			}
			defer blk2.Release()
			val = uint16(b1[loc.offset]) + 0x100*uint16(blk2.Bytes()[0])
		} else {
			val = uint16(b1[loc.offset]) + 0x100*uint16(b1[loc.offset+1])
		}
		if cluster&1 != 0 {
			val >>= 4
		} else {
			val &= 0xfff
		}
		v32 := uint32(val)
		if val > 0xff0 {
			v32 |= 0x0ffff000
		}
		return v32, nil
	case 16:
		val := uint32(b1[loc.offset]) + 0x100*uint32(b1[loc.offset+1])
		if val > 0xfff0 {
			val |= 0x0fff0000
		}
		return val, nil
	case 32:
		val := uint32(b1[loc.offset]) + 0x100*uint32(b1[loc.offset+1]) + 0x10000*uint32(b1[loc.offset+2]) + 0x1000000*uint32(b1[loc.offset+3]&0x0f)
		return val, nil
	default:
		return 0, padoserr.Wrap("fat.Table.GetEntry", padoserr.InvalidArg, nil)
	}
}

// SetEntry implements set_entry(cluster, value) (spec §4.6): writes the
// raw bits for the active FAT and mirrors into the other FATs when
// fat_mirrored is set.
func (t *Table) SetEntry(cluster uint32, value uint32) error {
	v := t.v
	loc := t.locate(cluster)
	blk1, err := v.BCache.GetBlock(loc.sector, true)
	if err != nil {
		return padoserr.Wrap("fat.Table.SetEntry", padoserr.IOError, err)
	}
	defer blk1.Release()
	b1 := blk1.Bytes()

	switch v.Super.FATBits {
	case 12:
		var andMask, orMask uint32
		if cluster&1 != 0 {
			orMask = (value & 0xfff) << 4
			andMask = 0xf
		} else {
			orMask = value & 0xfff
			andMask = 0xf000
		}
		b1[loc.offset] = byte((uint32(b1[loc.offset]) & andMask) | orMask)
		if loc.straddles {
			blk2, err := v.BCache.GetBlock(loc.sector+1, true)
			if err != nil {
				return padoserr.Wrap("fat.Table.SetEntry", padoserr.IOError, err)
			}
			b2 := blk2.Bytes()
			b2[0] = byte((uint32(b2[0]) & (andMask >> 8)) | (orMask >> 8))
			blk2.Release()
			if err := v.BCache.MarkDirty(loc.sector + 1); err != nil {
				return err
			}
			if err := t.mirror(loc.sector+1, nil); err != nil {
				return err
			}
		} else {
			b1[loc.offset+1] = byte((uint32(b1[loc.offset+1]) & (andMask >> 8)) | (orMask >> 8))
		}
	case 16:
		b1[loc.offset] = byte(value)
		b1[loc.offset+1] = byte(value >> 8)
	case 32:
		b1[loc.offset] = byte(value)
		b1[loc.offset+1] = byte(value >> 8)
		b1[loc.offset+2] = byte(value >> 16)
		b1[loc.offset+3] = (b1[loc.offset+3] & 0xf0) | byte((value>>24)&0x0f)
	default:
		return padoserr.Wrap("fat.Table.SetEntry", padoserr.InvalidArg, nil)
	}

	if err := v.BCache.MarkDirty(loc.sector); err != nil {
		return err
	}
	return t.mirror(loc.sector, nil)
}

// mirror copies sector from the active FAT into every other FAT copy,
// when the volume has fat_mirrored set.
func (t *Table) mirror(sector uint64, _ []byte) error {
	v := t.v
	if !v.Super.FATMirrored || v.Super.FATCount <= 1 {
		return nil
	}
	activeBlk, err := v.BCache.GetBlock(sector, true)
	if err != nil {
		return padoserr.Wrap("fat.Table.mirror", padoserr.IOError, err)
	}
	data := append([]byte(nil), activeBlk.Bytes()...)
	activeBlk.Release()

	sectorInFAT := sector - uint64(v.Super.ReservedSectors) - uint64(v.Super.ActiveFAT)*uint64(v.Super.SectorsPerFAT)
	for i := uint32(0); i < v.Super.FATCount; i++ {
		if i == v.Super.ActiveFAT {
			continue
		}
		dst := uint64(v.Super.ReservedSectors) + uint64(i)*uint64(v.Super.SectorsPerFAT) + sectorInFAT
		blk, err := v.BCache.GetBlock(dst, false)
		if err != nil {
			return padoserr.Wrap("fat.Table.mirror", padoserr.IOError, err)
		}
		copy(blk.Bytes(), data)
		blk.Release()
		if err := v.BCache.MarkDirty(dst); err != nil {
			return err
		}
	}
	return nil
}

// GetChainEntry implements get_chain_entry(chain_start, index): walks
// index next-pointers from chainStart, failing with IOError if the
// chain ends early.
func (t *Table) GetChainEntry(chainStart uint32, index uint32) (uint32, error) {
	cluster := chainStart
	for i := uint32(0); i < index; i++ {
		next, err := t.GetEntry(cluster)
		if err != nil {
			return 0, err
		}
		if next == ClusterFree || next == BadCluster || next >= EndOfChain {
			return 0, padoserr.Wrap("fat.Table.GetChainEntry", padoserr.IOError, nil)
		}
		cluster = next
	}
	return cluster, nil
}

// GetChainLength implements get_chain_length(cluster): walks until END,
// detecting cycles when the count exceeds total_clusters.
func (t *Table) GetChainLength(cluster uint32) (int, error) {
	v := t.v
	count := 0
	cur := cluster
	for {
		if cur == ClusterFree {
			return count, nil
		}
		count++
		if uint32(count) > v.TotalClusters {
			return 0, padoserr.Wrap("fat.Table.GetChainLength", padoserr.IOError, nil)
		}
		next, err := t.GetEntry(cur)
		if err != nil {
			return 0, err
		}
		if next >= EndOfChain {
			return count, nil
		}
		if next == ClusterFree || next == BadCluster {
			return 0, padoserr.Wrap("fat.Table.GetChainLength", padoserr.IOError, nil)
		}
		cur = next
	}
}

// CountFreeClusters implements count_free_clusters(): a linear scan,
// O(total_clusters).
func (t *Table) CountFreeClusters() (uint32, error) {
	v := t.v
	var free uint32
	for c := uint32(firstDataCluster); c < v.TotalClusters+firstDataCluster; c++ {
		val, err := t.GetEntry(c)
		if err != nil {
			return 0, err
		}
		if val == ClusterFree {
			free++
		}
	}
	return free, nil
}

// AllocateClusters implements allocate_clusters(n) -> first_cluster
// (spec §4.6): scans from last_allocated_cluster forward modulo
// total_clusters, links each allocated cluster to the previous one,
// terminates with END, updates free_clusters/last_allocated_cluster,
// and rolls back the partial chain if fewer than n free clusters exist.
func (t *Table) AllocateClusters(n int) (uint32, error) {
	v := t.v
	if n <= 0 {
		return 0, padoserr.Wrap("fat.Table.AllocateClusters", padoserr.InvalidArg, nil)
	}

	var allocated []uint32
	start := v.LastAllocatedCluster
	if start < firstDataCluster {
		start = firstDataCluster
	}
	cur := start
	for i := uint32(0); i < v.TotalClusters && len(allocated) < n; i++ {
		c := firstDataCluster + (cur-firstDataCluster+i)%v.TotalClusters
		val, err := t.GetEntry(c)
		if err != nil {
			t.rollback(allocated)
			return 0, err
		}
		if val == ClusterFree {
			allocated = append(allocated, c)
		}
	}

	if len(allocated) < n {
		t.rollback(allocated)
		return 0, padoserr.Wrap("fat.Table.AllocateClusters", padoserr.NoSpace, nil)
	}

	for i, c := range allocated {
		var entry uint32
		if i == len(allocated)-1 {
			entry = EndOfChain
		} else {
			entry = allocated[i+1]
		}
		if err := t.SetEntry(c, entry); err != nil {
			t.rollback(allocated)
			return 0, err
		}
	}

	v.FreeClusters -= uint32(n)
	v.LastAllocatedCluster = allocated[len(allocated)-1]
	if err := t.updateFSInfo(); err != nil {
		return 0, err
	}
	return allocated[0], nil
}

// rollback clears any partially-linked clusters from a failed
// AllocateClusters, per spec §4.6's "on partial failure rolls back".
func (t *Table) rollback(allocated []uint32) {
	for _, c := range allocated {
		_ = t.SetEntry(c, ClusterFree)
	}
}

// ClearFatChain implements clear_fat_chain(start): walks and zeroes each
// entry, incrementing free_clusters per cleared entry, warning if the
// chain ends other than at END.
func (t *Table) ClearFatChain(start uint32) error {
	v := t.v
	cur := start
	for cur != ClusterFree && cur < EndOfChain && cur != BadCluster {
		next, err := t.GetEntry(cur)
		if err != nil {
			return err
		}
		if err := t.SetEntry(cur, ClusterFree); err != nil {
			return err
		}
		v.FreeClusters++
		cur = next
	}
	if cur < EndOfChain {
		v.log.Warnf("clear_fat_chain: chain from cluster %d ended at %#x, not END", start, cur)
	}
	return t.updateFSInfo()
}

// SetChainLength implements set_chain_length(inode, new_clusters,
// update_icache) for all four cases described in spec §4.6. It returns
// the chain's new start and end cluster.
func (t *Table) SetChainLength(startCluster, currentClusters, newClusters uint32) (newStart, newEnd uint32, err error) {
	switch {
	case newClusters == 0 && currentClusters == 0:
		return 0, 0, nil

	case newClusters == 0 && currentClusters > 0:
		if err := t.ClearFatChain(startCluster); err != nil {
			return 0, 0, err
		}
		return 0, 0, nil

	case currentClusters == 0 && newClusters > 0:
		first, err := t.AllocateClusters(int(newClusters))
		if err != nil {
			return 0, 0, err
		}
		end, err := t.GetChainEntry(first, newClusters-1)
		if err != nil {
			return 0, 0, err
		}
		return first, end, nil

	case newClusters > currentClusters:
		oldEnd, err := t.GetChainEntry(startCluster, currentClusters-1)
		if err != nil {
			return 0, 0, err
		}
		first, err := t.AllocateClusters(int(newClusters - currentClusters))
		if err != nil {
			return 0, 0, err
		}
		if err := t.SetEntry(oldEnd, first); err != nil {
			return 0, 0, err
		}
		end, err := t.GetChainEntry(first, newClusters-currentClusters-1)
		if err != nil {
			return 0, 0, err
		}
		return startCluster, end, nil

	default: // shrink
		newEndCluster, err := t.GetChainEntry(startCluster, newClusters-1)
		if err != nil {
			return 0, 0, err
		}
		tail, err := t.GetEntry(newEndCluster)
		if err != nil {
			return 0, 0, err
		}
		if err := t.SetEntry(newEndCluster, EndOfChain); err != nil {
			return 0, 0, err
		}
		if tail < EndOfChain && tail != ClusterFree {
			if err := t.ClearFatChain(tail); err != nil {
				return 0, 0, err
			}
		}
		return startCluster, newEndCluster, nil
	}
}

// updateFSInfo implements update_fsinfo(): validates the three magic
// words and writes free_clusters/last_allocated_cluster when the volume
// is writable. A FAT12/16 volume has no FSInfo sector and this is a
// no-op.
func (t *Table) updateFSInfo() error {
	v := t.v
	if v.ReadOnly || v.Super.FATBits != 32 || v.Super.FSInfoSector == 0 {
		return nil
	}
	blk, err := v.BCache.GetBlock(uint64(v.Super.FSInfoSector), true)
	if err != nil {
		return padoserr.Wrap("fat.Table.updateFSInfo", padoserr.IOError, err)
	}
	defer blk.Release()
	b := blk.Bytes()

	leSig := func(off int) uint32 {
		return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
	}
	if leSig(0) != fsInfoLeadSig || leSig(0x1e4) != fsInfoStructSig || leSig(0x1fc) != fsInfoTrailSig {
		return nil
	}

	putLE := func(off int, val uint32) {
		b[off] = byte(val)
		b[off+1] = byte(val >> 8)
		b[off+2] = byte(val >> 16)
		b[off+3] = byte(val >> 24)
	}
	putLE(0x1e8, v.FreeClusters)
	putLE(0x1ec, v.LastAllocatedCluster)

	if err := v.BCache.MarkDirty(uint64(v.Super.FSInfoSector)); err != nil {
		return err
	}
	return nil
}
