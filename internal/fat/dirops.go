package fat

import (
	"unicode/utf16"

	"github.com/kavionic/padosd/internal/padoserr"
)

// ListDir decodes every logical entry in dirInode's directory, skipping
// erased slots, via repeated GetNextLFNEntry calls (spec §4.7).
func (v *Volume) ListDir(dirInode *Inode) ([]DirEntryInfo, error) {
	data, err := v.readDirBytes(dirInode)
	if err != nil {
		return nil, err
	}
	var out []DirEntryInfo
	index := 0
	for {
		info, next, err := GetNextLFNEntry(data, index, func(msg string) { v.log.Warnf("%s", msg) })
		if err != nil {
			return nil, err
		}
		if info == nil {
			break
		}
		if info.DOSAttribs&attrVolumeID == 0 {
			out = append(out, *info)
		}
		index = next
	}
	return out, nil
}

// FindEntry looks up utf8Name within dirInode's directory by a
// case-sensitive comparison, the same rule create_directory_entry uses
// for its pre-creation collision check (spec §4.7 step 1).
func (v *Volume) FindEntry(dirInode *Inode, utf8Name string) (*DirEntryInfo, error) {
	entries, err := v.ListDir(dirInode)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Name == utf8Name {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// CreateEntry implements create_directory_entry(parent, node, utf8_name)
// (spec §4.7 steps 1-8): refuses a colliding name, generates and munges
// a short name, refuses a blacklisted DOS device name, finds or extends
// a contiguous run of free slots, and writes the LFN run plus short
// entry.
func (v *Volume) CreateEntry(dirInode *Inode, utf8Name string, attribs byte, startCluster uint32, size uint32) (*DirEntryInfo, error) {
	if existing, err := v.FindEntry(dirInode, utf8Name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, padoserr.Wrap("fat.CreateEntry", padoserr.Exist, nil)
	}

	units := utf16.Encode([]rune(utf8Name))
	if len(units) > 255 {
		return nil, padoserr.Wrap("fat.CreateEntry", padoserr.NameTooLong, nil)
	}

	shortName, roundTrips, err := generateShortName(utf8Name)
	if err != nil {
		return nil, err
	}

	needsLong := !roundTrips
	if !needsLong {
		if decodeOEMShortName(shortName) != utf8Name {
			needsLong = true
		}
	}

	final := shortName
	if needsLong {
		ok := false
		for k := 1; k <= 10; k++ {
			candidate := mungeShortName(shortName, k)
			if isBlacklistedShortName(candidate) {
				continue
			}
			if dup, err := v.shortNameExists(dirInode, candidate); err != nil {
				return nil, err
			} else if !dup {
				final = candidate
				ok = true
				break
			}
		}
		if !ok {
			for attempt := 0; attempt < 1000; attempt++ {
				k := 1 + pseudoRandom(attempt)%99999
				candidate := mungeShortName(shortName, k)
				if isBlacklistedShortName(candidate) {
					continue
				}
				if dup, err := v.shortNameExists(dirInode, candidate); err != nil {
					return nil, err
				} else if !dup {
					final = candidate
					ok = true
					break
				}
			}
		}
		if !ok {
			return nil, padoserr.Wrap("fat.CreateEntry", padoserr.NoSpace, nil)
		}
	}

	if isBlacklistedShortName(final) {
		return nil, padoserr.Wrap("fat.CreateEntry", padoserr.NoPermission, nil)
	}

	nSlots := 1
	if needsLong {
		nSlots = requiredLFNSlots(len(units))
	}

	data, err := v.readDirBytes(dirInode)
	if err != nil {
		return nil, err
	}
	startIndex, data, err := v.findOrExtendFreeRun(dirInode, data, nSlots)
	if err != nil {
		return nil, err
	}

	checksum := hashMSDOSName(final)
	pos := startIndex
	if needsLong {
		runLen := nSlots - 1
		for i := 0; i < runLen; i++ {
			seq := runLen - i
			b := data[pos*dirEntrySize : (pos+1)*dirEntrySize]
			writeLFNEntry(b, seq, i == 0, checksum, units)
			pos++
		}
	}
	shortOff := pos * dirEntrySize
	var short rawShortEntry
	short.name = final
	short.attribs = attribs
	setStartCluster(&short, startCluster)
	short.fileSize = size
	short.encode(data[shortOff : shortOff+dirEntrySize])
	endIndex := pos

	if err := v.writeDirBytes(dirInode, data); err != nil {
		return nil, err
	}

	return &DirEntryInfo{
		StartIndex:   startIndex,
		EndIndex:     endIndex,
		Name:         utf8Name,
		StartCluster: startCluster,
		Size:         size,
		DOSAttribs:   attribs,
	}, nil
}

func writeLFNEntry(b []byte, seq int, first bool, checksum byte, nameUnits []uint16) {
	marker := byte(seq)
	if first {
		marker |= 0x40
	}
	b[0] = marker
	b[11] = attrLongName
	b[12] = 0
	b[13] = checksum
	b[26], b[27] = 0, 0

	base := (seq - 1) * 13
	put := func(off int, idx int) {
		if idx < len(nameUnits) {
			b[off] = byte(nameUnits[idx])
			b[off+1] = byte(nameUnits[idx] >> 8)
		} else if idx == len(nameUnits) {
			b[off], b[off+1] = 0, 0
		} else {
			b[off], b[off+1] = 0xff, 0xff
		}
	}
	offs := []int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}
	for i, off := range offs {
		put(off, base+i)
	}
}

// shortNameExists scans for a short-name collision, ignoring long names.
func (v *Volume) shortNameExists(dirInode *Inode, name [11]byte) (bool, error) {
	data, err := v.readDirBytes(dirInode)
	if err != nil {
		return false, err
	}
	n := len(data) / dirEntrySize
	for i := 0; i < n; i++ {
		b := data[i*dirEntrySize : (i+1)*dirEntrySize]
		if b[0] == entryEndMarker {
			break
		}
		if b[0] == entryFreeMarker || b[11]&attrLongName == attrLongName {
			continue
		}
		if string(b[0:11]) == string(name[:]) {
			return true, nil
		}
	}
	return false, nil
}

// findOrExtendFreeRun finds nSlots contiguous free (erased or
// end-marker) slots in data, extending the directory by one cluster
// first if none exist and dirInode is not a fixed FAT12/16 root (spec
// §4.7 step 6).
func (v *Volume) findOrExtendFreeRun(dirInode *Inode, data []byte, nSlots int) (int, []byte, error) {
	n := len(data) / dirEntrySize
	run := 0
	for i := 0; i < n; i++ {
		b := data[i*dirEntrySize : (i+1)*dirEntrySize]
		if b[0] == entryFreeMarker || b[0] == entryEndMarker {
			run++
			if run == nSlots {
				return i - nSlots + 1, data, nil
			}
		} else {
			run = 0
		}
	}

	if IsFixedRoot(dirInode.StartCluster) {
		return 0, nil, padoserr.Wrap("fat.findOrExtendFreeRun", padoserr.NoSpace, nil)
	}

	current, err := v.table.GetChainLength(dirInode.StartCluster)
	if err != nil {
		return 0, nil, err
	}
	addClusters := 1
	startCluster, endCluster, err := v.table.SetChainLength(dirInode.StartCluster, uint32(current), uint32(current+addClusters))
	if err != nil {
		return 0, nil, err
	}
	if current == 0 {
		dirInode.StartCluster = startCluster
	}
	dirInode.EndCluster = endCluster

	grown := make([]byte, len(data)+int(v.ClusterBytes()))
	startIdx := len(data) / dirEntrySize
	copy(grown, data)
	return startIdx, grown, nil
}

// EraseEntryRun marks the first byte of each directory slot in
// [startIndex, endIndex] as erased (0xE5), per spec §4.8's unlink/rmdir
// bookkeeping.
func (v *Volume) EraseEntryRun(dirInode *Inode, startIndex, endIndex int) error {
	data, err := v.readDirBytes(dirInode)
	if err != nil {
		return err
	}
	for i := startIndex; i <= endIndex; i++ {
		data[i*dirEntrySize] = entryFreeMarker
	}
	return v.writeDirBytes(dirInode, data)
}

// CompactDirectory implements compact_directory(dir) (spec §4.7):
// shrinks the chain to the last meaningful entry, never shrinking a
// fixed FAT12/16 root.
func (v *Volume) CompactDirectory(dirInode *Inode) error {
	if IsFixedRoot(dirInode.StartCluster) {
		return nil
	}
	data, err := v.readDirBytes(dirInode)
	if err != nil {
		return err
	}
	n := len(data) / dirEntrySize
	lastMeaningful := -1
	for i := 0; i < n; i++ {
		b := data[i*dirEntrySize : (i+1)*dirEntrySize]
		if b[0] == entryFreeMarker {
			continue
		}
		if b[0] == entryEndMarker {
			break
		}
		if b[11]&attrVolumeID != 0 && b[11]&attrLongName != attrLongName {
			continue
		}
		lastMeaningful = i
	}
	neededEntries := lastMeaningful + 1
	neededClusters := (uint32(neededEntries)*dirEntrySize + v.ClusterBytes() - 1) / v.ClusterBytes()
	if neededClusters < 1 {
		neededClusters = 1
	}
	current, err := v.table.GetChainLength(dirInode.StartCluster)
	if err != nil {
		return err
	}
	if neededClusters >= uint32(current) {
		return nil
	}
	_, endCluster, err := v.table.SetChainLength(dirInode.StartCluster, uint32(current), neededClusters)
	if err != nil {
		return err
	}
	dirInode.EndCluster = endCluster
	return nil
}

// pseudoRandom is a small deterministic stand-in for the source's
// monotonic-clock sampling used to retry short-name collisions past
// ~1..~10 (spec §4.7 step 4); callers only need it to visit a wide,
// stable spread of candidates.
func pseudoRandom(seed int) int {
	x := uint32(seed*2654435761 + 1)
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	return int(x)
}
