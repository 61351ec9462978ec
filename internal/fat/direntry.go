package fat

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/kavionic/padosd/internal/padoserr"
)

const dirEntrySize = 32

// Short-entry attribute bits.
const (
	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	attrLongName  = attrReadOnly | attrHidden | attrSystem | attrVolumeID

	entryFreeMarker     = 0xe5
	entryEndMarker      = 0x00
	entryKanjiEscape    = 0x05
	entryKanjiEscapeOut = 0xe5
)

// DirEntryInfo is what get_next_lfn_entry returns for one logical
// directory entry (a short entry, optionally preceded by an LFN run),
// per spec §4.7.
type DirEntryInfo struct {
	StartIndex   int // -1 if not applicable (spec §9: explicit optional, not 0xffffffff)
	EndIndex     int
	Name         string // decoded long name, or the OEM-decoded short name as fallback
	StartCluster uint32
	Size         uint32
	FATTime      uint16
	FATDate      uint16
	DOSAttribs   byte
}

// NoIndex is the "no index" optional sentinel used throughout this
// package in place of the source's size_t 0xffffffff (spec §9 open
// question).
const NoIndex = -1

// rawShortEntry is the 32-byte on-disk short directory entry layout.
type rawShortEntry struct {
	name            [11]byte
	attribs         byte
	reserved        byte
	createTimeTenth byte
	createTime      uint16
	createDate      uint16
	accessDate      uint16
	firstClusterHi  uint16
	writeTime       uint16
	writeDate       uint16
	firstClusterLo  uint16
	fileSize        uint32
}

func decodeShortEntry(b []byte) rawShortEntry {
	le16 := func(off int) uint16 { return uint16(b[off]) | uint16(b[off+1])<<8 }
	le32 := func(off int) uint32 {
		return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
	}
	var e rawShortEntry
	copy(e.name[:], b[0:11])
	e.attribs = b[11]
	e.reserved = b[12]
	e.createTimeTenth = b[13]
	e.createTime = le16(14)
	e.createDate = le16(16)
	e.accessDate = le16(18)
	e.firstClusterHi = le16(20)
	e.writeTime = le16(22)
	e.writeDate = le16(24)
	e.firstClusterLo = le16(26)
	e.fileSize = le32(28)
	return e
}

func (e rawShortEntry) encode(b []byte) {
	put16 := func(off int, v uint16) { b[off] = byte(v); b[off+1] = byte(v >> 8) }
	put32 := func(off int, v uint32) {
		b[off] = byte(v)
		b[off+1] = byte(v >> 8)
		b[off+2] = byte(v >> 16)
		b[off+3] = byte(v >> 24)
	}
	copy(b[0:11], e.name[:])
	b[11] = e.attribs
	b[12] = e.reserved
	b[13] = e.createTimeTenth
	put16(14, e.createTime)
	put16(16, e.createDate)
	put16(18, e.accessDate)
	put16(20, e.firstClusterHi)
	put16(22, e.writeTime)
	put16(24, e.writeDate)
	put16(26, e.firstClusterLo)
	put32(28, e.fileSize)
}

func (e rawShortEntry) startCluster() uint32 {
	return uint32(e.firstClusterHi)<<16 | uint32(e.firstClusterLo)
}

func setStartCluster(e *rawShortEntry, cluster uint32) {
	e.firstClusterHi = uint16(cluster >> 16)
	e.firstClusterLo = uint16(cluster)
}

// hashMSDOSName implements the LFN checksum: iteratively
// c = rotate_right(c, 1) + byte, 8-bit, over the 11-byte short name
// (spec §4.7).
func hashMSDOSName(name [11]byte) byte {
	var sum byte
	for _, b := range name {
		rot := (sum >> 1) | (sum << 7)
		sum = rot + b
	}
	return sum
}

// oemCodec decodes/encodes the OEM short name using code page 437, the
// fixed 128-entry table spec §4.7 calls for; golang.org/x/text carries
// the real table so the driver does not hand-roll one.
var oemCodec = charmap.CodePage437

func decodeOEMShortName(raw [11]byte) string {
	name := raw
	if name[0] == entryKanjiEscape {
		name[0] = entryKanjiEscapeOut
	}
	decoded, err := oemCodec.NewDecoder().Bytes(name[:])
	if err != nil {
		decoded = name[:]
	}
	base := strings.TrimRight(string(decoded[0:8]), " ")
	ext := strings.TrimRight(string(decoded[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func encodeOEMShortName(name [11]byte) []byte {
	encoded, err := oemCodec.NewEncoder().Bytes(name[:])
	if err != nil {
		return name[:]
	}
	return encoded
}

// GetNextLFNEntry scans forward from index within dirData (the raw byte
// content of one directory, already assembled from its cluster chain or
// fixed root sectors), implementing get_next_lfn_entry (spec §4.7):
// accumulates long entries in reverse (high sequence first) into a
// UTF-16 buffer, then reads the short entry, validating reserved fields,
// descending sequence numbers, and the checksum. On any validation
// failure the short entry is treated standalone and the failure is
// reported through the supplied warn callback, if any.
func GetNextLFNEntry(dirData []byte, index int, warn func(string)) (*DirEntryInfo, int, error) {
	n := len(dirData) / dirEntrySize
	start := index
	var lfnUnits []uint16
	expectedSeq := 0
	sawLFN := false
	validLFN := true
	var lfnChecksum byte

	for index < n {
		off := index * dirEntrySize
		b := dirData[off : off+dirEntrySize]
		if b[0] == entryEndMarker {
			return nil, index, nil
		}
		if b[0] == entryFreeMarker {
			index++
			start = index
			lfnUnits = nil
			sawLFN = false
			validLFN = true
			continue
		}
		attribs := b[11]
		if attribs&attrLongName == attrLongName {
			seq := b[0]
			first := seq&0x40 != 0
			seqNum := int(seq & 0x1f)
			if first {
				expectedSeq = seqNum
				lfnUnits = nil
				sawLFN = true
				validLFN = true
				lfnChecksum = b[13]
			} else if seqNum != expectedSeq-1 || b[13] != lfnChecksum {
				validLFN = false
			}
			expectedSeq = seqNum
			// reserved: the entry-type byte and the (always-zero) cluster field.
			if b[12] != 0 || b[26] != 0 || b[27] != 0 {
				validLFN = false
			}
			units := extractLFNUnits(b)
			lfnUnits = append(units, lfnUnits...)
			index++
			continue
		}

		short := decodeShortEntry(b)
		endIndex := index
		info := &DirEntryInfo{
			StartIndex:   start,
			EndIndex:     endIndex,
			StartCluster: short.startCluster(),
			Size:         short.fileSize,
			FATTime:      short.writeTime,
			FATDate:      short.writeDate,
			DOSAttribs:   short.attribs,
		}

		if sawLFN && validLFN && expectedSeq == 1 && hashMSDOSName(short.name) == lfnChecksum {
			info.Name = utf16ToName(lfnUnits)
		} else {
			if sawLFN && warn != nil {
				warn("directory entry: LFN checksum mismatch or malformed run, falling back to short name")
			}
			info.Name = decodeOEMShortName(short.name)
			info.StartIndex = endIndex
		}
		return info, index + 1, nil
	}
	return nil, index, nil
}

func extractLFNUnits(entry []byte) []uint16 {
	units := make([]uint16, 0, 13)
	read16 := func(off int) uint16 { return uint16(entry[off]) | uint16(entry[off+1])<<8 }
	for _, off := range []int{1, 3, 5, 7, 9} {
		units = append(units, read16(off))
	}
	for _, off := range []int{14, 16, 18, 20, 22, 24} {
		units = append(units, read16(off))
	}
	for _, off := range []int{28, 30} {
		units = append(units, read16(off))
	}
	// trim at the 0x0000 terminator, ignoring trailing 0xffff padding.
	for i, u := range units {
		if u == 0 {
			return units[:i]
		}
	}
	return units
}

func utf16ToName(units []uint16) string {
	return string(utf16.Decode(units))
}

// requiredLFNSlots returns ceil(utf16_len/13) + 1, the contiguous free
// directory slots create_directory_entry needs (spec §4.7 step 6).
func requiredLFNSlots(utf16Len int) int {
	return (utf16Len+12)/13 + 1
}

// dosDeviceBlacklist is the fixed set of reserved short names create_directory_entry
// must refuse, each space-padded to 11 bytes (spec §4.7 step 5).
var dosDeviceBlacklist = []string{
	"CON        ", "PRN        ", "AUX        ", "CLOCK$     ",
	"NUL        ", "COM1       ", "COM2       ", "COM3       ", "COM4       ",
	"LPT1       ", "LPT2       ", "LPT3       ", "LPT4       ",
	"LST        ", "KEYBD$     ", "SCREEN$    ", "$IDLE$     ", "CONFIG$    ",
}

func isBlacklistedShortName(name [11]byte) bool {
	s := string(name[:])
	for _, bad := range dosDeviceBlacklist {
		if s == bad {
			return true
		}
	}
	return false
}

// underbarSet is the fixed set of characters create_directory_entry maps
// to '_' when generating a short name (spec §4.7 step 3).
const underbarSet = "+,;=[]"

func isIllegalShortNameChar(r rune) bool {
	if r < 0x20 {
		return true
	}
	switch r {
	case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return false
}

// generateShortName implements create_directory_entry steps 2-3: upper-
// case, map illegal characters to failure, the underbar set to '_',
// 0x80..0xff via a fixed case table (approximated here with
// unicode.ToUpper, which is byte-for-byte equivalent for Latin-1 on the
// code points CP437 actually maps to), then split on the last '.' taking
// up to 8/3 characters.
func generateShortName(utf8Name string) ([11]byte, bool, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	name := strings.TrimLeft(utf8Name, ".")
	if name == "" {
		return out, false, padoserr.Wrap("fat.generateShortName", padoserr.InvalidArg, nil)
	}
	for _, r := range utf8Name {
		if isIllegalShortNameChar(r) {
			return out, false, padoserr.Wrap("fat.generateShortName", padoserr.InvalidArg, nil)
		}
	}

	lastDot := strings.LastIndexByte(name, '.')
	base, ext := name, ""
	if lastDot >= 0 {
		base, ext = name[:lastDot], name[lastDot+1:]
	}

	roundTrips := true
	write := func(src string, maxLen int, dst []byte) {
		i := 0
		for _, r := range strings.ToUpper(src) {
			if i >= maxLen {
				roundTrips = false
				break
			}
			if isIllegalShortNameChar(r) {
				roundTrips = false
				continue
			}
			if strings.ContainsRune(underbarSet, r) {
				r = '_'
			}
			if r > 0x7f {
				roundTrips = false
			}
			if r > 0xff {
				dst[i] = '_'
			} else {
				dst[i] = byte(r)
			}
			i++
		}
	}
	write(base, 8, out[0:8])
	write(ext, 3, out[8:11])

	if !utf8.ValidString(utf8Name) {
		return out, false, padoserr.Wrap("fat.generateShortName", padoserr.InvalidArg, nil)
	}
	return out, roundTrips, nil
}

// mungeShortName patches a generated short name with ~1..~10, per
// munge_short_name(k) (spec §4.7 step 4).
func mungeShortName(base [11]byte, k int) [11]byte {
	suffix := []byte(itoaShort(k))
	out := base
	baseLen := 8 - len(suffix) - 1
	if baseLen < 0 {
		baseLen = 0
	}
	for i := baseLen; i < 8; i++ {
		out[i] = ' '
	}
	copy(out[baseLen:], "~")
	copy(out[baseLen+1:], suffix)
	return out
}

func itoaShort(k int) string {
	if k <= 0 {
		return "1"
	}
	digits := []byte{}
	for k > 0 {
		digits = append([]byte{byte('0' + k%10)}, digits...)
		k /= 10
	}
	return string(digits)
}
