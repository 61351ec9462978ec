package fat

import (
	"encoding/binary"

	"github.com/kavionic/padosd/internal/padoserr"
)

// BPB field offsets within the first sector, as in the public Microsoft
// specification and spec §6.3.
const (
	offBytesPerSector    = 0x0b
	offSectorsPerCluster = 0x0d
	offReservedSectors   = 0x0e
	offFATCount          = 0x10
	offRootEntriesCount  = 0x11
	offTotalSectors16    = 0x13
	offMediaDescriptor   = 0x15
	offSectorsPerFAT16   = 0x16
	offTotalSectors32    = 0x20

	// FAT12/16 tail, overlapping the FAT32 tail below.
	off1216OEMID = 0x36

	// FAT32 tail.
	off32SectorsPerFAT = 0x24
	off32ExtFlags      = 0x28
	off32FSInfoSector  = 0x30
	off32RootCluster   = 0x2c
	off32OEMID         = 0x52

	offBootSignature = 0x1fe
	bootSignatureVal = 0xaa55
)

var ntfsHPFSOEMIDs = [][]byte{
	[]byte("NTFS    "),
	[]byte("HPFS    "),
}

// ParseSuperblock reads the BIOS parameter block out of one sector
// buffer (spec §3.2/§6.3). It does not itself validate mountability;
// see validateSuperblock.
func ParseSuperblock(sector []byte) (Superblock, error) {
	if len(sector) < 512 {
		return Superblock{}, padoserr.Wrap("fat.ParseSuperblock", padoserr.IOError, nil)
	}

	var sb Superblock
	sb.BytesPerSector = uint32(binary.LittleEndian.Uint16(sector[offBytesPerSector:]))
	sb.SectorsPerCluster = uint32(sector[offSectorsPerCluster])
	sb.ReservedSectors = uint32(binary.LittleEndian.Uint16(sector[offReservedSectors:]))
	sb.FATCount = uint32(sector[offFATCount])
	sb.RootEntriesCount = uint32(binary.LittleEndian.Uint16(sector[offRootEntriesCount:]))
	sb.MediaDescriptor = sector[offMediaDescriptor]

	totalSectors16 := binary.LittleEndian.Uint16(sector[offTotalSectors16:])
	totalSectors32 := binary.LittleEndian.Uint32(sector[offTotalSectors32:])
	if totalSectors16 != 0 {
		sb.TotalSectors = uint64(totalSectors16)
	} else {
		sb.TotalSectors = uint64(totalSectors32)
	}

	sectorsPerFAT16 := binary.LittleEndian.Uint16(sector[offSectorsPerFAT16:])
	if sectorsPerFAT16 != 0 {
		sb.SectorsPerFAT = uint32(sectorsPerFAT16)
		sb.RootCluster = 0
	} else {
		sb.SectorsPerFAT = binary.LittleEndian.Uint32(sector[off32SectorsPerFAT:])
		extFlags := binary.LittleEndian.Uint16(sector[off32ExtFlags:])
		sb.FATMirrored = extFlags&0x80 == 0
		if sb.FATMirrored {
			sb.ActiveFAT = 0
		} else {
			sb.ActiveFAT = uint32(extFlags & 0x0f)
		}
		sb.FSInfoSector = uint32(binary.LittleEndian.Uint16(sector[off32FSInfoSector:]))
		sb.RootCluster = binary.LittleEndian.Uint32(sector[off32RootCluster:])
	}
	if sectorsPerFAT16 != 0 {
		sb.FATMirrored = true
		sb.ActiveFAT = 0
	}

	sb.MBRSignaturePresent = binary.LittleEndian.Uint16(sector[offBootSignature:]) == bootSignatureVal
	copy(sb.VolumeLabel[:], sector[0x2b:0x36])

	return sb, nil
}

// classifyFATBits derives FATBits (12/16/32) from cluster count, per the
// standard Microsoft rule: fewer than 4085 clusters is FAT12, fewer than
// 65525 is FAT16, else FAT32.
func classifyFATBits(totalClusters uint32) int {
	switch {
	case totalClusters < 4085:
		return 12
	case totalClusters < 65525:
		return 16
	default:
		return 32
	}
}

// isNTFSOrHPFS reports whether the OEM ID field (sector[0x03:0x0b])
// names a filesystem this driver must refuse to mount, per spec §4.8's
// "rejects NTFS/HPFS OEM IDs".
func isNTFSOrHPFS(sector []byte) bool {
	oem := sector[0x03:0x0b]
	for _, bad := range ntfsHPFSOEMIDs {
		if string(oem) == string(bad) {
			return true
		}
	}
	return false
}
