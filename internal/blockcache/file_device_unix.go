//go:build darwin || linux

package blockcache

import (
	"golang.org/x/sys/unix"

	"github.com/kavionic/padosd/internal/padoserr"
)

// FileDevice is a BlockDevice backed by a real file or block special
// device, using golang.org/x/sys/unix's Pread/Pwrite directly rather
// than os.File's buffered-offset API, so concurrent CachedRead/
// CachedWrite calls from multiple block-cache slots never race on a
// shared file cursor.
type FileDevice struct {
	fd       int
	geometry Geometry
}

// OpenFileDevice opens path as a FileDevice. sectorCount is the device's
// total sector count at BytesPerSector granularity; callers that don't
// know it up front (a plain regular file standing in for a disk image)
// can pass 0 and rely on Geometry().SectorCount being advisory only.
func OpenFileDevice(path string, bytesPerSector uint32, sectorCount uint64, readOnly bool) (*FileDevice, error) {
	flags := unix.O_RDWR
	if readOnly {
		flags = unix.O_RDONLY
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, padoserr.Wrap("blockcache.OpenFileDevice", padoserr.IOError, err)
	}
	return &FileDevice{
		fd: fd,
		geometry: Geometry{
			BytesPerSector: bytesPerSector,
			SectorCount:    sectorCount,
			ReadOnly:       readOnly,
		},
	}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Pread(d.fd, p[total:], off+int64(total))
		if err != nil {
			return total, padoserr.Wrap("blockcache.FileDevice.ReadAt", padoserr.IOError, err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Pwrite(d.fd, p[total:], off+int64(total))
		if err != nil {
			return total, padoserr.Wrap("blockcache.FileDevice.WriteAt", padoserr.IOError, err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

func (d *FileDevice) Geometry() (Geometry, error) {
	return d.geometry, nil
}

// Close releases the underlying file descriptor.
func (d *FileDevice) Close() error {
	return unix.Close(d.fd)
}
