//go:build !darwin && !linux

package blockcache

import (
	"os"

	"github.com/kavionic/padosd/internal/padoserr"
)

// FileDevice is a BlockDevice backed by a real file. Platforms without a
// golang.org/x/sys/unix Pread/Pwrite fall back to os.File's ReadAt/
// WriteAt, which are themselves offset-based and safe for concurrent
// use.
type FileDevice struct {
	f        *os.File
	geometry Geometry
}

func OpenFileDevice(path string, bytesPerSector uint32, sectorCount uint64, readOnly bool) (*FileDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, padoserr.Wrap("blockcache.OpenFileDevice", padoserr.IOError, err)
	}
	return &FileDevice{
		f: f,
		geometry: Geometry{
			BytesPerSector: bytesPerSector,
			SectorCount:    sectorCount,
			ReadOnly:       readOnly,
		},
	}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err != nil {
		return n, padoserr.Wrap("blockcache.FileDevice.ReadAt", padoserr.IOError, err)
	}
	return n, nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	n, err := d.f.WriteAt(p, off)
	if err != nil {
		return n, padoserr.Wrap("blockcache.FileDevice.WriteAt", padoserr.IOError, err)
	}
	return n, nil
}

func (d *FileDevice) Geometry() (Geometry, error) {
	return d.geometry, nil
}

func (d *FileDevice) Close() error {
	return d.f.Close()
}
