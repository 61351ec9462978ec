// Package fat's fs.go is the top-level VFS façade: the exact operation
// surface a volume manager dispatches to, each one a thin argument-
// shuffle in front of the pieces built across the rest of the package
// (spec §6.4).
package fat

import (
	"github.com/kavionic/padosd/internal/blockcache"
	"github.com/kavionic/padosd/internal/logx"
)

// FS is one mounted FAT volume, exposing every operation spec §6.4
// names. It is a thin wrapper over Volume so the dispatch surface has
// one obvious entry point, mirroring how FATFilesystem.cpp sits above
// FATVolume in the source.
type FS struct {
	*Volume
}

// MountFS mounts dev and wraps the resulting Volume as an FS.
func MountFS(dev blockcache.BlockDevice, cache *blockcache.Cache, readOnly bool, log *logx.Logger) (*FS, error) {
	v, err := Mount(dev, cache, readOnly, log)
	if err != nil {
		return nil, err
	}
	return &FS{Volume: v}, nil
}

// ProbeFS reports whether dev looks like a mountable FAT volume.
func ProbeFS(dev blockcache.BlockDevice) (bool, error) {
	return Probe(dev)
}
