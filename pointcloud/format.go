package pointcloud

import (
	"path/filepath"
	"strings"

	"github.com/Noofbiz/facePairs/fault"
)

// Format is an on-disk sample encoding.
type Format int

const (
	// FormatUnknown is returned alongside an error for unsupported paths.
	FormatUnknown Format = iota
	// FormatNPY is a serialized 2-D NumPy float array.
	FormatNPY
	// FormatPLY is an ASCII PLY mesh; only vertex x, y, z are used.
	FormatPLY
)

func (f Format) String() string {
	switch f {
	case FormatNPY:
		return "npy"
	case FormatPLY:
		return "ply"
	default:
		return "unknown"
	}
}

// FormatFromPath resolves the encoding of a sample from its file suffix.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return FormatNPY, nil
	case ".ply":
		return FormatPLY, nil
	default:
		return FormatUnknown, fault.Formatf("resolve format", path, "do not know how to read file %q", filepath.Base(path))
	}
}
