package common

import (
	"strconv"

	"golang.org/x/exp/constraints"
)

// UnknownSize and NeedsUpdate are the sentinel byte-size values §3.1 and
// §3.3 both reference ("size (in bytes; sentinel 'unknown')",
// "'needsUpdate'"). A real file size is never negative, so negative
// sentinels can't collide with one.
const (
	UnknownSize  int64 = -1
	NeedsUpdate  int64 = -2
)

// ByteSizeToString mirrors azcopy's common.ByteSizeToString.
func ByteSizeToString[T constraints.Integer](size T, megaUnits bool) string {
	units := []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	divisor := 1024.0
	if megaUnits {
		units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
		divisor = 1000.0
	}
	f := float64(size)
	unit := 0
	for f/divisor >= 1 && unit < len(units)-1 {
		f /= divisor
		unit++
	}
	return strconv.FormatFloat(f, 'f', 2, 64) + " " + units[unit]
}

// ConvertBlocksToBytes estimates byte totals for block-reporting servers
// (MVS/VMS, §3.3/§4.5.4) from the running bytes-per-block ratio.
func ConvertBlocksToBytes(blocks int64, bytesPerBlock float64) int64 {
	if blocks <= 0 {
		return 0
	}
	return int64(float64(blocks) * bytesPerBlock)
}
