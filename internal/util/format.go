package util

import (
	"github.com/dustin/go-humanize"
)

// FormatSize renders a byte count in binary units, e.g. "1.5 KiB".
func FormatSize(size int64) string {
	if size < 0 {
		return "-" + humanize.IBytes(uint64(-size))
	}
	return humanize.IBytes(uint64(size))
}

// Reduction returns how much smaller result is than original, in percent.
// It is negative when the result grew and zero for an empty original.
func Reduction(original, result int64) float64 {
	if original <= 0 {
		return 0
	}
	return float64(original-result) / float64(original) * 100
}
