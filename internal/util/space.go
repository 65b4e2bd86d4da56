package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// PadRight pads str with spaces to width terminal cells. Text that does not
// fit is kept whole and followed by one space, so the next column still
// starts after a gap.
func PadRight(str string, width int) string {
	w := runewidth.StringWidth(str)
	if w >= width {
		if w == width {
			return str
		}
		return str + " "
	}
	return str + strings.Repeat(" ", width-w)
}

// ShortenPath fits path into width terminal cells by dropping its leading
// part, so the file name stays visible: "/srv/in/report.pdf" becomes
// "…/report.pdf".
func ShortenPath(path string, width int) string {
	if runewidth.StringWidth(path) <= width {
		return path
	}
	if width <= 0 {
		return ""
	}
	runes := []rune(path)
	keep, i := width-1, len(runes)
	for i > 0 {
		rw := runewidth.RuneWidth(runes[i-1])
		if rw > keep {
			break
		}
		keep -= rw
		i--
	}
	return "…" + string(runes[i:])
}
