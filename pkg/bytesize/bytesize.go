// Package bytesize provides human-readable byte size parsing and formatting.
// Units are binary (1024-based) and case-insensitive: "500KB", "1.5 GiB",
// "64M", or a bare number of bytes.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size represents a byte count.
type Size int64

// Binary size constants.
const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

var units = []struct {
	suffix string
	mult   Size
}{
	{"TIB", TB}, {"TB", TB}, {"T", TB},
	{"GIB", GB}, {"GB", GB}, {"G", GB},
	{"MIB", MB}, {"MB", MB}, {"M", MB},
	{"KIB", KB}, {"KB", KB}, {"K", KB},
	{"B", B},
}

// Parse parses a human-readable byte size string. A missing unit means bytes.
func Parse(s string) (Size, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	mult := B
	for _, u := range units {
		if strings.HasSuffix(trimmed, u.suffix) {
			mult = u.mult
			trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, u.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid size %q", s)
	}
	if value < 0 {
		return 0, fmt.Errorf("bytesize: negative size %q", s)
	}

	return Size(value * float64(mult)), nil
}

// MustParse is like Parse but panics on invalid input. For constants only.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// Format renders a size using the largest unit with a value >= 1.
func Format(s Size) string {
	switch {
	case s >= TB:
		return trimZeros(float64(s)/float64(TB)) + "TB"
	case s >= GB:
		return trimZeros(float64(s)/float64(GB)) + "GB"
	case s >= MB:
		return trimZeros(float64(s)/float64(MB)) + "MB"
	case s >= KB:
		return trimZeros(float64(s)/float64(KB)) + "KB"
	default:
		return fmt.Sprintf("%dB", s)
	}
}

func trimZeros(v float64) string {
	out := strconv.FormatFloat(v, 'f', 2, 64)
	out = strings.TrimRight(out, "0")
	return strings.TrimRight(out, ".")
}

// Bytes returns the size in bytes.
func (s Size) Bytes() int64 { return int64(s) }

// String implements fmt.Stringer.
func (s Size) String() string { return Format(s) }
