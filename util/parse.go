package util

import (
	"strconv"
	"strings"
)

// ParseInt parses a string to int, returning 0 on error.
func ParseInt(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}

// ParseUint64 parses a string to uint64, returning 0 on error.
func ParseUint64(s string) uint64 {
	v, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return v
}

// ParseFloat64 parses a string to float64, returning 0 on error.
func ParseFloat64(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

// StripDelta removes the trailing +/- delta marker top appends to counter
// columns in logging mode (e.g. "1082+" -> "1082").
func StripDelta(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "+")
	s = strings.TrimSuffix(s, "-")
	return s
}

// ParseMemBytes normalizes a top-style memory value to bytes. Values carry
// a unit suffix (B, K, M, G) and may carry a trailing delta marker:
// "4096B", "1536K+", "23M", "1G-". Bare numbers are treated as bytes.
// Returns 0 on unparsable input.
func ParseMemBytes(s string) uint64 {
	s = StripDelta(s)
	if s == "" {
		return 0
	}
	mult := uint64(1)
	switch s[len(s)-1] {
	case 'B', 'b':
		s = s[:len(s)-1]
	case 'K', 'k':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	// top prints fractional values for G ("1.5G")
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			return 0
		}
		return uint64(f * float64(mult))
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v * mult
}
