package extract

import (
	"strconv"
	"strings"
)

// ParseMetric normalizes a human-formatted count into an integer.
//
//	"1200"  -> 1200
//	"1.5k"  -> 1500
//	"2M"    -> 2000000
//	"--"    -> 0
//
// Suffix multipliers truncate toward zero. Anything unparsable is 0; a
// missing metric is a defined default, never an error.
func ParseMetric(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}

	lower := strings.ToLower(s)
	var multiplier float64
	switch {
	case strings.HasSuffix(lower, "k"):
		multiplier = 1_000
	case strings.HasSuffix(lower, "m"):
		multiplier = 1_000_000
	default:
		return 0
	}

	prefix := strings.TrimSpace(lower[:len(lower)-1])
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f * multiplier)
}
