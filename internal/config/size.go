package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	kibibyte = 1 << 10
	mebibyte = 1 << 20
	gibibyte = 1 << 30
	tebibyte = 1 << 40
)

// sizeUnits is matched longest suffix first so "MiB" wins over "B".
// Decimal units are accepted because operators copy them from Drive's UI.
var sizeUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"TIB", tebibyte},
	{"GIB", gibibyte},
	{"MIB", mebibyte},
	{"KIB", kibibyte},
	{"TB", 1e12},
	{"GB", 1e9},
	{"MB", 1e6},
	{"KB", 1e3},
	{"B", 1},
}

// ParseSize converts a byte quantity such as transfer.chunk_size ("100MiB",
// "0.5 GiB", "262144") to bytes. Empty means zero. Fractions round down to
// whole bytes; results past int64 are rejected.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	upper := strings.ToUpper(s)

	for _, u := range sizeUnits {
		if strings.HasSuffix(upper, u.suffix) {
			return scaleSize(s, strings.TrimSpace(s[:len(s)-len(u.suffix)]), u.multiplier)
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	return n, nil
}

func scaleSize(original, number string, multiplier int64) (int64, error) {
	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", original, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", original)
	}

	bytes := n * float64(multiplier)
	if math.IsInf(bytes, 0) || math.IsNaN(bytes) || bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", original)
	}

	return int64(bytes), nil
}
