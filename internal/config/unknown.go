package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys per section, by dotted section path.
// The empty section holds the valid top-level tables.
var knownKeys = map[string][]string{
	"":                   {"source", "destination", "transfer", "logging", "state", "metrics"},
	"source":             {"client_secrets", "page_size", "api_url"},
	"destination":        {"server", "folder", "identifier_type", "credentials_file", "metadata_namespace", "security_tag", "upload"},
	"destination.upload": {"endpoint", "bucket", "region", "access_key", "secret_key", "use_ssl"},
	"transfer":           {"temp_dir", "metadata_dir", "chunk_size"},
	"logging":            {"log_level", "log_format", "log_file"},
	"state":              {"data_dir", "token_file", "ledger"},
	"metrics":            {"textfile"},
}

func init() {
	for _, keys := range knownKeys {
		sort.Strings(keys)
	}
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	// An unknown table reports itself and each of its keys; keep one error.
	seen := make(map[string]bool)

	for _, key := range undecoded {
		err := unknownKeyError(key)
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError reports the first unknown segment of key, suggesting the
// closest valid key in the same section.
func unknownKeyError(key toml.Key) error {
	section := ""

	for _, part := range key {
		known := knownKeys[section]
		if !slices.Contains(known, part) {
			where := "top level"
			if section != "" {
				where = "[" + section + "]"
			}

			if suggestion := closestMatch(part, known); suggestion != "" {
				return fmt.Errorf("unknown config key %q in %s, did you mean %q?", part, where, suggestion)
			}

			return fmt.Errorf("unknown config key %q in %s", part, where)
		}

		if section == "" {
			section = part
		} else {
			section += "." + part
		}
	}

	return fmt.Errorf("unknown config key %q", strings.Join(key, "."))
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
