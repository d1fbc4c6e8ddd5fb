// Package cli provides shared helpers for guardctl commands.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MatchPaths filters protected file paths by a glob pattern. A pattern
// with glob characters (*?[) is matched against both the full path and
// its base name; anything else must equal one of the two exactly.
func MatchPaths(pattern string, paths []string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	hasGlob := strings.ContainsAny(pattern, "*?[")

	var matches []string
	for _, path := range paths {
		if hasGlob {
			ok, err := filepath.Match(pattern, path)
			if err != nil {
				return nil, err
			}
			if !ok {
				ok, _ = filepath.Match(pattern, filepath.Base(path))
			}
			if ok {
				matches = append(matches, path)
			}
			continue
		}
		if path == pattern || filepath.Base(path) == pattern {
			matches = append(matches, path)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no protected files match %q", pattern)
	}
	return matches, nil
}
