package filtering

import (
	"fmt"

	"github.com/gobwas/glob"
)

// NameFilter decides whether a plugin name passes include/exclude glob patterns
type NameFilter interface {
	// ShouldInclude returns whether name passes and a human readable reason
	ShouldInclude(name string, include, exclude []string) (bool, string)
}

type globNameFilter struct{}

var _ NameFilter = (*globNameFilter)(nil)

// NewDefaultNameFilter returns a NameFilter backed by gobwas/glob
func NewDefaultNameFilter() NameFilter {
	return &globNameFilter{}
}

// ValidatePatterns reports the first pattern that does not compile
func ValidatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
	}
	return nil
}

func matchPattern(pattern, name string) (bool, error) {
	compiled, err := glob.Compile(pattern)
	if err != nil {
		return false, err
	}
	return compiled.Match(name), nil
}

func (*globNameFilter) ShouldInclude(name string, include, exclude []string) (bool, string) {
	for _, pattern := range exclude {
		matches, err := matchPattern(pattern, name)
		if err != nil {
			return false, fmt.Sprintf("invalid exclude pattern '%s': %v", pattern, err)
		}
		if matches {
			return false, fmt.Sprintf("excluded by pattern '%s'", pattern)
		}
	}

	if len(include) == 0 {
		if len(exclude) > 0 {
			return true, fmt.Sprintf("no match in exclude patterns %v", exclude)
		}
		return true, "no name filters specified"
	}

	for _, pattern := range include {
		matches, err := matchPattern(pattern, name)
		if err != nil {
			return false, fmt.Sprintf("invalid include pattern '%s': %v", pattern, err)
		}
		if matches {
			return true, fmt.Sprintf("included by pattern '%s'", pattern)
		}
	}
	return false, fmt.Sprintf("no match found in include patterns %v", include)
}
