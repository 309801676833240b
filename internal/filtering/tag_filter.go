package filtering

import (
	"fmt"
	"slices"
)

// TagFilter decides whether a plugin passes include/exclude tag lists
type TagFilter interface {
	// ShouldInclude returns whether a plugin carrying tags passes and a human readable reason
	ShouldInclude(tags []string, include, exclude []string) (bool, string)
}

// DefaultTagFilter matches tags exactly
type DefaultTagFilter struct{}

// NewDefaultTagFilter creates a new DefaultTagFilter
func NewDefaultTagFilter() *DefaultTagFilter {
	return &DefaultTagFilter{}
}

// ShouldInclude implements TagFilter
func (*DefaultTagFilter) ShouldInclude(tags []string, include, exclude []string) (bool, string) {
	for _, tag := range exclude {
		if slices.Contains(tags, tag) {
			return false, fmt.Sprintf("excluded by tag '%s'", tag)
		}
	}

	if len(include) == 0 {
		if len(exclude) > 0 {
			return true, fmt.Sprintf("no matching tags in exclude list %v (plugin tags: %v)", exclude, tags)
		}
		return true, "no tag filters specified"
	}

	for _, tag := range include {
		if slices.Contains(tags, tag) {
			return true, fmt.Sprintf("included by tag '%s'", tag)
		}
	}
	return false, fmt.Sprintf("no matching tags found in include list %v (plugin tags: %v)", include, tags)
}
