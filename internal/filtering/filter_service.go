package filtering

import (
	"log/slog"

	"github.com/stacklok/thv-confd/internal/config"
)

// FilterService selects plugin definitions according to a FilterConfig
type FilterService interface {
	// ApplyFilters returns the definitions that pass filter, preserving order
	ApplyFilters(defs []config.PluginConfig, filter *config.FilterConfig) []config.PluginConfig
}

type defaultFilterService struct {
	nameFilter NameFilter
	tagFilter  TagFilter
}

// NewDefaultFilterService creates a FilterService with the default name and tag filters
func NewDefaultFilterService() FilterService {
	return NewFilterService(NewDefaultNameFilter(), NewDefaultTagFilter())
}

// NewFilterService creates a FilterService with custom filters
func NewFilterService(nameFilter NameFilter, tagFilter TagFilter) FilterService {
	return &defaultFilterService{
		nameFilter: nameFilter,
		tagFilter:  tagFilter,
	}
}

func (s *defaultFilterService) ApplyFilters(
	defs []config.PluginConfig,
	filter *config.FilterConfig,
) []config.PluginConfig {
	if filter.IsEmpty() {
		return defs
	}

	var nameInclude, nameExclude, tagInclude, tagExclude []string
	if filter.Names != nil {
		nameInclude = filter.Names.Include
		nameExclude = filter.Names.Exclude
	}
	if filter.Tags != nil {
		tagInclude = filter.Tags.Include
		tagExclude = filter.Tags.Exclude
	}

	kept := make([]config.PluginConfig, 0, len(defs))
	for _, def := range defs {
		included, reason := s.nameFilter.ShouldInclude(def.Name, nameInclude, nameExclude)
		if included {
			included, reason = s.tagFilter.ShouldInclude(def.Tags, tagInclude, tagExclude)
		}
		if !included {
			slog.Info("Skipping plugin", "plugin", def.Name, "reason", reason)
			continue
		}
		slog.Debug("Selected plugin", "plugin", def.Name, "reason", reason)
		kept = append(kept, def)
	}

	slog.Info("Applied plugin filters", "defined", len(defs), "selected", len(kept))
	return kept
}
