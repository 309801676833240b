// Package validators provides validation functions for confd plugin definitions.
package validators

import (
	"fmt"
	"regexp"
	"strings"
)

const maxPluginNameLength = 63

// Plugin names end up in URL paths, metric labels and log fields.
var pluginNamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)

// ValidatePluginName validates a plugin name and returns it trimmed.
//
// Valid names start and end with an alphanumeric character and may contain
// dots, underscores and hyphens in the middle, e.g. "haproxy", "app.settings"
// or "nginx-upstreams".
func ValidatePluginName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return "", fmt.Errorf("plugin name cannot be empty")
	}
	if len(name) > maxPluginNameLength {
		return "", fmt.Errorf("plugin name exceeds maximum length of %d characters", maxPluginNameLength)
	}
	if !pluginNamePattern.MatchString(name) {
		return "", fmt.Errorf(
			"plugin name '%s' is invalid. Name must start and end with alphanumeric characters, "+
				"and may contain dots, underscores, and hyphens in the middle",
			name,
		)
	}

	return name, nil
}

// IsValidPluginName is the boolean form of ValidatePluginName
func IsValidPluginName(name string) bool {
	_, err := ValidatePluginName(name)
	return err == nil
}
