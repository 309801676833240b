package filtering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameFilter_ShouldInclude(t *testing.T) {
	t.Parallel()

	filter := NewDefaultNameFilter()

	tests := []struct {
		name       string
		plugin     string
		include    []string
		exclude    []string
		want       bool
		wantReason string
	}{
		{name: "no patterns", plugin: "haproxy", want: true, wantReason: "no name filters specified"},
		{name: "include match", plugin: "haproxy", include: []string{"ha*"}, want: true, wantReason: "included by pattern 'ha*'"},
		{name: "include no match", plugin: "motd", include: []string{"ha*"}, want: false, wantReason: "no match found"},
		{name: "exclude wins", plugin: "haproxy-canary", include: []string{"haproxy*"}, exclude: []string{"*-canary"}, want: false, wantReason: "excluded by pattern"},
		{name: "exclude only no match", plugin: "motd", exclude: []string{"*-canary"}, want: true, wantReason: "no match in exclude patterns"},
		{name: "star matches dots", plugin: "app.settings", include: []string{"app*"}, want: true},
		{name: "question mark", plugin: "db1", include: []string{"db?"}, want: true},
		{name: "character class", plugin: "web3", include: []string{"web[1-2]"}, want: false},
		{name: "invalid include", plugin: "motd", include: []string{"[a-"}, want: false, wantReason: "invalid include pattern"},
		{name: "invalid exclude", plugin: "motd", exclude: []string{"[a-"}, want: false, wantReason: "invalid exclude pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, reason := filter.ShouldInclude(tt.plugin, tt.include, tt.exclude)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, reason, tt.wantReason)
		})
	}
}

func TestValidatePatterns(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidatePatterns(nil))
	require.NoError(t, ValidatePatterns([]string{"haproxy*", "db?", "web[1-3]"}))

	err := ValidatePatterns([]string{"ok", "[a-"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'[a-'")
}
