package validators

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePluginName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "simple", input: "haproxy", want: "haproxy"},
		{name: "dots and dashes", input: "app.settings-v2", want: "app.settings-v2"},
		{name: "underscore", input: "nginx_upstreams", want: "nginx_upstreams"},
		{name: "single char", input: "a", want: "a"},
		{name: "trimmed", input: "  motd \t", want: "motd"},
		{name: "empty", input: "", wantErr: "cannot be empty"},
		{name: "whitespace only", input: "   ", wantErr: "cannot be empty"},
		{name: "leading dash", input: "-haproxy", wantErr: "is invalid"},
		{name: "trailing dot", input: "haproxy.", wantErr: "is invalid"},
		{name: "slash", input: "conf/haproxy", wantErr: "is invalid"},
		{name: "inner space", input: "ha proxy", wantErr: "is invalid"},
		{name: "too long", input: strings.Repeat("a", 64), wantErr: "maximum length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ValidatePluginName(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.False(t, IsValidPluginName(tt.input))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsValidPluginName(tt.input))
		})
	}
}
