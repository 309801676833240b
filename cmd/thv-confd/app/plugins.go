package app

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	confdapp "github.com/stacklok/thv-confd/internal/app"
	"github.com/stacklok/thv-confd/internal/plugin"
)

// sourceTyper is implemented by plugins built from a definition
type sourceTyper interface {
	SourceType() string
}

func newPluginsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the configured plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listPlugins(cmd, v, afero.NewOsFs())
		},
	}
}

func listPlugins(cmd *cobra.Command, v *viper.Viper, fs afero.Fs) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	reg, err := confdapp.BuildRegistry(cfg, confdapp.WithRegistryFs(fs))
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header([]string{"Name", "Source", "Template", "Destination", "Interval"})
	for _, p := range reg.Plugins() {
		source := "custom"
		if st, ok := p.(sourceTyper); ok {
			source = st.SourceType()
		}
		spec := p.Spec()
		if err := table.Append([]string{
			p.Name(),
			source,
			spec.TemplateSource,
			spec.Destination,
			plugin.IntervalOf(p, cfg.GetDefaultInterval()).String(),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
