package app

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	confdapp "github.com/stacklok/thv-confd/internal/app"
)

func newRenderCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "render <plugin>",
		Short: "Fetch and render a plugin once to stdout",
		Long: `Render fetches the data of one plugin and prints the rendered template.
The destination is not written and no command is run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderPlugin(cmd, v, afero.NewOsFs(), args[0])
		},
	}
}

func renderPlugin(cmd *cobra.Command, v *viper.Viper, fs afero.Fs, name string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	reg, err := confdapp.BuildRegistry(cfg, confdapp.WithRegistryFs(fs))
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	output, err := confdapp.Preview(cmd.Context(), cfg, reg, name, fs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), output)
	return err
}
