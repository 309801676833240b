package app

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	confdapp "github.com/stacklok/thv-confd/internal/app"
	"github.com/stacklok/thv-confd/internal/plugin"
	"github.com/stacklok/thv-confd/internal/render"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and every plugin definition",
		Long: `Validate loads the daemon configuration and the plugin definitions, constructs
every plugin and checks that its template can be read. Nothing is fetched,
rendered or written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return validate(cmd, v, afero.NewOsFs())
		},
	}
}

func validate(cmd *cobra.Command, v *viper.Viper, fs afero.Fs) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	reg, err := confdapp.BuildRegistry(cfg, confdapp.WithRegistryFs(fs))
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	loader := render.NewLoader(fs, cfg.GetTemplateDir())
	var problems []error
	for _, p := range reg.Plugins() {
		if _, custom := p.(plugin.Renderer); custom {
			continue
		}
		if _, err := loader.Load(p.Spec().TemplateSource); err != nil {
			problems = append(problems, fmt.Errorf("plugin %s: %w", p.Name(), err))
		}
	}
	if len(problems) > 0 {
		return errors.Join(problems...)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d plugin(s) valid: %v\n", reg.Len(), reg.Names())
	return err
}
