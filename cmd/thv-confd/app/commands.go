// Package app provides the command line interface of thv-confd.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/versions"
)

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "thv-confd",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Render configuration files from live data and reload their services",
		Long: `thv-confd keeps configuration files up to date. Every plugin periodically fetches
data from its source, renders a template with it when the data or the template
changed, writes the destination file atomically and runs a reload command.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to the daemon configuration file (YAML)")
	flags.String("plugin-dir", "", "Directory holding plugin definitions (overrides pluginDir)")
	flags.String("template-dir", "", "Directory relative template paths are resolved against (overrides templateDir)")
	for _, name := range []string{"config", "plugin-dir", "template-dir"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	rootCmd.AddCommand(
		newRunCmd(v),
		newValidateCmd(v),
		newPluginsCmd(v),
		newRenderCmd(v),
		newVersionCmd(),
	)

	return rootCmd
}

// loadConfig reads the daemon configuration and applies flag and environment overrides
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(config.WithConfigPath(path))
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		slog.Debug("Loaded configuration", "path", path)
	}

	if dir := v.GetString("plugin-dir"); dir != "" {
		cfg.PluginDir = dir
	}
	if dir := v.GetString("template-dir"); dir != "" {
		cfg.TemplateDir = dir
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "thv-confd %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
