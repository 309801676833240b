// Package registry turns plugin definitions into plugins and keeps the set of
// plugins the daemon runs.
//
// # Definitions
//
// Plugin definitions come from two places: one YAML file per plugin in the
// conf.d directory, and the plugins list of the daemon configuration. Build
// reads both, creates the data source of every definition and registers the
// resulting plugins:
//
//	reg, err := registry.Build(cfg, sources.NewFactory())
//	for _, p := range reg.Plugins() {
//	    // p.Name(), p.Spec(), p.Fetch(ctx)
//	}
//
// # Uniqueness
//
// Two plugins may not share a name or a destination. Register reports both
// as a plugin.ConfigurationError, which aborts startup.
//
// # Test Utilities
//
// NewTestPluginConfig builds definitions with functional options so tests do
// not spell out every field:
//
//	def := registry.NewTestPluginConfig("haproxy",
//	    registry.WithStaticData(map[string]any{"maxconn": 2000}),
//	    registry.WithReloadCommand("systemctl reload haproxy"),
//	)
package registry
