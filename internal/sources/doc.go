// Package sources provides the data sources a plugin fetches its template data from.
//
// Every Source returns a map[string]any on each Fetch. Values are normalized
// so that equal documents compare equal regardless of the decoder that
// produced them: mapping keys are strings, whole numbers are int64 and other
// numbers float64.
//
// Available source types:
//   - static: values declared inline in the plugin definition
//   - env: environment variables selected by prefix
//   - file: a local JSON, HuJSON, YAML or TOML document
//   - api: a JSON document fetched over HTTP, optionally narrowed with a gjson path
//   - git: a document read from an in-memory clone of a Git repository
//   - configmap: the data of a Kubernetes ConfigMap
//   - postgres: the rows returned by a PostgreSQL query
//   - command: the JSON object printed by an external command
//   - random: a random number, useful to exercise a deployment
//
// A Factory creates sources from their configuration. The optional Validator
// checks fetched data against a JSON Schema.
package sources
