// Package render turns template text and a data mapping into configuration text.
//
// Templates use Go text/template syntax with the sprig function set. Access to a
// key missing from the data mapping is an error rather than "<no value>", so a
// misspelt field never silently produces a broken configuration file.
package render

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/spf13/afero"
)

// Error reports a template that could not be parsed or executed
type Error struct {
	Template string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to render template %s: %v", e.Template, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Render renders text with data. It is deterministic and free of side effects.
func Render(name, text string, data map[string]any) (string, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return "", &Error{Template: name, Err: err}
	}

	if data == nil {
		data = map[string]any{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &Error{Template: name, Err: err}
	}
	return buf.String(), nil
}

// Command renders a short command template against vars. An empty command renders to "".
func Command(text string, vars map[string]string) (string, error) {
	if text == "" {
		return "", nil
	}

	tmpl, err := template.New("command").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", &Error{Template: "command", Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", &Error{Template: "command", Err: err}
	}
	return buf.String(), nil
}

// Loader reads template text
//
//go:generate mockgen -destination=mocks/mock_loader.go -package=mocks github.com/stacklok/thv-confd/internal/render Loader
type Loader interface {
	// Path resolves a template source to the file that is read
	Path(src string) string

	// Load returns the current content of the template
	Load(src string) (string, error)
}

type fsLoader struct {
	fs  afero.Fs
	dir string
}

// NewLoader creates a Loader resolving relative template sources against dir.
// A nil fs uses the OS filesystem.
func NewLoader(fs afero.Fs, dir string) Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &fsLoader{fs: fs, dir: dir}
}

func (l *fsLoader) Path(src string) string {
	if filepath.IsAbs(src) {
		return filepath.Clean(src)
	}
	return filepath.Join(l.dir, src)
}

func (l *fsLoader) Load(src string) (string, error) {
	path := l.Path(src)
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return "", &Error{Template: src, Err: fmt.Errorf("failed to read template %s: %w", path, err)}
	}
	return string(data), nil
}
