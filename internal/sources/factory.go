package sources

import (
	"fmt"

	"github.com/spf13/afero"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/stacklok/thv-confd/internal/command"
	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/git"
	"github.com/stacklok/thv-confd/internal/httpclient"
)

// defaultFactory is the default implementation of Factory
type defaultFactory struct {
	fs         afero.Fs
	environ    func() []string
	httpClient httpclient.Client
	gitClient  git.Client
	runner     command.Runner
	querier    Querier
	kubeClient func() (client.Reader, error)
}

var _ Factory = (*defaultFactory)(nil)

// FactoryOption configures the factory
type FactoryOption func(*defaultFactory)

// WithFs sets the filesystem file sources read from
func WithFs(fs afero.Fs) FactoryOption {
	return func(f *defaultFactory) {
		f.fs = fs
	}
}

// WithEnviron sets the environment env sources read from
func WithEnviron(environ func() []string) FactoryOption {
	return func(f *defaultFactory) {
		f.environ = environ
	}
}

// WithHTTPClient sets the client API sources use instead of building their own
func WithHTTPClient(c httpclient.Client) FactoryOption {
	return func(f *defaultFactory) {
		f.httpClient = c
	}
}

// WithGitClient sets the client Git sources clone with
func WithGitClient(c git.Client) FactoryOption {
	return func(f *defaultFactory) {
		f.gitClient = c
	}
}

// WithRunner sets the runner command sources execute with
func WithRunner(r command.Runner) FactoryOption {
	return func(f *defaultFactory) {
		f.runner = r
	}
}

// WithQuerier sets the connection postgres sources query instead of opening a pool
func WithQuerier(q Querier) FactoryOption {
	return func(f *defaultFactory) {
		f.querier = q
	}
}

// WithKubeClient sets how ConfigMap sources obtain a Kubernetes client.
// The function is only called when a ConfigMap source is created.
func WithKubeClient(fn func() (client.Reader, error)) FactoryOption {
	return func(f *defaultFactory) {
		f.kubeClient = fn
	}
}

// NewFactory creates a new source factory
func NewFactory(opts ...FactoryOption) Factory {
	f := &defaultFactory{
		kubeClient: NewKubeClient,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create creates the source for the given configuration
func (f *defaultFactory) Create(cfg *config.SourceConfig) (Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source configuration cannot be nil")
	}

	switch cfg.Type {
	case config.SourceTypeStatic:
		return NewStaticSource(cfg.Static), nil
	case config.SourceTypeEnv:
		if cfg.Env == nil {
			return nil, fmt.Errorf("env configuration is required for source type %s", cfg.Type)
		}
		return NewEnvSource(cfg.Env, f.environ), nil
	case config.SourceTypeFile:
		return NewFileSource(cfg.File, f.fs)
	case config.SourceTypeAPI:
		return NewAPISource(cfg.API, f.httpClient)
	case config.SourceTypeGit:
		return NewGitSource(cfg.Git, f.gitClient)
	case config.SourceTypeConfigMap:
		k8sClient, err := f.kubeClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
		}
		return NewConfigMapSource(cfg.ConfigMap, k8sClient)
	case config.SourceTypePostgres:
		return NewPostgresSource(cfg.Postgres, f.querier)
	case config.SourceTypeCommand:
		return NewCommandSource(cfg.Command, f.runner)
	case config.SourceTypeRandom:
		return NewRandomSource(cfg.Random)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}
