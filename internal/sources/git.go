package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/git"
)

// gitSource keeps a bare in-memory clone and fetches the tracked revision on every call
type gitSource struct {
	client git.Client
	cfg    *config.GitConfig
	format string

	mu   sync.Mutex
	repo *git.RepositoryInfo
}

// NewGitSource creates a Git source. A nil client uses go-git.
func NewGitSource(cfg *config.GitConfig, client git.Client) (Source, error) {
	if cfg == nil || cfg.Repository == "" {
		return nil, fmt.Errorf("git repository URL cannot be empty")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("git path cannot be empty")
	}
	if client == nil {
		client = git.NewDefaultGitClient()
	}
	format := cfg.Format
	if format == "" {
		format = FormatFromPath(cfg.Path)
	}
	return &gitSource{client: client, cfg: cfg, format: format}, nil
}

func (*gitSource) Type() string {
	return config.SourceTypeGit
}

func (s *gitSource) Fetch(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.sync(ctx)
	if err != nil {
		return nil, fetchError(config.SourceTypeGit, err)
	}

	data, err := s.client.GetFileContent(repo, s.cfg.Path)
	if err != nil {
		return nil, fetchError(config.SourceTypeGit,
			fmt.Errorf("failed to get file %s from repository: %w", s.cfg.Path, err))
	}

	doc, err := Decode(data, s.format)
	if err != nil {
		return nil, fetchError(config.SourceTypeGit, fmt.Errorf("%s: %w", s.cfg.Path, err))
	}
	return doc, nil
}

// sync clones on first use and fetches afterwards. A failed fetch drops the
// clone so the next call starts over.
func (s *gitSource) sync(ctx context.Context) (*git.RepositoryInfo, error) {
	if s.repo != nil {
		if _, err := s.client.Update(ctx, s.repo); err != nil {
			s.release(ctx)
			return nil, err
		}
		return s.repo, nil
	}

	cloneConfig := &git.CloneConfig{
		URL:    s.cfg.Repository,
		Branch: s.cfg.Branch,
		Tag:    s.cfg.Tag,
		Commit: s.cfg.Commit,
	}
	if s.cfg.Auth != nil && s.cfg.Auth.Username != "" {
		password, err := s.cfg.Auth.GetPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to get git password: %w", err)
		}
		cloneConfig.Auth = &git.AuthConfig{Username: s.cfg.Auth.Username, Password: password}
	}

	start := time.Now()
	repo, err := s.client.Clone(ctx, cloneConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}
	slog.DebugContext(ctx, "Git clone completed",
		"repository", cloneConfig.URL,
		"branch", repo.Branch,
		"commit_sha", repo.Commit,
		"duration", time.Since(start).String())

	s.repo = repo
	return repo, nil
}

func (s *gitSource) release(ctx context.Context) {
	if s.repo == nil {
		return
	}
	if err := s.client.Cleanup(ctx, s.repo); err != nil {
		slog.WarnContext(ctx, "Failed to cleanup repository", "error", err)
	}
	s.repo = nil
}

// Close releases the in-memory clone
func (s *gitSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release(context.Background())
	return nil
}
