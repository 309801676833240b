// Package git keeps bare in-memory clones for the git data source
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Client clones a repository once and then follows its tracked revision
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/thv-confd/internal/git Client
type Client interface {
	// Clone creates a bare in-memory clone of the configured revision
	Clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error)

	// Update fetches the tracked revision and reports whether its commit moved.
	// Pinned commits are never fetched again.
	Update(ctx context.Context, repoInfo *RepositoryInfo) (bool, error)

	// GetFileContent reads path at the current commit
	GetFileContent(repoInfo *RepositoryInfo, path string) ([]byte, error)

	// Cleanup releases the in-memory clone
	Cleanup(ctx context.Context, repoInfo *RepositoryInfo) error
}

type defaultGitClient struct{}

// NewDefaultGitClient returns a Client backed by go-git
func NewDefaultGitClient() Client {
	return &defaultGitClient{}
}

func authMethod(cfg *CloneConfig) transport.AuthMethod {
	if cfg.Auth == nil || cfg.Auth.Username == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: cfg.Auth.Username, Password: cfg.Auth.Password}
}

func (*defaultGitClient) Clone(ctx context.Context, cfg *CloneConfig) (*RepositoryInfo, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("repository URL is required")
	}

	opts := &git.CloneOptions{
		URL:        cfg.URL,
		Auth:       authMethod(cfg),
		NoCheckout: true,
	}
	// A pinned commit may be anywhere in the history
	if !cfg.Pinned() {
		opts.Depth = 1
		opts.SingleBranch = true
		switch {
		case cfg.Branch != "":
			opts.ReferenceName = plumbing.NewBranchReferenceName(cfg.Branch)
		case cfg.Tag != "":
			opts.ReferenceName = plumbing.NewTagReferenceName(cfg.Tag)
		}
	}

	storerFs := newLimitedFs(memfs.New())
	objectCache := cache.NewObjectLRUDefault()
	repo, err := git.CloneContext(ctx, filesystem.NewStorage(storerFs, objectCache), nil, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	info := &RepositoryInfo{
		Repository:       repo,
		RemoteURL:        cfg.URL,
		config:           cfg,
		storerFilesystem: storerFs,
		objectCache:      objectCache,
	}

	if cfg.Pinned() {
		hash := plumbing.NewHash(cfg.Commit)
		if _, err := repo.CommitObject(hash); err != nil {
			return nil, fmt.Errorf("failed to resolve commit %s: %w", cfg.Commit, err)
		}
		info.Commit = hash.String()
		return info, nil
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD reference: %w", err)
	}
	commit, err := peel(repo, head.Hash())
	if err != nil {
		return nil, err
	}
	info.Commit = commit.String()

	switch {
	case cfg.Tag != "":
		info.trackedRef = plumbing.NewTagReferenceName(cfg.Tag)
	case head.Name().IsBranch():
		info.Branch = head.Name().Short()
		info.trackedRef = head.Name()
	}
	return info, nil
}

func (*defaultGitClient) Update(ctx context.Context, info *RepositoryInfo) (bool, error) {
	if info == nil || info.Repository == nil || info.config == nil {
		return false, fmt.Errorf("repository is nil")
	}
	if info.config.Pinned() || info.trackedRef == "" {
		return false, nil
	}

	spec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", info.trackedRef, info.trackedRef))
	err := info.Repository.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Depth:      1,
		Auth:       authMethod(info.config),
		Tags:       git.NoTags,
		Force:      true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch %s: %w", info.trackedRef.Short(), err)
	}

	ref, err := info.Repository.Reference(info.trackedRef, true)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", info.trackedRef.Short(), err)
	}
	commit, err := peel(info.Repository, ref.Hash())
	if err != nil {
		return false, err
	}
	if commit.String() == info.Commit {
		return false, nil
	}

	slog.Debug("Git revision moved",
		"repository", info.RemoteURL,
		"ref", info.trackedRef.Short(),
		"from", info.Commit,
		"to", commit.String())
	info.Commit = commit.String()
	return true, nil
}

// peel resolves annotated tags to the commit they point at
func peel(repo *git.Repository, hash plumbing.Hash) (plumbing.Hash, error) {
	if tag, err := repo.TagObject(hash); err == nil {
		commit, err := tag.Commit()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to resolve tag %s: %w", tag.Name, err)
		}
		return commit.Hash, nil
	}
	return hash, nil
}

func (*defaultGitClient) GetFileContent(info *RepositoryInfo, path string) ([]byte, error) {
	if info == nil || info.Repository == nil {
		return nil, fmt.Errorf("repository is nil")
	}

	commit, err := info.Repository.CommitObject(plumbing.NewHash(info.Commit))
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", info.Commit, err)
	}
	file, err := commit.File(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}
	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return []byte(content), nil
}

func (*defaultGitClient) Cleanup(_ context.Context, info *RepositoryInfo) error {
	if info == nil || info.Repository == nil {
		return fmt.Errorf("repository is nil")
	}

	if info.objectCache != nil {
		info.objectCache.Clear()
	}
	if info.storerFilesystem != nil {
		_ = util.RemoveAll(info.storerFilesystem, "/")
	}

	info.objectCache = nil
	info.storerFilesystem = nil
	info.Repository = nil
	return nil
}
