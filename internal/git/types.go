package git

import (
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
)

// CloneConfig selects the repository and the revision to track
type CloneConfig struct {
	URL string

	// At most one of Branch, Tag or Commit is set. None tracks the remote HEAD.
	Branch string
	Tag    string
	Commit string

	// Auth is optional HTTP basic authentication
	Auth *AuthConfig
}

// AuthConfig holds HTTP basic authentication credentials
type AuthConfig struct {
	Username string
	Password string
}

// Pinned reports whether the revision can never move
func (c *CloneConfig) Pinned() bool {
	return c.Commit != ""
}

// RepositoryInfo is a bare in-memory clone kept between fetches
type RepositoryInfo struct {
	Repository *git.Repository

	// Branch is the tracked branch, empty for tags and commits
	Branch string

	// Commit is the hash of the revision files are read from
	Commit string

	RemoteURL string

	config *CloneConfig

	// trackedRef is the local reference Update fetches into
	trackedRef plumbing.ReferenceName

	storerFilesystem billy.Filesystem
	objectCache      cache.Object
}
