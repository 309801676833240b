package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// TestCommit is one commit created by CreateTestRepo or AddTestCommit
type TestCommit struct {
	// Files maps paths to their content
	Files map[string]string

	// Tag, when set, creates or moves a lightweight tag to the commit
	Tag string

	// Branch, when set, creates or moves the branch to the commit
	Branch string
}

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// CreateTestRepo creates a repository in a temporary directory with one commit per entry.
// It returns the repository path and the hash of every commit.
func CreateTestRepo(t *testing.T, commits ...TestCommit) (string, []plumbing.Hash) {
	t.Helper()

	repoDir := t.TempDir()
	if _, err := git.PlainInit(repoDir, false); err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}

	hashes := make([]plumbing.Hash, 0, len(commits))
	for _, commit := range commits {
		hashes = append(hashes, AddTestCommit(t, repoDir, commit))
	}
	return repoDir, hashes
}

// AddTestCommit commits the given files on top of the checked out branch of repoDir
func AddTestCommit(t *testing.T, repoDir string, commit TestCommit) plumbing.Hash {
	t.Helper()

	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	workTree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}

	for name, content := range commit.Files {
		path := filepath.Join(repoDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("Failed to write file %s: %v", name, err)
		}
		if _, err := workTree.Add(name); err != nil {
			t.Fatalf("Failed to add file %s: %v", name, err)
		}
	}

	// Distinct timestamps keep hashes distinct for identical trees
	count := 0
	if head, err := repo.Head(); err == nil {
		if iter, err := repo.Log(&git.LogOptions{From: head.Hash()}); err == nil {
			_ = iter.ForEach(func(*object.Commit) error { count++; return nil })
		}
	}
	author := &object.Signature{
		Name:  "Test Author",
		Email: "test@example.com",
		When:  testEpoch.Add(time.Duration(count+1) * time.Minute),
	}
	hash, err := workTree.Commit("update "+filepath.Base(repoDir), &git.CommitOptions{Author: author})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	if commit.Tag != "" {
		ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(commit.Tag), hash)
		if err := repo.Storer.SetReference(ref); err != nil {
			t.Fatalf("Failed to set tag %s: %v", commit.Tag, err)
		}
	}
	if commit.Branch != "" {
		ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(commit.Branch), hash)
		if err := repo.Storer.SetReference(ref); err != nil {
			t.Fatalf("Failed to set branch %s: %v", commit.Branch, err)
		}
	}
	return hash
}
