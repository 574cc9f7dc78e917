package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/sirupsen/logrus"
)

// RepoDir is the directory below the work directory holding the working copy.
const RepoDir = "spritecollab"

// DefaultBranch is the tracked upstream branch.
const DefaultBranch = "master"

const remoteName = "origin"

// ErrMissingGitDir is returned when the working copy has no .git directory.
var ErrMissingGitDir = errors.New("missing .git directory")

// GitRepository is a Repository that keeps an on-disk working copy of a Git
// repository. A working copy that cannot be updated in place is deleted and
// cloned again, so a broken checkout never blocks later refreshes.
type GitRepository struct {
	Name   string               // Name of the data source
	URL    *url.URL             // URL of the upstream repository
	Path   string               // Directory of the working copy
	Branch string               // Tracked branch, DefaultBranch if empty
	Auth   transport.AuthMethod // Optional credentials for fetch and clone
}

// NewGitRepository creates a GitRepository cloning gitURL into
// workdir/RepoDir. A non-empty token is sent as HTTP basic auth password.
func NewGitRepository(workdir, gitURL, branch, token string) (*GitRepository, error) {
	parsedURL, err := url.Parse(gitURL)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = DefaultBranch
	}
	repo := &GitRepository{
		Name:   RepoDir,
		URL:    parsedURL,
		Path:   filepath.Join(workdir, RepoDir),
		Branch: branch,
	}
	if token != "" {
		repo.Auth = &http.BasicAuth{Username: "spritecollab", Password: token}
	}
	return repo, nil
}

// GetName returns the name of the data source.
func (g *GitRepository) GetName() string {
	return g.Name
}

// GetType returns "git".
func (g *GitRepository) GetType() string {
	return "git"
}

// GetPath returns the directory of the working copy.
func (g *GitRepository) GetPath() string {
	return g.Path
}

// EnsureFresh updates the working copy in place, or clones it if it does not
// exist yet. If the in-place update fails for any reason the directory is
// removed and cloned from scratch; only a failing clone is returned.
func (g *GitRepository) EnsureFresh(ctx context.Context) error {
	log := g.logger()
	if _, err := os.Stat(g.Path); err == nil {
		updateErr := g.update(ctx)
		if updateErr == nil {
			return nil
		}
		log.WithError(updateErr).Warn("failed to update repo, deleting and cloning it again")
		if err := os.RemoveAll(g.Path); err != nil {
			log.WithError(err).Warn("failed to delete repo directory")
		}
	}
	if err := os.MkdirAll(g.Path, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", g.Path, err)
	}
	return g.clone(ctx)
}

func (g *GitRepository) branch() string {
	if g.Branch == "" {
		return DefaultBranch
	}
	return g.Branch
}

// update fetches the tracked branch from origin, points the local branch and
// HEAD at it and force-checks it out, discarding local modifications.
func (g *GitRepository) update(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(g.Path, git.GitDirName)); err != nil {
		return ErrMissingGitDir
	}
	repo, err := git.PlainOpen(g.Path)
	if err != nil {
		return err
	}
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return err
	}

	branch := g.branch()
	remoteRef := plumbing.NewRemoteReferenceName(remoteName, branch)
	g.logger().Debug("fetching")
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{config.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(branch), remoteRef))},
		Auth:     g.Auth,
		Force:    true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}

	fetched, err := repo.Reference(remoteRef, true)
	if err != nil {
		return err
	}
	localRef := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(localRef, fetched.Hash())); err != nil {
		return err
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, localRef)); err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: localRef, Force: true}); err != nil {
		return err
	}
	g.logger().WithField("commit", fetched.Hash().String()).Debug("updated")
	return nil
}

func (g *GitRepository) clone(ctx context.Context) error {
	log := g.logger()
	log.Info("cloning repo")

	worktree := osfs.New(g.Path)
	dot, err := worktree.Chroot(git.GitDirName)
	if err != nil {
		return err
	}
	storer := filesystem.NewStorage(dot, cache.NewObjectLRUDefault())
	_, err = git.CloneContext(ctx, storer, worktree, &git.CloneOptions{
		URL:           g.URL.String(),
		Auth:          g.Auth,
		RemoteName:    remoteName,
		ReferenceName: plumbing.NewBranchReferenceName(g.branch()),
		SingleBranch:  true,
	})
	if err != nil {
		return fmt.Errorf("cloning %s: %w", g.URL.Redacted(), err)
	}
	log.Info("cloning repo done")
	return nil
}

func (g *GitRepository) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"repository": g.Name, "path": g.Path})
}
