package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/eplot/eprec/pkg/access"
	"github.com/eplot/eprec/pkg/dataset"
	"github.com/eplot/eprec/pkg/refresh"
)

const remoteName = "origin"

// Config describes where the dataset comes from and where it lives locally.
type Config struct {
	// RemoteURL is the git URL of the dataset repository.
	RemoteURL string

	// Branch is the branch to track (default "main").
	Branch string

	// Dir is the local working copy.
	Dir string

	// DBFile is the snapshot file name inside Dir.
	DBFile string
}

// Syncer keeps a local working copy fast-forwarded to its remote branch.
//
// Network work (clone, fetch) happens without a ticket. Only the step that
// changes files readers can see runs under a replace ticket: renaming a
// fresh clone into place, or resetting the worktree to the fetched head.
type Syncer struct {
	cfg Config
}

// New creates a syncer.
func New(cfg Config) *Syncer {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &Syncer{cfg: cfg}
}

// SnapshotPath returns the path of the snapshot file in the working copy.
func (s *Syncer) SnapshotPath() string {
	return filepath.Join(s.cfg.Dir, s.cfg.DBFile)
}

// Sync implements refresh.Syncer.
func (s *Syncer) Sync(ctx context.Context, coord *access.Coordinator) refresh.Outcome {
	if _, err := os.Stat(s.cfg.Dir); errors.Is(err, os.ErrNotExist) {
		return s.clone(ctx, coord)
	} else if err != nil {
		return refresh.Failed(refresh.StateUnknown, fmt.Sprintf("stat %s: %v", s.cfg.Dir, err))
	}

	repo, err := git.PlainOpen(s.cfg.Dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return refresh.Failed(refresh.StateUnknown, fmt.Sprintf("%s exists but is not a git repository", s.cfg.Dir))
	}
	if err != nil {
		return refresh.Failed(refresh.StateHasLocalCopy, fmt.Sprintf("open repository: %v", err))
	}
	return s.fastForward(ctx, coord, repo)
}

// clone fetches the remote into a staging directory next to Dir and moves it
// into place under a replace ticket.
func (s *Syncer) clone(ctx context.Context, coord *access.Coordinator) refresh.Outcome {
	const state = refresh.StateNoLocalCopy

	staging := s.cfg.Dir + ".staging"
	if err := os.RemoveAll(staging); err != nil {
		return refresh.Failed(state, fmt.Sprintf("clear staging: %v", err))
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Dir), 0755); err != nil {
		return refresh.Failed(state, fmt.Sprintf("create parent dir: %v", err))
	}
	defer os.RemoveAll(staging)

	worktree := osfs.New(staging)
	dot, err := worktree.Chroot(git.GitDirName)
	if err != nil {
		return refresh.Failed(state, fmt.Sprintf("prepare staging: %v", err))
	}
	storer := filesystem.NewStorage(dot, cache.NewObjectLRUDefault())

	repo, err := git.CloneContext(ctx, storer, worktree, &git.CloneOptions{
		URL:           s.cfg.RemoteURL,
		RemoteName:    remoteName,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
	})
	if err != nil {
		return refresh.Failed(state, fmt.Sprintf("clone %s: %v", s.cfg.RemoteURL, err))
	}
	head, err := repo.Head()
	if err != nil {
		return refresh.Failed(state, fmt.Sprintf("read cloned head: %v", err))
	}

	var fingerprint string
	err = coord.Replace(ctx, func() error {
		if err := os.Rename(staging, s.cfg.Dir); err != nil {
			return fmt.Errorf("move clone into place: %w", err)
		}
		fingerprint = s.fingerprint()
		return nil
	})
	if err != nil {
		return refresh.Failed(state, err.Error())
	}

	out := refresh.Success(state, head.Hash().String())
	out.Fingerprint = fingerprint
	return out
}

// fastForward fetches the tracked branch and moves the worktree to it when
// the local head is an ancestor of the remote head. Diverged history is
// reported and left alone.
func (s *Syncer) fastForward(ctx context.Context, coord *access.Coordinator, repo *git.Repository) refresh.Outcome {
	const state = refresh.StateHasLocalCopy

	branchRef := plumbing.NewBranchReferenceName(s.cfg.Branch)
	remoteRef := plumbing.NewRemoteReferenceName(remoteName, s.cfg.Branch)

	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+%s:%s", branchRef, remoteRef)),
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return refresh.Failed(state, fmt.Sprintf("fetch %s: %v", remoteName, err))
	}

	head, err := repo.Head()
	if err != nil {
		return refresh.Failed(state, fmt.Sprintf("read local head: %v", err))
	}
	if head.Name() != branchRef {
		return refresh.Failed(state, fmt.Sprintf("HEAD is on %s, expected %s", head.Name(), branchRef))
	}
	remote, err := repo.Reference(remoteRef, true)
	if err != nil {
		return refresh.Failed(state, fmt.Sprintf("read %s: %v", remoteRef, err))
	}

	if head.Hash() == remote.Hash() {
		return refresh.Skipped(state, "already up to date")
	}

	localCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return refresh.Failed(state, fmt.Sprintf("load local commit: %v", err))
	}
	remoteCommit, err := repo.CommitObject(remote.Hash())
	if err != nil {
		return refresh.Failed(state, fmt.Sprintf("load remote commit: %v", err))
	}
	ok, err := localCommit.IsAncestor(remoteCommit)
	if err != nil {
		return refresh.Failed(state, fmt.Sprintf("compare history: %v", err))
	}
	if !ok {
		return refresh.Failed(state, fmt.Sprintf("local %s diverged from %s; not fast-forwarding",
			short(head.Hash()), short(remote.Hash())))
	}

	wt, err := repo.Worktree()
	if err != nil {
		return refresh.Failed(state, fmt.Sprintf("open worktree: %v", err))
	}

	var fingerprint string
	err = coord.Replace(ctx, func() error {
		if err := wt.Reset(&git.ResetOptions{Commit: remote.Hash(), Mode: git.HardReset}); err != nil {
			return fmt.Errorf("fast-forward to %s: %w", short(remote.Hash()), err)
		}
		fingerprint = s.fingerprint()
		return nil
	})
	if err != nil {
		return refresh.Failed(state, err.Error())
	}

	out := refresh.Success(state, remote.Hash().String())
	out.Fingerprint = fingerprint
	return out
}

// fingerprint is best effort; a repository without the snapshot file is
// still a valid refresh.
func (s *Syncer) fingerprint() string {
	fp, err := dataset.Fingerprint(s.SnapshotPath())
	if err != nil {
		return ""
	}
	return fp
}

func short(h plumbing.Hash) string {
	return h.String()[:12]
}
