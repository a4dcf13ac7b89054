package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrNoFastForward is returned when the local branch and the fetched commit
// have diverged. It is never resolved automatically.
var ErrNoFastForward = errors.New("unable to merge upstream changes to local, no fast-forward merge strategy available")

// ErrRemoteMismatch is returned when an existing checkout tracks a different
// origin than the one requested.
var ErrRemoteMismatch = errors.New("checkout origin does not match remote")

// MergeAnalysis classifies how a fetched commit relates to the local branch.
type MergeAnalysis int

const (
	MergeUpToDate MergeAnalysis = iota
	MergeFastForward
	MergeDiverged
)

func (m MergeAnalysis) String() string {
	switch m {
	case MergeUpToDate:
		return "up-to-date"
	case MergeFastForward:
		return "fast-forward"
	default:
		return "diverged"
	}
}

// Synchronizer brings a working copy to the tip of a remote branch.
type Synchronizer struct {
	logger *slog.Logger
}

// NewSynchronizer creates a Synchronizer. A nil logger uses slog.Default().
func NewSynchronizer(logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{logger: logger}
}

// Sync ensures dir contains a checkout of branch at the remote's current tip.
// An existing checkout is fetched and fast-forwarded, discarding working tree
// modifications; anything else is cloned fresh. Sync never deletes dir.
func (s *Synchronizer) Sync(ctx context.Context, dir, remoteURL, branch string) error {
	repo := NewRepository(dir)
	logger := s.logger.With("dir", dir, "branch", branch)

	if !repo.IsValid(ctx) {
		logger.Info("cloning", "url", remoteURL)
		if err := Clone(ctx, remoteURL, dir, branch); err != nil {
			return fmt.Errorf("cloning %s: %w", remoteURL, err)
		}
		logger.Info("cloned")
		return nil
	}

	logger.Info("using already-existing repo")
	origin, err := OriginURL(dir)
	if err != nil {
		return err
	}
	if !SameRemote(origin, remoteURL) {
		return fmt.Errorf("%s: origin is %q, want %q: %w", dir, origin, remoteURL, ErrRemoteMismatch)
	}

	if _, err := repo.Run(ctx, "fetch", "--tags", "--prune", "origin"); err != nil {
		return fmt.Errorf("fetching origin: %w", err)
	}

	upstream, err := repo.Upstream(ctx, branch)
	if err != nil {
		return err
	}
	remote, found, err := repo.LookupCommit(ctx, upstream)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", upstream, err)
	}
	if !found {
		return fmt.Errorf("branch %s not found on origin (%s)", branch, upstream)
	}

	localRef := "refs/heads/" + branch
	local, found, err := repo.LookupCommit(ctx, localRef)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", localRef, err)
	}
	if !found {
		// Branch not checked out yet, e.g. a clone of another branch.
		logger.Info("creating local branch", "commit", remote)
		if _, err := repo.Run(ctx, "checkout", "--force", "-B", branch, "--track", "origin/"+branch); err != nil {
			return fmt.Errorf("creating branch %s: %w", branch, err)
		}
		return s.updateSubmodules(ctx, repo)
	}

	analysis, err := Analyze(ctx, repo, local, remote)
	if err != nil {
		return err
	}
	switch analysis {
	case MergeFastForward:
		logger.Info("fast-forwarding", "from", local, "to", remote)
		return s.fastForward(ctx, repo, branch, local, remote)
	case MergeDiverged:
		return fmt.Errorf("%s at %s, origin at %s: %w", branch, local, remote, ErrNoFastForward)
	default:
		logger.Info("nothing to do", "commit", local)
		return nil
	}
}

// Reset removes dir so the next Sync clones fresh. A missing dir is not an error.
func (s *Synchronizer) Reset(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing %s: %w", dir, err)
	}
	s.logger.Info("deleted the old clone directory", "dir", dir)
	return nil
}

// Analyze compares local against the fetched remote commit. A local branch
// that is ahead of remote counts as up to date.
func Analyze(ctx context.Context, repo *Repository, local, remote string) (MergeAnalysis, error) {
	if local == remote {
		return MergeUpToDate, nil
	}
	behind, err := repo.IsAncestor(ctx, local, remote)
	if err != nil {
		return 0, fmt.Errorf("comparing %s..%s: %w", local, remote, err)
	}
	if behind {
		return MergeFastForward, nil
	}
	ahead, err := repo.IsAncestor(ctx, remote, local)
	if err != nil {
		return 0, fmt.Errorf("comparing %s..%s: %w", remote, local, err)
	}
	if ahead {
		return MergeUpToDate, nil
	}
	return MergeDiverged, nil
}

func (s *Synchronizer) fastForward(ctx context.Context, repo *Repository, branch, local, remote string) error {
	ref := "refs/heads/" + branch
	// The old-value argument makes update-ref refuse if the branch moved meanwhile.
	msg := fmt.Sprintf("Fast-Forward: Setting %s to id: %s", ref, remote)
	if _, err := repo.Run(ctx, "update-ref", "-m", msg, ref, remote, local); err != nil {
		return fmt.Errorf("moving %s: %w", ref, err)
	}
	// Forced so local working tree modifications never block the update.
	if _, err := repo.Run(ctx, "checkout", "--force", branch); err != nil {
		return fmt.Errorf("checking out %s: %w", branch, err)
	}
	return s.updateSubmodules(ctx, repo)
}

func (s *Synchronizer) updateSubmodules(ctx context.Context, repo *Repository) error {
	if _, err := repo.Run(ctx, "submodule", "update", "--init", "--recursive", "--force"); err != nil {
		return fmt.Errorf("updating submodules: %w", err)
	}
	return nil
}
