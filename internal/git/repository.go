package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repository runs git CLI commands against the checkout in dir. Every
// command is issued as "git -C <dir> ...".
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Run executes a git command against the repository and returns its trimmed
// stdout. Stderr is included in the error on failure; the underlying
// *exec.ExitError stays reachable through errors.As.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	return runGit(ctx, "", append([]string{"-C", r.dir}, args...)...)
}

// IsValid reports whether dir holds its own git checkout that git can read.
func (r *Repository) IsValid(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Join(r.dir, ".git")); err != nil {
		return false
	}
	_, err := r.Run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// ResolveCommit returns the commit id ref points at.
func (r *Repository) ResolveCommit(ctx context.Context, ref string) (string, error) {
	return r.Run(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
}

// LookupCommit is ResolveCommit that reports a missing ref as found=false
// instead of an error.
func (r *Repository) LookupCommit(ctx context.Context, ref string) (commit string, found bool, err error) {
	commit, err = r.ResolveCommit(ctx, ref)
	if err == nil {
		return commit, true, nil
	}
	if exitCode(err) == 1 {
		return "", false, nil
	}
	return "", false, err
}

// Upstream returns the full name of branch's upstream tracking ref, falling
// back to refs/remotes/origin/<branch> when no upstream is configured.
func (r *Repository) Upstream(ctx context.Context, branch string) (string, error) {
	ref, err := r.Run(ctx, "rev-parse", "--symbolic-full-name", branch+"@{upstream}")
	if err == nil && ref != "" {
		return ref, nil
	}
	return "refs/remotes/origin/" + branch, nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *Repository) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, err := r.Run(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	if exitCode(err) == 1 {
		return false, nil
	}
	return false, err
}

// Clone clones url into dir with all submodules and checks out branch.
func Clone(ctx context.Context, url, dir, branch string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", dir, err)
	}
	_, err := runGit(ctx, "", "clone", "--recurse-submodules", "--branch", branch, "--", url, dir)
	return err
}

func runGit(ctx context.Context, workDir string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", args...)
	command.Dir = workDir
	command.Stdout = &stdout
	command.Stderr = &stderr
	// Never block an unattended build on a credential prompt.
	command.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	if err := command.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), ctxErr)
		}
		return "", fmt.Errorf("git %s: %w (stderr: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
