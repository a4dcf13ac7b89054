package git_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/gitpress/internal/git"
)

func TestRepository_IsValid(t *testing.T) {
	u := newUpstream(t)

	assert.True(t, git.NewRepository(u.work).IsValid(context.Background()))
	assert.False(t, git.NewRepository(t.TempDir()).IsValid(context.Background()))

	// A plain subdirectory of a checkout is not a checkout of its own.
	sub := filepath.Join(u.work, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.False(t, git.NewRepository(sub).IsValid(context.Background()))
}

func TestRepository_LookupCommit(t *testing.T) {
	u := newUpstream(t)
	repo := git.NewRepository(u.work)

	commit, found, err := repo.LookupCommit(context.Background(), "refs/heads/master")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, headOf(t, u.work), commit)

	_, found, err = repo.LookupCommit(context.Background(), "refs/heads/missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAnalyze(t *testing.T) {
	u := newUpstream(t)
	repo := git.NewRepository(u.work)
	first := headOf(t, u.work)
	second := u.commit(t, "a.txt", "a\n")

	analysis, err := git.Analyze(context.Background(), repo, first, first)
	require.NoError(t, err)
	assert.Equal(t, git.MergeUpToDate, analysis)

	analysis, err = git.Analyze(context.Background(), repo, first, second)
	require.NoError(t, err)
	assert.Equal(t, git.MergeFastForward, analysis)

	analysis, err = git.Analyze(context.Background(), repo, second, first)
	require.NoError(t, err)
	assert.Equal(t, git.MergeUpToDate, analysis)

	runGit(t, u.work, "checkout", "-q", "-b", "side", first)
	require.NoError(t, os.WriteFile(filepath.Join(u.work, "b.txt"), []byte("b\n"), 0o644))
	runGit(t, u.work, "add", "b.txt")
	runGit(t, u.work, "commit", "-m", "side")
	side := runGit(t, u.work, "rev-parse", "HEAD")

	analysis, err = git.Analyze(context.Background(), repo, second, side)
	require.NoError(t, err)
	assert.Equal(t, git.MergeDiverged, analysis)
}
