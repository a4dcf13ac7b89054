package git_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/gitpress/internal/git"
)

func TestParseRemoteURL_GitHub(t *testing.T) {
	url := "https://github.com/Chatterino/chatterino2.git"
	repo, err := git.ParseRemoteURL(url)
	require.NoError(t, err)
	assert.Equal(t, "Chatterino", repo.Owner)
	assert.Equal(t, "chatterino2", repo.Name)
	assert.Equal(t, url, repo.RemoteURL)
}

func TestParseRemoteURL_GitHubSSH(t *testing.T) {
	repo, err := git.ParseRemoteURL("git@github.com:Chatterino/chatterino2.git")
	require.NoError(t, err)
	assert.Equal(t, "Chatterino", repo.Owner)
	assert.Equal(t, "chatterino2", repo.Name)
}

func TestParseRemoteURL_TrailingSlash(t *testing.T) {
	repo, err := git.ParseRemoteURL("https://github.com/pajlada/test/")
	require.NoError(t, err)
	assert.Equal(t, "pajlada/test", repo.FullName())
}

func TestParseRemoteURL_Invalid(t *testing.T) {
	for _, url := range []string{"not-a-url", "https://github.com/onlyowner", "git@github.com:"} {
		_, err := git.ParseRemoteURL(url)
		assert.Error(t, err, url)
	}
}

func TestSameRemote(t *testing.T) {
	assert.True(t, git.SameRemote("https://github.com/a/b.git", "https://github.com/a/b"), ".git suffix is ignored")
	assert.True(t, git.SameRemote("/srv/repos/b.git/", "/srv/repos/b"), "trailing slash is ignored")
	assert.False(t, git.SameRemote("https://github.com/a/b", "https://github.com/a/c"))
}

func writeGitConfig(t *testing.T, dir, content string) {
	t.Helper()
	gitDir := filepath.Join(dir, ".git")
	require.NoError(t, os.Mkdir(gitDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "config"), []byte(content), 0644))
}

func TestDetectRepository_ReadsGitConfig(t *testing.T) {
	dir := t.TempDir()
	writeGitConfig(t, dir, `[core]
	repositoryformatversion = 0
[remote "origin"]
	url = https://github.com/Chatterino/chatterino2.git
	fetch = +refs/heads/*:refs/remotes/origin/*
[branch "master"]
	remote = origin
`)

	repo, err := git.DetectRepository(dir)
	require.NoError(t, err)
	assert.Equal(t, "Chatterino", repo.Owner)
	assert.Equal(t, "chatterino2", repo.Name)
}

func TestOriginURL_NoOrigin(t *testing.T) {
	dir := t.TempDir()
	writeGitConfig(t, dir, `[remote "upstream"]
	url = https://github.com/a/b.git
`)
	_, err := git.OriginURL(dir)
	assert.Error(t, err)
}
