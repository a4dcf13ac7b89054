package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/gitpress/internal/build"
	"github.com/waabox/gitpress/internal/config"
	"github.com/waabox/gitpress/internal/runner"
)

const fullConfig = `
[log]
level = "debug"
format = "json"

[web]
bind = ["127.0.0.1:8000", "[::1]:8000"]
base_url = "/hooks"

[github]
token = "ghp_fromfile"
secret = "hunter2"
repo_owner = "Chatterino"
repo_name = "chatterino2"

[defaults]
work_dir = "/srv/gitpress"
configure_args = ["-DUSE_PRECOMPILED_HEADERS=OFF"]
compile = ["make", "-j4"]
[defaults.package_env]
SKIP_VENV = "1"

[[branch]]
name = "master"
release_id = 123

  [[branch.build]]
  name = "qt5"
  build_dir = "build-qt5"
  artifact = "chatterino-macos-Qt-5.15.2.dmg"
  pre_configure = ["./scripts/prep.sh", ["git", "submodule", "status"]]

  [[branch.build]]
  name = "qt6"
  repo_dir = "qt6-checkout"
  build_dir = "build"
  artifact = "chatterino-macos-Qt-6.5.0.dmg"
  asset_name = "chatterino-macos-qt6.dmg"
  configure_args = ["-DBUILD_WITH_QT6=ON"]
  [branch.build.package_env]
  Qt6_DIR = "/opt/qt/6.5.0/macos"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gitpress.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	cfg, err := config.LoadFrom(writeConfig(t, fullConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Len(t, cfg.Web.Bind, 2)
	assert.True(t, cfg.GitHub.VerifySignature, "verify_signature defaults to true")
	assert.Equal(t, "make -j4", cfg.Defaults.Compile.String())
	assert.False(t, cfg.Defaults.Compile.IsShell(), "array commands bypass the shell")
	assert.Equal(t, "cmake", cfg.Defaults.Configure.String())

	require.Len(t, cfg.Branches, 1)
	require.Len(t, cfg.Branches[0].Builds, 2)
	pre := cfg.Branches[0].Builds[0].PreConfigure
	require.Len(t, pre, 2)
	assert.True(t, pre[0].IsShell())
	assert.Equal(t, "git", pre[1].Program)
}

func TestLoad_EnvVarsTakePrecedence(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_fromenv")
	t.Setenv("GITPRESS_WEBHOOK_SECRET", "fromenv")

	cfg, err := config.LoadFrom(writeConfig(t, fullConfig))
	require.NoError(t, err)
	assert.Equal(t, "ghp_fromenv", cfg.GitHub.Token)
	assert.Equal(t, "fromenv", cfg.GitHub.Secret)
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := config.LoadFrom("/nonexistent/path/gitpress.toml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := config.LoadFrom(writeConfig(t, fullConfig+"\n[extra]\nfoo = 1\n"))
	assert.ErrorContains(t, err, "extra")
}

func TestLoad_RejectsBadCommand(t *testing.T) {
	_, err := config.LoadFrom(writeConfig(t, `
[defaults]
compile = ["make", 4]
`))
	assert.Error(t, err)
}

func TestPipelineSpecs(t *testing.T) {
	cfg, err := config.LoadFrom(writeConfig(t, fullConfig))
	require.NoError(t, err)
	specs := cfg.PipelineSpecs()
	require.Len(t, specs, 2)

	qt5, qt6 := specs[0], specs[1]
	assert.Equal(t, "/srv/gitpress/master/qt5", qt5.RepoDir)
	assert.Equal(t, "/srv/gitpress/qt6-checkout", qt6.RepoDir, "relative repo_dir resolves under work_dir")
	assert.Equal(t, "chatterino-macos-Qt-5.15.2.dmg", qt5.AssetName, "asset name defaults to the artifact")
	assert.Equal(t, "chatterino-macos-qt6.dmg", qt6.AssetName)
	assert.Equal(t, int64(123), qt6.ReleaseID)
	assert.Equal(t, "master", qt6.Branch)
	assert.Equal(t, "qt6", qt6.Flavor)
	assert.Equal(t, "https://github.com/Chatterino/chatterino2", qt6.Repository.RemoteURL)
	assert.Equal(t, "1", qt6.DefaultPackageEnv["SKIP_VENV"])
	assert.Equal(t, "/opt/qt/6.5.0/macos", qt6.PackageEnv["Qt6_DIR"])
	assert.Equal(t, []string{"-DUSE_PRECOMPILED_HEADERS=OFF"}, qt6.DefaultConfigureArgs)
	assert.Equal(t, []string{"-DBUILD_WITH_QT6=ON"}, qt6.ConfigureArgs)
}

func TestPipelineSpecs_OmittedBuildDirKeepsCheckoutIntact(t *testing.T) {
	cfg, err := config.LoadFrom(writeConfig(t, strings.Replace(fullConfig, `build_dir = "build-qt5"`, "", 1)))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	spec := cfg.PipelineSpecs()[0]
	assert.Equal(t, build.DefaultBuildDir, spec.BuildDir)

	buildDir, err := build.ResolveBuildDir(spec.RepoDir, spec.BuildDir)
	require.NoError(t, err)
	assert.NotEqual(t, filepath.Clean(spec.RepoDir), buildDir)
}

func validConfig() config.Config {
	cfg := config.Default()
	cfg.GitHub.Token = "t"
	cfg.GitHub.Secret = "s"
	cfg.GitHub.RepoOwner = "o"
	cfg.GitHub.RepoName = "r"
	cfg.Branches = []config.BranchConfig{{
		Name:      "master",
		ReleaseID: 1,
		Builds:    []config.BuildConfig{{Name: "qt6", Artifact: "out.dmg"}},
	}}
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		modify func(*config.Config)
		want   string
	}{
		{"missing repo", func(c *config.Config) { c.GitHub.RepoName = "" }, "repo_name"},
		{"missing token", func(c *config.Config) { c.GitHub.Token = "" }, "github.token"},
		{"missing secret", func(c *config.Config) { c.GitHub.Secret = "" }, "github.secret"},
		{"no bind", func(c *config.Config) { c.Web.Bind = nil }, "web.bind"},
		{"bad level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"empty compile", func(c *config.Config) { c.Defaults.Compile = runner.Command{} }, "defaults.compile"},
		{"bad release", func(c *config.Config) { c.Branches[0].ReleaseID = 0 }, "release_id"},
		{"absolute artifact", func(c *config.Config) { c.Branches[0].Builds[0].Artifact = "/out.dmg" }, "artifact"},
		{"build dir is checkout", func(c *config.Config) { c.Branches[0].Builds[0].BuildDir = "." }, "build dir"},
		{"build dir escapes checkout", func(c *config.Config) { c.Branches[0].Builds[0].BuildDir = ".." }, "build dir"},
		{"absolute build dir", func(c *config.Config) { c.Branches[0].Builds[0].BuildDir = "/tmp/build" }, "build dir"},
		{"duplicate branch", func(c *config.Config) {
			c.Branches = append(c.Branches, c.Branches[0])
		}, "configured more than once"},
		{"duplicate build", func(c *config.Config) {
			b := c.Branches[0].Builds[0]
			b.RepoDir = "elsewhere"
			c.Branches[0].Builds = append(c.Branches[0].Builds, b)
		}, "master/qt6: configured more than once"},
		{"shared repo dir", func(c *config.Config) {
			c.Branches[0].Builds = append(c.Branches[0].Builds,
				config.BuildConfig{Name: "other", Artifact: "x.dmg", RepoDir: "master/qt6"})
		}, "share repo dir"},
		{"nested repo dir", func(c *config.Config) {
			c.Branches[0].Builds = append(c.Branches[0].Builds,
				config.BuildConfig{Name: "other", Artifact: "x.dmg", RepoDir: "master/qt6/sub"})
		}, "share repo dir"},
		{"repo dir containing another", func(c *config.Config) {
			c.Branches[0].Builds = append(c.Branches[0].Builds,
				config.BuildConfig{Name: "other", Artifact: "x.dmg", RepoDir: "master"})
		}, "share repo dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_SecretOptionalWithoutVerification(t *testing.T) {
	cfg := validConfig()
	cfg.GitHub.VerifySignature = false
	cfg.GitHub.Secret = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidate_SiblingRepoDirsAreFine(t *testing.T) {
	cfg := validConfig()
	cfg.Branches[0].Builds = append(cfg.Branches[0].Builds,
		config.BuildConfig{Name: "qt6-extra", Artifact: "x.dmg"})
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	var sb strings.Builder
	logger, err := config.LogConfig{Level: "warn", Format: "json"}.NewLogger(&sb)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	assert.NotContains(t, sb.String(), "hidden", "info records are filtered at warn level")
	assert.Contains(t, sb.String(), `"key":"value"`)
}
