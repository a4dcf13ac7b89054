package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/waabox/gitpress/internal/build"
	"github.com/waabox/gitpress/internal/domain"
	"github.com/waabox/gitpress/internal/runner"
)

// DefaultPath is where gitpress looks for its configuration when --config is not given.
const DefaultPath = "gitpress.toml"

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// WebConfig configures the webhook listener.
type WebConfig struct {
	Bind    []string `toml:"bind"`
	BaseURL string   `toml:"base_url"`
}

// GitHubConfig identifies the repository and the credentials used to publish to it.
type GitHubConfig struct {
	Token           string `toml:"token"`
	VerifySignature bool   `toml:"verify_signature"`
	Secret          string `toml:"secret"`
	RepoOwner       string `toml:"repo_owner"`
	RepoName        string `toml:"repo_name"`
	CloneURL        string `toml:"clone_url"`
	APIURL          string `toml:"api_url"`
	UploadsURL      string `toml:"uploads_url"`
}

// DefaultsConfig holds settings shared by every build.
type DefaultsConfig struct {
	WorkDir       string            `toml:"work_dir"`
	Configure     runner.Command    `toml:"configure"`
	ConfigureArgs []string          `toml:"configure_args"`
	Compile       runner.Command    `toml:"compile"`
	Package       runner.Command    `toml:"package"`
	Archive       runner.Command    `toml:"archive"`
	ArtifactEnv   string            `toml:"artifact_env"`
	PackageEnv    map[string]string `toml:"package_env"`
}

// BranchConfig lists the builds run for pushes to one branch.
type BranchConfig struct {
	Name      string        `toml:"name"`
	ReleaseID int64         `toml:"release_id"`
	Builds    []BuildConfig `toml:"build"`
}

// BuildConfig is one build flavor of a branch. BuildDir is relative to the
// checkout, defaults to "build" and is emptied before every run.
type BuildConfig struct {
	Name          string            `toml:"name"`
	RepoDir       string            `toml:"repo_dir"`
	BuildDir      string            `toml:"build_dir"`
	Artifact      string            `toml:"artifact"`
	AssetName     string            `toml:"asset_name"`
	ConfigureArgs []string          `toml:"configure_args"`
	PreConfigure  []runner.Command  `toml:"pre_configure"`
	PrePackage    []runner.Command  `toml:"pre_package"`
	PreArchive    []runner.Command  `toml:"pre_archive"`
	PackageEnv    map[string]string `toml:"package_env"`
}

// Config holds all gitpress configuration.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Web      WebConfig      `toml:"web"`
	GitHub   GitHubConfig   `toml:"github"`
	Defaults DefaultsConfig `toml:"defaults"`
	Branches []BranchConfig `toml:"branch"`
}

// Default returns the configuration values used for keys the file omits.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Web: WebConfig{Bind: []string{"127.0.0.1:8000"}, BaseURL: "/"},
		GitHub: GitHubConfig{
			VerifySignature: true,
		},
		Defaults: DefaultsConfig{
			WorkDir:     filepath.Join(os.TempDir(), "gitpress"),
			Configure:   runner.Shell("cmake"),
			Compile:     runner.Shell("make -j8"),
			Package:     runner.Shell("../.CI/MacDeploy.sh"),
			Archive:     runner.Shell("../.CI/CreateDMG.sh"),
			ArtifactEnv: build.DefaultArtifactEnv,
		},
	}
}

// LoadFrom reads configuration from the given TOML file path on top of Default().
// Environment variables always take precedence over file values:
//   - GITHUB_TOKEN            overrides github.token
//   - GITPRESS_WEBHOOK_SECRET overrides github.secret
//
// The result is not validated; call Validate.
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("reading config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITPRESS_WEBHOOK_SECRET"); v != "" {
		cfg.GitHub.Secret = v
	}
}

// Repository returns the repository pushes are accepted for and builds clone.
func (c Config) Repository() domain.Repository {
	remote := c.GitHub.CloneURL
	if remote == "" {
		remote = domain.GitHubCloneURL(c.GitHub.RepoOwner, c.GitHub.RepoName)
	}
	return domain.Repository{Owner: c.GitHub.RepoOwner, Name: c.GitHub.RepoName, RemoteURL: remote}
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.GitHub.RepoOwner == "" || c.GitHub.RepoName == "" {
		add("github.repo_owner and github.repo_name are required")
	}
	if c.GitHub.Token == "" {
		add("github.token is required (or set GITHUB_TOKEN)")
	}
	if c.GitHub.VerifySignature && c.GitHub.Secret == "" {
		add("github.secret is required when github.verify_signature is true (or set GITPRESS_WEBHOOK_SECRET)")
	}
	if len(c.Web.Bind) == 0 {
		add("web.bind needs at least one address")
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}
	for _, d := range []struct {
		key     string
		command runner.Command
	}{
		{"configure", c.Defaults.Configure},
		{"compile", c.Defaults.Compile},
		{"package", c.Defaults.Package},
		{"archive", c.Defaults.Archive},
	} {
		if d.command.IsZero() {
			add("defaults.%s must not be empty", d.key)
		}
	}

	branches := make(map[string]bool)
	type checkout struct{ id, dir string }
	var checkouts []checkout
	for i, branch := range c.Branches {
		if branch.Name == "" {
			add("branch[%d]: name is required", i)
			continue
		}
		if branches[branch.Name] {
			add("branch %s: configured more than once", branch.Name)
		}
		branches[branch.Name] = true
		if branch.ReleaseID <= 0 {
			add("branch %s: release_id must be positive", branch.Name)
		}
		if len(branch.Builds) == 0 {
			add("branch %s: no builds configured", branch.Name)
		}

		builds := make(map[string]bool)
		for j, b := range branch.Builds {
			if b.Name == "" {
				add("branch %s: build[%d]: name is required", branch.Name, j)
				continue
			}
			id := branch.Name + "/" + b.Name
			if builds[b.Name] {
				add("pipeline %s: configured more than once", id)
			}
			builds[b.Name] = true
			if b.Artifact == "" || filepath.IsAbs(b.Artifact) {
				add("pipeline %s: artifact must be a non-empty relative path", id)
			}
			dir := c.repoDir(branch, b)
			if _, err := build.ResolveBuildDir(dir, b.BuildDir); err != nil {
				add("pipeline %s: %w", id, err)
			}
			for _, other := range checkouts {
				if build.Overlapping(other.dir, dir) {
					add("pipelines %s and %s share repo dir %s and %s", other.id, id, other.dir, dir)
				}
			}
			checkouts = append(checkouts, checkout{id: id, dir: dir})
		}
	}
	return errors.Join(errs...)
}

// repoDir resolves a build's checkout directory. A relative repo_dir is
// taken relative to defaults.work_dir.
func (c Config) repoDir(branch BranchConfig, b BuildConfig) string {
	dir := b.RepoDir
	if dir == "" {
		return filepath.Join(c.Defaults.WorkDir, branch.Name, b.Name)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.Defaults.WorkDir, dir)
	}
	return filepath.Clean(dir)
}

// PipelineSpecs flattens the branches into one build.Spec per build, in
// file order.
func (c Config) PipelineSpecs() []build.Spec {
	repo := c.Repository()
	var specs []build.Spec
	for _, branch := range c.Branches {
		for _, b := range branch.Builds {
			buildDir := b.BuildDir
			if buildDir == "" {
				buildDir = build.DefaultBuildDir
			}
			assetName := b.AssetName
			if assetName == "" {
				assetName = filepath.Base(b.Artifact)
			}
			specs = append(specs, build.Spec{
				Branch:               branch.Name,
				Flavor:               b.Name,
				Repository:           repo,
				ReleaseID:            branch.ReleaseID,
				RepoDir:              c.repoDir(branch, b),
				BuildDir:             buildDir,
				Artifact:             b.Artifact,
				AssetName:            assetName,
				PreConfigure:         b.PreConfigure,
				Configure:            c.Defaults.Configure,
				DefaultConfigureArgs: c.Defaults.ConfigureArgs,
				ConfigureArgs:        b.ConfigureArgs,
				Compile:              c.Defaults.Compile,
				PrePackage:           b.PrePackage,
				Package:              c.Defaults.Package,
				DefaultPackageEnv:    c.Defaults.PackageEnv,
				PackageEnv:           b.PackageEnv,
				ArtifactEnv:          c.Defaults.ArtifactEnv,
				PreArchive:           b.PreArchive,
				Archive:              c.Defaults.Archive,
			})
		}
	}
	return specs
}
