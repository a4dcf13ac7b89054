// Package build implements the per-(branch, flavor) pipeline that turns a
// pushed commit into a published release asset.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/waabox/gitpress/internal/domain"
	"github.com/waabox/gitpress/internal/runner"
)

// Syncer brings a working copy to the tip of a remote branch.
type Syncer interface {
	Sync(ctx context.Context, dir, remoteURL, branch string) error
	Reset(dir string) error
}

// CommandRunner runs one external command to completion.
type CommandRunner interface {
	Run(ctx context.Context, command runner.Command, env map[string]string) error
}

// Publisher replaces a release asset with a local file.
type Publisher interface {
	Publish(ctx context.Context, repo domain.Repository, releaseID int64, assetName, path string) (string, error)
}

// Spec is the configuration of a single pipeline.
type Spec struct {
	Branch     string
	Flavor     string
	Repository domain.Repository
	ReleaseID  int64

	// RepoDir is the checkout owned exclusively by this pipeline.
	RepoDir string
	// BuildDir is relative to RepoDir and must name a directory strictly
	// inside it. Empty means DefaultBuildDir.
	BuildDir string
	// Artifact is relative to the build directory.
	Artifact  string
	AssetName string

	PreConfigure         []runner.Command
	Configure            runner.Command
	DefaultConfigureArgs []string
	ConfigureArgs        []string
	Compile              runner.Command
	PrePackage           []runner.Command
	Package              runner.Command
	DefaultPackageEnv    map[string]string
	PackageEnv           map[string]string
	// ArtifactEnv names the variable carrying the absolute artifact path
	// to the package and archive commands.
	ArtifactEnv string
	PreArchive  []runner.Command
	Archive     runner.Command
}

// Dependencies are the collaborators a pipeline drives.
type Dependencies struct {
	Syncer    Syncer
	Runner    CommandRunner
	Publisher Publisher
	Logger    *slog.Logger
}

// Pipeline is an immutable, fully resolved build chain. It is safe to share
// between jobs, but two runs of the same pipeline must not overlap.
type Pipeline struct {
	name         string
	branch       string
	repo         domain.Repository
	releaseID    int64
	repoDir      string
	buildDir     string
	artifactPath string
	assetName    string

	preConfigure []runner.Command
	configure    runner.Command
	compile      runner.Command
	prePackage   []runner.Command
	pack         runner.Command
	packageEnv   map[string]string
	preArchive   []runner.Command
	archive      runner.Command

	syncer    Syncer
	runner    CommandRunner
	publisher Publisher
	logger    *slog.Logger
}

// New resolves spec into a Pipeline. The configure command becomes
// Configure + DefaultConfigureArgs + ConfigureArgs + "..", and the package
// env is DefaultPackageEnv overlaid by PackageEnv and the artifact variable.
func New(spec Spec, deps Dependencies) (*Pipeline, error) {
	if spec.Branch == "" || spec.Flavor == "" {
		return nil, errors.New("pipeline needs a branch and a flavor name")
	}
	if spec.RepoDir == "" {
		return nil, fmt.Errorf("pipeline %s/%s: repo dir is empty", spec.Branch, spec.Flavor)
	}
	if spec.Artifact == "" || filepath.IsAbs(spec.Artifact) {
		return nil, fmt.Errorf("pipeline %s/%s: artifact must be a relative path, got %q", spec.Branch, spec.Flavor, spec.Artifact)
	}
	for _, c := range []struct {
		name    string
		command runner.Command
	}{{"configure", spec.Configure}, {"compile", spec.Compile}, {"package", spec.Package}, {"archive", spec.Archive}} {
		if c.command.IsZero() {
			return nil, fmt.Errorf("pipeline %s/%s: %s command is empty", spec.Branch, spec.Flavor, c.name)
		}
	}
	if deps.Syncer == nil || deps.Runner == nil || deps.Publisher == nil {
		return nil, errors.New("pipeline dependencies are incomplete")
	}

	repoDir, err := filepath.Abs(spec.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("resolving repo dir: %w", err)
	}
	buildDir, err := ResolveBuildDir(repoDir, spec.BuildDir)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s/%s: %w", spec.Branch, spec.Flavor, err)
	}
	artifactPath := filepath.Join(buildDir, spec.Artifact)

	assetName := spec.AssetName
	if assetName == "" {
		assetName = filepath.Base(spec.Artifact)
	}
	artifactEnv := spec.ArtifactEnv
	if artifactEnv == "" {
		artifactEnv = DefaultArtifactEnv
	}

	configureArgs := make([]string, 0, len(spec.DefaultConfigureArgs)+len(spec.ConfigureArgs)+1)
	configureArgs = append(configureArgs, spec.DefaultConfigureArgs...)
	configureArgs = append(configureArgs, spec.ConfigureArgs...)
	configureArgs = append(configureArgs, "..")

	packageEnv := make(map[string]string, len(spec.DefaultPackageEnv)+len(spec.PackageEnv)+1)
	for k, v := range spec.DefaultPackageEnv {
		packageEnv[k] = v
	}
	for k, v := range spec.PackageEnv {
		packageEnv[k] = v
	}
	packageEnv[artifactEnv] = artifactPath

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := spec.Branch + "/" + spec.Flavor

	inBuildDir := func(commands []runner.Command) []runner.Command {
		out := make([]runner.Command, len(commands))
		for i, c := range commands {
			out[i] = c.InDir(buildDir)
		}
		return out
	}

	return &Pipeline{
		name:         name,
		branch:       spec.Branch,
		repo:         spec.Repository,
		releaseID:    spec.ReleaseID,
		repoDir:      repoDir,
		buildDir:     buildDir,
		artifactPath: artifactPath,
		assetName:    assetName,

		preConfigure: inBuildDir(spec.PreConfigure),
		configure:    spec.Configure.Append(configureArgs...).InDir(buildDir),
		compile:      spec.Compile.InDir(buildDir),
		prePackage:   inBuildDir(spec.PrePackage),
		pack:         spec.Package.InDir(buildDir),
		packageEnv:   packageEnv,
		preArchive:   inBuildDir(spec.PreArchive),
		archive:      spec.Archive.InDir(buildDir),

		syncer:    deps.Syncer,
		runner:    deps.Runner,
		publisher: deps.Publisher,
		logger:    logger.With("pipeline", name),
	}, nil
}

// DefaultArtifactEnv is used when Spec.ArtifactEnv is empty.
const DefaultArtifactEnv = "OUTPUT_ARTIFACT_PATH"

// Name returns "<branch>/<flavor>".
func (p *Pipeline) Name() string { return p.name }

// Branch returns the branch the pipeline builds.
func (p *Pipeline) Branch() string { return p.branch }

// RepoDir returns the absolute checkout directory.
func (p *Pipeline) RepoDir() string { return p.repoDir }

// BuildDir returns the absolute build directory.
func (p *Pipeline) BuildDir() string { return p.buildDir }

// ArtifactPath returns the absolute path the archive step writes.
func (p *Pipeline) ArtifactPath() string { return p.artifactPath }

// AssetName returns the release asset name.
func (p *Pipeline) AssetName() string { return p.assetName }

// ReleaseID returns the release the asset is published to.
func (p *Pipeline) ReleaseID() int64 { return p.releaseID }

// ConfigureCommand returns the composed configure command.
func (p *Pipeline) ConfigureCommand() runner.Command { return p.configure }

// PackageEnv returns a copy of the environment passed to package and archive.
func (p *Pipeline) PackageEnv() map[string]string {
	out := make(map[string]string, len(p.packageEnv))
	for k, v := range p.packageEnv {
		out[k] = v
	}
	return out
}

// Run executes sync, prepare, configure, compile, package, archive and
// publish in order. The first failure stops the run and is returned as a
// *PhaseError. ctx is checked before every step.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "dir", p.repoDir)

	if err := p.sync(ctx); err != nil {
		return p.fail(domain.PhaseSync, err)
	}
	if err := p.prepare(ctx); err != nil {
		return p.fail(domain.PhasePrepare, err)
	}
	if err := p.runAll(ctx, p.preConfigure, nil); err != nil {
		return p.fail(domain.PhaseConfigure, err)
	}
	if err := p.runOne(ctx, p.configure, nil); err != nil {
		return p.fail(domain.PhaseConfigure, err)
	}
	if err := p.runOne(ctx, p.compile, nil); err != nil {
		return p.fail(domain.PhaseCompile, err)
	}
	if err := p.runAll(ctx, p.prePackage, nil); err != nil {
		return p.fail(domain.PhasePackage, err)
	}
	if err := p.runOne(ctx, p.pack, p.packageEnv); err != nil {
		return p.fail(domain.PhasePackage, err)
	}
	if err := p.runAll(ctx, p.preArchive, nil); err != nil {
		return p.fail(domain.PhaseArchive, err)
	}
	if err := p.runOne(ctx, p.archive, p.packageEnv); err != nil {
		return p.fail(domain.PhaseArchive, err)
	}
	p.logger.Info("artifact built", "path", p.artifactPath)

	if err := ctx.Err(); err != nil {
		return p.fail(domain.PhasePublish, err)
	}
	url, err := p.publisher.Publish(ctx, p.repo, p.releaseID, p.assetName, p.artifactPath)
	if err != nil {
		return p.fail(domain.PhasePublish, err)
	}
	p.logger.Info("done", "url", url)
	return nil
}

// sync tries the existing checkout first and falls back to one fresh clone.
func (p *Pipeline) sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.syncer.Sync(ctx, p.repoDir, p.repo.RemoteURL, p.branch)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	p.logger.Error("failed syncing the repo, retrying with a fresh clone", "error", err)
	if err := p.syncer.Reset(p.repoDir); err != nil {
		return err
	}
	if err := p.syncer.Sync(ctx, p.repoDir, p.repo.RemoteURL, p.branch); err != nil {
		return fmt.Errorf("syncing for the second time: %w", err)
	}
	return nil
}

// prepare recreates an empty build directory.
func (p *Pipeline) prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(p.buildDir); err != nil {
		return fmt.Errorf("removing build dir: %w", err)
	}
	if err := os.MkdirAll(p.buildDir, 0o755); err != nil {
		return fmt.Errorf("creating build dir: %w", err)
	}
	return nil
}

func (p *Pipeline) runAll(ctx context.Context, commands []runner.Command, env map[string]string) error {
	for _, c := range commands {
		if err := p.runOne(ctx, c, env); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runOne(ctx context.Context, command runner.Command, env map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.runner.Run(ctx, command, env); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

func (p *Pipeline) fail(phase domain.Phase, err error) error {
	return &PhaseError{Pipeline: p.name, Phase: phase, Err: err}
}
