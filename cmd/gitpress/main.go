package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/waabox/gitpress/internal/build"
	"github.com/waabox/gitpress/internal/config"
	"github.com/waabox/gitpress/internal/git"
	"github.com/waabox/gitpress/internal/github"
	"github.com/waabox/gitpress/internal/release"
	"github.com/waabox/gitpress/internal/runner"
	"github.com/waabox/gitpress/internal/supervisor"
	"github.com/waabox/gitpress/internal/webhook"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gitpress: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("gitpress", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", config.DefaultPath, "path to the TOML configuration file")
	showVersion := flags.Bool("version", false, "print version and exit")
	check := flags.Bool("check", false, "validate the configuration, list the pipelines and exit")
	buildBranch := flags.String("build", "", "run the pipelines of this branch once in the foreground and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Println("gitpress", version)
		return nil
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration %s:\n%w", *configPath, err)
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	index, err := newIndex(cfg, logger)
	if err != nil {
		return err
	}

	if *check {
		printPipelines(os.Stdout, index)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := supervisor.New(ctx, logger)
	defer jobs.Shutdown()

	if *buildBranch != "" {
		pipelines := index.Lookup(*buildBranch)
		if len(pipelines) == 0 {
			return fmt.Errorf("no pipelines configured for branch %s", *buildBranch)
		}
		return jobs.Submit(*buildBranch, pipelines).Wait()
	}

	repo := cfg.Repository()
	push := webhook.NewPushHandler(webhook.PushConfig{
		Repository:      repo.FullName(),
		VerifySignature: cfg.GitHub.VerifySignature,
		Secret:          []byte(cfg.GitHub.Secret),
	}, index, jobs, logger)
	server := webhook.NewServer(cfg.Web.Bind, webhook.NewRouter(cfg.Web.BaseURL, push, logger), logger)

	logger.Info("gitpress starting", "version", version, "repository", repo.FullName(), "branches", index.Branches())
	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("waiting for the current job to stop")
	return nil
}

func newIndex(cfg config.Config, logger *slog.Logger) (*build.Index, error) {
	deps := build.Dependencies{
		Syncer:    git.NewSynchronizer(logger),
		Runner:    runner.New(logger),
		Publisher: release.NewReconciler(github.NewClient(cfg.GitHub.Token, cfg.GitHub.APIURL, cfg.GitHub.UploadsURL), logger),
		Logger:    logger,
	}
	var pipelines []*build.Pipeline
	for _, spec := range cfg.PipelineSpecs() {
		p, err := build.New(spec, deps)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}
	return build.NewIndex(pipelines)
}

func printPipelines(w io.Writer, index *build.Index) {
	for _, branch := range index.Branches() {
		fmt.Fprintf(w, "branch %s\n", branch)
		for _, p := range index.Pipelines(branch) {
			fmt.Fprintf(w, "  %s\n", p.Name())
			fmt.Fprintf(w, "    checkout:  %s", p.RepoDir())
			if origin, err := git.DetectRepository(p.RepoDir()); err == nil {
				fmt.Fprintf(w, " (existing clone of %s)", origin.FullName())
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "    configure: %s\n", p.ConfigureCommand())
			fmt.Fprintf(w, "    artifact:  %s\n", p.ArtifactPath())
			fmt.Fprintf(w, "    asset:     %s (release %d)\n", p.AssetName(), p.ReleaseID())
		}
	}
}
