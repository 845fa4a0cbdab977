// Package main provides the firegexctl CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	firegex "github.com/pwnzer0tt1/firegexctl"
	"github.com/pwnzer0tt1/firegexctl/container"
	"github.com/pwnzer0tt1/firegexctl/internal/compose"
	"github.com/pwnzer0tt1/firegexctl/journal"
	"github.com/pwnzer0tt1/firegexctl/secret"
)

// exitInterrupted is the conventional status for a process ended by SIGINT.
const exitInterrupted = 130

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cli, err := parseArgs(args, stdout)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(stderr)
		return 2
	}

	cfg, err := firegex.LoadConfig(cli.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	logger := newLogger(stderr, cli.Verbose, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cli.History {
		return historyCmd(cfg.JournalPath, cli.HistoryLimit, stdout, stderr)
	}

	if wd, err := os.Getwd(); err == nil {
		cfg.WorkDir = wd
	}
	cfg.LocalBuild = firegex.DetectLocalBuild(cfg.WorkDir)
	logger.Debug("configuration loaded", "project", cfg.Project, "workdir", cfg.WorkDir, "local_build", cfg.LocalBuild)

	runner, err := resolveComposer(ctx, cfg.Project)
	if err != nil {
		return exitCode(err, stdout, stderr)
	}
	logger.Debug("compose resolved", "command", runner.String())

	engine := container.NewManager(
		container.WithContainerName(cfg.ContainerName),
		container.WithVolumeName(cfg.VolumeName()),
		container.WithOutput(stdout),
	)
	defer engine.Close()

	opts := []firegex.SupervisorOption{
		firegex.WithLogger(logger),
		firegex.WithOutput(stdout),
	}
	if store, err := journal.NewSQLiteStore(cfg.JournalPath); err != nil {
		logger.Warn("journal unavailable, runs will not be recorded", "path", cfg.JournalPath, "error", err)
	} else {
		defer store.Close()
		opts = append(opts, firegex.WithJournal(store))
	}

	sup := firegex.New(cfg, engine, runner, opts...)
	if err := sup.Preflight(ctx); err != nil {
		return exitCode(err, stdout, stderr)
	}

	return exitCode(sup.Run(ctx, cli.Invocation), stdout, stderr)
}

// resolveComposer finds the compose command for project.
func resolveComposer(ctx context.Context, project string, opts ...compose.Option) (*compose.Runner, error) {
	runner, err := compose.Resolve(ctx, project, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, compose.ErrNotFound) {
			return nil, firegex.ErrComposeNotFound
		}
		return nil, err
	}
	return runner, nil
}

// exitCode reports err to the operator and maps it to a process status.
func exitCode(err error, stdout, stderr io.Writer) int {
	var runtimeErr *firegex.RuntimeError
	switch {
	case err == nil:
		return 0
	case firegex.IsPrecondition(err):
		// The supervisor already printed the notice.
		return 0
	case errors.Is(err, firegex.ErrComposeNotFound):
		fmt.Fprintln(stderr, "Docker compose not found! please install docker compose!")
		return 1
	case errors.Is(err, firegex.ErrRuntimeUnavailable):
		fmt.Fprintln(stderr, "Cannot use docker, the user hasn't the permission or docker isn't running")
		return 1
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stdout)
		return exitInterrupted
	case errors.Is(err, secret.ErrTooShort):
		fmt.Fprintln(stderr, "The password has to be at least 8 char long")
		return 1
	case errors.As(err, &runtimeErr):
		slog.Debug("runtime failed", "error", err)
		return runtimeErr.ExitCode()
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func newLogger(w io.Writer, verbose bool, level string) *slog.Logger {
	lvl := slog.LevelWarn
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = slog.LevelWarn
		}
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
