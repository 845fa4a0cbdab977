package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNotFound is returned when neither compose flavour answers.
var ErrNotFound = errors.New("docker compose not found")

// DefaultCandidates are tried in order: the compose v2 plugin, then the
// standalone binary.
var DefaultCandidates = [][]string{
	{"docker", "compose"},
	{"docker-compose"},
}

// stopGrace is how long a canceled compose process gets to exit after the
// interrupt before it is killed.
const stopGrace = 10 * time.Second

// Runner invokes compose for one project.
type Runner struct {
	argv    []string
	project string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// Option configures a Runner.
type Option func(*resolveOptions)

type resolveOptions struct {
	candidates [][]string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

// WithCandidates overrides the command prefixes tried by Resolve.
func WithCandidates(c ...[]string) Option {
	return func(o *resolveOptions) {
		o.candidates = c
	}
}

// WithStdio sets the streams handed to compose. They default to the
// process' own so compose can draw progress and read from the terminal.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(o *resolveOptions) {
		o.stdin = stdin
		o.stdout = stdout
		o.stderr = stderr
	}
}

// Resolve finds a working compose command by running "<candidate> version"
// for each candidate.
func Resolve(ctx context.Context, project string, opts ...Option) (*Runner, error) {
	o := resolveOptions{
		candidates: DefaultCandidates,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
	for _, opt := range opts {
		opt(&o)
	}

	for _, argv := range o.candidates {
		if len(argv) == 0 {
			continue
		}
		if _, err := exec.LookPath(argv[0]); err != nil {
			continue
		}
		check := exec.CommandContext(ctx, argv[0], append(argv[1:len(argv):len(argv)], "version")...)
		if err := check.Run(); err != nil {
			continue
		}
		return &Runner{
			argv:    argv,
			project: project,
			stdin:   o.stdin,
			stdout:  o.stdout,
			stderr:  o.stderr,
		}, nil
	}
	return nil, ErrNotFound
}

// String returns the compose command, e.g. "docker compose".
func (r *Runner) String() string {
	return strings.Join(r.argv, " ")
}

// Args returns the full argument list Run would execute.
func (r *Runner) Args(manifestPath string, args ...string) []string {
	out := make([]string, 0, len(r.argv)+4+len(args))
	out = append(out, r.argv...)
	out = append(out, "-p", r.project)
	if manifestPath != "" {
		out = append(out, "-f", manifestPath)
	}
	return append(out, args...)
}

// Run executes compose against manifestPath and waits for it. Canceling ctx
// interrupts compose and kills it if it does not exit in time.
func (r *Runner) Run(ctx context.Context, manifestPath string, args ...string) error {
	full := r.Args(manifestPath, args...)
	cmd := exec.CommandContext(ctx, full[0], full[1:]...)
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = stopGrace

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %w", r, strings.Join(args, " "), err)
	}
	return nil
}
