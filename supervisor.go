package firegex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pwnzer0tt1/firegexctl/journal"
	"github.com/pwnzer0tt1/firegexctl/manifest"
	"github.com/pwnzer0tt1/firegexctl/nfprobe"
	"github.com/pwnzer0tt1/firegexctl/secret"
)

// Engine answers questions about the deployment from the container runtime.
type Engine interface {
	// Reason returns why the engine cannot be used, or nil.
	Reason() error
	IsRunning(ctx context.Context) (bool, error)
	VolumeExists(ctx context.Context) (bool, error)
	RemoveVolume(ctx context.Context) error
	PullImage(ctx context.Context, ref string) error
}

// Composer runs compose commands against a manifest file.
type Composer interface {
	Run(ctx context.Context, manifestPath string, args ...string) error
	String() string
}

// SecretProvisioner obtains the startup password.
type SecretProvisioner interface {
	Provision(ctx context.Context, src secret.Source, volumePresent bool) (string, error)
}

// CapabilityProber checks the kernel for a netfilter target.
type CapabilityProber interface {
	Probe(ctx context.Context, target string) nfprobe.Result
}

// Recorder stores finished runs.
type Recorder interface {
	Record(e journal.Entry) error
}

// RuntimeState is what the engine reports about the deployment. It is
// queried per command and never cached.
type RuntimeState struct {
	Running       bool
	VolumePresent bool
}

// Supervisor drives the deployment through its lifecycle commands.
type Supervisor struct {
	cfg         Config
	engine      Engine
	composer    Composer
	provisioner SecretProvisioner
	prober      CapabilityProber
	recorder    Recorder
	topology    Topology
	out         io.Writer
	logger      *slog.Logger
	now         func() time.Time
	cpus        func() int
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithProvisioner sets the password source. Defaults to prompting on the
// process terminal.
func WithProvisioner(p SecretProvisioner) SupervisorOption {
	return func(s *Supervisor) {
		s.provisioner = p
	}
}

// WithProber sets the kernel capability prober.
func WithProber(p CapabilityProber) SupervisorOption {
	return func(s *Supervisor) {
		s.prober = p
	}
}

// WithJournal records every run in r.
func WithJournal(r Recorder) SupervisorOption {
	return func(s *Supervisor) {
		s.recorder = r
	}
}

// WithTopology overrides host detection.
func WithTopology(t Topology) SupervisorOption {
	return func(s *Supervisor) {
		s.topology = t
	}
}

// WithOutput sets where operator messages are written.
func WithOutput(w io.Writer) SupervisorOption {
	return func(s *Supervisor) {
		s.out = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithClock sets the time source used for journal entries.
func WithClock(now func() time.Time) SupervisorOption {
	return func(s *Supervisor) {
		s.now = now
	}
}

// New creates a Supervisor for cfg.
func New(cfg Config, engine Engine, composer Composer, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		engine:   engine,
		composer: composer,
		out:      os.Stdout,
		logger:   slog.Default(),
		now:      time.Now,
		cpus:     runtime.NumCPU,
	}
	s.topology = DetectTopology()
	for _, opt := range opts {
		opt(s)
	}
	if s.provisioner == nil {
		s.provisioner = secret.NewProvisioner(secret.NewTerminal(os.Stdin, s.out), s.out)
	}
	if s.prober == nil {
		s.prober = nfprobe.New(nfprobe.WithLogger(s.logger))
	}
	return s
}

// Preflight checks that the engine is usable and warns when the host
// cannot run the firewall. Only an unusable engine is an error.
func (s *Supervisor) Preflight(ctx context.Context) error {
	if err := s.engine.Reason(); err != nil {
		s.logger.Debug("engine unavailable", "error", err)
		return ErrRuntimeUnavailable
	}

	if !s.topology.Native() {
		s.warning("You are not in a linux machine, the firewall will not work in this machine.")
		return nil
	}

	res := s.prober.Probe(ctx, nfprobe.TargetNFQueue)
	s.logger.Debug("nfqueue probe", "supported", res.Supported, "reason", res.Reason, "revision", res.Revision, "error", res.Err)
	switch res.Reason {
	case nfprobe.NotFound:
		s.warning("The nfqueue kernel module seems not loaded, some features of firegex may not work.")
	case nfprobe.Indeterminate:
		// Unprivileged hosts often cannot open the socket at all.
		if !errors.Is(res.Err, nfprobe.ErrUnavailable) {
			fmt.Fprintln(s.out, "Error while trying to check if the nfqueue module is loaded, this check will be skipped!")
		}
	}
	return nil
}

// State queries the engine for the current deployment state.
func (s *Supervisor) State(ctx context.Context) (RuntimeState, error) {
	running, err := s.engine.IsRunning(ctx)
	if err != nil {
		return RuntimeState{}, fmt.Errorf("check container: %w", err)
	}
	present, err := s.engine.VolumeExists(ctx)
	if err != nil {
		return RuntimeState{}, fmt.Errorf("check volume: %w", err)
	}
	return RuntimeState{Running: running, VolumePresent: present}, nil
}

// Run executes inv. Precondition failures are reported to the operator and
// returned so the caller can tell them apart; see IsPrecondition.
func (s *Supervisor) Run(ctx context.Context, inv Invocation) error {
	entry := journal.Entry{
		RunID:     uuid.NewString(),
		Command:   inv.Name(),
		Detail:    inv.Detail(),
		StartedAt: s.now(),
	}
	logger := s.logger.With("run_id", entry.RunID, "command", entry.Command)
	logger.Debug("run started", "detail", entry.Detail)

	var err error
	switch inv := inv.(type) {
	case Start:
		err = s.start(ctx, inv)
	case Stop:
		err = s.stop(ctx, inv)
	case Restart:
		err = s.restart(ctx, inv)
	case Passthrough:
		err = s.passthrough(ctx, inv)
	case ClearVolume:
		err = s.clearVolume(ctx)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownCommand, inv)
	}

	entry.FinishedAt = s.now()
	entry.Outcome = outcome(err)
	if err != nil {
		entry.Error = err.Error()
	}
	logger.Debug("run finished", "outcome", entry.Outcome, "duration", entry.Duration())
	if s.recorder != nil {
		if rerr := s.recorder.Record(entry); rerr != nil {
			logger.Warn("failed to record run", "error", rerr)
		}
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return journal.OutcomeOK
	case IsPrecondition(err):
		return journal.OutcomeNotice
	case errors.Is(err, context.Canceled):
		return journal.OutcomeInterrupted
	default:
		return journal.OutcomeFailed
	}
}

func (s *Supervisor) start(ctx context.Context, inv Start) error {
	st, err := s.State(ctx)
	if err != nil {
		return err
	}
	if st.Running {
		fmt.Fprintln(s.out, "Firegex is already running! use --help to see options useful to manage firegex execution")
		return ErrAlreadyRunning
	}

	if s.cfg.LocalBuild && inv.Version != "" {
		s.logger.Warn("local build detected, ignoring image version", "version", inv.Version)
	}
	d := s.deployment(inv.Port, inv.Threads, inv.Version)

	d.SecretHex, err = s.provisioner.Provision(ctx, inv.Secret, st.VolumePresent)
	if err != nil {
		return fmt.Errorf("provision password: %w", err)
	}

	fmt.Fprintf(s.out, "Firegex will start on port %d\n", d.Port)
	return s.withManifest(d, func(path string) error {
		if !d.Image.Local {
			ref := s.cfg.ImageRef(d.Image.Tag)
			fmt.Fprintf(s.out, "Downloading docker image from github packages 'docker pull %s'\n", ref)
			if err := s.engine.PullImage(ctx, ref); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("image pull failed, compose will retry", "image", ref, "error", err)
			}
		}
		if err := s.compose(ctx, path, "up", "-d", "--build"); err != nil {
			return err
		}
		if inv.FollowLogs {
			return s.compose(ctx, path, "logs", "-f")
		}
		return nil
	})
}

func (s *Supervisor) stop(ctx context.Context, inv Stop) error {
	st, err := s.State(ctx)
	if err != nil {
		return err
	}
	if !st.Running {
		fmt.Fprintln(s.out, "Firegex is not running!")
		if inv.Clear {
			if err := s.clearVolume(ctx); err != nil && !IsPrecondition(err) {
				return err
			}
		}
		return ErrNotRunning
	}

	err = s.withManifest(s.deployment(0, 0, ""), func(path string) error {
		return s.compose(ctx, path, "down")
	})
	if err != nil {
		return err
	}
	if inv.Clear {
		return s.clearVolume(ctx)
	}
	return nil
}

func (s *Supervisor) restart(ctx context.Context, inv Restart) error {
	st, err := s.State(ctx)
	if err != nil {
		return err
	}
	if !st.Running {
		fmt.Fprintln(s.out, "Firegex is not running!")
		return ErrNotRunning
	}

	return s.withManifest(s.deployment(0, 0, ""), func(path string) error {
		if err := s.compose(ctx, path, "restart"); err != nil {
			return err
		}
		if inv.FollowLogs {
			return s.compose(ctx, path, "logs", "-f")
		}
		return nil
	})
}

func (s *Supervisor) passthrough(ctx context.Context, inv Passthrough) error {
	return s.withManifest(s.deployment(0, 0, ""), func(path string) error {
		return s.compose(ctx, path, inv.Args...)
	})
}

func (s *Supervisor) clearVolume(ctx context.Context) error {
	present, err := s.engine.VolumeExists(ctx)
	if err != nil {
		return fmt.Errorf("check volume: %w", err)
	}
	if !present {
		fmt.Fprintln(s.out, "Firegex volume not found!")
		return ErrVolumeNotFound
	}
	if err := s.engine.RemoveVolume(ctx); err != nil {
		return &RuntimeError{
			Command: "docker volume rm",
			Args:    []string{s.cfg.VolumeName()},
			Err:     err,
		}
	}
	s.logger.Info("volume removed", "volume", s.cfg.VolumeName())
	return nil
}

// deployment resolves the settings of a deployment, filling defaults for
// zero values. The secret is left unset.
func (s *Supervisor) deployment(port uint16, threads uint32, version string) Deployment {
	if port == 0 {
		port = uint16(s.cfg.DefaultPort)
	}
	if threads == 0 {
		threads = uint32(max(s.cpus(), 1))
	}
	return Deployment{
		Exposure: s.topology.Exposure(),
		Port:     port,
		Threads:  threads,
		Image:    ImageSource{Local: s.cfg.LocalBuild, Tag: version},
	}
}

// withManifest writes the manifest for d, calls fn with its path and
// removes the file before returning, whatever fn did.
func (s *Supervisor) withManifest(d Deployment, fn func(path string) error) error {
	path := s.cfg.ManifestPath()
	text := manifest.Compile(s.cfg.Manifest(d))
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove manifest", "path", path, "error", err)
		}
	}()
	s.logger.Debug("manifest written", "path", path, "exposure", d.Exposure, "port", d.Port)
	return fn(path)
}

func (s *Supervisor) compose(ctx context.Context, path string, args ...string) error {
	fmt.Fprintf(s.out, "Running '%s %s'\n\n", s.composer, strings.Join(args, " "))
	if err := s.composer.Run(ctx, path, args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RuntimeError{Command: s.composer.String(), Args: args, Err: err}
	}
	return nil
}

func (s *Supervisor) warning(msg string) {
	sep := strings.Repeat("-", 40)
	fmt.Fprintln(s.out, sep)
	fmt.Fprintln(s.out, "--- WARNING ---")
	fmt.Fprintln(s.out, msg)
	fmt.Fprintln(s.out, sep)
}
