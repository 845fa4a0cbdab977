package firegex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pwnzer0tt1/firegexctl/journal"
	"github.com/pwnzer0tt1/firegexctl/nfprobe"
	"github.com/pwnzer0tt1/firegexctl/secret"
)

type fakeEngine struct {
	reason   error
	running  bool
	volume   bool
	pullErr  error
	stateErr error

	pulls   []string
	removed int
}

func (e *fakeEngine) Reason() error                             { return e.reason }
func (e *fakeEngine) IsRunning(context.Context) (bool, error)    { return e.running, e.stateErr }
func (e *fakeEngine) VolumeExists(context.Context) (bool, error) { return e.volume, nil }

func (e *fakeEngine) RemoveVolume(context.Context) error {
	e.removed++
	e.volume = false
	return nil
}

func (e *fakeEngine) PullImage(_ context.Context, ref string) error {
	e.pulls = append(e.pulls, ref)
	return e.pullErr
}

type composeCall struct {
	args     []string
	manifest string
}

type fakeComposer struct {
	t     *testing.T
	calls []composeCall
	// fail returns an error for calls whose first argument matches.
	fail map[string]error
	// onRun runs inside the call, while the manifest is on disk.
	onRun func(args []string)
}

func (c *fakeComposer) String() string { return "docker compose" }

func (c *fakeComposer) Run(ctx context.Context, path string, args ...string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		c.t.Errorf("manifest not readable during %v: %v", args, err)
	}
	c.calls = append(c.calls, composeCall{args: args, manifest: string(b)})
	if c.onRun != nil {
		c.onRun(args)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(args) > 0 {
		return c.fail[args[0]]
	}
	return nil
}

func (c *fakeComposer) argv() []string {
	var out []string
	for _, call := range c.calls {
		out = append(out, strings.Join(call.args, " "))
	}
	return out
}

type fakeProvisioner struct {
	hex   string
	err   error
	calls int
	got   secret.Source
	seen  bool
}

func (p *fakeProvisioner) Provision(_ context.Context, src secret.Source, volumePresent bool) (string, error) {
	p.calls++
	p.got = src
	p.seen = volumePresent
	if volumePresent {
		return "", nil
	}
	return p.hex, p.err
}

type fakeProber struct {
	result nfprobe.Result
	calls  int
}

func (p *fakeProber) Probe(context.Context, string) nfprobe.Result {
	p.calls++
	return p.result
}

type memRecorder struct {
	entries []journal.Entry
}

func (r *memRecorder) Record(e journal.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

type harness struct {
	sup      *Supervisor
	cfg      Config
	engine   *fakeEngine
	composer *fakeComposer
	prov     *fakeProvisioner
	prober   *fakeProber
	journal  *memRecorder
	out      *bytes.Buffer
}

func newHarness(t *testing.T, topo Topology) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WorkDir = t.TempDir()

	h := &harness{
		cfg:      cfg,
		engine:   &fakeEngine{},
		composer: &fakeComposer{t: t, fail: map[string]error{}},
		prov:     &fakeProvisioner{hex: "7365637265742d70617373"},
		prober:   &fakeProber{result: nfprobe.Result{Supported: true, Reason: nfprobe.ModuleLoaded}},
		journal:  &memRecorder{},
		out:      &bytes.Buffer{},
	}
	h.build(topo)
	return h
}

func (h *harness) build(topo Topology) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.sup = New(h.cfg, h.engine, h.composer,
		WithProvisioner(h.prov),
		WithProber(h.prober),
		WithJournal(h.journal),
		WithTopology(topo),
		WithOutput(h.out),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	h.sup.cpus = func() int { return 6 }
}

func (h *harness) assertNoManifest(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(h.cfg.ManifestPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("manifest still on disk after run (stat error = %v)", err)
	}
}

var (
	nativeLinux = Topology{OS: "linux", KernelRelease: "6.8.0-45-generic"}
	wsl         = Topology{OS: "linux", KernelRelease: "5.15.153.1-microsoft-standard-WSL2"}
)

func TestStartFresh(t *testing.T) {
	h := newHarness(t, nativeLinux)

	err := h.sup.Run(context.Background(), Start{Port: 5555, Version: "2.1", FollowLogs: true})
	if err != nil {
		t.Fatalf("Run(Start) error = %v", err)
	}

	if h.prov.calls != 1 {
		t.Errorf("provisioner calls = %d, want 1", h.prov.calls)
	}
	if len(h.engine.pulls) != 1 || h.engine.pulls[0] != "ghcr.io/pwnzer0tt1/firegex:2.1" {
		t.Errorf("pulls = %v, want [ghcr.io/pwnzer0tt1/firegex:2.1]", h.engine.pulls)
	}

	want := []string{"up -d --build", "logs -f"}
	if got := h.composer.argv(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("compose calls = %v, want %v", got, want)
	}

	m := h.composer.calls[0].manifest
	for _, s := range []string{
		"network_mode: host",
		"- PORT=5555",
		"- NTHREADS=6",
		"- HEX_SET_PSW=7365637265742d70617373",
		"/sys_host/net.ipv4.ip_forward",
	} {
		if !strings.Contains(m, s) {
			t.Errorf("manifest missing %q:\n%s", s, m)
		}
	}
	if !strings.Contains(h.out.String(), "Firegex will start on port 5555") {
		t.Errorf("output = %q, want start banner", h.out.String())
	}
	h.assertNoManifest(t)

	if len(h.journal.entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(h.journal.entries))
	}
	e := h.journal.entries[0]
	if e.Command != "start" || e.Outcome != journal.OutcomeOK || e.RunID == "" {
		t.Errorf("journal entry = %+v", e)
	}
	if e.Duration() != time.Second {
		t.Errorf("Duration() = %v, want 1s", e.Duration())
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	h := newHarness(t, nativeLinux)
	ctx := context.Background()

	if err := h.sup.Run(ctx, Start{}); err != nil {
		t.Fatalf("first Run(Start) error = %v", err)
	}
	h.engine.running = true
	h.out.Reset()

	err := h.sup.Run(ctx, Start{})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run(Start) error = %v, want ErrAlreadyRunning", err)
	}
	if !IsPrecondition(err) {
		t.Error("ErrAlreadyRunning should be a precondition")
	}

	if got := h.composer.argv(); len(got) != 1 || got[0] != "up -d --build" {
		t.Errorf("compose calls = %v, want a single up", got)
	}
	if h.prov.calls != 1 {
		t.Errorf("provisioner calls = %d, want 1", h.prov.calls)
	}
	if len(h.engine.pulls) != 1 {
		t.Errorf("pulls = %v, want 1", h.engine.pulls)
	}
	if !strings.Contains(h.out.String(), "Firegex is already running!") {
		t.Errorf("output = %q, want already running notice", h.out.String())
	}
	h.assertNoManifest(t)

	if got := h.journal.entries[1].Outcome; got != journal.OutcomeNotice {
		t.Errorf("second outcome = %q, want %q", got, journal.OutcomeNotice)
	}
}

func TestStartWSLUsesBridged(t *testing.T) {
	h := newHarness(t, wsl)

	if err := h.sup.Run(context.Background(), Start{Port: 4444}); err != nil {
		t.Fatalf("Run(Start) error = %v", err)
	}

	m := h.composer.calls[0].manifest
	if strings.Contains(m, "network_mode") {
		t.Errorf("manifest uses host networking under WSL:\n%s", m)
	}
	if !strings.Contains(m, "- 4444:4444") {
		t.Errorf("manifest missing port mapping:\n%s", m)
	}
	if strings.Contains(m, "/sys_host/") {
		t.Errorf("manifest binds sysctls in bridged mode:\n%s", m)
	}
}

func TestStartExistingVolumeSkipsSecret(t *testing.T) {
	h := newHarness(t, nativeLinux)
	h.engine.volume = true

	if err := h.sup.Run(context.Background(), Start{}); err != nil {
		t.Fatalf("Run(Start) error = %v", err)
	}
	if !h.prov.seen {
		t.Error("provisioner not told the volume exists")
	}
	if m := h.composer.calls[0].manifest; strings.Contains(m, "HEX_SET_PSW") {
		t.Errorf("manifest sets a password over an existing volume:\n%s", m)
	}
}

func TestStartLocalBuild(t *testing.T) {
	h := newHarness(t, nativeLinux)
	h.cfg.LocalBuild = true
	h.build(nativeLinux)

	if err := h.sup.Run(context.Background(), Start{Version: "9.9"}); err != nil {
		t.Fatalf("Run(Start) error = %v", err)
	}
	if len(h.engine.pulls) != 0 {
		t.Errorf("pulls = %v, want none for a local build", h.engine.pulls)
	}
	m := h.composer.calls[0].manifest
	if !strings.Contains(m, "build: .") || strings.Contains(m, "image:") {
		t.Errorf("manifest not set up for a local build:\n%s", m)
	}
}

func TestStartPullFailureContinues(t *testing.T) {
	h := newHarness(t, nativeLinux)
	h.engine.pullErr = errors.New("registry unreachable")

	if err := h.sup.Run(context.Background(), Start{}); err != nil {
		t.Fatalf("Run(Start) error = %v", err)
	}
	if got := h.composer.argv(); len(got) != 1 {
		t.Errorf("compose calls = %v, want up after failed pull", got)
	}
}

func TestStartProvisionError(t *testing.T) {
	h := newHarness(t, nativeLinux)
	h.prov.err = secret.ErrTooShort

	err := h.sup.Run(context.Background(), Start{Secret: secret.Source{Mode: secret.ModeProvided, Value: "short"}})
	if !errors.Is(err, secret.ErrTooShort) {
		t.Fatalf("Run(Start) error = %v, want ErrTooShort", err)
	}
	if len(h.composer.calls) != 0 || len(h.engine.pulls) != 0 {
		t.Errorf("runtime touched after provisioning failed: compose %v pulls %v", h.composer.argv(), h.engine.pulls)
	}
	if h.prov.got.Mode != secret.ModeProvided {
		t.Errorf("provisioner source mode = %v, want provided", h.prov.got.Mode)
	}
	h.assertNoManifest(t)
	if got := h.journal.entries[0].Outcome; got != journal.OutcomeFailed {
		t.Errorf("outcome = %q, want %q", got, journal.OutcomeFailed)
	}
}

func TestStopAndRestart(t *testing.T) {
	tests := []struct {
		name    string
		inv     Invocation
		running bool
		volume  bool
		wantErr error
		want    []string
		removed int
	}{
		{"stop running", Stop{}, true, true, nil, []string{"down"}, 0},
		{"stop clear", Stop{Clear: true}, true, true, nil, []string{"down"}, 1},
		{"stop clear without volume", Stop{Clear: true}, true, false, ErrVolumeNotFound, []string{"down"}, 0},
		{"stop not running", Stop{}, false, true, ErrNotRunning, nil, 0},
		{"stop clear not running", Stop{Clear: true}, false, true, ErrNotRunning, nil, 1},
		{"restart running", Restart{}, true, true, nil, []string{"restart"}, 0},
		{"restart logs", Restart{FollowLogs: true}, true, true, nil, []string{"restart", "logs -f"}, 0},
		{"restart not running", Restart{}, false, true, ErrNotRunning, nil, 0},
		{"passthrough", Passthrough{Args: []string{"ps", "-a"}}, false, false, nil, []string{"ps -a"}, 0},
		{"clear volume", ClearVolume{}, false, true, nil, nil, 1},
		{"clear missing volume", ClearVolume{}, false, false, ErrVolumeNotFound, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nativeLinux)
			h.engine.running = tt.running
			h.engine.volume = tt.volume

			err := h.sup.Run(context.Background(), tt.inv)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Run(%s) error = %v, want %v", tt.inv.Name(), err, tt.wantErr)
			}
			if got := h.composer.argv(); strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("compose calls = %v, want %v", got, tt.want)
			}
			if h.engine.removed != tt.removed {
				t.Errorf("volumes removed = %d, want %d", h.engine.removed, tt.removed)
			}
			if h.prov.calls != 0 {
				t.Errorf("provisioner called %d times", h.prov.calls)
			}
			h.assertNoManifest(t)
		})
	}
}

func TestStopManifestHasNoSecret(t *testing.T) {
	h := newHarness(t, nativeLinux)
	h.engine.running = true

	if err := h.sup.Run(context.Background(), Stop{}); err != nil {
		t.Fatalf("Run(Stop) error = %v", err)
	}
	if m := h.composer.calls[0].manifest; strings.Contains(m, "HEX_SET_PSW") {
		t.Errorf("stop manifest carries a password:\n%s", m)
	}
}

func TestRuntimeFailureRemovesManifest(t *testing.T) {
	h := newHarness(t, nativeLinux)
	h.composer.fail["up"] = errors.New("exit status 1")

	err := h.sup.Run(context.Background(), Start{})
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("Run(Start) error = %v, want *RuntimeError", err)
	}
	if re.Command != "docker compose" || strings.Join(re.Args, " ") != "up -d --build" {
		t.Errorf("RuntimeError = %+v", re)
	}
	h.assertNoManifest(t)
}

func TestInterruptRemovesManifest(t *testing.T) {
	invocations := []Invocation{
		Start{FollowLogs: true},
		Restart{FollowLogs: true},
		Stop{},
		Passthrough{Args: []string{"logs", "-f"}},
	}

	for _, inv := range invocations {
		t.Run(inv.Name(), func(t *testing.T) {
			h := newHarness(t, nativeLinux)
			if _, ok := inv.(Start); !ok {
				h.engine.running = true
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			h.composer.onRun = func([]string) { cancel() }

			err := h.sup.Run(ctx, inv)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("Run(%s) error = %v, want context.Canceled", inv.Name(), err)
			}
			if len(h.composer.calls) != 1 {
				t.Errorf("compose calls = %v, want the interrupted one only", h.composer.argv())
			}
			h.assertNoManifest(t)
			if got := h.journal.entries[0].Outcome; got != journal.OutcomeInterrupted {
				t.Errorf("outcome = %q, want %q", got, journal.OutcomeInterrupted)
			}
		})
	}
}

type unknownInvocation struct{ Start }

func TestRunUnknownInvocation(t *testing.T) {
	h := newHarness(t, nativeLinux)
	err := h.sup.Run(context.Background(), unknownInvocation{})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Run() error = %v, want ErrUnknownCommand", err)
	}
}

func TestPreflight(t *testing.T) {
	tests := []struct {
		name       string
		topo       Topology
		reason     error
		result     nfprobe.Result
		wantErr    error
		wantOut    string
		wantProbes int
	}{
		{
			name:    "engine unavailable",
			topo:    nativeLinux,
			reason:  errors.New("permission denied"),
			wantErr: ErrRuntimeUnavailable,
		},
		{
			name:    "not linux",
			topo:    wsl,
			wantOut: "You are not in a linux machine",
		},
		{
			name:       "module loaded",
			topo:       nativeLinux,
			result:     nfprobe.Result{Supported: true, Reason: nfprobe.ModuleLoaded},
			wantProbes: 1,
		},
		{
			name:       "module missing",
			topo:       nativeLinux,
			result:     nfprobe.Result{Reason: nfprobe.NotFound},
			wantOut:    "The nfqueue kernel module seems not loaded",
			wantProbes: 1,
		},
		{
			name:       "indeterminate",
			topo:       nativeLinux,
			result:     nfprobe.Result{Supported: true, Reason: nfprobe.Indeterminate, Err: errors.New("kernel returned errno 22")},
			wantOut:    "this check will be skipped",
			wantProbes: 1,
		},
		{
			name: "netlink unavailable",
			topo: nativeLinux,
			result: nfprobe.Result{
				Supported: true,
				Reason:    nfprobe.Indeterminate,
				Err:       fmt.Errorf("%w: operation not permitted", nfprobe.ErrUnavailable),
			},
			wantProbes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.topo)
			h.engine.reason = tt.reason
			h.prober.result = tt.result

			err := h.sup.Preflight(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Preflight() error = %v, want %v", err, tt.wantErr)
			}
			if h.prober.calls != tt.wantProbes {
				t.Errorf("probe calls = %d, want %d", h.prober.calls, tt.wantProbes)
			}
			out := h.out.String()
			if tt.wantOut == "" && out != "" {
				t.Errorf("output = %q, want none", out)
			}
			if tt.wantOut != "" && !strings.Contains(out, tt.wantOut) {
				t.Errorf("output = %q, want %q", out, tt.wantOut)
			}
		})
	}
}

func TestState(t *testing.T) {
	h := newHarness(t, nativeLinux)
	h.engine.running = true

	st, err := h.sup.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if !st.Running || st.VolumePresent {
		t.Errorf("State() = %+v, want running without volume", st)
	}
}

func TestCommandsReportStateError(t *testing.T) {
	for _, inv := range []Invocation{Start{}, Stop{}, Restart{}} {
		t.Run(inv.Name(), func(t *testing.T) {
			h := newHarness(t, nativeLinux)
			h.engine.stateErr = errors.New("daemon went away")

			err := h.sup.Run(context.Background(), inv)
			if err == nil || !strings.Contains(err.Error(), "check container: daemon went away") {
				t.Errorf("Run() error = %v, want the engine failure", err)
			}
			if len(h.composer.calls) != 0 {
				t.Errorf("compose called %d times", len(h.composer.calls))
			}
			if h.prov.calls != 0 {
				t.Errorf("provisioner called %d times", h.prov.calls)
			}
			h.assertNoManifest(t)
		})
	}
}
