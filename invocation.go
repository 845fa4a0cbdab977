package firegex

import (
	"strconv"
	"strings"

	"github.com/pwnzer0tt1/firegexctl/secret"
)

// Invocation is one lifecycle command as parsed from the command line.
// Values are built once and never modified.
type Invocation interface {
	// Name is the command name recorded in the journal.
	Name() string
	// Detail summarises the arguments for the journal.
	Detail() string

	invocation()
}

// Start deploys the service unless it is already running.
type Start struct {
	// Port the web interface listens on. Zero selects the configured default.
	Port uint16
	// Threads handed to the service. Zero selects the CPU count.
	Threads uint32
	// Version is the remote image tag. Empty selects "latest".
	Version string
	Secret  secret.Source
	// FollowLogs streams the service logs once it is up.
	FollowLogs bool
}

// Stop takes the deployment down.
type Stop struct {
	// Clear also removes the data volume.
	Clear bool
}

// Restart restarts a running deployment.
type Restart struct {
	FollowLogs bool
}

// Passthrough forwards Args to the compose runtime as they are.
type Passthrough struct {
	Args []string
}

// ClearVolume removes the data volume.
type ClearVolume struct{}

func (Start) Name() string       { return "start" }
func (Stop) Name() string        { return "stop" }
func (Restart) Name() string     { return "restart" }
func (Passthrough) Name() string { return "compose" }
func (ClearVolume) Name() string { return "clear" }

func (s Start) Detail() string {
	var parts []string
	if s.Port != 0 {
		parts = append(parts, "port="+strconv.FormatUint(uint64(s.Port), 10))
	}
	if s.Threads != 0 {
		parts = append(parts, "threads="+strconv.FormatUint(uint64(s.Threads), 10))
	}
	if s.Version != "" {
		parts = append(parts, "version="+s.Version)
	}
	parts = append(parts, "secret="+s.Secret.Mode.String())
	if s.FollowLogs {
		parts = append(parts, "logs")
	}
	return strings.Join(parts, " ")
}

func (s Stop) Detail() string {
	if s.Clear {
		return "clear"
	}
	return ""
}

func (r Restart) Detail() string {
	if r.FollowLogs {
		return "logs"
	}
	return ""
}

func (p Passthrough) Detail() string { return strings.Join(p.Args, " ") }
func (ClearVolume) Detail() string   { return "" }

func (Start) invocation()       {}
func (Stop) invocation()        {}
func (Restart) invocation()     {}
func (Passthrough) invocation() {}
func (ClearVolume) invocation() {}
