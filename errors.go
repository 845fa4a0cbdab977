package firegex

import (
	"errors"
	"os/exec"
	"strings"
)

// Standard errors
var (
	// ErrRuntimeUnavailable is returned when the docker daemon cannot be used
	ErrRuntimeUnavailable = errors.New("cannot use docker, the user hasn't the permission or docker isn't running")

	// ErrComposeNotFound is returned when no compose command is installed
	ErrComposeNotFound = errors.New("docker compose not found")

	// ErrAlreadyRunning is returned by start when the deployment is up
	ErrAlreadyRunning = errors.New("firegex is already running")

	// ErrNotRunning is returned by stop and restart when there is nothing to act on
	ErrNotRunning = errors.New("firegex is not running")

	// ErrVolumeNotFound is returned when clearing a volume that does not exist
	ErrVolumeNotFound = errors.New("firegex volume not found")

	// ErrUnknownCommand is returned for an invocation the supervisor cannot handle
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidConfig is returned when a configuration value is out of range
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RuntimeError wraps a failed compose or engine call with the command that
// was being run.
type RuntimeError struct {
	Command string
	Args    []string
	Err     error
}

func (e *RuntimeError) Error() string {
	cmd := e.Command
	if len(e.Args) > 0 {
		cmd += " " + strings.Join(e.Args, " ")
	}
	return "runtime " + cmd + ": " + e.Err.Error()
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit status of the failed subprocess, or 1 when the
// failure did not come from a subprocess exit.
func (e *RuntimeError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return 1
}

// IsPrecondition reports whether err only means the command had nothing to
// do. Such errors are shown as notices and do not fail the process.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrAlreadyRunning) ||
		errors.Is(err, ErrNotRunning) ||
		errors.Is(err, ErrVolumeNotFound)
}
