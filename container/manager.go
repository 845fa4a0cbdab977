// Package container queries the docker engine for the state of a Firegex
// deployment: whether its container runs, whether its data volume exists.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"golang.org/x/term"
)

const (
	DefaultContainerName = "firegex"
	DefaultVolumeName    = "firegex_firegex_data"
)

// ErrUnavailable is returned by every engine call when the docker daemon
// could not be reached.
var ErrUnavailable = errors.New("docker not available")

// Manager answers questions about the Firegex deployment by talking to the
// docker engine API.
type Manager struct {
	client        *client.Client
	containerName string
	volumeName    string
	out           io.Writer
	available     bool
	reason        error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithContainerName sets the container checked by IsRunning.
func WithContainerName(name string) ManagerOption {
	return func(m *Manager) {
		m.containerName = name
	}
}

// WithVolumeName sets the data volume name, as docker reports it
// (compose project prefix included).
func WithVolumeName(name string) ManagerOption {
	return func(m *Manager) {
		m.volumeName = name
	}
}

// WithOutput sets where image pull progress is written.
func WithOutput(w io.Writer) ManagerOption {
	return func(m *Manager) {
		m.out = w
	}
}

// NewManager connects to the docker daemon.
// If Docker is unavailable, it returns a Manager with IsAvailable() false;
// Reason() tells why.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		containerName: DefaultContainerName,
		volumeName:    DefaultVolumeName,
		out:           os.Stdout,
	}

	for _, opt := range opts {
		opt(m)
	}

	cli, err := createDockerClient()
	if err != nil {
		m.reason = err
		return m
	}

	m.client = cli
	m.available = true
	return m
}

// createDockerClient creates a Docker client, trying multiple socket locations
// for compatibility with Docker Desktop on macOS.
func createDockerClient() (*client.Client, error) {
	var lastErr error

	// First try with environment settings (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err = cli.Ping(ctx)
		if err == nil {
			return cli, nil
		}
		lastErr = err
		cli.Close()
	}

	// Try common Docker Desktop socket locations
	socketPaths := []string{
		"unix://" + os.Getenv("HOME") + "/.docker/run/docker.sock", // Docker Desktop macOS
		"unix:///var/run/docker.sock",                               // Linux default
		"unix://" + os.Getenv("HOME") + "/.colima/docker.sock",     // Colima
	}

	for _, socketPath := range socketPaths {
		cli, err := client.NewClientWithOpts(
			client.WithHost(socketPath),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err = cli.Ping(ctx)
		cancel()

		if err == nil {
			return cli, nil
		}
		if lastErr == nil {
			lastErr = err
		}
		cli.Close()
	}

	if lastErr != nil {
		return nil, fmt.Errorf("could not connect to Docker daemon: %w", lastErr)
	}
	return nil, fmt.Errorf("could not connect to Docker daemon")
}

// IsAvailable returns whether Docker is available.
func (m *Manager) IsAvailable() bool {
	return m.available
}

// Reason returns why the daemon is unavailable, or nil.
func (m *Manager) Reason() error {
	return m.reason
}

// IsRunning reports whether the Firegex container is running.
func (m *Manager) IsRunning(ctx context.Context) (bool, error) {
	if !m.available {
		return false, ErrUnavailable
	}

	containers, err := m.client.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", "^"+m.containerName+"$")),
	})
	if err != nil {
		return false, fmt.Errorf("list containers: %w", err)
	}

	for _, c := range containers {
		if hasName(c.Names, m.containerName) {
			return true, nil
		}
	}
	return false, nil
}

// VolumeExists reports whether the data volume exists.
func (m *Manager) VolumeExists(ctx context.Context) (bool, error) {
	if !m.available {
		return false, ErrUnavailable
	}

	resp, err := m.client.VolumeList(ctx, volume.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", "^"+m.volumeName+"$")),
	})
	if err != nil {
		return false, fmt.Errorf("list volumes: %w", err)
	}

	for _, v := range resp.Volumes {
		if v != nil && v.Name == m.volumeName {
			return true, nil
		}
	}
	return false, nil
}

// RemoveVolume deletes the data volume.
func (m *Manager) RemoveVolume(ctx context.Context) error {
	if !m.available {
		return ErrUnavailable
	}

	if err := m.client.VolumeRemove(ctx, m.volumeName, false); err != nil {
		return fmt.Errorf("remove volume %s: %w", m.volumeName, err)
	}
	return nil
}

// PullImage pulls ref, streaming progress to the configured output.
func (m *Manager) PullImage(ctx context.Context, ref string) error {
	if !m.available {
		return ErrUnavailable
	}

	reader, err := m.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	defer reader.Close()

	fd, isTerm := outputTerminal(m.out)
	if err := jsonmessage.DisplayJSONMessagesStream(reader, m.out, fd, isTerm, nil); err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	return nil
}

// Close closes the Docker client.
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// hasName matches docker's "/name" container names exactly.
func hasName(names []string, name string) bool {
	for _, n := range names {
		if n == "/"+name {
			return true
		}
	}
	return false
}

func outputTerminal(w io.Writer) (uintptr, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	return f.Fd(), term.IsTerminal(int(f.Fd()))
}
