package firegex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"
)

// Defaults for a stock Firegex deployment.
const (
	DefaultProject         = "firegex"
	DefaultServiceName     = "firewall"
	DefaultContainerName   = "firegex"
	DefaultVolumeKey       = "firegex_data"
	DefaultDataPath        = "/execute/db"
	DefaultImageRepository = "ghcr.io/pwnzer0tt1/firegex"
	DefaultManifestName    = "firegex-compose-tmp-file.yml"
	DefaultPort            = 4444
	DefaultImageTag        = "latest"

	// BuildMarker identifies the Firegex Dockerfile. When it is present in
	// the working directory the image is built locally instead of pulled.
	BuildMarker = "cf1795af-3284-4183-a888-81ad3590ad84"
)

// Config holds the settings shared by every command. It is built once at
// startup and passed by value.
type Config struct {
	Project         string `yaml:"project"`
	ServiceName     string `yaml:"service"`
	ContainerName   string `yaml:"container"`
	VolumeKey       string `yaml:"volume"`
	DataPath        string `yaml:"data_path"`
	ImageRepository string `yaml:"image"`
	ManifestName    string `yaml:"manifest"`
	DefaultPort     int    `yaml:"port"`
	JournalPath     string `yaml:"journal"`
	LogLevel        string `yaml:"log_level"`

	// WorkDir is where the manifest is written and the Dockerfile looked up.
	WorkDir string `yaml:"-"`
	// LocalBuild builds the image from WorkDir instead of pulling it.
	LocalBuild bool `yaml:"-"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Project:         DefaultProject,
		ServiceName:     DefaultServiceName,
		ContainerName:   DefaultContainerName,
		VolumeKey:       DefaultVolumeKey,
		DataPath:        DefaultDataPath,
		ImageRepository: DefaultImageRepository,
		ManifestName:    DefaultManifestName,
		DefaultPort:     DefaultPort,
		JournalPath:     DefaultJournalPath(),
		WorkDir:         ".",
	}
}

// ParseConfig reads YAML on top of the defaults. String values may
// reference environment variables as ${VAR}.
func ParseConfig(b []byte) (Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, err
	}

	for _, p := range []*string{
		&c.Project,
		&c.ServiceName,
		&c.ContainerName,
		&c.VolumeKey,
		&c.DataPath,
		&c.ImageRepository,
		&c.ManifestName,
		&c.JournalPath,
		&c.LogLevel,
	} {
		v, err := envsubst.EvalEnv(*p)
		if err != nil {
			return Config{}, err
		}
		*p = v
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// FromFile reads the configuration at path.
func FromFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(b)
}

// LoadConfig reads path, or the default config file when path is empty.
// A missing default file yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	if path != "" {
		return FromFile(path)
	}
	c, err := FromFile(DefaultConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return c, err
}

// Validate checks that every required value is set.
func (c Config) Validate() error {
	required := map[string]string{
		"project":   c.Project,
		"service":   c.ServiceName,
		"container": c.ContainerName,
		"volume":    c.VolumeKey,
		"data_path": c.DataPath,
		"image":     c.ImageRepository,
		"manifest":  c.ManifestName,
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, name)
		}
	}
	if c.DefaultPort < 1 || c.DefaultPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.DefaultPort)
	}
	if strings.ContainsRune(c.ManifestName, filepath.Separator) {
		return fmt.Errorf("%w: manifest must be a file name, got %q", ErrInvalidConfig, c.ManifestName)
	}
	return nil
}

// VolumeName returns the data volume name as docker reports it. Compose
// prefixes volumes with the project name.
func (c Config) VolumeName() string {
	return c.Project + "_" + c.VolumeKey
}

// ManifestPath returns where the transient manifest is written.
func (c Config) ManifestPath() string {
	return filepath.Join(c.WorkDir, c.ManifestName)
}

// ImageRef returns the remote image reference for tag.
func (c Config) ImageRef(tag string) string {
	if tag == "" {
		tag = DefaultImageTag
	}
	return c.ImageRepository + ":" + tag
}

// DetectLocalBuild reports whether dir holds the Firegex Dockerfile.
func DetectLocalBuild(dir string) bool {
	b, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	if err != nil {
		return false
	}
	return strings.Contains(string(b), BuildMarker)
}
