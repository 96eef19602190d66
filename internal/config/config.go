package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/tranquil/internal/entry"
	"github.com/schaermu/tranquil/internal/lister"
	"github.com/schaermu/tranquil/internal/pathutil"
)

const (
	// DefaultPath is where the configuration is looked up when --config is
	// not given.
	DefaultPath = "~/.config/tranquil/config.yaml"
	// DefaultStateDir holds the exclusion list and the run journal.
	DefaultStateDir = "~/.local/state/tranquil"
	// DefaultDebounce is the quiet period watch mode waits for.
	DefaultDebounce = 2 * time.Second
)

// CaseSensitivity defines how relative paths are matched between the trees
type CaseSensitivity string

const (
	CaseAuto        CaseSensitivity = "auto"
	CaseSensitive   CaseSensitivity = "sensitive"
	CaseInsensitive CaseSensitivity = "insensitive"
)

// Config represents the complete tranquil configuration
type Config struct {
	Paths PathsConfig `yaml:"paths"`
	Sync  SyncConfig  `yaml:"sync"`
	Watch WatchConfig `yaml:"watch"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	StateDir    string `yaml:"state_dir"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	CaseSensitivity CaseSensitivity `yaml:"case_sensitivity"`
	ReservedNames   []string        `yaml:"reserved_names"`
	Workers         int             `yaml:"workers"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns a configuration with every default applied and no paths.
func Default() *Config {
	cfg := &Config{}
	cfg.expandEnv()
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. The result is not
// validated: command line flags may still fill in paths, so callers run
// Validate once every override is applied.
func Load(path string) (*Config, error) {
	// Expand environment variables and ~ in path
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadDefault loads DefaultPath, falling back to Default when the file does
// not exist.
func LoadDefault() (*Config, error) {
	cfg, err := Load(DefaultPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(os.ExpandEnv(path))
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", path, err)
	}
	return expanded, nil
}

// expandEnv expands environment variables and a leading ~ in all paths.
// Unexpandable values are left for Validate to reject.
func (c *Config) expandEnv() {
	for _, p := range []*string{&c.Paths.Source, &c.Paths.Destination, &c.Paths.StateDir} {
		if expanded, err := expandPath(*p); err == nil {
			*p = expanded
		}
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Paths.StateDir == "" {
		c.Paths.StateDir, _ = expandPath(DefaultStateDir)
	}
	if c.Sync.CaseSensitivity == "" {
		c.Sync.CaseSensitivity = CaseAuto
	}
	if c.Sync.ReservedNames == nil {
		c.Sync.ReservedNames = append([]string(nil), lister.DefaultReservedNames...)
	}
	if c.Sync.Workers == 0 {
		c.Sync.Workers = 1
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = DefaultDebounce
	}
}

// SetSource overrides the source root, expanding ~.
func (c *Config) SetSource(path string) {
	c.Paths.Source, _ = expandPath(path)
}

// SetDestination overrides the destination root, expanding ~.
func (c *Config) SetDestination(path string) {
	c.Paths.Destination, _ = expandPath(path)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Paths.Source == "" {
		return fmt.Errorf("paths.source is required")
	}
	if c.Paths.Destination == "" {
		return fmt.Errorf("paths.destination is required")
	}
	if c.Paths.StateDir == "" {
		return fmt.Errorf("paths.state_dir is required")
	}

	// Ensure paths are absolute
	if !filepath.IsAbs(c.Paths.Source) {
		return fmt.Errorf("paths.source must be an absolute path: %s", c.Paths.Source)
	}
	if !filepath.IsAbs(c.Paths.Destination) {
		return fmt.Errorf("paths.destination must be an absolute path: %s", c.Paths.Destination)
	}
	if !filepath.IsAbs(c.Paths.StateDir) {
		return fmt.Errorf("paths.state_dir must be an absolute path: %s", c.Paths.StateDir)
	}

	if pathutil.IsWithin(c.Paths.Source, c.Paths.Destination) || pathutil.IsWithin(c.Paths.Destination, c.Paths.Source) {
		return fmt.Errorf("paths.source and paths.destination must not contain each other: %s, %s",
			c.Paths.Source, c.Paths.Destination)
	}

	switch c.Sync.CaseSensitivity {
	case CaseAuto, CaseSensitive, CaseInsensitive:
		// valid
	default:
		return fmt.Errorf("invalid sync.case_sensitivity: %s (must be auto, sensitive, or insensitive)", c.Sync.CaseSensitivity)
	}

	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce)
	}

	return nil
}

// Order returns the path ordering selected by sync.case_sensitivity
func (c *Config) Order() entry.Order {
	switch c.Sync.CaseSensitivity {
	case CaseSensitive:
		return entry.Order{}
	case CaseInsensitive:
		return entry.Order{FoldCase: true}
	default:
		return entry.PlatformOrder(runtime.GOOS)
	}
}

// ExclusionsPath returns the path to the exclusion list
func (c *Config) ExclusionsPath() string {
	return filepath.Join(c.Paths.StateDir, "exclusions")
}

// JournalPath returns the path to the run journal database
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}
