// Package config handles spur.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/spur/eventloop"
)

// FileName is the name of the configuration file.
const FileName = "spur.toml"

// Config represents a spur.toml configuration.
type Config struct {
	Bridge    Bridge    `toml:"bridge"`
	Memory    Memory    `toml:"memory"`
	Libraries Libraries `toml:"libraries"`
	Log       Log       `toml:"log"`

	// Dir is the directory containing the spur.toml file (set at load time).
	Dir string `toml:"-"`
}

// Bridge configures the event loop bridge.
type Bridge struct {
	Mode         string `toml:"mode"`
	Queue        int    `toml:"queue"`
	LockOSThread *bool  `toml:"lock-os-thread"`
}

// Memory configures the object space.
type Memory struct {
	Size string `toml:"size"`
}

// Libraries configures foreign library resolution.
type Libraries struct {
	Search []string          `toml:"search"`
	Alias  map[string]string `toml:"alias"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Defaults
const (
	DefaultMode       = "worker"
	DefaultMemorySize = "64MiB"
)

// Default returns the configuration used when no spur.toml exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses a spur.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a spur.toml file, then loads
// and returns it. Returns nil if no configuration is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.Bridge.Mode == "" {
		c.Bridge.Mode = DefaultMode
	}
	if c.Bridge.Queue <= 0 {
		c.Bridge.Queue = eventloop.DefaultCapacity
	}
	if c.Bridge.LockOSThread == nil {
		lock := true
		c.Bridge.LockOSThread = &lock
	}
	if c.Memory.Size == "" {
		c.Memory.Size = DefaultMemorySize
	}
}

// Validate checks the values that are parsed lazily.
func (c *Config) Validate() error {
	if _, err := eventloop.ParseMode(c.Bridge.Mode); err != nil {
		return err
	}
	if _, err := c.MemoryWords(); err != nil {
		return err
	}
	return nil
}

// BridgeOptions returns the event loop bridge options.
func (c *Config) BridgeOptions() (eventloop.Options, error) {
	mode, err := eventloop.ParseMode(c.Bridge.Mode)
	if err != nil {
		return eventloop.Options{}, err
	}
	return eventloop.Options{
		Mode:         mode,
		Capacity:     c.Bridge.Queue,
		LockOSThread: c.Bridge.LockOSThread == nil || *c.Bridge.LockOSThread,
	}, nil
}

// MemoryWords returns the object space size in 64-bit words.
func (c *Config) MemoryWords() (int, error) {
	bytes, err := ParseSize(c.Memory.Size)
	if err != nil {
		return 0, fmt.Errorf("memory size: %w", err)
	}
	return int(bytes / 8), nil
}

// SearchPaths returns the library search directories, relative entries
// resolved against the configuration directory.
func (c *Config) SearchPaths() []string {
	var paths []string
	for _, d := range c.Libraries.Search {
		if !filepath.IsAbs(d) && c.Dir != "" {
			d = filepath.Join(c.Dir, d)
		}
		paths = append(paths, d)
	}
	return paths
}

// LogPath returns the log file path, nil for stderr.
func (c *Config) LogPath() *string {
	if c.Log.Path == "" {
		return nil
	}
	path := c.Log.Path
	if !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	return &path
}

var sizeUnits = []struct {
	suffix string
	scale  int64
}{
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"G", 1 << 30},
	{"M", 1 << 20},
	{"K", 1 << 10},
	{"B", 1},
}

// ParseSize reads a byte count such as "64MiB", "512K" or "4096".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	scale := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			scale = u.scale
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * scale, nil
}
