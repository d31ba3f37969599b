// Package settings reads the optional project settings file, texturesets.yaml.
// Settings supply defaults for the CLI; explicit flags win over them.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up next to the working directory.
const FileName = "texturesets.yaml"

const templateYAML = `# texturesets project settings
version: 1

# Concurrent module executions per compile. 0 uses every CPU.
workers: 0

log:
  level: info
  format: text

cache:
  # Entries kept in the in-process tier.
  memory_entries: 256
  # Persistent tier, relative to this file. Leave empty to disable.
  dir: .texturesets/cache
  remote:
    # Shared cache server, e.g. ws://cache.local:7420
    url: ""
    connect_timeout: 15s
    request_timeout: 10s

# Directory receiving compiled textures. Empty prints a summary only.
output: ""

# Port of the HTTP health check server. 0 disables it.
healthcheck_port: 0
`

// Settings models texturesets.yaml.
type Settings struct {
	Version         int    `yaml:"version"`
	Workers         int    `yaml:"workers,omitempty"`
	Log             Log    `yaml:"log"`
	Cache           Cache  `yaml:"cache"`
	Output          string `yaml:"output,omitempty"`
	HealthcheckPort int    `yaml:"healthcheck_port,omitempty"`
}

// Log selects the logger.
type Log struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Cache configures the cache tiers.
type Cache struct {
	MemoryEntries int    `yaml:"memory_entries,omitempty"`
	Dir           string `yaml:"dir,omitempty"`
	Remote        Remote `yaml:"remote"`
}

// Remote configures the networked tier.
type Remote struct {
	URL                string        `yaml:"url,omitempty"`
	Namespace          string        `yaml:"namespace,omitempty"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify,omitempty"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout,omitempty"`
	RequestTimeout     time.Duration `yaml:"request_timeout,omitempty"`
}

// Template returns a commented settings file holding the defaults.
func Template() string {
	return templateYAML
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{
		Version: 1,
		Log:     Log{Level: "info", Format: "text"},
		Cache: Cache{
			MemoryEntries: 256,
			Remote: Remote{
				ConnectTimeout: 15 * time.Second,
				RequestTimeout: 10 * time.Second,
			},
		},
	}
}

// Load reads the settings at path. A missing file yields Default. Relative
// paths inside the file are resolved against the file's directory.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	s.normalize(filepath.Dir(path))
	return s, nil
}

// Parse decodes settings from YAML. Unknown keys are rejected.
func Parse(data []byte) (*Settings, error) {
	var parsed Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func (s *Settings) applyDefaults() {
	def := Default()
	if s.Version == 0 {
		s.Version = def.Version
	}
	if s.Log.Level == "" {
		s.Log.Level = def.Log.Level
	}
	if s.Log.Format == "" {
		s.Log.Format = def.Log.Format
	}
	if s.Cache.MemoryEntries == 0 {
		s.Cache.MemoryEntries = def.Cache.MemoryEntries
	}
	if s.Cache.Remote.ConnectTimeout == 0 {
		s.Cache.Remote.ConnectTimeout = def.Cache.Remote.ConnectTimeout
	}
	if s.Cache.Remote.RequestTimeout == 0 {
		s.Cache.Remote.RequestTimeout = def.Cache.Remote.RequestTimeout
	}
	s.Log.Level = strings.ToLower(strings.TrimSpace(s.Log.Level))
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))
}

func (s *Settings) normalize(base string) {
	if s.Cache.Dir != "" && !filepath.IsAbs(s.Cache.Dir) {
		s.Cache.Dir = filepath.Join(base, s.Cache.Dir)
	}
	if s.Output != "" && !filepath.IsAbs(s.Output) {
		s.Output = filepath.Join(base, s.Output)
	}
}

func (s *Settings) validate() error {
	if s.Version != 1 {
		return fmt.Errorf("unsupported settings version %d", s.Version)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", s.Log.Level)
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		return fmt.Errorf("log.format %q must be text or json", s.Log.Format)
	}
	if s.Cache.MemoryEntries < 0 {
		return fmt.Errorf("cache.memory_entries must be >= 0")
	}
	if s.HealthcheckPort < 0 || s.HealthcheckPort > 65535 {
		return fmt.Errorf("healthcheck_port %d is out of range", s.HealthcheckPort)
	}
	return nil
}
