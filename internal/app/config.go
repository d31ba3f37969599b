package app

import (
	"errors"
	"time"

	"github.com/vk/texturesets/internal/cache/remote"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Paths     []string // hcl files or directories
	Sets      []string // compile only these texture sets; empty means all
	OutputDir string
	DryRun    bool

	CacheDir      string
	MemoryEntries int
	Remote        remote.DialOptions
	RemoteTimeout time.Duration
	ServeCache    string // address of the cache server; switches the app to serving

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ServeCache == "" && len(cfg.Paths) == 0 {
		return nil, errors.New("at least one definition path is required")
	}
	if cfg.ServeCache != "" && cfg.DryRun {
		return nil, errors.New("dry-run cannot be combined with serve-cache")
	}
	if cfg.WorkerCount < 0 {
		return nil, errors.New("worker count cannot be negative")
	}
	if cfg.MemoryEntries < 0 {
		return nil, errors.New("memory entries cannot be negative")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, errors.New("healthcheck port is out of range")
	}
	return &cfg, nil
}
