package app

import (
	"io"
	"os"

	"deployctl/internal/config"
	"deployctl/pkg/logging"
)

// Config holds the application configuration assembled from CLI flags.
type Config struct {
	// Debug settings
	Debug     bool
	LogFormat logging.Format
	LogOutput io.Writer

	// Configuration sources
	ConfigPath string // Explicit config file; empty uses the layered lookup
	EnvFile    string // .env file; empty means ./.env

	// Flag overrides, applied after file and environment configuration
	Kubeconfig   string
	KubeContext  string
	ManifestsDir string

	// Loaded configuration
	DeployctlConfig *config.DeployctlConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool) *Config {
	return &Config{
		Debug:     debug,
		LogFormat: logging.FormatText,
		LogOutput: os.Stderr,
	}
}

// applyFlagOverrides layers the CLI flags over the loaded configuration.
func (c *Config) applyFlagOverrides(cfg config.DeployctlConfig) config.DeployctlConfig {
	if c.Kubeconfig != "" {
		cfg.Kube.Kubeconfig = c.Kubeconfig
	}
	if c.KubeContext != "" {
		cfg.Kube.Context = c.KubeContext
	}
	if c.ManifestsDir != "" {
		cfg.Manifests.Root = c.ManifestsDir
	}
	return cfg
}
