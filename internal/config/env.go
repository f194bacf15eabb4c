package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override file configuration.
const (
	EnvManifestsDir = "DEPLOYCTL_MANIFESTS_DIR"
	EnvKubeconfig   = "DEPLOYCTL_KUBECONFIG"
	EnvKubeContext  = "DEPLOYCTL_KUBE_CONTEXT"
)

var osLookupEnv = os.LookupEnv

// LoadDotEnv loads variables from a .env file into the process environment.
// A missing file is not an error; variables already set are never overwritten.
func LoadDotEnv(path string) (bool, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return true, nil
}

// ApplyEnvOverrides returns cfg with DEPLOYCTL_* environment variables applied.
func ApplyEnvOverrides(cfg DeployctlConfig) DeployctlConfig {
	if v, ok := osLookupEnv(EnvManifestsDir); ok && v != "" {
		cfg.Manifests.Root = v
	}
	if v, ok := osLookupEnv(EnvKubeconfig); ok && v != "" {
		cfg.Kube.Kubeconfig = v
	}
	if v, ok := osLookupEnv(EnvKubeContext); ok && v != "" {
		cfg.Kube.Context = v
	}
	return cfg
}
