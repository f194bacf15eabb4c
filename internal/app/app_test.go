package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"deployctl/internal/config"
	"deployctl/internal/kube"
	"deployctl/internal/manifest"
	"deployctl/internal/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stagingTemplates = []string{
	"customer-service.yaml", "order-service.yaml", "product-service.yaml", "frontend.yaml",
	"customer-db.yaml", "order-db.yaml", "product-db.yaml", "rabbitmq.yaml", "configmaps.yaml", "secrets.yaml",
}

// writeWorkspace creates a config file pointing at a fresh manifest root and
// returns the config path and the manifest root.
func writeWorkspace(t *testing.T, files ...string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "k8s")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "staging"), 0o755))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: x\n"), 0o644))
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("manifests:\n  root: "+root+"\n"), 0o644))
	return cfgPath, root
}

func newTestConfig(configPath string) *Config {
	cfg := NewConfig(false)
	cfg.LogOutput = io.Discard
	cfg.ConfigPath = configPath
	cfg.EnvFile = filepath.Join(filepath.Dir(configPath), ".env")
	return cfg
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(true)

	assert.True(t, cfg.Debug)
	assert.Equal(t, os.Stderr, cfg.LogOutput)
	assert.Nil(t, cfg.DeployctlConfig, "DeployctlConfig should be nil before loading")
}

func TestNewApplication_LoadsConfigFromPath(t *testing.T) {
	cfgPath, root := writeWorkspace(t)

	app, err := NewApplication(newTestConfig(cfgPath))
	require.NoError(t, err)

	got := app.DeployctlConfig()
	assert.Equal(t, root, got.Manifests.Root)
	assert.Equal(t, root, app.services.Store.Root())
	assert.Len(t, got.Services, 4, "defaults are kept under the file layer")
}

func TestNewApplication_Precedence(t *testing.T) {
	cfgPath, _ := writeWorkspace(t)
	t.Setenv(config.EnvManifestsDir, "/from/env")
	t.Setenv(config.EnvKubeContext, "env-context")

	cfg := newTestConfig(cfgPath)
	cfg.KubeContext = "flag-context"
	cfg.Kubeconfig = "/flag/kubeconfig"

	app, err := NewApplication(cfg)
	require.NoError(t, err)

	got := app.DeployctlConfig()
	assert.Equal(t, "/from/env", got.Manifests.Root, "environment overrides the file")
	assert.Equal(t, "flag-context", got.Kube.Context, "flags override the environment")
	assert.Equal(t, "/flag/kubeconfig", got.Kube.Kubeconfig)
}

func TestNewApplication_DotEnv(t *testing.T) {
	cfgPath, _ := writeWorkspace(t)
	envFile := filepath.Join(filepath.Dir(cfgPath), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(config.EnvKubeconfig+"=/from/dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv(config.EnvKubeconfig) })

	app, err := NewApplication(newTestConfig(cfgPath))
	require.NoError(t, err)

	assert.Equal(t, "/from/dotenv", app.DeployctlConfig().Kube.Kubeconfig)
}

func TestNewApplication_BadConfigPath(t *testing.T) {
	cfg := newTestConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := NewApplication(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load deployctl configuration from path")
}

func TestApplication_Plan(t *testing.T) {
	files := make([]string, 0, len(stagingTemplates))
	for _, f := range stagingTemplates {
		files = append(files, filepath.Join("staging", f))
	}
	cfgPath, _ := writeWorkspace(t, files...)

	app, err := NewApplication(newTestConfig(cfgPath))
	require.NoError(t, err)

	plan, err := app.Plan(orchestrator.NewDeploymentRequest("staging", "", "v1"))
	require.NoError(t, err)
	assert.Len(t, plan.Services, 4)
	assert.Len(t, plan.RequiredTemplates(), len(stagingTemplates))
}

func TestApplication_PlanMissingTemplates(t *testing.T) {
	cfgPath, _ := writeWorkspace(t)

	app, err := NewApplication(newTestConfig(cfgPath))
	require.NoError(t, err)

	plan, err := app.Plan(orchestrator.NewDeploymentRequest("production", "", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrMissingTemplates)
	assert.NotNil(t, plan)

	_, err = app.Plan(orchestrator.NewDeploymentRequest("qa", "", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown environment")
}

func TestApplication_DeployWithoutCluster(t *testing.T) {
	cfgPath, _ := writeWorkspace(t)

	original := NewClusterClient
	defer func() { NewClusterClient = original }()
	calls := 0
	NewClusterClient = func(config.DeployctlConfig) (kube.ClusterClient, error) {
		calls++
		return nil, errors.New("no kubeconfig")
	}

	app, err := NewApplication(newTestConfig(cfgPath))
	require.NoError(t, err)
	assert.Zero(t, calls, "the cluster is not contacted while bootstrapping")

	report, err := app.Deploy(context.Background(), orchestrator.NewDeploymentRequest("staging", "", ""))
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "no kubeconfig")

	_, _ = app.Deploy(context.Background(), orchestrator.NewDeploymentRequest("staging", "", ""))
	assert.Equal(t, 1, calls, "the client is created once")
}
