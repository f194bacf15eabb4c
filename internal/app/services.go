package app

import (
	"sync"

	"deployctl/internal/config"
	"deployctl/internal/kube"
	"deployctl/internal/manifest"
	"deployctl/pkg/logging"
)

// NewClusterClient is a package-level variable so tests can run without a cluster.
var NewClusterClient = func(cfg config.DeployctlConfig) (kube.ClusterClient, error) {
	client, err := kube.NewClient(kube.Options{
		Kubeconfig:   cfg.Kube.Kubeconfig,
		Context:      cfg.Kube.Context,
		FieldManager: cfg.Kube.FieldManager,
		PollInterval: cfg.Timeouts.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Services holds the collaborators of a run. The cluster client is created
// on first use so that commands like plan work without a kubeconfig.
type Services struct {
	Store *manifest.Store

	cfg         config.DeployctlConfig
	clusterOnce sync.Once
	cluster     kube.ClusterClient
	clusterErr  error
}

// InitializeServices creates the manifest store for the configured root.
func InitializeServices(cfg *Config) *Services {
	logging.Debug("Bootstrap", "Using manifest templates from %s", cfg.DeployctlConfig.Manifests.Root)
	return &Services{
		Store: manifest.NewStore(cfg.DeployctlConfig.Manifests.Root),
		cfg:   *cfg.DeployctlConfig,
	}
}

// Cluster returns the cluster client, connecting on the first call.
func (s *Services) Cluster() (kube.ClusterClient, error) {
	s.clusterOnce.Do(func() {
		s.cluster, s.clusterErr = NewClusterClient(s.cfg)
		if s.clusterErr != nil {
			logging.Error("Bootstrap", s.clusterErr, "Failed to create Kubernetes client")
		}
	})
	return s.cluster, s.clusterErr
}
