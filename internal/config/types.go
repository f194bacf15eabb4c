package config

import (
	"time"
)

// DeployctlConfig is the top-level configuration structure for deployctl.
type DeployctlConfig struct {
	Registries   Registries              `yaml:"registries"`
	Manifests    ManifestSettings        `yaml:"manifests"`
	Kube         KubeSettings            `yaml:"kube"`
	Timeouts     Timeouts                `yaml:"timeouts"`
	Services     []ServiceDefinition     `yaml:"services"`
	Supporting   []ResourceDefinition    `yaml:"supporting"`
	Environments []EnvironmentDefinition `yaml:"environments"`
}

// RegistryRole selects which of the two container registries serves an image.
type RegistryRole string

const (
	RegistryFrontend RegistryRole = "frontend"
	RegistryBackend  RegistryRole = "backend"
)

// Registries holds the two registry hostnames. The frontend image lives in its
// own registry; every backend service shares the other one.
type Registries struct {
	Frontend string `yaml:"frontend,omitempty"`
	Backend  string `yaml:"backend,omitempty"`
}

// Host returns the registry hostname for a role, or "" for an unknown role.
// An empty role is the backend registry.
func (r Registries) Host(role RegistryRole) string {
	switch role {
	case RegistryFrontend:
		return r.Frontend
	case RegistryBackend, "":
		return r.Backend
	default:
		return ""
	}
}

// ManifestSettings points at the manifest template store on disk.
type ManifestSettings struct {
	Root string `yaml:"root,omitempty"` // Directory holding the default manifest set, e.g. "k8s"
}

// KubeSettings selects the cluster to talk to. Empty values fall back to the
// client-go loading rules (KUBECONFIG, ~/.kube/config, in-cluster).
type KubeSettings struct {
	Kubeconfig   string `yaml:"kubeconfig,omitempty"`
	Context      string `yaml:"context,omitempty"`
	FieldManager string `yaml:"fieldManager,omitempty"`
}

// Timeouts bounds every blocking wait of a run.
type Timeouts struct {
	ServiceAvailable time.Duration `yaml:"serviceAvailable,omitempty"` // Per core service
	AllDeployments   time.Duration `yaml:"allDeployments,omitempty"`   // Final namespace-wide wait
	HealthCheck      time.Duration `yaml:"healthCheck,omitempty"`      // Per HTTP GET
	PollInterval     time.Duration `yaml:"pollInterval,omitempty"`
}

// ServiceDefinition describes one core application service.
type ServiceDefinition struct {
	Name     string       `yaml:"name"`               // Deployment name, e.g. "order-service"
	Image    string       `yaml:"image,omitempty"`    // Image repository name; defaults to Name
	Registry RegistryRole `yaml:"registry,omitempty"` // Defaults to backend
	Template string       `yaml:"template,omitempty"` // File name inside the environment's manifest dir
	Selector string       `yaml:"selector,omitempty"` // Pod label selector used for diagnostics; defaults to app=<name>
}

// ImageName returns the image repository name of the service.
func (s ServiceDefinition) ImageName() string {
	if s.Image != "" {
		return s.Image
	}
	return s.Name
}

// TemplateName returns the manifest file name of the service.
func (s ServiceDefinition) TemplateName() string {
	if s.Template != "" {
		return s.Template
	}
	return s.Name + ".yaml"
}

// LabelSelector returns the selector that matches the service's pods.
func (s ServiceDefinition) LabelSelector() string {
	if s.Selector != "" {
		return s.Selector
	}
	return "app=" + s.Name
}

// ResourceDefinition is a supporting manifest (database, broker, config, secrets).
// Consecutive resources that share a Group are applied concurrently.
type ResourceDefinition struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
	Group    string `yaml:"group,omitempty"`
}

// EnvironmentDefinition is one row of the environment table.
type EnvironmentDefinition struct {
	Name string `yaml:"name"`
	// ManifestDir is relative to Manifests.Root; empty means the root itself.
	ManifestDir string `yaml:"manifestDir,omitempty"`
	// StagingVariant marks templates that already declare their namespace inline.
	StagingVariant bool       `yaml:"stagingVariant,omitempty"`
	PostSteps      []PostStep `yaml:"postSteps,omitempty"`
}

// PostStep is an environment specific manifest applied after the supporting resources.
type PostStep struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
	// RequiresCRD names a CustomResourceDefinition that must be installed;
	// when it is absent the step is skipped with a warning.
	RequiresCRD string `yaml:"requiresCRD,omitempty"`
}
