package config

import (
	"time"
)

const (
	EnvironmentStaging    = "staging"
	EnvironmentProduction = "production"

	// MonitoringCRD is the CustomResourceDefinition the staging monitoring
	// manifest depends on.
	MonitoringCRD = "servicemonitors.monitoring.coreos.com"

	DefaultFieldManager = "deployctl"
)

// GetDefaultConfig returns the built-in configuration: the four application
// services, the supporting resources and the staging/production environment table.
func GetDefaultConfig() DeployctlConfig {
	return DeployctlConfig{
		Registries: Registries{
			Frontend: "frontendregistry.azurecr.io",
			Backend:  "backendregistry.azurecr.io",
		},
		Manifests: ManifestSettings{
			Root: "k8s",
		},
		Kube: KubeSettings{
			FieldManager: DefaultFieldManager,
		},
		Timeouts: Timeouts{
			ServiceAvailable: 300 * time.Second,
			AllDeployments:   600 * time.Second,
			HealthCheck:      10 * time.Second,
			PollInterval:     2 * time.Second,
		},
		Services: []ServiceDefinition{
			{Name: "customer-service", Registry: RegistryBackend},
			{Name: "order-service", Registry: RegistryBackend},
			{Name: "product-service", Registry: RegistryBackend},
			{Name: "frontend", Registry: RegistryFrontend},
		},
		Supporting: []ResourceDefinition{
			{Name: "customer-db", Template: "customer-db.yaml", Group: "databases"},
			{Name: "order-db", Template: "order-db.yaml", Group: "databases"},
			{Name: "product-db", Template: "product-db.yaml", Group: "databases"},
			{Name: "rabbitmq", Template: "rabbitmq.yaml"},
			{Name: "configmaps", Template: "configmaps.yaml"},
			{Name: "secrets", Template: "secrets.yaml"},
		},
		Environments: []EnvironmentDefinition{
			{
				Name:           EnvironmentStaging,
				ManifestDir:    "staging",
				StagingVariant: true,
				PostSteps: []PostStep{
					{Name: "monitoring", Template: "monitoring.yaml", RequiresCRD: MonitoringCRD},
				},
			},
			{
				Name: EnvironmentProduction,
				PostSteps: []PostStep{
					{Name: "hpa", Template: "hpa.yaml"},
					{Name: "monitoring", Template: "monitoring.yaml"},
				},
			},
		},
	}
}
