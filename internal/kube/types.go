package kube

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is wrapped by every wait that gives up after its deadline.
var ErrTimeout = errors.New("timed out waiting for condition")

// ClusterClient is everything the orchestrator needs from the cluster
// control plane. Implementations must be safe for concurrent ApplyManifest calls.
type ClusterClient interface {
	// ClusterInfo reports API server version and node readiness.
	ClusterInfo(ctx context.Context) (ClusterInfo, error)

	// CreateNamespaceIfAbsent is idempotent.
	CreateNamespaceIfAbsent(ctx context.Context, namespace string) error

	// ApplyManifest server-side applies every object of a multi-document YAML
	// manifest. Namespaced objects without a namespace land in namespace.
	ApplyManifest(ctx context.Context, namespace, manifest string) error

	WaitForDeploymentAvailable(ctx context.Context, name, namespace string, timeout time.Duration) error
	WaitForAllDeploymentsAvailable(ctx context.Context, namespace string, timeout time.Duration) error

	DescribeDeployment(ctx context.Context, name, namespace string) (string, error)
	GetPodLogs(ctx context.Context, labelSelector, namespace string, tailLines int64) (string, error)

	ListServices(ctx context.Context, namespace string) ([]ServiceDescriptor, error)
	ListPods(ctx context.Context, namespace string) ([]PodDescriptor, error)

	// ProbeCRDInstalled reports whether a CustomResourceDefinition such as
	// "servicemonitors.monitoring.coreos.com" exists.
	ProbeCRDInstalled(ctx context.Context, name string) (bool, error)
}

// ClusterInfo represents basic cluster status
type ClusterInfo struct {
	ServerVersion string `json:"serverVersion" yaml:"serverVersion"`
	Provider      string `json:"provider" yaml:"provider"`
	ReadyNodes    int    `json:"readyNodes" yaml:"readyNodes"`
	TotalNodes    int    `json:"totalNodes" yaml:"totalNodes"`
}

// ServiceDescriptor is the subset of a Service the health checks need.
type ServiceDescriptor struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	ClusterIP string `json:"clusterIP,omitempty" yaml:"clusterIP,omitempty"`
	// ExternalAddress is a LoadBalancer ingress IP/hostname or an external IP;
	// empty for internal-only services.
	ExternalAddress string  `json:"externalAddress,omitempty" yaml:"externalAddress,omitempty"`
	Ports           []int32 `json:"ports,omitempty" yaml:"ports,omitempty"`
}

// Port returns the first service port, or 0 when the service has none.
func (s ServiceDescriptor) Port() int32 {
	if len(s.Ports) == 0 {
		return 0
	}
	return s.Ports[0]
}

// PodDescriptor summarises a pod for the final report.
type PodDescriptor struct {
	Name     string `json:"name" yaml:"name"`
	Phase    string `json:"phase" yaml:"phase"`
	Ready    string `json:"ready" yaml:"ready"` // "1/2"
	Restarts int32  `json:"restarts" yaml:"restarts"`
	Node     string `json:"node,omitempty" yaml:"node,omitempty"`
}
