package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"deployctl/internal/kube"
	"deployctl/internal/reporting"
)

const DefaultImageTag = "latest"

// DeploymentRequest is the input of one run. It is a value type; Deploy never
// modifies it.
type DeploymentRequest struct {
	Environment string `json:"environment" yaml:"environment"`
	Namespace   string `json:"namespace" yaml:"namespace"`
	ImageTag    string `json:"imageTag" yaml:"imageTag"`
}

// NewDeploymentRequest applies the CLI defaults: the namespace defaults to the
// environment name and the tag to "latest".
func NewDeploymentRequest(environment, namespace, imageTag string) DeploymentRequest {
	if namespace == "" {
		namespace = environment
	}
	if imageTag == "" {
		imageTag = DefaultImageTag
	}
	return DeploymentRequest{Environment: environment, Namespace: namespace, ImageTag: imageTag}
}

// Diagnostics is what an operator needs to triage a failed service.
type Diagnostics struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Logs        string `json:"logs,omitempty" yaml:"logs,omitempty"`
}

// DeploymentOutcome records what happened to one core service.
type DeploymentOutcome struct {
	ServiceName     string        `json:"serviceName" yaml:"serviceName"`
	Image           string        `json:"image" yaml:"image"`
	Template        string        `json:"template" yaml:"template"`
	Applied         bool          `json:"applied" yaml:"applied"`
	BecameAvailable bool          `json:"becameAvailable" yaml:"becameAvailable"`
	Error           string        `json:"error,omitempty" yaml:"error,omitempty"`
	Diagnostics     *Diagnostics  `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// ResourceOutcome records a supporting resource or post step.
type ResourceOutcome struct {
	Step     reporting.Step `json:"step" yaml:"step"`
	Name     string         `json:"name" yaml:"name"`
	Template string         `json:"template" yaml:"template"`
	Applied  bool           `json:"applied" yaml:"applied"`
	Skipped  bool           `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration  `json:"duration" yaml:"duration"`
}

// HealthStatus classifies one health check.
type HealthStatus string

const (
	HealthOK                 HealthStatus = "ok"
	HealthFailed             HealthStatus = "failed"
	HealthNoExternalEndpoint HealthStatus = "no-external-endpoint"
)

// HealthCheckResult is the outcome of probing one Service.
type HealthCheckResult struct {
	Service    string       `json:"service" yaml:"service"`
	URL        string       `json:"url,omitempty" yaml:"url,omitempty"`
	Status     HealthStatus `json:"status" yaml:"status"`
	StatusCode int          `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// DeploymentReport summarises one run. Deploy returns it even when the run
// fails, holding everything that happened up to the failure.
type DeploymentReport struct {
	RunID        string                   `json:"runID" yaml:"runID"`
	Request      DeploymentRequest        `json:"request" yaml:"request"`
	StartedAt    time.Time                `json:"startedAt" yaml:"startedAt"`
	FinishedAt   time.Time                `json:"finishedAt" yaml:"finishedAt"`
	Cluster      *kube.ClusterInfo        `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	Outcomes     []DeploymentOutcome      `json:"outcomes" yaml:"outcomes"`
	Resources    []ResourceOutcome        `json:"resources,omitempty" yaml:"resources,omitempty"`
	Warnings     []string                 `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	HealthChecks []HealthCheckResult      `json:"healthChecks,omitempty" yaml:"healthChecks,omitempty"`
	Pods         []kube.PodDescriptor     `json:"pods,omitempty" yaml:"pods,omitempty"`
	Services     []kube.ServiceDescriptor `json:"services,omitempty" yaml:"services,omitempty"`
	FatalError   string                   `json:"fatalError,omitempty" yaml:"fatalError,omitempty"`
}

// Succeeded reports whether the run finished without a fatal error.
func (r *DeploymentReport) Succeeded() bool {
	return r.FatalError == ""
}

// Duration is the wall time of the run.
func (r *DeploymentReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome returns the outcome of a core service.
func (r *DeploymentReport) Outcome(service string) (DeploymentOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.ServiceName == service {
			return o, true
		}
	}
	return DeploymentOutcome{}, false
}

// ErrorKind classifies fatal errors.
type ErrorKind string

const (
	KindConfiguration       ErrorKind = "configuration"
	KindNamespace           ErrorKind = "namespace"
	KindClusterApply        ErrorKind = "cluster-apply"
	KindAvailabilityTimeout ErrorKind = "availability-timeout"
)

// OrchestratorError is the fatal error of a run.
type OrchestratorError struct {
	Kind        ErrorKind
	Step        reporting.Step
	Resource    string // Service or resource name; empty for step-wide failures
	Err         error
	Diagnostics *Diagnostics
}

func (e *OrchestratorError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s error in step %s (%s): %v", e.Kind, e.Step, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s error in step %s: %v", e.Kind, e.Step, e.Err)
}

func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an OrchestratorError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var oe *OrchestratorError
	return errors.As(err, &oe) && oe.Kind == kind
}
