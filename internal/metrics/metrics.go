// Package metrics exports the outcome of a deployment run as Prometheus
// metrics, written in the node_exporter textfile format so a CI runner or
// node_exporter can pick them up after deployctl exits.
package metrics

import (
	"deployctl/internal/orchestrator"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deployctl"

// RunMetrics holds the gauges describing one run.
type RunMetrics struct {
	registry *prometheus.Registry

	runSuccess      *prometheus.GaugeVec
	runDuration     *prometheus.GaugeVec
	runFinished     *prometheus.GaugeVec
	warnings        *prometheus.GaugeVec
	serviceApplied  *prometheus.GaugeVec
	serviceReady    *prometheus.GaugeVec
	serviceDuration *prometheus.GaugeVec
	resourceResult  *prometheus.GaugeVec
	healthCheck     *prometheus.GaugeVec
	podRestarts     *prometheus.GaugeVec
}

// New creates the gauges on a private registry.
func New() *RunMetrics {
	runLabels := []string{"environment", "namespace"}
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		runSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 when the last deployment run succeeded, 0 otherwise.",
		}, runLabels),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last deployment run.",
		}, runLabels),
		runFinished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_finished_timestamp_seconds",
			Help:      "Unix time the last deployment run finished.",
		}, runLabels),
		warnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_warnings",
			Help:      "Number of warnings raised by the last deployment run.",
		}, runLabels),
		serviceApplied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "applied",
			Help:      "1 when the service manifest was applied.",
		}, []string{"namespace", "service"}),
		serviceReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "available",
			Help:      "1 when the service deployment became available.",
		}, []string{"namespace", "service"}),
		serviceDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "deploy_duration_seconds",
			Help:      "Time spent applying and waiting for the service.",
		}, []string{"namespace", "service"}),
		resourceResult: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "result",
			Help:      "Result of a supporting resource or post step (applied, skipped or failed).",
		}, []string{"namespace", "step", "name", "result"}),
		healthCheck: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health_check",
			Name:      "up",
			Help:      "1 when the external health check of a service returned a non-error status.",
		}, []string{"namespace", "service", "status"}),
		podRestarts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pod",
			Name:      "restarts",
			Help:      "Container restarts per pod at the end of the run.",
		}, []string{"namespace", "pod"}),
	}

	m.registry.MustRegister(
		m.runSuccess,
		m.runDuration,
		m.runFinished,
		m.warnings,
		m.serviceApplied,
		m.serviceReady,
		m.serviceDuration,
		m.resourceResult,
		m.healthCheck,
		m.podRestarts,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for Gather in tests.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records a finished run.
func (m *RunMetrics) Observe(report *orchestrator.DeploymentReport) {
	env, ns := report.Request.Environment, report.Request.Namespace

	m.runSuccess.WithLabelValues(env, ns).Set(boolToFloat(report.Succeeded()))
	m.runDuration.WithLabelValues(env, ns).Set(report.Duration().Seconds())
	if !report.FinishedAt.IsZero() {
		m.runFinished.WithLabelValues(env, ns).Set(float64(report.FinishedAt.Unix()))
	}
	m.warnings.WithLabelValues(env, ns).Set(float64(len(report.Warnings)))

	for _, o := range report.Outcomes {
		m.serviceApplied.WithLabelValues(ns, o.ServiceName).Set(boolToFloat(o.Applied))
		m.serviceReady.WithLabelValues(ns, o.ServiceName).Set(boolToFloat(o.BecameAvailable))
		m.serviceDuration.WithLabelValues(ns, o.ServiceName).Set(o.Duration.Seconds())
	}

	for _, r := range report.Resources {
		result := "failed"
		switch {
		case r.Skipped:
			result = "skipped"
		case r.Applied:
			result = "applied"
		}
		m.resourceResult.WithLabelValues(ns, string(r.Step), r.Name, result).Set(1)
	}

	for _, hc := range report.HealthChecks {
		m.healthCheck.WithLabelValues(ns, hc.Service, string(hc.Status)).Set(boolToFloat(hc.Status == orchestrator.HealthOK))
	}

	for _, p := range report.Pods {
		m.podRestarts.WithLabelValues(ns, p.Name).Set(float64(p.Restarts))
	}
}

// WriteToTextfile writes the gathered metrics atomically to path.
func (m *RunMetrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// WriteReport is a convenience for New, Observe and WriteToTextfile.
func WriteReport(path string, report *orchestrator.DeploymentReport) error {
	m := New()
	m.Observe(report)
	return m.WriteToTextfile(path)
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
