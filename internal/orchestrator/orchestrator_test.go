package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"deployctl/internal/config"
	"deployctl/internal/kube"
	"deployctl/internal/manifest"
	"deployctl/internal/reporting"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var coreServices = []string{"customer-service", "order-service", "product-service", "frontend"}

func TestNewDeploymentRequest(t *testing.T) {
	tests := []struct {
		name          string
		env           string
		namespace     string
		tag           string
		wantNamespace string
		wantTag       string
	}{
		{name: "all defaults", env: "staging", wantNamespace: "staging", wantTag: "latest"},
		{name: "explicit namespace", env: "production", namespace: "shop", wantNamespace: "shop", wantTag: "latest"},
		{name: "explicit tag", env: "production", namespace: "shop", tag: "v1.2.3", wantNamespace: "shop", wantTag: "v1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewDeploymentRequest(tt.env, tt.namespace, tt.tag)
			assert.Equal(t, tt.env, req.Environment)
			assert.Equal(t, tt.wantNamespace, req.Namespace)
			assert.Equal(t, tt.wantTag, req.ImageTag)
		})
	}
}

func TestDeploy_ProductionImagesAndNamespace(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "shop", "v1.2.3"))
	require.NoError(t, err)
	require.True(t, report.Succeeded())

	want := map[string]string{
		"customer-service": "backendregistry.azurecr.io/customer-service:v1.2.3",
		"order-service":    "backendregistry.azurecr.io/order-service:v1.2.3",
		"product-service":  "backendregistry.azurecr.io/product-service:v1.2.3",
		"frontend":         "frontendregistry.azurecr.io/frontend:v1.2.3",
	}
	for svc, image := range want {
		obj, ok := env.cluster.AppliedObject("Deployment", svc)
		require.True(t, ok, "deployment %s was not applied", svc)
		assert.Equal(t, image, containerImage(t, obj), svc)
		assert.Equal(t, "shop", obj.GetNamespace(), svc)

		outcome, ok := report.Outcome(svc)
		require.True(t, ok)
		assert.Equal(t, image, outcome.Image)
		assert.Equal(t, svc+".yaml", outcome.Template)
	}

	// Supporting resources get the namespace too, but keep their own images.
	db, ok := env.cluster.AppliedObject("StatefulSet", "order-db")
	require.True(t, ok)
	assert.Equal(t, "shop", db.GetNamespace())
	broker, ok := env.cluster.AppliedObject("Deployment", "rabbitmq")
	require.True(t, ok)
	assert.Equal(t, "rabbitmq:3-management", containerImage(t, broker))
}

func TestDeploy_StagingKeepsInlineNamespace(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("staging", "review-42", "v1.2.3"))
	require.NoError(t, err)

	for _, svc := range coreServices {
		outcome, ok := report.Outcome(svc)
		require.True(t, ok)
		assert.Equal(t, "staging/"+svc+".yaml", outcome.Template)

		obj, ok := env.cluster.AppliedObject("Deployment", svc)
		require.True(t, ok)
		assert.Equal(t, "staging", obj.GetNamespace(), "staging manifests keep their inline namespace")
	}
	obj, ok := env.cluster.AppliedObject("Deployment", "frontend")
	require.True(t, ok)
	assert.Equal(t, "frontendregistry.azurecr.io/frontend:v1.2.3", containerImage(t, obj))

	for _, r := range report.Resources {
		if r.Template != "" {
			assert.Contains(t, r.Template, "staging/", r.Name)
		}
	}
}

func TestDeploy_StagingEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	rec := reporting.NewRecorder()
	env.orch.reporter = rec

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("staging", "staging", "v1.2.3"))
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.FatalError)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
	require.Len(t, report.Outcomes, 4)
	for i, outcome := range report.Outcomes {
		assert.Equal(t, coreServices[i], outcome.ServiceName)
		assert.True(t, outcome.Applied, outcome.ServiceName)
		assert.True(t, outcome.BecameAvailable, outcome.ServiceName)
		assert.Empty(t, outcome.Error)
		assert.Nil(t, outcome.Diagnostics)
	}
	require.NotNil(t, report.Cluster)
	assert.Equal(t, "v1.30.2", report.Cluster.ServerVersion)
	assert.Equal(t, coreServices, rec.Subjects(reporting.StepServices, reporting.StateSucceeded))
	assert.True(t, env.cluster.HasCall("WaitAll staging"))
	assert.True(t, env.cluster.HasCall("ListPods"))
}

func TestDeploy_OrderServiceTimeoutAbortsRun(t *testing.T) {
	env := newTestEnv(t)
	env.cluster.waitErr["order-service"] = fmt.Errorf("%w: deployment staging/order-service to become available after 5m0s", kube.ErrTimeout)

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("staging", "staging", "v1.2.3"))
	require.Error(t, err)
	require.NotNil(t, report)

	var oe *OrchestratorError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, KindAvailabilityTimeout, oe.Kind)
	assert.Equal(t, reporting.StepServices, oe.Step)
	assert.Equal(t, "order-service", oe.Resource)
	assert.ErrorIs(t, err, kube.ErrTimeout)
	require.NotNil(t, oe.Diagnostics)
	assert.Contains(t, oe.Diagnostics.Description, "Name: order-service")
	assert.Contains(t, oe.Diagnostics.Logs, "cannot connect to order-db")

	require.Len(t, report.Outcomes, 2)
	assert.True(t, report.Outcomes[0].Applied)
	assert.True(t, report.Outcomes[0].BecameAvailable)
	order := report.Outcomes[1]
	assert.Equal(t, "order-service", order.ServiceName)
	assert.True(t, order.Applied)
	assert.False(t, order.BecameAvailable)
	require.NotNil(t, order.Diagnostics)
	assert.NotEmpty(t, order.Error)

	assert.Equal(t, []string{"app=order-service"}, env.cluster.describedSelectors)
	assert.Equal(t, []int64{50}, env.cluster.logTailLines)

	// Nothing after the failed service was attempted.
	applied := env.cluster.AppliedNames()
	for _, name := range []string{"Deployment/product-service", "Deployment/frontend", "StatefulSet/customer-db",
		"StatefulSet/order-db", "StatefulSet/product-db", "Deployment/rabbitmq", "ConfigMap/app-config", "Secret/app-secrets"} {
		assert.NotContains(t, applied, name)
	}
	assert.Empty(t, report.Resources)
	assert.False(t, env.cluster.HasCall("WaitAll"))
	assert.False(t, env.cluster.HasCall("ProbeCRD"))
	assert.Equal(t, err.Error(), report.FatalError)
	assert.False(t, report.Succeeded())
}

func TestDeploy_ServiceApplyFailure(t *testing.T) {
	env := newTestEnv(t)
	env.cluster.applyErr["customer-service"] = errors.New("deployments.apps is forbidden")

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "shop", "v1"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindClusterApply))
	assert.Contains(t, err.Error(), "forbidden")

	require.Len(t, report.Outcomes, 1)
	assert.False(t, report.Outcomes[0].Applied)
	assert.NotNil(t, report.Outcomes[0].Diagnostics)
	assert.False(t, env.cluster.HasCall("Wait customer-service"))
}

func TestDeploy_SupportingResourcesOrder(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "shop", "v1"))
	require.NoError(t, err)

	applied := env.cluster.AppliedNames()
	index := func(name string) int {
		for i, a := range applied {
			if a == name {
				return i
			}
		}
		t.Fatalf("%s was not applied", name)
		return -1
	}
	frontend := index("Deployment/frontend")
	broker := index("Deployment/rabbitmq")
	for _, db := range []string{"StatefulSet/customer-db", "StatefulSet/order-db", "StatefulSet/product-db"} {
		assert.Greater(t, index(db), frontend, db)
		assert.Less(t, index(db), broker, db)
	}
	assert.Less(t, broker, index("ConfigMap/app-config"))
	assert.Less(t, index("ConfigMap/app-config"), index("Secret/app-secrets"))
	assert.Less(t, index("Secret/app-secrets"), index("HorizontalPodAutoscaler/frontend-hpa"))
	assert.Less(t, index("HorizontalPodAutoscaler/frontend-hpa"), index("ServiceMonitor/shop-monitor"))
}

func TestDeploy_DatabaseFailureStopsBeforeBroker(t *testing.T) {
	env := newTestEnv(t)
	env.cluster.applyErr["order-db"] = errors.New("persistentvolumeclaims is forbidden")

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "shop", "v1"))
	require.Error(t, err)

	var oe *OrchestratorError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, KindClusterApply, oe.Kind)
	assert.Equal(t, reporting.StepSupporting, oe.Step)
	assert.Equal(t, "order-db", oe.Resource)

	applied := env.cluster.AppliedNames()
	assert.NotContains(t, applied, "Deployment/rabbitmq")
	assert.NotContains(t, applied, "ConfigMap/app-config")
	assert.False(t, env.cluster.HasCall("WaitAll"))

	require.Len(t, report.Resources, 3)
	for _, r := range report.Resources {
		if r.Name == "order-db" {
			assert.False(t, r.Applied)
			assert.Contains(t, r.Error, "forbidden")
		}
	}
}

func TestDeploy_StagingMonitoringSkippedWithoutCRD(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("staging", "staging", "v1"))
	require.NoError(t, err)

	assert.True(t, env.cluster.HasCall("ProbeCRD servicemonitors.monitoring.coreos.com"))
	assert.NotContains(t, env.cluster.AppliedNames(), "ServiceMonitor/shop-monitor")
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[len(report.Warnings)-1], "servicemonitors.monitoring.coreos.com")

	var monitoring *ResourceOutcome
	for i := range report.Resources {
		if report.Resources[i].Name == "monitoring" {
			monitoring = &report.Resources[i]
		}
	}
	require.NotNil(t, monitoring)
	assert.True(t, monitoring.Skipped)
	assert.False(t, monitoring.Applied)
	assert.Empty(t, monitoring.Error)
}

func TestDeploy_StagingMonitoringProbeErrorIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.cluster.probeErr = errors.New("customresourcedefinitions is forbidden")

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("staging", "staging", "v1"))
	require.NoError(t, err)
	assert.NotContains(t, env.cluster.AppliedNames(), "ServiceMonitor/shop-monitor")
	assert.NotEmpty(t, report.Warnings)
}

func TestDeploy_StagingMonitoringAppliedWithCRD(t *testing.T) {
	env := newTestEnv(t)
	env.cluster.crds[config.MonitoringCRD] = true

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("staging", "staging", "v1"))
	require.NoError(t, err)
	assert.Contains(t, env.cluster.AppliedNames(), "ServiceMonitor/shop-monitor")
	assert.Empty(t, report.Warnings)
}

func TestDeploy_ProductionPostStepsDoNotProbe(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "production", "v1"))
	require.NoError(t, err)

	assert.False(t, env.cluster.HasCall("ProbeCRD"))
	applied := env.cluster.AppliedNames()
	assert.Contains(t, applied, "HorizontalPodAutoscaler/frontend-hpa")
	assert.Contains(t, applied, "ServiceMonitor/shop-monitor")
}

func TestDeploy_ConfigurationErrorsTouchNothing(t *testing.T) {
	tests := []struct {
		name    string
		req     DeploymentRequest
		prepare func(env *testEnv)
		wantErr string
	}{
		{
			name:    "unknown environment",
			req:     NewDeploymentRequest("qa", "", ""),
			wantErr: `unknown environment "qa"`,
		},
		{
			name: "missing service template",
			req:  NewDeploymentRequest("production", "shop", "v1"),
			prepare: func(env *testEnv) {
				delete(env.fsys, "order-service.yaml")
			},
			wantErr: "order-service.yaml",
		},
		{
			name: "missing staging secrets",
			req:  NewDeploymentRequest("staging", "staging", "v1"),
			prepare: func(env *testEnv) {
				delete(env.fsys, "staging/secrets.yaml")
			},
			wantErr: "staging/secrets.yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.prepare != nil {
				tt.prepare(env)
			}

			report, err := env.orch.Deploy(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindConfiguration))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, env.cluster.Calls(), "no cluster call before validation passes")
			require.NotNil(t, report)
			assert.Empty(t, report.Outcomes)
			assert.NotEmpty(t, report.FatalError)
		})
	}
}

func TestDeploy_MissingGatedTemplateOnlyMattersWhenCRDPresent(t *testing.T) {
	env := newTestEnv(t)
	delete(env.fsys, "staging/monitoring.yaml")

	_, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("staging", "staging", "v1"))
	require.NoError(t, err)

	env = newTestEnv(t)
	delete(env.fsys, "staging/monitoring.yaml")
	env.cluster.crds[config.MonitoringCRD] = true
	_, err = env.orch.Deploy(context.Background(), NewDeploymentRequest("staging", "staging", "v1"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfiguration))
	assert.ErrorIs(t, err, manifest.ErrMissingTemplates)
}

func TestDeploy_NamespaceFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.cluster.namespaceErr = errors.New("namespaces is forbidden")

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "shop", "v1"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNamespace))
	assert.Empty(t, env.cluster.AppliedNames())
	assert.Empty(t, report.Outcomes)
	assert.False(t, env.cluster.HasCall("ListPods"))
}

func TestDeploy_ClusterInfoFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.cluster.clusterInfoErr = errors.New("nodes is forbidden")

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "shop", "v1"))
	require.NoError(t, err)
	assert.Nil(t, report.Cluster)
}

func TestDeploy_WaitAllTimeoutIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.cluster.waitAllErr = fmt.Errorf("%w: all deployments in shop (pending: rabbitmq)", kube.ErrTimeout)

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "shop", "v1"))
	require.Error(t, err)

	var oe *OrchestratorError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, KindAvailabilityTimeout, oe.Kind)
	assert.Equal(t, reporting.StepWaitAll, oe.Step)
	assert.Len(t, report.Outcomes, 4)
	assert.Empty(t, report.HealthChecks)
	assert.True(t, env.cluster.HasCall("ListPods"), "state is collected after a cluster failure")
}

func TestDeploy_HealthChecks(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	env := newTestEnv(t)
	env.cluster.services = []kube.ServiceDescriptor{
		serviceFor(t, "frontend", healthy),
		serviceFor(t, "order-service", broken),
		{Name: "order-db", Type: "ClusterIP", ClusterIP: "10.0.0.12", Ports: []int32{5432}},
	}

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "shop", "v1"))
	require.NoError(t, err, "health check failures are not fatal")
	require.Len(t, report.HealthChecks, 3)

	byService := map[string]HealthCheckResult{}
	for _, hc := range report.HealthChecks {
		byService[hc.Service] = hc
	}
	assert.Equal(t, HealthOK, byService["frontend"].Status)
	assert.Equal(t, http.StatusOK, byService["frontend"].StatusCode)
	assert.Equal(t, HealthFailed, byService["order-service"].Status)
	assert.Equal(t, http.StatusServiceUnavailable, byService["order-service"].StatusCode)
	assert.Equal(t, HealthNoExternalEndpoint, byService["order-db"].Status)
	assert.Empty(t, byService["order-db"].URL)
	assert.Len(t, report.Services, 3)
}

type stubHealthChecker struct{ checked []string }

func (s *stubHealthChecker) CheckHealth(ctx context.Context, svc kube.ServiceDescriptor) HealthCheckResult {
	s.checked = append(s.checked, svc.Name)
	return HealthCheckResult{Service: svc.Name, Status: HealthOK}
}

func TestDeploy_WithOptions(t *testing.T) {
	stub := &stubHealthChecker{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env := newTestEnv(t, WithHealthChecker(stub), WithClock(func() time.Time { return fixed }))
	env.cluster.services = []kube.ServiceDescriptor{{Name: "frontend"}, {Name: "customer-service"}}

	report, err := env.orch.Deploy(context.Background(), NewDeploymentRequest("production", "shop", "v1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"frontend", "customer-service"}, stub.checked)
	assert.Equal(t, fixed, report.StartedAt)
	assert.Equal(t, time.Duration(0), report.Duration())
}

func serviceFor(t *testing.T, name string, server *httptest.Server) kube.ServiceDescriptor {
	t.Helper()
	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return kube.ServiceDescriptor{Name: name, Type: "LoadBalancer", ExternalAddress: host, Ports: []int32{int32(port)}}
}
