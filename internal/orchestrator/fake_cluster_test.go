package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"deployctl/internal/config"
	"deployctl/internal/kube"
	"deployctl/internal/manifest"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

type appliedObject struct {
	Namespace string // namespace passed to ApplyManifest
	Object    *unstructured.Unstructured
}

// fakeCluster is an in-memory kube.ClusterClient.
type fakeCluster struct {
	mu    sync.Mutex
	calls []string

	applied []appliedObject

	clusterInfoErr error
	namespaceErr   error
	applyErr       map[string]error // keyed by object name
	waitErr        map[string]error // keyed by deployment name
	waitAllErr     error
	crds           map[string]bool
	probeErr       error
	services       []kube.ServiceDescriptor
	pods           []kube.PodDescriptor

	describedSelectors []string
	logTailLines       []int64
}

var _ kube.ClusterClient = (*fakeCluster)(nil)

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		applyErr: map[string]error{},
		waitErr:  map[string]error{},
		crds:     map[string]bool{},
	}
}

func (f *fakeCluster) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCluster) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCluster) ClusterInfo(ctx context.Context) (kube.ClusterInfo, error) {
	f.record("ClusterInfo")
	if f.clusterInfoErr != nil {
		return kube.ClusterInfo{}, f.clusterInfoErr
	}
	return kube.ClusterInfo{ServerVersion: "v1.30.2", Provider: "azure", ReadyNodes: 3, TotalNodes: 3}, nil
}

func (f *fakeCluster) CreateNamespaceIfAbsent(ctx context.Context, namespace string) error {
	f.record("CreateNamespace " + namespace)
	return f.namespaceErr
}

func (f *fakeCluster) ApplyManifest(ctx context.Context, namespace, text string) error {
	objects, err := manifest.Decode([]byte(text))
	if err != nil {
		return err
	}
	for _, obj := range objects {
		f.record("Apply " + obj.GetKind() + "/" + obj.GetName())
		f.mu.Lock()
		applyErr := f.applyErr[obj.GetName()]
		f.mu.Unlock()
		if applyErr != nil {
			return applyErr
		}
		f.mu.Lock()
		f.applied = append(f.applied, appliedObject{Namespace: namespace, Object: obj})
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeCluster) WaitForDeploymentAvailable(ctx context.Context, name, namespace string, timeout time.Duration) error {
	f.record("Wait " + name)
	return f.waitErr[name]
}

func (f *fakeCluster) WaitForAllDeploymentsAvailable(ctx context.Context, namespace string, timeout time.Duration) error {
	f.record("WaitAll " + namespace)
	return f.waitAllErr
}

func (f *fakeCluster) DescribeDeployment(ctx context.Context, name, namespace string) (string, error) {
	f.record("Describe " + name)
	return fmt.Sprintf("Name: %s\nNamespace: %s\nReplicas: 0 available\n", name, namespace), nil
}

func (f *fakeCluster) GetPodLogs(ctx context.Context, labelSelector, namespace string, tailLines int64) (string, error) {
	f.record("Logs " + labelSelector)
	f.mu.Lock()
	f.describedSelectors = append(f.describedSelectors, labelSelector)
	f.logTailLines = append(f.logTailLines, tailLines)
	f.mu.Unlock()
	return "panic: cannot connect to order-db:5432\n", nil
}

func (f *fakeCluster) ListServices(ctx context.Context, namespace string) ([]kube.ServiceDescriptor, error) {
	f.record("ListServices")
	return f.services, nil
}

func (f *fakeCluster) ListPods(ctx context.Context, namespace string) ([]kube.PodDescriptor, error) {
	f.record("ListPods")
	return f.pods, nil
}

func (f *fakeCluster) ProbeCRDInstalled(ctx context.Context, name string) (bool, error) {
	f.record("ProbeCRD " + name)
	if f.probeErr != nil {
		return false, f.probeErr
	}
	return f.crds[name], nil
}

// AppliedNames returns kind/name of every applied object, in apply order.
func (f *fakeCluster) AppliedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.applied {
		out = append(out, a.Object.GetKind()+"/"+a.Object.GetName())
	}
	return out
}

// AppliedObject returns the applied object with the given kind and name.
func (f *fakeCluster) AppliedObject(kind, name string) (*unstructured.Unstructured, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.applied {
		if a.Object.GetKind() == kind && a.Object.GetName() == name {
			return a.Object, true
		}
	}
	return nil, false
}

func (f *fakeCluster) HasCall(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func serviceManifest(name, image, namespace string) string {
	return fmt.Sprintf(`apiVersion: apps/v1
kind: Deployment
metadata:
  name: %[1]s
  namespace: %[3]s
  labels:
    app: %[1]s
spec:
  replicas: 2
  selector:
    matchLabels:
      app: %[1]s
  template:
    metadata:
      labels:
        app: %[1]s
    spec:
      containers:
        - name: %[1]s
          image: %[2]s
---
apiVersion: v1
kind: Service
metadata:
  name: %[1]s
  namespace: %[3]s
spec:
  selector:
    app: %[1]s
  ports:
    - port: 80
`, name, image, namespace)
}

func databaseManifest(name, namespace string) string {
	return fmt.Sprintf(`apiVersion: apps/v1
kind: StatefulSet
metadata:
  name: %[1]s
  namespace: %[2]s
spec:
  serviceName: %[1]s
  template:
    spec:
      containers:
        - name: postgres
          image: postgres:16
`, name, namespace)
}

func simpleManifest(apiVersion, kind, name, namespace string) string {
	return fmt.Sprintf("apiVersion: %s\nkind: %s\nmetadata:\n  name: %s\n  namespace: %s\n", apiVersion, kind, name, namespace)
}

// testTemplates builds the default and staging manifest sets.
func testTemplates() fstest.MapFS {
	fsys := fstest.MapFS{}
	add := func(dir, namespace, imagePrefix string) {
		prefix := ""
		if dir != "" {
			prefix = dir + "/"
		}
		for _, svc := range []string{"customer-service", "order-service", "product-service", "frontend"} {
			fsys[prefix+svc+".yaml"] = &fstest.MapFile{Data: []byte(serviceManifest(svc, imagePrefix+svc+":latest", namespace))}
		}
		for _, db := range []string{"customer-db", "order-db", "product-db"} {
			fsys[prefix+db+".yaml"] = &fstest.MapFile{Data: []byte(databaseManifest(db, namespace))}
		}
		fsys[prefix+"rabbitmq.yaml"] = &fstest.MapFile{Data: []byte(serviceManifest("rabbitmq", "rabbitmq:3-management", namespace))}
		fsys[prefix+"configmaps.yaml"] = &fstest.MapFile{Data: []byte(simpleManifest("v1", "ConfigMap", "app-config", namespace))}
		fsys[prefix+"secrets.yaml"] = &fstest.MapFile{Data: []byte(simpleManifest("v1", "Secret", "app-secrets", namespace))}
		fsys[prefix+"monitoring.yaml"] = &fstest.MapFile{Data: []byte(simpleManifest("monitoring.coreos.com/v1", "ServiceMonitor", "shop-monitor", namespace))}
	}
	add("", "default", "myregistry.azurecr.io/")
	add("staging", "staging", "")
	fsys["hpa.yaml"] = &fstest.MapFile{Data: []byte(simpleManifest("autoscaling/v2", "HorizontalPodAutoscaler", "frontend-hpa", "default"))}
	return fsys
}

type testEnv struct {
	cluster *fakeCluster
	orch    *Orchestrator
	fsys    fstest.MapFS
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	cfg := config.GetDefaultConfig()
	require.NoError(t, cfg.Validate())

	fsys := testTemplates()
	cluster := newFakeCluster()
	return &testEnv{
		cluster: cluster,
		fsys:    fsys,
		orch:    New(cfg, manifest.NewStoreFS(fsys), cluster, nil, opts...),
	}
}

func containerImage(t *testing.T, obj *unstructured.Unstructured) string {
	t.Helper()
	containers, found, err := unstructured.NestedSlice(obj.Object, "spec", "template", "spec", "containers")
	require.NoError(t, err)
	require.True(t, found)
	require.NotEmpty(t, containers)
	image, _, _ := unstructured.NestedString(containers[0].(map[string]interface{}), "image")
	return image
}
