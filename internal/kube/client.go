package kube

import (
	"fmt"
	"time"

	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // Important for various auth providers
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	defaultFieldManager = "deployctl"
	defaultPollInterval = 2 * time.Second
)

// Options selects the cluster and tunes the client.
type Options struct {
	Kubeconfig   string // Explicit kubeconfig path; empty uses the default loading rules
	Context      string // Kubeconfig context; empty uses the current context
	FieldManager string
	PollInterval time.Duration
}

// NewK8sClientsetFromConfig is a package-level variable for creating a clientset from rest.Config.
// Exported to allow overriding in tests.
var NewK8sClientsetFromConfig = func(c *rest.Config) (kubernetes.Interface, error) {
	return kubernetes.NewForConfig(c)
}

// K8sNewNonInteractiveDeferredLoadingClientConfig is a package-level variable to allow mocking of clientcmd.NewNonInteractiveDeferredLoadingClientConfig.
var K8sNewNonInteractiveDeferredLoadingClientConfig = func(loader clientcmd.ClientConfigLoader, overrides *clientcmd.ConfigOverrides) clientcmd.ClientConfig {
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loader, overrides)
}

// Client is the client-go implementation of ClusterClient.
type Client struct {
	clientset    kubernetes.Interface
	dynamic      dynamic.Interface
	mapper       meta.RESTMapper
	apiext       apiextensionsclientset.Interface
	fieldManager string
	pollInterval time.Duration
}

var _ ClusterClient = (*Client)(nil)

// RESTConfig resolves the REST config for the given options.
func RESTConfig(opts Options) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if opts.Kubeconfig != "" {
		loadingRules.ExplicitPath = opts.Kubeconfig
	}
	configOverrides := &clientcmd.ConfigOverrides{}
	if opts.Context != "" {
		configOverrides.CurrentContext = opts.Context
	}
	kubeConfig := K8sNewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)

	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get REST config for context %q: %w", opts.Context, err)
	}
	return restConfig, nil
}

// NewClient builds a Client from kubeconfig.
func NewClient(opts Options) (*Client, error) {
	restConfig, err := RESTConfig(opts)
	if err != nil {
		return nil, err
	}

	clientset, err := NewK8sClientsetFromConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	apiext, err := apiextensionsclientset.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create apiextensions client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(clientset.Discovery()))

	return NewClientFromInterfaces(clientset, dynamicClient, mapper, apiext, opts), nil
}

// NewClientFromInterfaces assembles a Client from already constructed
// clients; tests pass fakes here.
func NewClientFromInterfaces(
	clientset kubernetes.Interface,
	dynamicClient dynamic.Interface,
	mapper meta.RESTMapper,
	apiext apiextensionsclientset.Interface,
	opts Options,
) *Client {
	c := &Client{
		clientset:    clientset,
		dynamic:      dynamicClient,
		mapper:       mapper,
		apiext:       apiext,
		fieldManager: opts.FieldManager,
		pollInterval: opts.PollInterval,
	}
	if c.fieldManager == "" {
		c.fieldManager = defaultFieldManager
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	return c
}
