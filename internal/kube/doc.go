// Package kube is the cluster access layer of deployctl.
//
// The orchestrator only sees the ClusterClient interface; Client implements
// it on top of client-go:
//
//   - a typed clientset for namespaces, deployments, pods, services and events
//   - a dynamic client plus a discovery backed RESTMapper for applying
//     arbitrary manifests
//   - an apiextensions clientset for CRD probes
//
// Applying is server-side apply under the client's field manager with
// conflicts forced, so fields owned by other managers are merged rather than
// overwritten wholesale. Waits poll at a
// fixed interval and wrap ErrTimeout when their deadline passes, so callers
// can tell an expired wait from an API failure with errors.Is.
//
// # Usage Example
//
//	client, err := kube.NewClient(kube.Options{Context: "aks-prod"})
//	if err != nil {
//	    return err
//	}
//	if err := client.CreateNamespaceIfAbsent(ctx, "shop"); err != nil {
//	    return err
//	}
//	if err := client.ApplyManifest(ctx, "shop", text); err != nil {
//	    return err
//	}
//	err = client.WaitForDeploymentAvailable(ctx, "order-service", "shop", 5*time.Minute)
//	if errors.Is(err, kube.ErrTimeout) {
//	    // collect diagnostics
//	}
package kube
