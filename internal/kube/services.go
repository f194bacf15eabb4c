package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ListServices implements ClusterClient.
func (c *Client) ListServices(ctx context.Context, namespace string) ([]ServiceDescriptor, error) {
	list, err := c.clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list services in %s: %w", namespace, err)
	}

	out := make([]ServiceDescriptor, 0, len(list.Items))
	for i := range list.Items {
		svc := &list.Items[i]
		desc := ServiceDescriptor{
			Name:            svc.Name,
			Type:            string(svc.Spec.Type),
			ClusterIP:       svc.Spec.ClusterIP,
			ExternalAddress: externalAddress(svc),
		}
		for _, p := range svc.Spec.Ports {
			desc.Ports = append(desc.Ports, p.Port)
		}
		out = append(out, desc)
	}
	return out, nil
}

func externalAddress(svc *corev1.Service) string {
	for _, ing := range svc.Status.LoadBalancer.Ingress {
		if ing.IP != "" {
			return ing.IP
		}
		if ing.Hostname != "" {
			return ing.Hostname
		}
	}
	if len(svc.Spec.ExternalIPs) > 0 {
		return svc.Spec.ExternalIPs[0]
	}
	return ""
}

// ListPods implements ClusterClient.
func (c *Client) ListPods(ctx context.Context, namespace string) ([]PodDescriptor, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}

	out := make([]PodDescriptor, 0, len(list.Items))
	for _, pod := range list.Items {
		ready := 0
		var restarts int32
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.Ready {
				ready++
			}
			restarts += cs.RestartCount
		}
		out = append(out, PodDescriptor{
			Name:     pod.Name,
			Phase:    string(pod.Status.Phase),
			Ready:    fmt.Sprintf("%d/%d", ready, len(pod.Spec.Containers)),
			Restarts: restarts,
			Node:     pod.Spec.NodeName,
		})
	}
	return out, nil
}
