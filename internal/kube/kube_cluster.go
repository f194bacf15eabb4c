package kube

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ClusterInfo implements ClusterClient.
func (c *Client) ClusterInfo(ctx context.Context) (ClusterInfo, error) {
	version, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return ClusterInfo{}, fmt.Errorf("failed to reach API server: %w", err)
	}
	info := ClusterInfo{ServerVersion: version.GitVersion}

	nodeList, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		// Listing nodes needs cluster-wide RBAC the deployer may lack.
		return info, fmt.Errorf("failed to list nodes: %w", err)
	}
	info.ReadyNodes, info.TotalNodes = nodeReadiness(nodeList.Items)
	if len(nodeList.Items) > 0 {
		info.Provider = determineProviderFromNode(&nodeList.Items[0])
	}
	return info, nil
}

func nodeReadiness(nodes []corev1.Node) (ready, total int) {
	total = len(nodes)
	for _, node := range nodes {
		for _, condition := range node.Status.Conditions {
			if condition.Type == corev1.NodeReady && condition.Status == corev1.ConditionTrue {
				ready++
				break
			}
		}
	}
	return ready, total
}

// determineProviderFromNode inspects a single node's ProviderID and labels to
// determine the cloud provider.
func determineProviderFromNode(node *corev1.Node) string {
	if node == nil {
		return "unknown"
	}

	providerID := node.Spec.ProviderID
	if providerID != "" {
		switch {
		case strings.HasPrefix(providerID, "azure://"):
			return "azure"
		case strings.HasPrefix(providerID, "aws://"):
			return "aws"
		case strings.HasPrefix(providerID, "gce://"):
			return "gcp"
		case strings.HasPrefix(providerID, "kind://"):
			return "kind"
		case strings.Contains(providerID, "vsphere"):
			return "vsphere"
		case strings.Contains(providerID, "openstack"):
			return "openstack"
		}
		// Unmatched providerID; try labels next.
	}

	for k := range node.GetLabels() {
		switch {
		case strings.Contains(k, "kubernetes.azure.com"), strings.Contains(k, "cloud-provider-azure"):
			return "azure"
		case strings.Contains(k, "eks.amazonaws.com"), strings.Contains(k, "amazonaws.com/compute"):
			return "aws"
		case strings.Contains(k, "cloud.google.com/gke"), strings.Contains(k, "instancegroup.gke.io"):
			return "gcp"
		}
	}
	return "unknown"
}
