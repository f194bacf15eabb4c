package kube

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ProbeCRDInstalled implements ClusterClient.
func (c *Client) ProbeCRDInstalled(ctx context.Context, name string) (bool, error) {
	_, err := c.apiext.ApiextensionsV1().CustomResourceDefinitions().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up CRD %s: %w", name, err)
	}
	return true, nil
}
