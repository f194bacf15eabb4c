package kube

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"deployctl/pkg/logging"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

// WaitForDeploymentAvailable polls until the deployment reports the
// Available condition for its current generation.
func (c *Client) WaitForDeploymentAvailable(ctx context.Context, name, namespace string, timeout time.Duration) error {
	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, c.pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		deployment, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			// Not found yet or a transient API error; keep polling.
			lastErr = err
			return false, nil
		}
		lastErr = nil
		return deploymentAvailable(deployment), nil
	})
	if err == nil {
		logging.Debug("Kube", "deployment %s/%s is available", namespace, name)
		return nil
	}
	return waitError(ctx, err, fmt.Sprintf("deployment %s/%s to become available after %s", namespace, name, timeout), lastErr)
}

// WaitForAllDeploymentsAvailable polls until every deployment in the
// namespace is available. An empty namespace is immediately satisfied.
func (c *Client) WaitForAllDeploymentsAvailable(ctx context.Context, namespace string, timeout time.Duration) error {
	var pending []string
	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, c.pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		list, err := c.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			lastErr = err
			return false, nil
		}
		lastErr = nil
		pending = pending[:0]
		for i := range list.Items {
			if !deploymentAvailable(&list.Items[i]) {
				pending = append(pending, list.Items[i].Name)
			}
		}
		return len(pending) == 0, nil
	})
	if err == nil {
		return nil
	}
	sort.Strings(pending)
	what := fmt.Sprintf("all deployments in %s to become available after %s", namespace, timeout)
	if len(pending) > 0 {
		what += " (pending: " + strings.Join(pending, ", ") + ")"
	}
	return waitError(ctx, err, what, lastErr)
}

func deploymentAvailable(d *appsv1.Deployment) bool {
	if d.Status.ObservedGeneration < d.Generation {
		return false
	}
	for _, cond := range d.Status.Conditions {
		if cond.Type == appsv1.DeploymentAvailable {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// waitError maps a poll failure: cancellation of the caller's context is
// passed through, an expired wait wraps ErrTimeout.
func waitError(ctx context.Context, err error, what string, lastErr error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if wait.Interrupted(err) || errors.Is(err, context.DeadlineExceeded) {
		if lastErr != nil {
			return fmt.Errorf("%w: %s: last error: %v", ErrTimeout, what, lastErr)
		}
		return fmt.Errorf("%w: %s", ErrTimeout, what)
	}
	return fmt.Errorf("waiting for %s: %w", what, err)
}
