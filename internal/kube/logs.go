package kube

import (
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

// GetPodLogs returns the last tailLines lines of every container of every
// pod matching labelSelector, each block headed by pod and container name.
func (c *Client) GetPodLogs(ctx context.Context, labelSelector, namespace string, tailLines int64) (string, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return "", fmt.Errorf("failed to list pods for %q in %s: %w", labelSelector, namespace, err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pods match %q in %s", labelSelector, namespace)
	}

	var b strings.Builder
	for _, pod := range pods.Items {
		for _, container := range pod.Spec.Containers {
			fmt.Fprintf(&b, "==> %s/%s <==\n", pod.Name, container.Name)
			logs, err := c.containerLogs(ctx, namespace, pod.Name, container.Name, tailLines)
			if err != nil {
				fmt.Fprintf(&b, "<unavailable: %v>\n", err)
				continue
			}
			b.WriteString(logs)
			if !strings.HasSuffix(logs, "\n") {
				b.WriteString("\n")
			}
		}
	}
	return b.String(), nil
}

func (c *Client) containerLogs(ctx context.Context, namespace, pod, container string, tailLines int64) (string, error) {
	opts := &corev1.PodLogOptions{Container: container}
	if tailLines > 0 {
		opts.TailLines = ptr.To(tailLines)
	}
	stream, err := c.clientset.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
