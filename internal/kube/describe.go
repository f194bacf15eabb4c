package kube

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
)

const maxDescribeEvents = 15

// DescribeDeployment renders a short human-readable description of a
// deployment: replicas, containers, conditions and its recent events.
func (c *Client) DescribeDeployment(ctx context.Context, name, namespace string) (string, error) {
	d, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Name:       %s\n", d.Name)
	fmt.Fprintf(&b, "Namespace:  %s\n", d.Namespace)
	desired := int32(1)
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}
	fmt.Fprintf(&b, "Replicas:   %d desired | %d updated | %d total | %d available | %d unavailable\n",
		desired, d.Status.UpdatedReplicas, d.Status.Replicas, d.Status.AvailableReplicas, d.Status.UnavailableReplicas)

	b.WriteString("Containers:\n")
	for _, container := range d.Spec.Template.Spec.Containers {
		fmt.Fprintf(&b, "  %s: %s\n", container.Name, container.Image)
	}

	b.WriteString("Conditions:\n")
	if len(d.Status.Conditions) == 0 {
		b.WriteString("  <none>\n")
	}
	for _, cond := range d.Status.Conditions {
		fmt.Fprintf(&b, "  %s=%s %s", cond.Type, cond.Status, cond.Reason)
		if cond.Message != "" {
			fmt.Fprintf(&b, ": %s", cond.Message)
		}
		b.WriteString("\n")
	}

	b.WriteString("Events:\n")
	events, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("involvedObject.name", name).String(),
	})
	if err != nil {
		fmt.Fprintf(&b, "  <unavailable: %v>\n", err)
		return b.String(), nil
	}
	items := relevantEvents(events.Items, name)
	if len(items) == 0 {
		b.WriteString("  <none>\n")
	}
	for _, ev := range items {
		fmt.Fprintf(&b, "  %s\t%s\t%s\n", ev.Type, ev.Reason, ev.Message)
	}
	return b.String(), nil
}

// relevantEvents keeps the newest events about the named object, oldest first.
func relevantEvents(all []corev1.Event, name string) []corev1.Event {
	var out []corev1.Event
	for _, ev := range all {
		if ev.InvolvedObject.Name == name {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return eventTime(out[i]).Before(eventTime(out[j]))
	})
	if len(out) > maxDescribeEvents {
		out = out[len(out)-maxDescribeEvents:]
	}
	return out
}

// eventTime is when the event last occurred. Events recorded through the
// events.k8s.io API only carry EventTime.
func eventTime(ev corev1.Event) time.Time {
	switch {
	case !ev.LastTimestamp.IsZero():
		return ev.LastTimestamp.Time
	case !ev.EventTime.IsZero():
		return ev.EventTime.Time
	default:
		return ev.FirstTimestamp.Time
	}
}
