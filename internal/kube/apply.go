package kube

import (
	"context"
	"fmt"

	"deployctl/internal/manifest"
	"deployctl/pkg/logging"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
)

// ApplyManifest implements ClusterClient. Objects are applied in document
// order; the first failure stops the apply and is returned.
func (c *Client) ApplyManifest(ctx context.Context, namespace, text string) error {
	objects, err := manifest.Decode([]byte(text))
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := c.applyObject(ctx, namespace, obj); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) resourceFor(obj *unstructured.Unstructured, namespace string) (dynamic.ResourceInterface, error) {
	gvk := obj.GroupVersionKind()
	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return nil, fmt.Errorf("unknown resource kind %s: %w", gvk.String(), err)
	}

	if mapping.Scope.Name() != meta.RESTScopeNameNamespace {
		obj.SetNamespace("")
		return c.dynamic.Resource(mapping.Resource), nil
	}
	if obj.GetNamespace() == "" {
		obj.SetNamespace(namespace)
	}
	return c.dynamic.Resource(mapping.Resource).Namespace(obj.GetNamespace()), nil
}

// applyObject server-side applies the object under the client's field
// manager, taking ownership of conflicting fields.
func (c *Client) applyObject(ctx context.Context, namespace string, obj *unstructured.Unstructured) error {
	ref := describeRef(obj)
	if obj.GetName() == "" {
		return fmt.Errorf("cannot apply %s: metadata.name is empty", ref)
	}

	resource, err := c.resourceFor(obj, namespace)
	if err != nil {
		return err
	}
	ref = describeRef(obj)

	applied, err := resource.Apply(ctx, obj.GetName(), obj, metav1.ApplyOptions{FieldManager: c.fieldManager, Force: true})
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", ref, err)
	}
	logging.Info("Kube", "%s applied (resourceVersion %s)", ref, applied.GetResourceVersion())
	return nil
}

func describeRef(obj *unstructured.Unstructured) string {
	if ns := obj.GetNamespace(); ns != "" {
		return fmt.Sprintf("%s %s/%s", obj.GetKind(), ns, obj.GetName())
	}
	return fmt.Sprintf("%s %s", obj.GetKind(), obj.GetName())
}
