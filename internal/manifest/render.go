package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

// Substitution describes the typed field rewrites applied to a template
// before it is sent to the cluster.
type Substitution struct {
	// Images maps an image repository name to its full replacement reference.
	Images map[string]string
	// Namespace is written to metadata.namespace when RewriteNamespace is set.
	Namespace        string
	RewriteNamespace bool
}

// Rendered is the result of rendering one template.
type Rendered struct {
	Template       Template
	Objects        []*unstructured.Unstructured
	Text           string
	ImagesReplaced int
}

// clusterScopedKinds never receive a namespace.
var clusterScopedKinds = map[string]bool{
	"Namespace":                      true,
	"Node":                           true,
	"PersistentVolume":               true,
	"StorageClass":                   true,
	"ClusterRole":                    true,
	"ClusterRoleBinding":             true,
	"CustomResourceDefinition":       true,
	"PriorityClass":                  true,
	"IngressClass":                   true,
	"ValidatingWebhookConfiguration": true,
	"MutatingWebhookConfiguration":   true,
}

// podSpecPaths lists where each workload kind keeps its pod spec.
var podSpecPaths = map[string][]string{
	"Pod":         {"spec"},
	"Deployment":  {"spec", "template", "spec"},
	"StatefulSet": {"spec", "template", "spec"},
	"DaemonSet":   {"spec", "template", "spec"},
	"ReplicaSet":  {"spec", "template", "spec"},
	"Job":         {"spec", "template", "spec"},
	"CronJob":     {"spec", "jobTemplate", "spec", "template", "spec"},
}

// Decode splits a multi-document YAML (or JSON) manifest into objects.
// Empty documents are skipped.
func Decode(data []byte) ([]*unstructured.Unstructured, error) {
	decoder := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)

	var objects []*unstructured.Unstructured
	for doc := 1; ; doc++ {
		raw := map[string]interface{}{}
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode manifest document %d: %w", doc, err)
		}
		if len(raw) == 0 {
			continue
		}
		obj := &unstructured.Unstructured{Object: raw}
		if obj.GetKind() == "" || obj.GetAPIVersion() == "" {
			return nil, fmt.Errorf("manifest document %d has no kind or apiVersion", doc)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// Encode serializes objects back into a multi-document YAML manifest.
func Encode(objects []*unstructured.Unstructured) (string, error) {
	docs := make([]string, 0, len(objects))
	for _, obj := range objects {
		out, err := yaml.Marshal(obj.Object)
		if err != nil {
			return "", fmt.Errorf("failed to encode %s/%s: %w", obj.GetKind(), obj.GetName(), err)
		}
		docs = append(docs, string(out))
	}
	return strings.Join(docs, "---\n"), nil
}

// Apply rewrites the objects in place and returns how many container images
// were replaced.
func (s Substitution) Apply(objects []*unstructured.Unstructured) (int, error) {
	replaced := 0
	for _, obj := range objects {
		if s.RewriteNamespace && s.Namespace != "" && !clusterScopedKinds[obj.GetKind()] {
			obj.SetNamespace(s.Namespace)
		}
		n, err := s.rewriteImages(obj)
		if err != nil {
			return replaced, err
		}
		replaced += n
	}
	return replaced, nil
}

func (s Substitution) rewriteImages(obj *unstructured.Unstructured) (int, error) {
	specPath, ok := podSpecPaths[obj.GetKind()]
	if !ok || len(s.Images) == 0 {
		return 0, nil
	}

	replaced := 0
	for _, field := range []string{"initContainers", "containers"} {
		fieldPath := append(append([]string{}, specPath...), field)
		containers, found, err := unstructured.NestedSlice(obj.Object, fieldPath...)
		if err != nil {
			return replaced, fmt.Errorf("%s/%s: %w", obj.GetKind(), obj.GetName(), err)
		}
		if !found {
			continue
		}
		changed := false
		for i, c := range containers {
			container, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			image, _ := container["image"].(string)
			if image == "" {
				continue
			}
			if ref, ok := s.Images[RepositoryName(image)]; ok {
				container["image"] = ref
				containers[i] = container
				changed = true
				replaced++
			}
		}
		if changed {
			if err := unstructured.SetNestedSlice(obj.Object, containers, fieldPath...); err != nil {
				return replaced, fmt.Errorf("%s/%s: %w", obj.GetKind(), obj.GetName(), err)
			}
		}
	}
	return replaced, nil
}

// Render reads a template from the store, applies the substitution and
// serializes the result.
func (s *Store) Render(t Template, subst Substitution) (*Rendered, error) {
	data, err := s.Read(t)
	if err != nil {
		return nil, err
	}
	objects, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", s.display(t.Path), err)
	}
	if t.IsStagingVariant {
		subst.RewriteNamespace = false
	}
	replaced, err := subst.Apply(objects)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", s.display(t.Path), err)
	}
	text, err := Encode(objects)
	if err != nil {
		return nil, err
	}
	return &Rendered{
		Template:       t,
		Objects:        objects,
		Text:           text,
		ImagesReplaced: replaced,
	}, nil
}
