package manifest

import (
	"strings"
)

// ImageReference builds "<registry>/<image>:<tag>".
func ImageReference(registry, image, tag string) string {
	if tag == "" {
		tag = "latest"
	}
	ref := image + ":" + tag
	if registry == "" {
		return ref
	}
	return strings.TrimSuffix(registry, "/") + "/" + ref
}

// RepositoryName returns the last path segment of an image reference with
// tag and digest stripped: "acr.io/team/order-service:v1" -> "order-service".
func RepositoryName(ref string) string {
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	// Any colon left belongs to the tag; registry ports were in the stripped prefix.
	if i := strings.Index(ref, ":"); i >= 0 {
		ref = ref[:i]
	}
	return ref
}
