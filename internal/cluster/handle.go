package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/scale"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/sabre1041/community.kubernetes/internal/scaler"
)

// handle is an API-addressable resource type with its update strategy
// resolved at lookup time.
type handle struct {
	client   client.Client
	scales   scale.ScalesGetter
	mapping  *meta.RESTMapping
	strategy scaler.Strategy
}

var _ scaler.ResourceHandle = (*handle)(nil)

func (h *handle) Strategy() scaler.Strategy { return h.strategy }

func (h *handle) Get(ctx context.Context, name, namespace string) (*unstructured.Unstructured, error) {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(h.mapping.GroupVersionKind)

	key := client.ObjectKey{Name: name}
	if namespace != "" {
		key.Namespace = namespace
	}

	if err := h.client.Get(ctx, key, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (h *handle) Patch(ctx context.Context, obj *unstructured.Unstructured, body map[string]any) (*unstructured.Unstructured, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("unable to serialize patch body: %w", err)
	}

	updated := obj.DeepCopy()
	if err := h.client.Patch(ctx, updated, client.RawPatch(types.MergePatchType, data)); err != nil {
		return nil, err
	}
	return updated, nil
}

// PatchScale submits a minimal scale document against the scale
// subresource, mirroring the shape the endpoint expects: kind, metadata
// and the desired spec.replicas.
func (h *handle) PatchScale(ctx context.Context, name, namespace string, replicas int64) error {
	body := map[string]any{
		"kind": h.mapping.GroupVersionKind.Kind,
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
		},
		"spec": map[string]any{"replicas": replicas},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("unable to serialize scale body: %w", err)
	}

	_, err = h.scales.Scales(namespace).Patch(ctx, h.mapping.Resource, name, types.MergePatchType, data, metav1.PatchOptions{})
	return err
}
