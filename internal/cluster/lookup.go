/*
Copyright 2025 Red Hat | Ansible.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cluster

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/scale"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/sabre1041/community.kubernetes/internal/scaler"
)

// Lookup resolves logical kinds to API-addressable resource handles. The
// update strategy for each kind is fixed here, once, so later call sites
// never re-derive it.
type Lookup struct {
	Client   client.Client
	Scales   scale.ScalesGetter
	Resolver scale.ScaleKindResolver
}

var _ scaler.ResourceLookup = (*Lookup)(nil)

// Lookup resolves kind and apiVersion through the cluster's RESTMapper and
// returns a handle with its scaling strategy attached. Unknown kinds fail.
func (l *Lookup) Lookup(ctx context.Context, kind, apiVersion string) (scaler.ResourceHandle, error) {
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid apiVersion %q: %w", apiVersion, err)
	}

	mapping, err := l.mapping(gv, kind)
	if err != nil {
		return nil, fmt.Errorf("unknown kind %q in apiVersion %q: %w", kind, apiVersion, err)
	}

	strategy := scaler.StrategyNone
	switch {
	case isJob(mapping.GroupVersionKind):
		strategy = scaler.StrategyJobParallelism
	case l.supportsScale(mapping.Resource):
		strategy = scaler.StrategyScaleSubresource
	}

	return &handle{
		client:   l.Client,
		scales:   l.Scales,
		mapping:  mapping,
		strategy: strategy,
	}, nil
}

// mapping resolves the RESTMapping for a kind. Lowercased kind names are
// accepted by falling back to a resource-name lookup, so "job" and "Job"
// address the same resource.
func (l *Lookup) mapping(gv schema.GroupVersion, kind string) (*meta.RESTMapping, error) {
	mapper := l.Client.RESTMapper()

	mapping, err := mapper.RESTMapping(schema.GroupKind{Group: gv.Group, Kind: kind}, gv.Version)
	if err == nil {
		return mapping, nil
	}

	gvk, kindErr := mapper.KindFor(schema.GroupVersionResource{
		Group:    gv.Group,
		Version:  gv.Version,
		Resource: strings.ToLower(kind),
	})
	if kindErr != nil {
		return nil, err
	}
	return mapper.RESTMapping(schema.GroupKind{Group: gvk.Group, Kind: gvk.Kind}, gvk.Version)
}

func (l *Lookup) supportsScale(gvr schema.GroupVersionResource) bool {
	if l.Resolver == nil {
		return false
	}
	_, err := l.Resolver.ScaleForResource(gvr)
	return err == nil
}

func isJob(gvk schema.GroupVersionKind) bool {
	return gvk.Group == "batch" && gvk.Kind == "Job"
}
