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

package scaler

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/sabre1041/community.kubernetes/internal/diff"
)

// Strategy selects how a resolved resource kind accepts replica updates.
// It is fixed once at lookup time, never re-derived per call.
type Strategy int

const (
	// StrategyNone marks kinds with no replica-bearing update path.
	StrategyNone Strategy = iota

	// StrategyScaleSubresource updates replicas through the scale subresource.
	StrategyScaleSubresource

	// StrategyJobParallelism patches spec.parallelism on the full object.
	StrategyJobParallelism
)

// Decision is the outcome of evaluating an observed state against a request.
type Decision int

const (
	// DecisionSkip means no patch should be issued.
	DecisionSkip Decision = iota

	// DecisionApply means the replica count must be changed.
	DecisionApply
)

// ResourceRef identifies the target object. Immutable once resolved.
type ResourceRef struct {
	Kind       string
	APIVersion string
	Name       string
	Namespace  string
}

func (r ResourceRef) String() string {
	if r.Namespace == "" {
		return fmt.Sprintf("%s/%s %s", r.APIVersion, r.Kind, r.Name)
	}
	return fmt.Sprintf("%s/%s %s/%s", r.APIVersion, r.Kind, r.Namespace, r.Name)
}

// ScaleRequest carries the desired replica count and its preconditions.
type ScaleRequest struct {
	// Replicas is the desired replica (or parallelism) count, >= 0.
	Replicas int64

	// CurrentReplicas, when set, must match the observed count or the
	// request is skipped.
	CurrentReplicas *int64

	// ResourceVersion, when set, must match the observed object's
	// resourceVersion or the request is skipped.
	ResourceVersion string

	// Wait blocks until the observed count converges on Replicas.
	Wait bool

	// WaitTimeout bounds the convergence wait.
	WaitTimeout time.Duration

	// CheckMode reports what would change without issuing any patch.
	CheckMode bool
}

// ObservedState is a point-in-time snapshot of the live object. It is
// replaced, never mutated, on each re-fetch.
type ObservedState struct {
	Replicas        int64
	ResourceVersion string
	Object          *unstructured.Unstructured
}

// ScaleResult is returned to the caller. A result with Changed=false
// never corresponds to a patch call.
type ScaleResult struct {
	Changed  bool
	Object   *unstructured.Unstructured
	Diff     *diff.Report
	Duration *time.Duration
}

// DiffFunc is the generic structural comparator used to populate reports.
// It never drives correctness decisions.
type DiffFunc func(before, after map[string]any) (match bool, report *diff.Report, err error)

// ResourceLookup resolves a logical kind to an API-addressable handle.
type ResourceLookup interface {
	Lookup(ctx context.Context, kind, apiVersion string) (ResourceHandle, error)
}

// ResourceHandle is an API-addressable resource type with its update
// strategy already resolved.
type ResourceHandle interface {
	// Strategy reports how replica updates reach this resource kind.
	Strategy() Strategy

	// Get fetches the named object.
	Get(ctx context.Context, name, namespace string) (*unstructured.Unstructured, error)

	// Patch merge-patches the full object and returns the updated document.
	Patch(ctx context.Context, obj *unstructured.Unstructured, body map[string]any) (*unstructured.Unstructured, error)

	// PatchScale submits a replica count against the scale subresource.
	PatchScale(ctx context.Context, name, namespace string, replicas int64) error
}
