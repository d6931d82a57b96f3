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
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/utils/clock"

	"github.com/sabre1041/community.kubernetes/internal/diff"
)

const (
	// DefaultPollInterval is the fixed sleep between convergence checks.
	DefaultPollInterval = 5 * time.Second

	// DefaultWaitTimeout bounds the convergence wait unless overridden.
	DefaultWaitTimeout = 20 * time.Second
)

// ScaleController scales a workload resource to a target replica count,
// optionally waiting for the change to converge. Each invocation is a
// fresh, independent run against the cluster; the API is the sole source
// of truth and no state is kept between runs.
type ScaleController struct {
	Lookup ResourceLookup
	Log    logr.Logger

	// Differ populates the before/after report. Defaults to diff.Objects.
	Differ DiffFunc

	// Clock drives the wait loop. Defaults to the real clock.
	Clock clock.Clock

	// PollInterval is the sleep between convergence checks.
	PollInterval time.Duration
}

// NewScaleController returns a controller with the default collaborators wired.
func NewScaleController(lookup ResourceLookup, log logr.Logger) *ScaleController {
	return &ScaleController{
		Lookup:       lookup,
		Log:          log,
		Differ:       diff.Objects,
		Clock:        clock.RealClock{},
		PollInterval: DefaultPollInterval,
	}
}

// Run resolves the target, evaluates the preconditions, and applies the
// scale change when one is needed. Skips return changed=false carrying the
// fetched object; every fatal condition aborts immediately.
func (c *ScaleController) Run(ctx context.Context, ref ResourceRef, req ScaleRequest) (ScaleResult, error) {
	handle, observed, err := c.Resolve(ctx, ref)
	if err != nil {
		return ScaleResult{}, err
	}

	result := ScaleResult{Changed: false, Object: observed.Object}
	if c.Evaluate(observed, req) == DecisionSkip {
		c.Log.V(1).Info("no scale change required", "resource", ref.String(), "replicas", observed.Replicas)
		return result, nil
	}

	if req.CheckMode {
		result.Changed = true
		return result, nil
	}

	return c.Apply(ctx, handle, ref, observed, req)
}

// Resolve looks up the resource kind and fetches the current object state.
func (c *ScaleController) Resolve(ctx context.Context, ref ResourceRef) (ResourceHandle, ObservedState, error) {
	handle, err := c.Lookup.Lookup(ctx, ref.Kind, ref.APIVersion)
	if err != nil {
		return nil, ObservedState{}, err
	}

	observed, err := c.observe(ctx, handle, ref)
	if err != nil {
		return nil, ObservedState{}, err
	}
	return handle, observed, nil
}

// Evaluate runs the precondition decision tree in order: stale-read guard,
// current-count guard, then the desired-count comparison. First match wins.
func (c *ScaleController) Evaluate(observed ObservedState, req ScaleRequest) Decision {
	if req.ResourceVersion != "" && req.ResourceVersion != observed.ResourceVersion {
		c.Log.V(1).Info("resourceVersion precondition not met", "expected", req.ResourceVersion, "observed", observed.ResourceVersion)
		return DecisionSkip
	}
	if req.CurrentReplicas != nil && *req.CurrentReplicas != observed.Replicas {
		c.Log.V(1).Info("current replicas precondition not met", "expected", *req.CurrentReplicas, "observed", observed.Replicas)
		return DecisionSkip
	}
	if observed.Replicas == req.Replicas {
		return DecisionSkip
	}
	return DecisionApply
}

// Apply issues the patch for the resolved strategy. Jobs are patched
// directly on spec.parallelism and never wait; every other kind goes
// through the scale subresource.
func (c *ScaleController) Apply(ctx context.Context, handle ResourceHandle, ref ResourceRef, observed ObservedState, req ScaleRequest) (ScaleResult, error) {
	switch handle.Strategy() {
	case StrategyJobParallelism:
		return c.applyParallelism(ctx, handle, ref, observed, req)
	case StrategyScaleSubresource:
		return c.applyScale(ctx, handle, ref, observed, req)
	default:
		return ScaleResult{Object: observed.Object}, &UnsupportedKindError{Kind: ref.Kind}
	}
}

func (c *ScaleController) applyParallelism(ctx context.Context, handle ResourceHandle, ref ResourceRef, observed ObservedState, req ScaleRequest) (ScaleResult, error) {
	body := map[string]any{
		"spec": map[string]any{"parallelism": req.Replicas},
	}
	updated, err := handle.Patch(ctx, observed.Object, body)
	if err != nil {
		return ScaleResult{Object: observed.Object}, &TransportError{Op: "patch", Err: err}
	}

	match, report, err := c.Differ(observed.Object.Object, updated.Object)
	if err != nil {
		return ScaleResult{Object: updated}, err
	}
	return ScaleResult{Changed: !match, Object: updated, Diff: report}, nil
}

func (c *ScaleController) applyScale(ctx context.Context, handle ResourceHandle, ref ResourceRef, observed ObservedState, req ScaleRequest) (ScaleResult, error) {
	if err := handle.PatchScale(ctx, ref.Name, ref.Namespace, req.Replicas); err != nil {
		return ScaleResult{Object: observed.Object}, &TransportError{Op: "scale", Err: err}
	}

	after, err := handle.Get(ctx, ref.Name, ref.Namespace)
	if err != nil {
		return ScaleResult{Object: observed.Object}, &TransportError{Op: "get", Err: err}
	}

	match, report, err := c.Differ(observed.Object.Object, after.Object)
	if err != nil {
		return ScaleResult{Object: after}, err
	}
	result := ScaleResult{Changed: !match, Object: after, Diff: report}

	if !req.Wait {
		return result, nil
	}

	timeout := req.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	converged, final, elapsed, err := c.WaitForConvergence(ctx, handle, ref, req.Replicas, timeout)
	result.Duration = &elapsed
	if final.Object != nil {
		result.Object = final.Object
	}
	if err != nil {
		return result, err
	}
	if !converged {
		return result, &TimeoutError{Ref: ref, Elapsed: elapsed, Result: result}
	}
	return result, nil
}

// WaitForConvergence polls the object until the observed count matches the
// desired count or the timeout elapses. The terminal state always carries
// the last-observed object and the elapsed wall-clock duration.
func (c *ScaleController) WaitForConvergence(ctx context.Context, handle ResourceHandle, ref ResourceRef, replicas int64, timeout time.Duration) (bool, ObservedState, time.Duration, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	start := c.Clock.Now()
	for {
		observed, err := c.observe(ctx, handle, ref)
		if err != nil {
			return false, observed, c.Clock.Since(start), err
		}
		if observed.Replicas == replicas {
			c.Log.V(1).Info("resource converged", "resource", ref.String(), "replicas", replicas, "elapsed", c.Clock.Since(start))
			return true, observed, c.Clock.Since(start), nil
		}
		if c.Clock.Since(start) >= timeout {
			c.Log.Info("resource scaling timed out", "resource", ref.String(), "observed", observed.Replicas, "desired", replicas)
			return false, observed, c.Clock.Since(start), nil
		}
		c.Log.V(1).Info("waiting for convergence", "resource", ref.String(), "observed", observed.Replicas, "desired", replicas)
		c.Clock.Sleep(interval)
	}
}

// observe fetches a fresh snapshot and extracts the replica count for the
// handle's strategy.
func (c *ScaleController) observe(ctx context.Context, handle ResourceHandle, ref ResourceRef) (ObservedState, error) {
	obj, err := handle.Get(ctx, ref.Name, ref.Namespace)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return ObservedState{}, &NotFoundError{Ref: ref, Err: err}
		}
		return ObservedState{}, &TransportError{Op: "get", Err: err}
	}

	replicas, err := observedReplicas(handle.Strategy(), ref, obj)
	if err != nil {
		return ObservedState{}, err
	}
	return ObservedState{
		Replicas:        replicas,
		ResourceVersion: obj.GetResourceVersion(),
		Object:          obj,
	}, nil
}

// observedReplicas reads spec.parallelism for Jobs, spec.replicas for
// everything else. Absence of the field is a fatal precondition failure.
func observedReplicas(strategy Strategy, ref ResourceRef, obj *unstructured.Unstructured) (int64, error) {
	fields := []string{"spec", "replicas"}
	if strategy == StrategyJobParallelism {
		fields = []string{"spec", "parallelism"}
	}

	count, found, err := unstructured.NestedInt64(obj.Object, fields...)
	if err != nil || !found {
		return 0, &CountUnavailableError{Ref: ref}
	}
	return count, nil
}
