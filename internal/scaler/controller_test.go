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
	"errors"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	clocktesting "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"
)

func newTestController(handle ResourceHandle) (*ScaleController, *fakeLookup, *clocktesting.FakeClock) {
	lookup := &fakeLookup{handle: handle}
	fc := clocktesting.NewFakeClock(time.Now())
	c := NewScaleController(lookup, logr.Discard())
	c.Clock = fc
	return c, lookup, fc
}

var _ = Describe("ScaleController", func() {
	var ctx context.Context

	ref := ResourceRef{Kind: "Deployment", APIVersion: "apps/v1", Name: "web", Namespace: "default"}
	jobRef := ResourceRef{Kind: "Job", APIVersion: "batch/v1", Name: "loader", Namespace: "default"}

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("Evaluate", func() {
		var c *ScaleController

		BeforeEach(func() {
			c, _, _ = newTestController(nil)
		})

		It("Should skip on a resourceVersion mismatch regardless of replica counts", func() {
			observed := ObservedState{Replicas: 2, ResourceVersion: "9"}
			req := ScaleRequest{Replicas: 4, ResourceVersion: "10"}
			Expect(c.Evaluate(observed, req)).To(Equal(DecisionSkip))
		})

		It("Should skip on a current replicas mismatch regardless of resourceVersion", func() {
			observed := ObservedState{Replicas: 2, ResourceVersion: "9"}
			req := ScaleRequest{Replicas: 4, CurrentReplicas: ptr.To(int64(5)), ResourceVersion: "9"}
			Expect(c.Evaluate(observed, req)).To(Equal(DecisionSkip))
		})

		It("Should skip when the observed count already matches", func() {
			observed := ObservedState{Replicas: 3, ResourceVersion: "9"}
			req := ScaleRequest{Replicas: 3}
			Expect(c.Evaluate(observed, req)).To(Equal(DecisionSkip))
		})

		It("Should apply when all guards hold and the counts differ", func() {
			observed := ObservedState{Replicas: 2, ResourceVersion: "5"}
			req := ScaleRequest{Replicas: 4, CurrentReplicas: ptr.To(int64(2)), ResourceVersion: "5"}
			Expect(c.Evaluate(observed, req)).To(Equal(DecisionApply))
		})
	})

	Context("Run against the scale subresource", func() {
		It("Should patch the scale subresource and report the drift", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects: []*unstructured.Unstructured{
					newWorkload("Deployment", "apps/v1", "web", 2, "5"),
					newWorkload("Deployment", "apps/v1", "web", 4, "6"),
				},
			}
			c, _, _ := newTestController(handle)

			result, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Changed).To(BeTrue())
			Expect(handle.scaleCalls).To(Equal([]int64{4}))
			Expect(handle.patchBodies).To(BeEmpty())

			replicas, found, err := unstructured.NestedInt64(result.Object.Object, "spec", "replicas")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(replicas).To(Equal(int64(4)))

			Expect(result.Diff).NotTo(BeNil())
			Expect(result.Diff.Before).To(HaveKey("spec"))
			Expect(result.Diff.Before["spec"]).To(Equal(map[string]any{"replicas": int64(2)}))
			Expect(result.Diff.After["spec"]).To(Equal(map[string]any{"replicas": int64(4)}))
		})

		It("Should report changed=false when the patch silently had no effect", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects: []*unstructured.Unstructured{
					newWorkload("Deployment", "apps/v1", "web", 2, "5"),
					newWorkload("Deployment", "apps/v1", "web", 2, "5"),
				},
			}
			c, _, _ := newTestController(handle)

			result, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.scaleCalls).To(Equal([]int64{4}))
			Expect(result.Changed).To(BeFalse())
		})

		It("Should skip without patching when already at the desired count", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects:  []*unstructured.Unstructured{newWorkload("Deployment", "apps/v1", "web", 3, "5")},
			}
			c, _, _ := newTestController(handle)

			result, err := c.Run(ctx, ref, ScaleRequest{Replicas: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Changed).To(BeFalse())
			Expect(result.Object).NotTo(BeNil())
			Expect(handle.scaleCalls).To(BeEmpty())
			Expect(handle.patchBodies).To(BeEmpty())
		})

		It("Should skip without patching on a stale resourceVersion", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects:  []*unstructured.Unstructured{newWorkload("Deployment", "apps/v1", "web", 2, "9")},
			}
			c, _, _ := newTestController(handle)

			result, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4, ResourceVersion: "10"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Changed).To(BeFalse())
			Expect(handle.scaleCalls).To(BeEmpty())
		})

		It("Should skip without patching on a current replicas mismatch", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects:  []*unstructured.Unstructured{newWorkload("Deployment", "apps/v1", "web", 2, "5")},
			}
			c, _, _ := newTestController(handle)

			result, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4, CurrentReplicas: ptr.To(int64(5))})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Changed).To(BeFalse())
			Expect(handle.scaleCalls).To(BeEmpty())
		})

		It("Should report the change without patching in check mode", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects:  []*unstructured.Unstructured{newWorkload("Deployment", "apps/v1", "web", 2, "5")},
			}
			c, _, _ := newTestController(handle)

			result, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4, CheckMode: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Changed).To(BeTrue())
			Expect(handle.scaleCalls).To(BeEmpty())
			Expect(handle.patchBodies).To(BeEmpty())
		})

		It("Should surface a transport failure on the scale patch as fatal", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects:  []*unstructured.Unstructured{newWorkload("Deployment", "apps/v1", "web", 2, "5")},
				scaleErr: errors.New("connection refused"),
			}
			c, _, _ := newTestController(handle)

			_, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4})
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("scale request failed"))
			Expect(errors.Is(err, handle.scaleErr)).To(BeTrue())
		})
	})

	Context("Run against a Job", func() {
		It("Should patch spec.parallelism directly and never touch the scale subresource", func() {
			handle := &fakeHandle{
				strategy:    StrategyJobParallelism,
				objects:     []*unstructured.Unstructured{newJob("loader", 1, "3")},
				patchResult: newJob("loader", 3, "4"),
			}
			c, _, _ := newTestController(handle)

			result, err := c.Run(ctx, jobRef, ScaleRequest{Replicas: 3, Wait: true, WaitTimeout: time.Minute})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Changed).To(BeTrue())
			Expect(handle.scaleCalls).To(BeEmpty())
			Expect(handle.patchBodies).To(HaveLen(1))
			Expect(handle.patchBodies[0]).To(Equal(map[string]any{
				"spec": map[string]any{"parallelism": int64(3)},
			}))
		})

		It("Should not run the wait loop even when wait is requested", func() {
			handle := &fakeHandle{
				strategy:    StrategyJobParallelism,
				objects:     []*unstructured.Unstructured{newJob("loader", 1, "3")},
				patchResult: newJob("loader", 3, "4"),
			}
			c, _, fc := newTestController(handle)
			before := fc.Now()

			result, err := c.Run(ctx, jobRef, ScaleRequest{Replicas: 3, Wait: true, WaitTimeout: time.Minute})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Duration).To(BeNil())
			// a single fetch, no polling re-fetches
			Expect(handle.getIndex).To(Equal(1))
			Expect(fc.Now()).To(Equal(before))
		})

		It("Should read the count from spec.parallelism", func() {
			handle := &fakeHandle{
				strategy: StrategyJobParallelism,
				objects:  []*unstructured.Unstructured{newJob("loader", 3, "3")},
			}
			c, _, _ := newTestController(handle)

			result, err := c.Run(ctx, jobRef, ScaleRequest{Replicas: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Changed).To(BeFalse())
			Expect(handle.patchBodies).To(BeEmpty())
		})
	})

	Context("Run failure modes", func() {
		It("Should fail with NotFoundError when the object is absent", func() {
			handle := &fakeHandle{strategy: StrategyScaleSubresource}
			c, _, _ := newTestController(handle)

			_, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4})
			var notFound *NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.Ref).To(Equal(ref))
		})

		It("Should fail when neither replicas nor parallelism is present", func() {
			obj := &unstructured.Unstructured{Object: map[string]any{
				"apiVersion": "v1",
				"kind":       "ConfigMap",
				"metadata":   map[string]any{"name": "settings", "namespace": "default"},
			}}
			handle := &fakeHandle{strategy: StrategyScaleSubresource, objects: []*unstructured.Unstructured{obj}}
			c, _, _ := newTestController(handle)

			_, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4})
			var unavailable *CountUnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
		})

		It("Should fail with UnsupportedKindError for kinds without a scale path", func() {
			handle := &fakeHandle{
				strategy: StrategyNone,
				objects:  []*unstructured.Unstructured{newWorkload("FooSet", "example.io/v1", "web", 2, "5")},
			}
			c, _, _ := newTestController(handle)

			_, err := c.Run(ctx, ResourceRef{Kind: "FooSet", APIVersion: "example.io/v1", Name: "web", Namespace: "default"}, ScaleRequest{Replicas: 4})
			var unsupported *UnsupportedKindError
			Expect(errors.As(err, &unsupported)).To(BeTrue())
			Expect(unsupported.Kind).To(Equal("FooSet"))
			Expect(handle.scaleCalls).To(BeEmpty())
		})

		It("Should pass lookup failures through", func() {
			lookup := &fakeLookup{err: errors.New("no matches for kind")}
			c := NewScaleController(lookup, logr.Discard())

			_, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4})
			Expect(err).To(MatchError(ContainSubstring("no matches for kind")))
		})
	})

	Context("WaitForConvergence", func() {
		It("Should converge once the observed count matches", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects: []*unstructured.Unstructured{
					newWorkload("Deployment", "apps/v1", "web", 2, "6"),
					newWorkload("Deployment", "apps/v1", "web", 3, "7"),
					newWorkload("Deployment", "apps/v1", "web", 4, "8"),
				},
			}
			c, _, _ := newTestController(handle)

			converged, observed, elapsed, err := c.WaitForConvergence(ctx, handle, ref, 4, 20*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(converged).To(BeTrue())
			Expect(observed.Replicas).To(Equal(int64(4)))
			Expect(elapsed).To(Equal(10 * time.Second))
			Expect(elapsed).To(BeNumerically("<", 20*time.Second))
		})

		It("Should time out carrying the last observed state", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects:  []*unstructured.Unstructured{newWorkload("Deployment", "apps/v1", "web", 2, "6")},
			}
			c, _, _ := newTestController(handle)

			converged, observed, elapsed, err := c.WaitForConvergence(ctx, handle, ref, 4, 20*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(converged).To(BeFalse())
			Expect(observed.Replicas).To(Equal(int64(2)))
			Expect(elapsed).To(Equal(20 * time.Second))
		})
	})

	Context("Run with wait requested", func() {
		It("Should record the elapsed duration once converged", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects: []*unstructured.Unstructured{
					newWorkload("Deployment", "apps/v1", "web", 2, "5"),
					newWorkload("Deployment", "apps/v1", "web", 4, "6"),
					newWorkload("Deployment", "apps/v1", "web", 2, "6"),
					newWorkload("Deployment", "apps/v1", "web", 4, "7"),
				},
			}
			c, _, _ := newTestController(handle)

			result, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4, Wait: true, WaitTimeout: 20 * time.Second})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Changed).To(BeTrue())
			Expect(result.Duration).NotTo(BeNil())
			Expect(*result.Duration).To(Equal(5 * time.Second))

			replicas, _, _ := unstructured.NestedInt64(result.Object.Object, "spec", "replicas")
			Expect(replicas).To(Equal(int64(4)))
		})

		It("Should surface a convergence timeout as fatal with partial context", func() {
			handle := &fakeHandle{
				strategy: StrategyScaleSubresource,
				objects: []*unstructured.Unstructured{
					newWorkload("Deployment", "apps/v1", "web", 2, "5"),
					newWorkload("Deployment", "apps/v1", "web", 2, "5"),
				},
			}
			c, _, _ := newTestController(handle)

			_, err := c.Run(ctx, ref, ScaleRequest{Replicas: 4, Wait: true, WaitTimeout: 10 * time.Second})
			var timeout *TimeoutError
			Expect(errors.As(err, &timeout)).To(BeTrue())
			Expect(timeout.Elapsed).To(Equal(10 * time.Second))
			Expect(timeout.Result.Object).NotTo(BeNil())
			Expect(timeout.Result.Duration).NotTo(BeNil())
			Expect(timeout.Result.Diff).NotTo(BeNil())
		})
	})
})
