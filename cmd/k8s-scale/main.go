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

// k8s-scale sets a new size for a Kubernetes workload resource and
// reports the outcome as a JSON task document on stdout.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	ctrlzap "sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/sabre1041/community.kubernetes/internal/cluster"
	"github.com/sabre1041/community.kubernetes/internal/config"
	"github.com/sabre1041/community.kubernetes/internal/definition"
	"github.com/sabre1041/community.kubernetes/internal/report"
	"github.com/sabre1041/community.kubernetes/internal/scaler"
)

// ScaleOptions holds the flag values of one invocation plus the resolved
// target reference.
type ScaleOptions struct {
	Kind               string
	APIVersion         string
	Name               string
	Namespace          string
	Replicas           int64
	CurrentReplicas    int64
	ResourceVersion    string
	Wait               bool
	WaitTimeout        time.Duration
	CheckMode          bool
	ResourceDefinition string
	Src                string
	Kubeconfig         string
	Context            string
	Debug              bool

	Out io.Writer

	ref      scaler.ResourceRef
	warnings []string
}

func NewScaleOptions(out io.Writer) *ScaleOptions {
	cfg := config.FromEnv()
	return &ScaleOptions{
		APIVersion:      "v1",
		Replicas:        -1,
		CurrentReplicas: -1,
		Wait:            true,
		WaitTimeout:     cfg.WaitTimeout,
		Out:             out,
	}
}

func NewScaleCommand(out io.Writer) *cobra.Command {
	o := NewScaleOptions(out)

	cmd := &cobra.Command{
		Use:           "k8s-scale --kind KIND --name NAME --replicas COUNT",
		Short:         "Set a new size for a deployment, replica set, stateful set, or job",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Execute(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&o.Kind, "kind", o.Kind, "Kind of the resource to scale")
	cmd.Flags().StringVar(&o.APIVersion, "api-version", o.APIVersion, "API version of the resource to scale")
	cmd.Flags().StringVar(&o.Name, "name", o.Name, "Name of the resource to scale")
	cmd.Flags().StringVarP(&o.Namespace, "namespace", "n", o.Namespace, "Namespace of the resource to scale")
	cmd.Flags().Int64Var(&o.Replicas, "replicas", o.Replicas, "The new desired number of replicas. Required")
	cmd.Flags().Int64Var(&o.CurrentReplicas, "current-replicas", o.CurrentReplicas, "Precondition for current size. -1 (default) for no condition")
	cmd.Flags().StringVar(&o.ResourceVersion, "resource-version", o.ResourceVersion, "Precondition for resource version. Requires the current resource version to match")
	cmd.Flags().BoolVar(&o.Wait, "wait", o.Wait, "Wait for the scaled resource to converge")
	cmd.Flags().DurationVar(&o.WaitTimeout, "wait-timeout", o.WaitTimeout, "How long to wait for convergence before giving up")
	cmd.Flags().BoolVar(&o.CheckMode, "check", o.CheckMode, "Report what would change without patching anything")
	cmd.Flags().StringVar(&o.ResourceDefinition, "resource-definition", o.ResourceDefinition, "Inline YAML definition of the resource to scale")
	cmd.Flags().StringVar(&o.Src, "src", o.Src, "Path to a YAML file holding the resource definition")
	cmd.Flags().StringVar(&o.Kubeconfig, "kubeconfig", o.Kubeconfig, "Path to the kubeconfig file to use")
	cmd.Flags().StringVar(&o.Context, "context", o.Context, "Kubeconfig context to use")
	cmd.Flags().BoolVar(&o.Debug, "debug", o.Debug, "Enable verbose development logging")

	return cmd
}

// Execute runs the invocation end to end. Every failure is emitted as a
// failed report document before the error propagates to the exit code.
func (o *ScaleOptions) Execute(ctx context.Context) error {
	writer := &report.Writer{Out: o.Out}

	if err := o.Complete(); err != nil {
		return o.fail(writer, scaler.ScaleResult{}, err)
	}
	if err := o.Validate(); err != nil {
		return o.fail(writer, scaler.ScaleResult{}, err)
	}
	return o.Run(ctx, writer)
}

// Complete resolves the target reference from the definition sources.
func (o *ScaleOptions) Complete() error {
	docs, err := definition.Load(o.ResourceDefinition, o.Src, scaler.ResourceRef{
		Kind:       o.Kind,
		APIVersion: o.APIVersion,
		Name:       o.Name,
		Namespace:  o.Namespace,
	})
	if err != nil {
		return err
	}
	if len(docs) > 1 {
		o.warnings = append(o.warnings, "multiple resource definitions provided, only the first is scaled")
	}

	ref, err := definition.RefFor(docs[0])
	if err != nil {
		return err
	}
	if ref.Namespace == "" {
		ref.Namespace = o.Namespace
	}
	o.ref = ref
	return nil
}

func (o *ScaleOptions) Validate() error {
	if o.Replicas < 0 {
		return errors.New("--replicas is required and must be greater than or equal to 0")
	}
	if o.CurrentReplicas < -1 {
		return errors.New("--current-replicas must be an integer of -1 or greater")
	}
	if o.WaitTimeout <= 0 {
		return errors.New("--wait-timeout must be a positive duration")
	}
	return nil
}

func (o *ScaleOptions) Run(ctx context.Context, writer *report.Writer) error {
	logger := ctrlzap.New(
		ctrlzap.UseDevMode(o.Debug),
		func(o *ctrlzap.Options) { o.TimeEncoder = zapcore.ISO8601TimeEncoder },
		ctrlzap.WriteTo(os.Stderr),
	)
	ctrl.SetLogger(logger)

	cfg, err := cluster.NewRESTConfig(o.Kubeconfig, o.Context)
	if err != nil {
		return o.fail(writer, scaler.ScaleResult{}, err)
	}
	lookup, err := cluster.NewLookup(cfg)
	if err != nil {
		return o.fail(writer, scaler.ScaleResult{}, err)
	}

	controller := scaler.NewScaleController(lookup, logger.WithName("scale"))
	controller.PollInterval = config.FromEnv().PollInterval

	req := scaler.ScaleRequest{
		Replicas:        o.Replicas,
		ResourceVersion: o.ResourceVersion,
		Wait:            o.Wait,
		WaitTimeout:     o.WaitTimeout,
		CheckMode:       o.CheckMode,
	}
	if o.CurrentReplicas >= 0 {
		req.CurrentReplicas = ptr.To(o.CurrentReplicas)
	}

	result, err := controller.Run(ctx, o.ref, req)
	if err != nil {
		var timeout *scaler.TimeoutError
		if errors.As(err, &timeout) {
			result = timeout.Result
		}
		return o.fail(writer, result, err)
	}

	res := report.FromScale(result, o.Wait)
	res.Warnings = o.warnings
	return writer.Exit(res)
}

// fail emits the failed report with whatever context was gathered, then
// returns the original error for the exit code.
func (o *ScaleOptions) fail(writer *report.Writer, result scaler.ScaleResult, err error) error {
	res := report.FromScale(result, o.Wait)
	res.Warnings = o.warnings
	if werr := writer.Fail(res, err.Error()); werr != nil {
		return werr
	}
	return err
}

func main() {
	if err := NewScaleCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
