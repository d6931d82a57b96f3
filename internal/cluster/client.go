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
	"fmt"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/scale"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// NewRESTConfig loads client configuration from the usual kubeconfig
// sources. An explicit path and context override the defaults; in-cluster
// configuration is picked up automatically when nothing else matches.
func NewRESTConfig(kubeconfig, kubeContext string) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}

	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("unable to load client configuration: %w", err)
	}
	return cfg, nil
}

// NewLookup builds the production resource lookup for a cluster: a
// controller-runtime client for object reads and patches, and a scale
// client resolved through discovery for the scale subresource.
func NewLookup(cfg *rest.Config) (*Lookup, error) {
	c, err := client.New(cfg, client.Options{})
	if err != nil {
		return nil, fmt.Errorf("unable to build cluster client: %w", err)
	}

	dc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to build discovery client: %w", err)
	}
	resolver := scale.NewDiscoveryScaleKindResolver(memory.NewMemCacheClient(dc))

	scales, err := scale.NewForConfig(cfg, c.RESTMapper(), dynamic.LegacyAPIPathResolverFunc, resolver)
	if err != nil {
		return nil, fmt.Errorf("unable to build scale client: %w", err)
	}

	return &Lookup{
		Client:   c,
		Scales:   scales,
		Resolver: resolver,
	}, nil
}
