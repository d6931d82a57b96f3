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

// Package definition resolves the resource-definition documents a scale
// invocation targets: inline YAML, a definition file, or an implicit
// document synthesized from discrete parameters.
package definition

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	"github.com/sabre1041/community.kubernetes/internal/scaler"
)

// Load resolves the definition documents for an invocation. Inline YAML
// and a source file are mutually exclusive; with neither present an
// implicit document is synthesized from ref.
func Load(inline, src string, ref scaler.ResourceRef) ([]map[string]any, error) {
	switch {
	case inline != "" && src != "":
		return nil, errors.New("resource definition and src are mutually exclusive")
	case inline != "":
		return FromYAML(strings.NewReader(inline))
	case src != "":
		return FromFile(src)
	default:
		return []map[string]any{Implicit(ref)}, nil
	}
}

// FromYAML decodes one or more YAML documents into definition maps.
// Empty documents are dropped.
func FromYAML(r io.Reader) ([]map[string]any, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(r))

	var docs []map[string]any
	for {
		raw, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error loading resource definition: %w", err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("error loading resource definition: %w", err)
		}
		if len(doc) > 0 {
			docs = append(docs, doc)
		}
	}

	if len(docs) == 0 {
		return nil, errors.New("no resource definition found")
	}
	return docs, nil
}

// FromFile reads definition documents from a YAML file on disk.
func FromFile(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error loading resource definition file: %w", err)
	}
	defer f.Close()

	return FromYAML(f)
}

// Implicit builds the minimal definition document from discrete parameters.
func Implicit(ref scaler.ResourceRef) map[string]any {
	metadata := map[string]any{"name": ref.Name}
	if ref.Namespace != "" {
		metadata["namespace"] = ref.Namespace
	}
	return map[string]any{
		"kind":       ref.Kind,
		"apiVersion": ref.APIVersion,
		"metadata":   metadata,
	}
}

// RefFor extracts the target reference from a definition document.
func RefFor(doc map[string]any) (scaler.ResourceRef, error) {
	obj := &unstructured.Unstructured{Object: doc}
	ref := scaler.ResourceRef{
		Kind:       obj.GetKind(),
		APIVersion: obj.GetAPIVersion(),
		Name:       obj.GetName(),
		Namespace:  obj.GetNamespace(),
	}

	if ref.Kind == "" {
		return scaler.ResourceRef{}, errors.New("resource definition is missing kind")
	}
	if ref.APIVersion == "" {
		return scaler.ResourceRef{}, errors.New("resource definition is missing apiVersion")
	}
	if ref.Name == "" {
		return scaler.ResourceRef{}, errors.New("resource definition is missing metadata.name")
	}
	return ref, nil
}
