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

package utils

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:staticcheck,revive
)

const (
	defaultKindBinary  = "kind"
	defaultKindCluster = "kind"
)

// Run executes the provided command from the project directory and returns
// its combined output.
func Run(cmd *exec.Cmd) (string, error) {
	dir, _ := GetProjectDir()
	cmd.Dir = dir

	command := strings.Join(cmd.Args, " ")
	_, _ = fmt.Fprintf(GinkgoWriter, "running: %s\n", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s failed with error: (%v) %s", command, err, string(output))
	}

	return string(output), nil
}

// Kubectl runs kubectl with the given arguments. The binary can be overridden
// with the KUBECTL environment variable.
func Kubectl(args ...string) (string, error) {
	kubectl := "kubectl"
	if v, ok := os.LookupEnv("KUBECTL"); ok {
		kubectl = v
	}
	return Run(exec.Command(kubectl, args...))
}

// KindClusterName returns the name of the kind cluster used for e2e runs,
// honoring the KIND_CLUSTER environment variable.
func KindClusterName() string {
	if v, ok := os.LookupEnv("KIND_CLUSTER"); ok {
		return v
	}
	return defaultKindCluster
}

// IsKindClusterRunning reports whether the target kind cluster exists. The
// kind binary can be overridden with the KIND environment variable.
func IsKindClusterRunning() bool {
	kindBinary := defaultKindBinary
	if v, ok := os.LookupEnv("KIND"); ok {
		kindBinary = v
	}
	output, err := Run(exec.Command(kindBinary, "get", "clusters"))
	if err != nil {
		return false
	}
	for _, cluster := range GetNonEmptyLines(output) {
		if cluster == KindClusterName() {
			return true
		}
	}
	return false
}

// GetNonEmptyLines converts given command output string into individual lines,
// dropping the empty ones.
func GetNonEmptyLines(output string) []string {
	var res []string
	elements := strings.Split(output, "\n")
	for _, element := range elements {
		if element != "" {
			res = append(res, element)
		}
	}

	return res
}

// GetProjectDir will return the directory where the project is.
func GetProjectDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return wd, err
	}
	wd = strings.ReplaceAll(wd, "/test/e2e", "")
	return wd, nil
}
