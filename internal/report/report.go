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

// Package report renders the caller-facing result document. The writer is
// an explicit collaborator handed to the entrypoint, so success and
// failure reporting stay injectable instead of living on a base type.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sabre1041/community.kubernetes/internal/diff"
	"github.com/sabre1041/community.kubernetes/internal/scaler"
)

// Result mirrors a generic automation-task report: changed flag, final
// object document, optional diff and duration, plus failure context.
type Result struct {
	Changed  bool           `json:"changed"`
	Result   map[string]any `json:"result"`
	Diff     *diff.Report   `json:"diff,omitempty"`
	Duration *float64       `json:"duration,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Failed   bool           `json:"failed,omitempty"`
	Msg      string         `json:"msg,omitempty"`
}

// FromScale converts a controller result into a report document. Duration
// is present only when a wait was requested, and defaults to zero when the
// run never reached the wait loop.
func FromScale(res scaler.ScaleResult, waitRequested bool) Result {
	out := Result{
		Changed: res.Changed,
		Result:  map[string]any{},
		Diff:    res.Diff,
	}
	if res.Object != nil {
		out.Result = res.Object.Object
	}
	if waitRequested {
		seconds := 0.0
		if res.Duration != nil {
			seconds = res.Duration.Seconds()
		}
		out.Duration = &seconds
	}
	return out
}

// Writer emits result documents as indented JSON.
type Writer struct {
	Out io.Writer
}

// Exit writes a successful result.
func (w *Writer) Exit(res Result) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("unable to write result: %w", err)
	}
	return nil
}

// Fail writes a failed result carrying whatever context was gathered
// before the fatal condition.
func (w *Writer) Fail(res Result, msg string) error {
	res.Failed = true
	res.Msg = msg
	return w.Exit(res)
}
